package audit

import (
	"context"
	"log/slog"
	"sync"
)

// Forwarder buffers committed audit events on a channel and drains them to a
// sink on a background goroutine. A full buffer drops the event rather than
// blocking the request path; drops are logged and counted.
type Forwarder struct {
	sink   Sink
	logger *slog.Logger
	inbox  chan Event

	closeOnce sync.Once
	done      chan struct{}

	mu      sync.Mutex
	dropped int
}

// NewForwarder starts a forwarder draining into sink. buffer bounds the
// number of in-flight events.
func NewForwarder(sink Sink, logger *slog.Logger, buffer int) *Forwarder {
	if buffer <= 0 {
		buffer = 256
	}
	f := &Forwarder{
		sink:   sink,
		logger: logger,
		inbox:  make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go f.run()
	return f
}

// Emit enqueues an event for forwarding. It never blocks and never returns
// an error to the caller; the in-transaction audit row is the durable record.
func (f *Forwarder) Emit(_ context.Context, event Event) {
	select {
	case f.inbox <- event:
	default:
		f.mu.Lock()
		f.dropped++
		f.mu.Unlock()
		if f.logger != nil {
			f.logger.Warn("audit forwarder buffer full, dropping event",
				"action", event.Action,
				"registry", event.Registry,
			)
		}
	}
}

// Dropped reports how many events were discarded due to a full buffer.
func (f *Forwarder) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Close drains remaining events and closes the sink.
func (f *Forwarder) Close() error {
	f.closeOnce.Do(func() {
		close(f.inbox)
		<-f.done
	})
	return f.sink.Close()
}

func (f *Forwarder) run() {
	defer close(f.done)
	for event := range f.inbox {
		if err := f.sink.Publish(event); err != nil && f.logger != nil {
			f.logger.Error("audit sink publish failed",
				"action", event.Action,
				"registry", event.Registry,
				"error", err,
			)
		}
	}
}

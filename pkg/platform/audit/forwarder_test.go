package audit

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Publish(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event{}, s.events...)
}

func TestForwarderDrainsOnClose(t *testing.T) {
	sink := &captureSink{}
	fwd := NewForwarder(sink, nil, 100)

	for i := 0; i < 10; i++ {
		fwd.Emit(context.Background(), Event{Action: "grant_added", Registry: "reg-1"})
	}

	require.NoError(t, fwd.Close())

	events := sink.snapshot()
	require.Len(t, events, 10)
	assert.Equal(t, "grant_added", events[0].Action)
	assert.True(t, sink.closed)
	assert.Zero(t, fwd.Dropped())
}

func TestForwarderCloseIsIdempotent(t *testing.T) {
	sink := &captureSink{}
	fwd := NewForwarder(sink, nil, 1)

	require.NoError(t, fwd.Close())
	require.NoError(t, fwd.Close())
}

// Package audit provides asynchronous fan-out of committed audit entries.
//
// The registry's audit rows are written inside the same transaction as the
// mutation they describe; those rows are the source of truth. This package
// handles the second leg: after commit, entries are handed to a Forwarder
// which drains them to an external sink (Kafka when configured) for
// SIEM-style consumers. Forwarding is best effort and never fails the
// originating mutation.
package audit

import (
	"time"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out without knowing store internals.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	Registry          string    `json:"registry"`
	Domain            string    `json:"domain"`
	User              string    `json:"user"`
	Action            string    `json:"action"`
	RelatedObjectID   string    `json:"related_object_id"`
	RelatedObjectType string    `json:"related_object_type"`
	Detail            []byte    `json:"detail,omitempty"`
	RequestID         string    `json:"request_id,omitempty"`
}

// Sink receives events after the originating transaction has committed.
type Sink interface {
	Publish(event Event) error
	Close() error
}

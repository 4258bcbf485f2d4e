package matching

import (
	"log/slog"
	"time"
)

// EventKind identifies the type of event emitted while matching.
type EventKind string

const (
	// EventMatchStarted is emitted when ForCollections begins.
	EventMatchStarted EventKind = "match.started"

	// EventInputLinked is emitted when a linked input has been resolved and
	// accepted.
	EventInputLinked EventKind = "input.linked"

	// EventInputUnlinked is emitted when an unlinked input has been resolved.
	EventInputUnlinked EventKind = "input.unlinked"

	// EventMismatch is emitted when a linked input fails to match the
	// baseline structure.
	EventMismatch EventKind = "match.mismatch"

	// EventMatchFinished is emitted when ForCollections completes
	// successfully.
	EventMatchFinished EventKind = "match.finished"

	// EventMatchFailed is emitted when ForCollections aborts for any reason
	// other than a structural mismatch. Payload["error"] holds the message.
	EventMatchFailed EventKind = "match.failed"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a small record of a matching step.
type Event struct {
	Kind   EventKind
	PlanID string

	// Input is empty for match-level events.
	Input          string
	CollectionType string

	Time    time.Time
	Elapsed time.Duration // set on match.finished, match.mismatch and match.failed

	Payload map[string]any
}

// EventHandler receives matching events synchronously.
type EventHandler func(Event)

// MultiEventHandler fans an event out to several handlers in order.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

// Option configures ForCollections.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	handler EventHandler
	planID  string
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler registers a handler for matching events.
func WithEventHandler(h EventHandler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// WithPlanID sets the plan identifier attached to events. Defaults to a
// random UUID.
func WithPlanID(id string) Option {
	return func(o *options) {
		o.planID = id
	}
}

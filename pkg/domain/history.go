package domain

import "time"

// EventType names a node history marker. Each type appears at most once
// in a node's History; writing an event overwrites any prior event of
// the same type.
type EventType string

const (
	EventProvisioned EventType = "provisioned"
	EventReadied     EventType = "readied"
	EventReserved    EventType = "reserved"
	EventActivated   EventType = "activated"
	EventRequested   EventType = "requested"
	EventDown        EventType = "down"
	EventFailed      EventType = "failed"
	EventDeactivated EventType = "deactivated"
	EventParked      EventType = "parked"
	EventDirtied     EventType = "dirtied"
)

// Agent names who caused a transition: "system" for the maintenance core
// itself, or an operator/external-actor identifier.
const AgentSystem = "system"

// Event is a single history marker.
type Event struct {
	Type   EventType `json:"type"`
	Agent  string    `json:"agent"`
	Instant time.Time `json:"instant"`
}

// History is an append-or-replace-by-type sequence of events, queryable
// by type (most-recent-for-type) and by time.
type History []Event

// Clone returns an independent copy of the history slice.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Get returns the event of the given type, if present.
func (h History) Get(t EventType) (Event, bool) {
	for _, e := range h {
		if e.Type == t {
			return e, true
		}
	}
	return Event{}, false
}

// Has reports whether an event of the given type is present.
func (h History) Has(t EventType) bool {
	_, ok := h.Get(t)
	return ok
}

// With returns a new History with the event of the given type set
// (inserted or replaced) to agent/instant.
func (h History) With(t EventType, agent string, instant time.Time) History {
	out := make(History, 0, len(h)+1)
	replaced := false
	for _, e := range h {
		if e.Type == t {
			out = append(out, Event{Type: t, Agent: agent, Instant: instant})
			replaced = true
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, Event{Type: t, Agent: agent, Instant: instant})
	}
	return out
}

// Without returns a new History with any event of the given type removed.
func (h History) Without(t EventType) History {
	out := make(History, 0, len(h))
	for _, e := range h {
		if e.Type == t {
			continue
		}
		out = append(out, e)
	}
	return out
}

package node

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a node lifecycle transition.
type EventType int

const (
	EventCreated EventType = iota
	EventOpened
	EventClosed
	EventHangUp // last master handle closed
	EventResized
	EventDestroyed
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventHangUp:
		return "hangup"
	case EventResized:
		return "resized"
	case EventDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event describes one lifecycle transition of a node.
type Event struct {
	Type   EventType `json:"type"`
	NodeID uuid.UUID `json:"node_id"`
	Name   string    `json:"name"`
	Kind   Kind      `json:"-"`
	Side   Side      `json:"-"`
	Peers  PeerState `json:"peers"`
	Time   time.Time `json:"time"`
}

package terminal

import "github.com/srg/kterm/internal/node"

// Presence classifies which sides of a terminal are attached. The device
// never tracks it; it is derived from a PeerState snapshot on demand.
type Presence int

const (
	NoPeers Presence = iota
	SlaveOnly
	MasterOnly
	BothAttached
)

func (p Presence) String() string {
	switch p {
	case SlaveOnly:
		return "slave-only"
	case MasterOnly:
		return "master-only"
	case BothAttached:
		return "both-attached"
	default:
		return "no-peers"
	}
}

func (p Presence) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// PresenceOf maps a snapshot onto the four peer-presence states.
func PresenceOf(peers node.PeerState) Presence {
	slave := peers.Slaves > 0
	switch {
	case peers.MasterOpen && slave:
		return BothAttached
	case peers.MasterOpen:
		return MasterOnly
	case slave:
		return SlaveOnly
	default:
		return NoPeers
	}
}

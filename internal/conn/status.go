package conn

import (
	"encoding/json"
	"fmt"

	"github.com/groverooms/grove/internal/wire"
)

// Joining accumulates the three lifecycle frames a server sends before a
// connection is considered part of the room (spec §4.C): hello, snapshot,
// and, if authentication is required, bounce. Any membership or message
// frame arriving before that handshake completes is a protocol violation.
type Joining struct {
	Hello    *wire.HelloEvent
	Snapshot *wire.SnapshotEvent
	Bounce   *wire.BounceEvent
}

func (j *Joining) onData(t wire.Type, raw json.RawMessage) error {
	switch t {
	case wire.TypeBounceEvent:
		var p wire.BounceEvent
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		j.Bounce = &p
		return nil
	case wire.TypeHelloEvent:
		var p wire.HelloEvent
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		j.Hello = &p
		return nil
	case wire.TypeSnapshotEvent:
		var p wire.SnapshotEvent
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		j.Snapshot = &p
		return nil
	}

	switch wire.Classify(t) {
	case wire.KindMembership, wire.KindMessage:
		return fmt.Errorf("conn: unexpected %s frame before join handshake completed", t)
	}
	return nil
}

// joined returns the Joined state once both hello and snapshot have
// arrived, nil otherwise.
func (j *Joining) joined() (*Joined, bool) {
	if j.Hello == nil || j.Snapshot == nil {
		return nil, false
	}
	session := j.Hello.Session
	if j.Snapshot.Nick != "" {
		session.Name = j.Snapshot.Nick
	}
	listing := make(map[string]wire.SessionView, len(j.Snapshot.Listing))
	for _, s := range j.Snapshot.Listing {
		listing[s.ID] = s
	}
	return &Joined{
		Session: session,
		Account: j.Hello.Account,
		Listing: listing,
	}, true
}

// Joined is the steady-state session view: our own identity and the
// current room listing, kept up to date from membership frames.
type Joined struct {
	Session wire.SessionView
	Account *struct {
		ID string `json:"id"`
	}
	Listing map[string]wire.SessionView
}

func (j *Joined) onData(t wire.Type, raw json.RawMessage) {
	switch t {
	case wire.TypeJoinEvent:
		var p wire.JoinEvent
		if json.Unmarshal(raw, &p) == nil {
			j.Listing[p.ID] = p.SessionView
		}
	case wire.TypeSendEvent:
		var p wire.SendEvent
		if json.Unmarshal(raw, &p) == nil {
			j.Listing[p.Sender.ID] = p.Sender
		}
	case wire.TypePartEvent:
		var p wire.PartEvent
		if json.Unmarshal(raw, &p) == nil {
			delete(j.Listing, p.ID)
		}
	case wire.TypeNetworkEvent:
		var p wire.NetworkEvent
		if json.Unmarshal(raw, &p) == nil && p.Type == "partition" {
			for id, s := range j.Listing {
				if s.ServerID == p.ServerID && s.ServerEra == p.ServerEra {
					delete(j.Listing, id)
				}
			}
		}
	case wire.TypeNickEvent:
		var p wire.NickEvent
		if json.Unmarshal(raw, &p) == nil {
			if s, ok := j.Listing[p.ID]; ok {
				s.Name = p.To
				j.Listing[p.ID] = s
			}
		}
	case wire.TypeNickReply:
		var p wire.NickReply
		if json.Unmarshal(raw, &p) == nil {
			j.Session.Name = p.To
		}
	// who-reply's listing is not trusted to update session state here
	// (spec §4.C Open Question decision): it falls through to the
	// default case and is never folded into Listing.
	default:
	}
}

// StatusKind tags which half of the Status union is populated.
type StatusKind int

const (
	StatusJoining StatusKind = iota
	StatusJoined
)

// Status is a snapshot of the connection's join state, returned by
// Tx.Status.
type Status struct {
	Kind    StatusKind
	Joining Joining
	Joined  Joined
}

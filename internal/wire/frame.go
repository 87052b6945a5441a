// Package wire implements the tagged JSON protocol frame used to talk to
// euphoria-family chat servers over a WebSocket text connection.
package wire

import (
	"encoding/json"
	"fmt"
)

// Frame is the envelope every protocol message is wrapped in, in both
// directions. Exactly the fields present on the wire are kept; absent
// optional fields are the Go zero value.
type Frame struct {
	ID              string          `json:"id,omitempty"`
	Type            Type            `json:"type"`
	Data            json.RawMessage `json:"data,omitempty"`
	Error           string          `json:"error,omitempty"`
	Throttled       bool            `json:"throttled,omitempty"`
	ThrottledReason string          `json:"throttled_reason,omitempty"`
}

// Type is the kebab-case tag identifying a frame's payload shape.
type Type string

// Recognised frame types. Any type not in this set is decoded but treated
// as "not implemented" by callers (Classify returns KindUnknown).
const (
	TypeHelloEvent       Type = "hello-event"
	TypeSnapshotEvent    Type = "snapshot-event"
	TypeBounceEvent      Type = "bounce-event"
	TypeDisconnectEvent  Type = "disconnect-event"
	TypeNetworkEvent     Type = "network-event"
	TypeJoinEvent        Type = "join-event"
	TypePartEvent        Type = "part-event"
	TypeNickEvent        Type = "nick-event"
	TypeSendEvent        Type = "send-event"
	TypeEditMessageEvent Type = "edit-message-event"
	TypePMInitiateEvent  Type = "pm-initiate-event"
	TypePingEvent        Type = "ping-event"
	TypePingReply        Type = "ping-reply"
	TypeAuth             Type = "auth"
	TypeAuthReply        Type = "auth-reply"
	TypePing             Type = "ping"
	TypeNick             Type = "nick"
	TypeNickReply        Type = "nick-reply"
	TypeSend             Type = "send"
	TypeSendReply        Type = "send-reply"
	TypeLog              Type = "log"
	TypeLogReply         Type = "log-reply"
	TypeWho              Type = "who"
	TypeWhoReply         Type = "who-reply"
	TypeLogin            Type = "login"
	TypeLoginReply       Type = "login-reply"
	TypeLogout           Type = "logout"
	TypeLogoutReply      Type = "logout-reply"
)

// Kind buckets a Type for the connection engine's join-state validation.
type Kind int

const (
	KindUnknown Kind = iota
	KindLifecycle
	KindMembership
	KindMessage
	KindPing
	KindCommandReply
)

var kinds = map[Type]Kind{
	TypeHelloEvent:      KindLifecycle,
	TypeSnapshotEvent:   KindLifecycle,
	TypeBounceEvent:     KindLifecycle,
	TypeDisconnectEvent: KindLifecycle,
	TypeNetworkEvent:    KindLifecycle,

	TypeJoinEvent: KindMembership,
	TypePartEvent: KindMembership,
	TypeNickEvent: KindMembership,

	TypeSendEvent:        KindMessage,
	TypeEditMessageEvent: KindMessage,
	TypePMInitiateEvent:  KindMessage,

	TypePingEvent: KindPing,
	TypePingReply: KindPing,

	TypeAuthReply:   KindCommandReply,
	TypeNickReply:   KindCommandReply,
	TypeSendReply:   KindCommandReply,
	TypeLogReply:    KindCommandReply,
	TypeWhoReply:    KindCommandReply,
	TypeLoginReply:  KindCommandReply,
	TypeLogoutReply: KindCommandReply,
}

// Classify reports the broad category a frame type belongs to.
func Classify(t Type) Kind {
	if k, ok := kinds[t]; ok {
		return k
	}
	return KindUnknown
}

// ToFrame builds an outbound command frame, marshalling payload into Data.
// id should come from a monotonic counter (see internal/conn) so replies
// can be correlated.
func ToFrame(t Type, id string, payload any) (Frame, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("wire: marshal %s payload: %w", t, err)
		}
		data = b
	}
	return Frame{ID: id, Type: t, Data: data}, nil
}

// Encode serialises f as the JSON text sent over the WebSocket connection.
func Encode(f Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("wire: encode frame: %w", err)
	}
	return b, nil
}

// Decode parses a raw WebSocket text message into a Frame.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("wire: decode frame: %w", err)
	}
	return f, nil
}

// ServerError represents a frame that failed on the server side, whether
// because of an explicit error field or because the client was throttled.
// A throttled frame always decodes as a ServerError regardless of its
// Type, per the protocol's own framing of throttling as an error
// condition.
type ServerError struct {
	Type            Type
	ID              string
	Reason          string
	Throttled       bool
	ThrottledReason string
}

func (e *ServerError) Error() string {
	if e.Throttled {
		return fmt.Sprintf("wire: %s throttled: %s", e.Type, e.ThrottledReason)
	}
	return fmt.Sprintf("wire: %s failed: %s", e.Type, e.Reason)
}

// AsError reports the frame's error condition, if any.
func (f Frame) AsError() error {
	if f.Throttled {
		return &ServerError{Type: f.Type, ID: f.ID, Throttled: true, ThrottledReason: f.ThrottledReason}
	}
	if f.Error != "" {
		return &ServerError{Type: f.Type, ID: f.ID, Reason: f.Error}
	}
	return nil
}

// DecodePayload unmarshals a frame's Data into T, after checking for an
// error condition on the frame itself. Calling it on a frame with no
// data returns the zero value of T and a nil error.
func DecodePayload[T any](f Frame) (T, error) {
	var out T
	if err := f.AsError(); err != nil {
		return out, err
	}
	if len(f.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(f.Data, &out); err != nil {
		return out, fmt.Errorf("wire: decode %s payload: %w", f.Type, err)
	}
	return out, nil
}

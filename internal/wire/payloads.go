package wire

import "github.com/groverooms/grove/internal/euphid"

// SessionView mirrors the session-view data model of §3: a joined
// room participant, or the author of a message.
type SessionView struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ServerID          string `json:"server_id"`
	ServerEra         string `json:"server_era"`
	SessionID         string `json:"session_id"`
	IsStaff           bool   `json:"is_staff,omitempty"`
	IsManager         bool   `json:"is_manager,omitempty"`
	ClientAddress     string `json:"client_address,omitempty"`
	RealClientAddress string `json:"real_client_address,omitempty"`
}

// Message is the wire representation of a chat message.
type Message struct {
	ID             euphid.ID    `json:"id"`
	Parent         *euphid.ID   `json:"parent,omitempty"`
	Time           int64        `json:"time"`
	Sender         SessionView  `json:"sender"`
	Content        string       `json:"content"`
	PreviousEditID *euphid.ID   `json:"previous_edit_id,omitempty"`
	EditedTime     *int64       `json:"edited,omitempty"`
	DeletedTime    *int64       `json:"deleted,omitempty"`
	Truncated      bool         `json:"truncated,omitempty"`
}

// HelloEvent is sent once per connection, identifying the session.
type HelloEvent struct {
	Session SessionView `json:"session"`
	Account *struct {
		ID string `json:"id"`
	} `json:"account,omitempty"`
	RoomIsPrivate bool   `json:"room_is_private,omitempty"`
	Version       string `json:"version,omitempty"`
}

// SnapshotEvent carries the initial room state: nick, listing, and a
// short tail of recent log messages.
type SnapshotEvent struct {
	Identity        string        `json:"identity"`
	SessionID       string        `json:"session_id"`
	Version         string        `json:"version"`
	Listing         []SessionView `json:"listing"`
	Log             []Message     `json:"log"`
	Nick            string        `json:"nick,omitempty"`
	PMWithNick      string        `json:"pm_with_nick,omitempty"`
	PMWithUserID    string        `json:"pm_with_user_id,omitempty"`
}

// BounceEvent tells the client it must authenticate before proceeding.
type BounceEvent struct {
	Reason    string   `json:"reason,omitempty"`
	AuthTypes []string `json:"auth_options,omitempty"`
}

// DisconnectEvent instructs the client to reconnect, optionally elsewhere.
type DisconnectEvent struct {
	Reason string `json:"reason"`
}

// NetworkEvent announces a server-side partition; sessions matching the
// given server id/era should be treated as parted.
type NetworkEvent struct {
	Type      string `json:"type"`
	ServerID  string `json:"server_id"`
	ServerEra string `json:"server_era"`
}

// JoinEvent/PartEvent/NickEvent track listing membership changes.
type JoinEvent struct {
	SessionView
}

type PartEvent struct {
	SessionView
}

type NickEvent struct {
	SessionID string `json:"session_id"`
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// SendEvent announces a new message; EditMessageEvent announces an edit
// or deletion of an existing one.
type SendEvent struct {
	Message
}

type EditMessageEvent struct {
	Message
}

// PMInitiateEvent signals another user has opened a private conversation.
type PMInitiateEvent struct {
	From     string `json:"from"`
	FromNick string `json:"from_nick"`
	FromRoom string `json:"from_room"`
	PMID     string `json:"pm_id"`
}

// PingEvent is a server-initiated application-level ping.
type PingEvent struct {
	Time     int64 `json:"time"`
	NextTime int64 `json:"next"`
}

// PingReply both answers PingEvent and is the reply to an outbound Ping
// command.
type PingReply struct {
	Time int64 `json:"time"`
}

// Auth command/reply.
type AuthCmd struct {
	Type     string `json:"type"`
	Passcode string `json:"passcode,omitempty"`
}

type AuthReply struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Ping command.
type PingCmd struct {
	Time int64 `json:"time,omitempty"`
}

// Nick command/reply.
type NickCmd struct {
	Name string `json:"name"`
}

type NickReply struct {
	SessionID string `json:"session_id,omitempty"`
	ID        string `json:"id,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// Send command/reply.
type SendCmd struct {
	Content string     `json:"content"`
	Parent  *euphid.ID `json:"parent,omitempty"`
}

type SendReply struct {
	Message
}

// Log command/reply: request up to N messages before a given id.
type LogCmd struct {
	N      int        `json:"n"`
	Before *euphid.ID `json:"before,omitempty"`
}

type LogReply struct {
	Log    []Message  `json:"log"`
	Before *euphid.ID `json:"before,omitempty"`
}

// Who command/reply. Per design note, the listing it returns is
// intentionally not used to update session state.
type WhoCmd struct{}

type WhoReply struct {
	Listing []SessionView `json:"listing"`
}

// Login/Logout commands/replies (account-level, distinct from room auth).
type LoginCmd struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
	Password  string `json:"password"`
}

type LoginReply struct {
	Success       bool   `json:"success"`
	Reason        string `json:"reason,omitempty"`
	AccountID     string `json:"account_id,omitempty"`
	PersonalRoom  string `json:"personal_identity,omitempty"`
}

type LogoutCmd struct{}

type LogoutReply struct{}

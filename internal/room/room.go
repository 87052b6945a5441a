// Package room implements the per-room connection state machine (spec
// §4.D) and the supervisor that owns every room the user has joined or
// configured (spec §4.I).
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/groverooms/grove/internal/conn"
	"github.com/groverooms/grove/internal/euphid"
	"github.com/groverooms/grove/internal/store"
	"github.com/groverooms/grove/internal/wire"
)

// State is this room's position in the connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	ConnectedJoining
	ConnectedJoined
	Stopped
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case ConnectedJoining:
		return "connected(joining)"
	case ConnectedJoined:
		return "connected(joined)"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by every typed action when no engine is
// currently live for the room.
var ErrNotConnected = errors.New("room: not connected")

// backfillPageSize is the number of messages requested per log-backfill
// round trip.
const backfillPageSize = 1000

// Notification is pushed to the supervisor whenever a room's state
// changes, so the UI layer knows a redraw may be warranted.
type Notification struct {
	Room  store.RoomID
	State State
}

// Room is one (server, room-name) chat session.
type Room struct {
	ID           store.RoomID
	Name         string // display name "domain/name", set by New, e.g. "euphoria.leet.nu/test"
	Ephemeral    bool
	TLS          bool
	LogInterval  time.Duration
	PingInterval time.Duration

	db  *store.DB
	log *zap.Logger

	notify chan<- Notification

	mu        sync.Mutex
	state     State
	tx        *conn.Tx
	rx        *conn.Rx
	cancel    context.CancelFunc
	ownUserID string
}

// New constructs a Room. Start must be called to actually connect.
func New(id store.RoomID, tls, ephemeral bool, logInterval, pingInterval time.Duration, db *store.DB, log *zap.Logger, notify chan<- Notification) *Room {
	if log == nil {
		log = zap.NewNop()
	}
	if logInterval <= 0 {
		logInterval = 10 * time.Second
	}
	return &Room{
		ID:           id,
		Name:         id.Domain + "/" + id.Name,
		TLS:          tls,
		Ephemeral:    ephemeral,
		LogInterval:  logInterval,
		PingInterval: pingInterval,
		db:           db,
		log:          log.With(zap.String("room", id.Domain+"/"+id.Name)),
		notify:       notify,
		state:        Disconnected,
	}
}

// State reports the room's current lifecycle state.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	if r.notify == nil {
		return
	}
	select {
	case r.notify <- Notification{Room: r.ID, State: s}:
	default:
	}
}

// Start dials the room's server and drives its connection lifecycle
// until ctx is cancelled or Stop is called, reconnecting is the
// supervisor's responsibility (a Room runs exactly one connection
// attempt per Start).
func (r *Room) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	// Tags this attempt's log lines so a reconnect's fresh handshake
	// can't be confused with the previous attempt's tail in a merged
	// log stream.
	attempt := uuid.NewString()
	go r.run(ctx, r.log.With(zap.String("attempt", attempt)))
}

// Stop tears down the room's connection, if any, and marks it Stopped.
func (r *Room) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.setState(Stopped)
}

func (r *Room) run(ctx context.Context, log *zap.Logger) {
	r.mu.Lock()
	r.log = log
	r.mu.Unlock()

	r.setState(Connecting)

	scheme := "ws"
	if r.TLS {
		scheme = "wss"
	}
	url := fmt.Sprintf("%s://%s/room/%s/ws", scheme, r.ID.Domain, r.ID.Name)

	header := map[string][]string{}
	if cookies, err := r.db.Cookies(ctx, r.ID.Domain); err != nil {
		r.log.Warn("load cookies", zap.Error(err))
	} else if len(cookies) > 0 {
		header["Cookie"] = []string{strings.Join(cookies, "; ")}
	}

	tx, rx, err := conn.Dial(ctx, websocket.DefaultDialer, url, header, r.PingInterval, r.log)
	if err != nil {
		r.log.Warn("dial failed", zap.Error(err))
		r.finish(ctx)
		return
	}

	r.mu.Lock()
	r.tx, r.rx = tx, rx
	r.mu.Unlock()

	if err := r.db.EnsureRoom(ctx, r.ID, time.Now().Unix()); err != nil {
		r.log.Error("ensure room", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.eventLoop(gctx) })
	if !r.Ephemeral {
		g.Go(func() error { return r.backfillLoop(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warn("connection ended", zap.Error(err))
	}

	r.mu.Lock()
	r.tx, r.rx = nil, nil
	r.mu.Unlock()

	r.finish(ctx)
}

func (r *Room) finish(ctx context.Context) {
	select {
	case <-ctx.Done():
		r.setState(Stopped)
	default:
		r.setState(Disconnected)
	}
}

func (r *Room) eventLoop(ctx context.Context) error {
	r.setState(ConnectedJoining)
	for {
		frame, err := r.rx.Recv(ctx)
		if err != nil {
			return err
		}

		switch frame.Type {
		case wire.TypeHelloEvent:
			var p wire.HelloEvent
			if err := json.Unmarshal(frame.Data, &p); err == nil {
				r.mu.Lock()
				r.ownUserID = p.Session.ID
				r.mu.Unlock()
			}
		case wire.TypeSendEvent:
			if p, err := wire.DecodePayload[wire.SendEvent](frame); err == nil {
				r.persist(ctx, []wire.Message{p.Message}, nil)
			}
		case wire.TypeEditMessageEvent:
			if p, err := wire.DecodePayload[wire.EditMessageEvent](frame); err == nil {
				r.persist(ctx, []wire.Message{p.Message}, nil)
			}
		}

		if status, err := r.currentTx().thenStatus(ctx); err == nil {
			r.applyStatus(status)
		}
	}
}

// txHandle is a tiny indirection so eventLoop can call Status even if
// the engine has already been torn down underneath it without a nil
// check at every call site.
type txHandle struct{ tx *conn.Tx }

func (h txHandle) thenStatus(ctx context.Context) (conn.Status, error) {
	if h.tx == nil {
		return conn.Status{}, ErrNotConnected
	}
	return h.tx.Status(ctx)
}

func (r *Room) currentTx() txHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return txHandle{tx: r.tx}
}

func (r *Room) applyStatus(status conn.Status) {
	switch status.Kind {
	case conn.StatusJoined:
		r.setState(ConnectedJoined)
	default:
		r.setState(ConnectedJoining)
	}
}

func (r *Room) persist(ctx context.Context, msgs []wire.Message, nextID *euphid.ID) {
	r.mu.Lock()
	own := r.ownUserID
	r.mu.Unlock()
	if err := r.db.InsertMessageBatch(ctx, r.ID, msgs, nextID, own); err != nil {
		r.log.Error("insert message batch", zap.Error(err))
	}
}

func (r *Room) backfillLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.LogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.backfillOnce(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
				r.log.Warn("log backfill", zap.Error(err))
			}
		}
	}
}

func (r *Room) backfillOnce(ctx context.Context) error {
	span, ok, err := r.db.LastSpan(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("room: backfill last span: %w", err)
	}
	if !ok || span.Start == nil {
		return nil // nothing known yet, or already reached the start of history
	}

	tx := r.currentTx().tx
	if tx == nil {
		return ErrNotConnected
	}

	reply, err := conn.Send[wire.LogReply](ctx, tx, wire.TypeLog, wire.TypeLogReply, wire.LogCmd{
		N:      backfillPageSize,
		Before: span.Start,
	})
	if err != nil {
		return fmt.Errorf("room: backfill log request: %w", err)
	}
	r.persist(ctx, reply.Log, reply.Before)
	return nil
}

// Authenticate answers a bounce with a passcode (spec §4.D).
func (r *Room) Authenticate(ctx context.Context, passcode string) error {
	tx := r.currentTx().tx
	if tx == nil {
		return ErrNotConnected
	}
	_, err := conn.Send[wire.AuthReply](ctx, tx, wire.TypeAuth, wire.TypeAuthReply, wire.AuthCmd{Type: "passcode", Passcode: passcode})
	return err
}

// Nick changes the session's display name.
func (r *Room) Nick(ctx context.Context, name string) error {
	tx := r.currentTx().tx
	if tx == nil {
		return ErrNotConnected
	}
	_, err := conn.Send[wire.NickReply](ctx, tx, wire.TypeNick, wire.TypeNickReply, wire.NickCmd{Name: name})
	return err
}

// Log requests one page of history ending just before the start of the
// latest known span (store.DB.LastSpan), bypassing the backfill timer
// (used by a user-triggered "load more" action).
func (r *Room) Log(ctx context.Context) error {
	return r.backfillOnce(ctx)
}

// Send posts a new message, optionally in reply to parent, and returns
// its assigned id once the server accepts it.
func (r *Room) Send(ctx context.Context, parent *euphid.ID, content string) (euphid.ID, error) {
	tx := r.currentTx().tx
	if tx == nil {
		return euphid.None, ErrNotConnected
	}
	reply, err := conn.Send[wire.SendReply](ctx, tx, wire.TypeSend, wire.TypeSendReply, wire.SendCmd{Content: content, Parent: parent})
	if err != nil {
		return euphid.None, err
	}
	return reply.Message.ID, nil
}

// Login authenticates the account (distinct from room auth).
func (r *Room) Login(ctx context.Context, namespace, id, password string) error {
	tx := r.currentTx().tx
	if tx == nil {
		return ErrNotConnected
	}
	_, err := conn.Send[wire.LoginReply](ctx, tx, wire.TypeLogin, wire.TypeLoginReply, wire.LoginCmd{Namespace: namespace, ID: id, Password: password})
	return err
}

// Logout logs the account out of the connection.
func (r *Room) Logout(ctx context.Context) error {
	tx := r.currentTx().tx
	if tx == nil {
		return ErrNotConnected
	}
	_, err := conn.Send[wire.LogoutReply](ctx, tx, wire.TypeLogout, wire.TypeLogoutReply, wire.LogoutCmd{})
	return err
}

// MarkSeen marks a single message read. Seen state is purely local
// bookkeeping, so unlike the actions above it does not require a live
// connection.
func (r *Room) MarkSeen(ctx context.Context, id euphid.ID) error {
	return r.db.MarkSeen(ctx, r.ID, id)
}

// MarkOlderSeen marks every message up to and including upTo read, the
// "mark older seen" action bound to a cursor position.
func (r *Room) MarkOlderSeen(ctx context.Context, upTo euphid.ID) error {
	return r.db.MarkOlderSeen(ctx, r.ID, upTo)
}

// MarkVisibleSeen marks exactly the given ids read, used once per
// redraw to mark whatever the viewport currently shows.
func (r *Room) MarkVisibleSeen(ctx context.Context, ids []euphid.ID) error {
	return r.db.MarkVisibleSeen(ctx, r.ID, ids)
}

// Package conn implements the connection engine of spec §4.C: one
// WebSocket wrapped in a cooperative event loop that multiplexes
// inbound frames, outbound commands, dual-layer liveness checks, and
// reply correlation, grounded in the original client's euph::conn
// state machine and the reader/writer goroutine split of the teacher's
// TCP client handler.
package conn

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/groverooms/grove/internal/replies"
	"github.com/groverooms/grove/internal/wire"
)

// Timeout bounds every command reply wait. Liveness is not bounded by
// it: each ping's pong/ping-reply is checked on the next pingInterval
// tick, so the wait for it is one pingInterval. Wrap falls back to
// Timeout as the pingInterval when none is given.
const Timeout = 30 * time.Second

// sendBufSize bounds how many outbound frames can be queued before a
// slow or wedged connection is declared stalled.
const sendBufSize = 256

var (
	// ErrClosed is returned once the connection engine has shut down,
	// whether due to a read/write error, a protocol violation, or the
	// context passed to Dial/Wrap being canceled.
	ErrClosed = errors.New("conn: connection closed")
	// ErrStalled is returned when the outbound queue is full, meaning
	// the transport has stopped making progress.
	ErrStalled = errors.New("conn: send buffer full, transport stalled")
	// ErrIncorrectReplyType is returned by Send when a reply frame's
	// type doesn't match what T expects it to decode.
	ErrIncorrectReplyType = errors.New("conn: incorrect reply type")
)

type outbound struct {
	messageType int
	data        []byte
}

type sendCmdRequest struct {
	typ     wire.Type
	payload any
	waiter  chan *replies.Pending[wire.Frame]
}

type sendReplyRequest struct {
	id      string
	hasID   bool
	typ     wire.Type
	payload any
}

type statusRequest struct {
	reply chan Status
}

// event is the single sum type multiplexed onto the engine's main
// loop, mirroring the original Event enum. There is no kind tag: each
// variant is one field, and at most one field is set per event; an
// event with no field set reports a received WebSocket pong.
type event struct {
	frame      *wire.Frame
	sendCmd    *sendCmdRequest
	sendReply  *sendReplyRequest
	status     *statusRequest
	doPings    bool
	transportErr error
}

// Tx is the handle used to issue commands and query connection status.
// Safe for concurrent use.
type Tx struct {
	events chan event
	closed <-chan struct{}
}

// Rx delivers every successfully decoded inbound frame that carries no
// error or throttled flag, in order, including command replies (already
// also delivered to whoever sent the matching command). Error and
// throttled frames are not delivered here. Consumers type-switch on
// Frame.Type.
type Rx struct {
	frames <-chan wire.Frame
}

func (r *Rx) Recv(ctx context.Context) (wire.Frame, error) {
	select {
	case f, ok := <-r.frames:
		if !ok {
			return wire.Frame{}, ErrClosed
		}
		return f, nil
	case <-ctx.Done():
		return wire.Frame{}, ctx.Err()
	}
}

// send submits a command frame and returns a handle to its eventual
// reply. The type parameter lives on the free function Send, not on
// this method, since Go forbids generic methods.
func (tx *Tx) send(ctx context.Context, t wire.Type, payload any) (*replies.Pending[wire.Frame], error) {
	waiter := make(chan *replies.Pending[wire.Frame], 1)
	req := event{sendCmd: &sendCmdRequest{typ: t, payload: payload, waiter: waiter}}
	select {
	case tx.events <- req:
	case <-tx.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case p := <-waiter:
		if p == nil {
			return nil, ErrClosed
		}
		return p, nil
	case <-tx.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendReply replies to a server-initiated frame (currently only used
// for application pings): id, if present, is echoed back so the server
// can correlate it, but no waiter is registered since the server never
// replies to a reply.
func (tx *Tx) SendReply(ctx context.Context, id string, hasID bool, t wire.Type, payload any) error {
	req := event{sendReply: &sendReplyRequest{id: id, hasID: hasID, typ: t, payload: payload}}
	select {
	case tx.events <- req:
		return nil
	case <-tx.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current join state.
func (tx *Tx) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	req := event{status: &statusRequest{reply: reply}}
	select {
	case tx.events <- req:
	case <-tx.closed:
		return Status{}, ErrClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-tx.closed:
		return Status{}, ErrClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Send issues a command frame of type reqType and decodes its reply as
// T, first checking that the reply's frame type is replyType. A
// server-side error or throttling, a reply of the wrong type, or a
// reply that never arrives within Timeout, is returned as an error.
func Send[T any](ctx context.Context, tx *Tx, reqType, replyType wire.Type, payload any) (T, error) {
	var zero T
	pending, err := tx.send(ctx, reqType, payload)
	if err != nil {
		return zero, err
	}
	frame, err := pending.Get(ctx)
	if err != nil {
		return zero, err
	}
	if err := frame.AsError(); err != nil {
		return zero, err
	}
	if frame.Type != replyType {
		return zero, ErrIncorrectReplyType
	}
	return wire.DecodePayload[T](frame)
}

type engine struct {
	log          *zap.Logger
	ws           *websocket.Conn
	out          chan outbound
	pingInterval time.Duration

	events chan event
	closed chan struct{}

	lastID  uint64
	waiters *replies.Map[string, wire.Frame]

	lastWSPing []byte
	wsPongSeen bool

	lastEuphPing    int64
	hasLastEuphPing bool
	lastEuphPong    int64
	hasLastEuphPong bool

	status Status

	frames chan wire.Frame
}

// Wrap starts the connection engine over an already-established
// WebSocket connection and returns the handles used to drive it. The
// engine's goroutines exit, and Tx/Rx start returning ErrClosed, once
// ctx is canceled, the transport errors, or a liveness check fails.
// pingInterval sets how often doPings runs; zero/negative falls back to
// Timeout, keeping the reply-wait bound and the ping cadence equal as
// before for callers that don't care to configure it separately.
func Wrap(ctx context.Context, ws *websocket.Conn, pingInterval time.Duration, log *zap.Logger) (*Tx, *Rx) {
	if log == nil {
		log = zap.NewNop()
	}
	if pingInterval <= 0 {
		pingInterval = Timeout
	}
	e := &engine{
		log:          log,
		ws:           ws,
		out:          make(chan outbound, sendBufSize),
		pingInterval: pingInterval,
		events:       make(chan event, sendBufSize),
		closed:       make(chan struct{}),
		waiters:      replies.NewMap[string, wire.Frame](Timeout),
		status:       Status{Kind: StatusJoining},
		frames:       make(chan wire.Frame, sendBufSize),
	}

	ws.SetPongHandler(func(string) error {
		e.submit(ctx, event{})
		return nil
	})

	go e.readPump(ctx)
	go e.writePump(ctx)
	go e.pingLoop(ctx)
	go e.run(ctx)

	return &Tx{events: e.events, closed: e.closed}, &Rx{frames: e.frames}
}

// Dial opens a WebSocket to url using dialer (nil selects
// websocket.DefaultDialer) and wraps it. pingInterval is forwarded to
// Wrap.
func Dial(ctx context.Context, dialer *websocket.Dialer, url string, header map[string][]string, pingInterval time.Duration, log *zap.Logger) (*Tx, *Rx, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, nil, fmt.Errorf("conn: dial: %w", err)
	}
	tx, rx := Wrap(ctx, ws, pingInterval, log)
	return tx, rx, nil
}

func (e *engine) readPump(ctx context.Context) {
	for {
		msgType, data, err := e.ws.ReadMessage()
		if err != nil {
			e.submit(ctx, event{transportErr: fmt.Errorf("conn: read: %w", err)})
			return
		}
		switch msgType {
		case websocket.TextMessage:
			f, err := wire.Decode(data)
			if err != nil {
				e.submit(ctx, event{transportErr: err})
				return
			}
			e.submit(ctx, event{frame: &f})
		case websocket.BinaryMessage:
			e.submit(ctx, event{transportErr: errors.New("conn: unexpected binary message")})
			return
		}
	}
}

func (e *engine) writePump(ctx context.Context) {
	for {
		select {
		case o, ok := <-e.out:
			if !ok {
				return
			}
			_ = e.ws.SetWriteDeadline(time.Now().Add(Timeout))
			var err error
			if o.messageType == websocket.PingMessage {
				err = e.ws.WriteControl(websocket.PingMessage, o.data, time.Now().Add(Timeout))
			} else {
				err = e.ws.WriteMessage(o.messageType, o.data)
			}
			if err != nil {
				e.submit(ctx, event{transportErr: fmt.Errorf("conn: write: %w", err)})
				return
			}
		case <-e.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *engine) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(e.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.submit(ctx, event{doPings: true})
		case <-e.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *engine) submit(ctx context.Context, ev event) {
	select {
	case e.events <- ev:
	case <-e.closed:
	case <-ctx.Done():
	}
}

func (e *engine) run(ctx context.Context) {
	defer e.shutdown()
	for {
		select {
		case ev := <-e.events:
			if err := e.handle(ctx, ev); err != nil {
				e.log.Warn("connection engine stopping", zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *engine) shutdown() {
	close(e.closed)
	close(e.out)
	close(e.frames)
	e.waiters.Purge()
	_ = e.ws.Close()
}

func (e *engine) handle(ctx context.Context, ev event) error {
	switch {
	case ev.transportErr != nil:
		return ev.transportErr
	case ev.frame != nil:
		return e.onFrame(ctx, *ev.frame)
	case ev.sendCmd != nil:
		return e.onSendCmd(ctx, ev.sendCmd)
	case ev.sendReply != nil:
		return e.onSendReply(ctx, ev.sendReply)
	case ev.status != nil:
		ev.status.reply <- e.status
		return nil
	case ev.doPings:
		return e.doPings(ctx)
	default:
		// A bare pong notification: nothing further to do, liveness is
		// checked on the next doPings tick.
		e.wsPongSeen = true
		return nil
	}
}

func (e *engine) onFrame(ctx context.Context, f wire.Frame) error {
	if f.ID != "" {
		e.waiters.Complete(f.ID, f)
	}

	switch f.Type {
	case wire.TypePingReply:
		p, err := wire.DecodePayload[struct {
			Time int64 `json:"time"`
		}](f)
		if err == nil {
			e.lastEuphPong = p.Time
			e.hasLastEuphPong = true
		}
	case wire.TypePingEvent:
		p, err := wire.DecodePayload[struct {
			Time int64 `json:"time"`
		}](f)
		if err == nil {
			var id string
			hasID := f.ID != ""
			if hasID {
				id = f.ID
			}
			if err := e.enqueueFrame(ctx, wire.TypePingReply, id, hasID, map[string]int64{"time": p.Time}); err != nil {
				return err
			}
		}
	}

	if f.AsError() == nil {
		switch e.status.Kind {
		case StatusJoining:
			if err := e.status.Joining.onData(f.Type, f.Data); err != nil {
				return err
			}
			if joined, ok := e.status.Joining.joined(); ok {
				e.status = Status{Kind: StatusJoined, Joined: *joined}
			}
		case StatusJoined:
			e.status.Joined.onData(f.Type, f.Data)
		}
	}

	if f.AsError() == nil {
		select {
		case e.frames <- f:
		default:
			return ErrStalled
		}
	}

	return nil
}

func (e *engine) onSendCmd(ctx context.Context, req *sendCmdRequest) error {
	e.lastID++
	id := strconv.FormatUint(e.lastID, 10)

	frame, err := wire.ToFrame(req.typ, id, req.payload)
	if err != nil {
		req.waiter <- nil
		return err
	}
	data, err := wire.Encode(frame)
	if err != nil {
		req.waiter <- nil
		return err
	}

	select {
	case e.out <- outbound{messageType: websocket.TextMessage, data: data}:
	default:
		req.waiter <- nil
		return ErrStalled
	}

	req.waiter <- e.waiters.Register(id)
	return nil
}

func (e *engine) onSendReply(ctx context.Context, req *sendReplyRequest) error {
	var id string
	if req.hasID {
		id = req.id
	}
	return e.enqueueFrame(ctx, req.typ, id, req.hasID, req.payload)
}

func (e *engine) enqueueFrame(_ context.Context, t wire.Type, id string, hasID bool, payload any) error {
	if !hasID {
		id = ""
	}
	frame, err := wire.ToFrame(t, id, payload)
	if err != nil {
		return err
	}
	data, err := wire.Encode(frame)
	if err != nil {
		return err
	}
	select {
	case e.out <- outbound{messageType: websocket.TextMessage, data: data}:
		return nil
	default:
		return ErrStalled
	}
}

// doPings runs both liveness checks described in spec §4.C: a
// transport-level WebSocket ping/pong and an application-level
// ping/ping-reply command. The application ping-reply's time is
// compared against the previous round's ping. The transport check only
// requires that some pong arrived since the previous ping; the pong's
// payload is not compared with the ping's. A missed pong on either
// layer fails the connection.
func (e *engine) doPings(ctx context.Context) error {
	if e.lastWSPing != nil && !e.wsPongSeen {
		return errors.New("conn: server missed websocket ping")
	}
	e.wsPongSeen = false

	payload := make([]byte, 8)
	_, _ = rand.Read(payload)
	e.lastWSPing = payload
	select {
	case e.out <- outbound{messageType: websocket.PingMessage, data: payload}:
	default:
		return ErrStalled
	}

	if e.hasLastEuphPing && e.lastEuphPing != e.lastEuphPong {
		return errors.New("conn: server missed application ping")
	}

	now := time.Now().Unix()
	e.lastEuphPing = now
	e.hasLastEuphPing = true

	e.lastID++
	id := strconv.FormatUint(e.lastID, 10)
	frame, err := wire.ToFrame(wire.TypePing, id, map[string]int64{"time": now})
	if err != nil {
		return err
	}
	data, err := wire.Encode(frame)
	if err != nil {
		return err
	}
	select {
	case e.out <- outbound{messageType: websocket.TextMessage, data: data}:
	default:
		return ErrStalled
	}
	e.waiters.Register(id)

	return nil
}

package conn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/groverooms/grove/internal/wire"
)

// testServer upgrades exactly one connection and hands the raw
// *websocket.Conn to the test via connCh, so the test can script frames
// by hand instead of implementing a real room.
func testServer(t *testing.T) (*httptest.Server, <-chan *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- ws
	}))
	t.Cleanup(srv.Close)
	return srv, connCh
}

func wsURL(srv *httptest.Server) string {
	return "ws" + srv.URL[len("http"):]
}

func sendFrame(t *testing.T, ws *websocket.Conn, f wire.Frame) {
	t.Helper()
	data, err := wire.Encode(f)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

func TestJoinHandshakeReachesJoinedStatus(t *testing.T) {
	srv, connCh := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, rx, err := Dial(ctx, nil, wsURL(srv), nil, 0, nil)
	require.NoError(t, err)

	server := <-connCh
	defer server.Close()

	sendFrame(t, server, wire.Frame{Type: wire.TypeHelloEvent, Data: mustJSON(t, wire.HelloEvent{
		Session: wire.SessionView{ID: "u1", Name: "alice"},
	})})
	sendFrame(t, server, wire.Frame{Type: wire.TypeSnapshotEvent, Data: mustJSON(t, wire.SnapshotEvent{
		Identity: "u1",
		Listing:  []wire.SessionView{{ID: "u1", Name: "alice"}},
	})})

	require.Eventually(t, func() bool {
		status, err := tx.Status(ctx)
		return err == nil && status.Kind == StatusJoined
	}, 2*time.Second, 10*time.Millisecond)

	status, err := tx.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", status.Joined.Session.Name)
	require.Contains(t, status.Joined.Listing, "u1")

	_ = rx
}

func TestSendCommandRoundTrip(t *testing.T) {
	srv, connCh := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, _, err := Dial(ctx, nil, wsURL(srv), nil, 0, nil)
	require.NoError(t, err)

	server := <-connCh
	defer server.Close()

	go func() {
		_, data, err := server.ReadMessage()
		if err != nil {
			return
		}
		f, err := wire.Decode(data)
		if err != nil {
			return
		}
		sendFrame(t, server, wire.Frame{
			ID:   f.ID,
			Type: wire.TypeNickReply,
			Data: mustJSON(t, wire.NickReply{From: "old", To: "newnick"}),
		})
	}()

	reply, err := Send[wire.NickReply](ctx, tx, wire.TypeNick, wire.TypeNickReply, wire.NickCmd{Name: "newnick"})
	require.NoError(t, err)
	require.Equal(t, "newnick", reply.To)
}

func TestSendCommandServerErrorIsReturned(t *testing.T) {
	srv, connCh := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, _, err := Dial(ctx, nil, wsURL(srv), nil, 0, nil)
	require.NoError(t, err)

	server := <-connCh
	defer server.Close()

	go func() {
		_, data, err := server.ReadMessage()
		if err != nil {
			return
		}
		f, err := wire.Decode(data)
		if err != nil {
			return
		}
		sendFrame(t, server, wire.Frame{ID: f.ID, Type: wire.TypeSendReply, Error: "edit-in-progress"})
	}()

	_, err = Send[wire.SendReply](ctx, tx, wire.TypeSend, wire.TypeSendReply, wire.SendCmd{Content: "hi"})
	require.Error(t, err)
	var svrErr *wire.ServerError
	require.ErrorAs(t, err, &svrErr)
	require.Equal(t, "edit-in-progress", svrErr.Reason)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

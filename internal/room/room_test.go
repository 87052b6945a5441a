package room

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/groverooms/grove/internal/config"
	"github.com/groverooms/grove/internal/store"
	"github.com/groverooms/grove/internal/wire"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

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

func TestRoomReachesConnectedJoinedAndPersistsSendEvent(t *testing.T) {
	srv, connCh := testServer(t)
	db := openTestDB(t)

	roomID := store.RoomID{Domain: strings.TrimPrefix(srv.URL, "http://"), Name: "test"}
	notify := make(chan Notification, 16)
	r := New(roomID, false, false, time.Hour, time.Hour, db, nil, notify)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	server := <-connCh
	defer server.Close()

	sendFrame(t, server, wire.Frame{Type: wire.TypeHelloEvent, Data: mustJSON(t, wire.HelloEvent{
		Session: wire.SessionView{ID: "u1", Name: "alice"},
	})})
	sendFrame(t, server, wire.Frame{Type: wire.TypeSnapshotEvent, Data: mustJSON(t, wire.SnapshotEvent{
		Identity: "u1",
		Listing:  []wire.SessionView{{ID: "u1", Name: "alice"}},
	})})

	require.Eventually(t, func() bool { return r.State() == ConnectedJoined }, 2*time.Second, 10*time.Millisecond)

	sendFrame(t, server, wire.Frame{Type: wire.TypeSendEvent, Data: mustJSON(t, wire.SendEvent{
		Message: wire.Message{ID: 42, Content: "hi", Sender: wire.SessionView{ID: "u2", Name: "bob"}},
	})})

	require.Eventually(t, func() bool {
		msgs, err := db.Tree(context.Background(), roomID, 42)
		return err == nil && len(msgs) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRoomActionsFailWhenNotConnected(t *testing.T) {
	db := openTestDB(t)
	r := New(store.RoomID{Domain: "nowhere.invalid", Name: "x"}, false, true, time.Second, time.Second, db, nil, nil)

	ctx := context.Background()
	_, err := r.Send(ctx, nil, "hello")
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, r.Nick(ctx, "x"), ErrNotConnected)
	require.ErrorIs(t, r.Authenticate(ctx, "pw"), ErrNotConnected)
}

func TestSupervisorStabilizeKeepsAutojoinAndViewedRooms(t *testing.T) {
	db := openTestDB(t)
	cfg := config.Config{
		Servers: []config.Server{{Domain: "a.example", Autojoin: []string{"lobby"}}},
	}
	sup := NewSupervisor(db, cfg, nil)

	autojoin := store.RoomID{Domain: "a.example", Name: "lobby"}
	viewedID := store.RoomID{Domain: "b.example", Name: "viewed"}
	staleID := store.RoomID{Domain: "c.example", Name: "stale"}

	for _, id := range []store.RoomID{autojoin, viewedID, staleID} {
		r := New(id, false, true, time.Second, time.Second, db, nil, nil)
		r.Stop() // force Stopped without dialing anything
		sup.mu.Lock()
		sup.rooms[id] = r
		sup.mu.Unlock()
	}

	sup.Stabilize(map[store.RoomID]bool{viewedID: true})

	_, ok := sup.Room(autojoin)
	require.True(t, ok, "autojoin room must survive stabilize")
	_, ok = sup.Room(viewedID)
	require.True(t, ok, "actively viewed room must survive stabilize")
	_, ok = sup.Room(staleID)
	require.False(t, ok, "unreferenced stopped room must be dropped")
}

func sendFrame(t *testing.T, ws *websocket.Conn, f wire.Frame) {
	t.Helper()
	data, err := wire.Encode(f)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

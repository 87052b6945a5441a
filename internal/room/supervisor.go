package room

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/groverooms/grove/internal/config"
	"github.com/groverooms/grove/internal/store"
)

// SortKind selects how Supervisor.SortedRooms orders the room list.
type SortKind int

const (
	// SortAlphabet orders rooms by name.
	SortAlphabet SortKind = iota
	// SortImportance orders connected rooms first, then by unseen
	// count descending, then by name.
	SortImportance
)

// Supervisor holds every room the user has joined or configured to
// autojoin, starts and stops them, and removes ones that are no longer
// wanted when Stabilize is called (spec §4.I).
type Supervisor struct {
	db  *store.DB
	cfg config.Config
	log *zap.Logger

	notify chan Notification

	mu    sync.Mutex
	rooms map[store.RoomID]*Room
}

// NewSupervisor constructs a Supervisor over db, consulting cfg for
// autojoin rooms and UI defaults.
func NewSupervisor(db *store.DB, cfg config.Config, log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{
		db:     db,
		cfg:    cfg,
		log:    log,
		notify: make(chan Notification, 64),
		rooms:  make(map[store.RoomID]*Room),
	}
}

// Notifications returns the channel of room state-change events. The UI
// layer should drain it continuously to know when a redraw may be
// warranted.
func (s *Supervisor) Notifications() <-chan Notification { return s.notify }

// StartAutojoin starts every room every configured server lists under
// autojoin. ephemeral is forwarded to each Room so a run invoked with
// -ephemeral never backfills older history for them; live messages are
// still persisted.
func (s *Supervisor) StartAutojoin(ctx context.Context, ephemeral bool) {
	for _, srv := range s.cfg.Servers {
		for _, name := range srv.Autojoin {
			s.Start(ctx, store.RoomID{Domain: srv.Domain, Name: name}, srv.TLS, ephemeral)
		}
	}
}

// Start begins connecting to id if it isn't already tracked, and
// returns the (possibly pre-existing) Room.
func (s *Supervisor) Start(ctx context.Context, id store.RoomID, tls, ephemeral bool) *Room {
	s.mu.Lock()
	if r, ok := s.rooms[id]; ok {
		s.mu.Unlock()
		return r
	}
	r := New(id, tls, ephemeral, s.cfg.UI.LogInterval, s.cfg.UI.PingInterval, s.db, s.log, s.notify)
	s.rooms[id] = r
	s.mu.Unlock()

	r.Start(ctx)
	return r
}

// Stop tears down id's connection, if tracked. The room remains in the
// map (Stopped) until Stabilize decides to drop it.
func (s *Supervisor) Stop(id store.RoomID) {
	s.mu.Lock()
	r, ok := s.rooms[id]
	s.mu.Unlock()
	if ok {
		r.Stop()
	}
}

// Room returns the tracked room for id, if any.
func (s *Supervisor) Room(id store.RoomID) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// Rooms returns every tracked room, in no particular order.
func (s *Supervisor) Rooms() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// Stabilize drops any Stopped room that isn't autojoined and isn't in
// viewed (the set of rooms the UI currently has a tab open on).
func (s *Supervisor) Stabilize(viewed map[store.RoomID]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.rooms {
		if r.State() != Stopped {
			continue
		}
		if viewed[id] {
			continue
		}
		if s.isAutojoin(id) {
			continue
		}
		delete(s.rooms, id)
	}
}

func (s *Supervisor) isAutojoin(id store.RoomID) bool {
	srv, ok := s.cfg.ServerByDomain(id.Domain)
	if !ok {
		return false
	}
	for _, name := range srv.Autojoin {
		if name == id.Name {
			return true
		}
	}
	return false
}

// SortedRooms returns every tracked room ordered per kind. Importance
// ordering consults the store for each room's unseen count, so it takes
// a ctx.
func (s *Supervisor) SortedRooms(ctx context.Context, kind SortKind) []*Room {
	rooms := s.Rooms()

	switch kind {
	case SortImportance:
		unseen := make(map[store.RoomID]int, len(rooms))
		for _, r := range rooms {
			n, err := s.db.UnseenCount(ctx, r.ID)
			if err != nil {
				s.log.Warn("unseen count", zap.Error(err))
				continue
			}
			unseen[r.ID] = n
		}
		sort.SliceStable(rooms, func(i, j int) bool {
			ci, cj := rooms[i].State() == ConnectedJoined, rooms[j].State() == ConnectedJoined
			if ci != cj {
				return ci
			}
			if unseen[rooms[i].ID] != unseen[rooms[j].ID] {
				return unseen[rooms[i].ID] > unseen[rooms[j].ID]
			}
			return rooms[i].ID.Name < rooms[j].ID.Name
		})
	default:
		sort.SliceStable(rooms, func(i, j int) bool { return rooms[i].ID.Name < rooms[j].ID.Name })
	}
	return rooms
}

package room

import (
	"context"

	"go.uber.org/zap"

	"github.com/groverooms/grove/internal/euphid"
	"github.com/groverooms/grove/internal/store"
	"github.com/groverooms/grove/internal/tree"
)

// LayoutStore adapts *store.DB to internal/layout.Store by binding a
// single room id, taking ctx explicitly on every call as the renderer
// does. Tree additionally turns the flat message batch the store
// returns into the *tree.Tree the layout package walks.
type LayoutStore struct {
	db   *store.DB
	room store.RoomID
}

// NewLayoutStore returns a layout.Store scoped to room.
func NewLayoutStore(db *store.DB, room store.RoomID) *LayoutStore {
	return &LayoutStore{db: db, room: room}
}

func (a *LayoutStore) Tree(ctx context.Context, rootID euphid.ID) (*tree.Tree, error) {
	msgs, err := a.db.Tree(ctx, a.room, rootID)
	if err != nil {
		return nil, err
	}
	return tree.Build(rootID, msgs)
}

func (a *LayoutStore) Path(ctx context.Context, id euphid.ID) ([]euphid.ID, error) {
	return a.db.Path(ctx, a.room, id)
}

func (a *LayoutStore) FirstRootID(ctx context.Context) (euphid.ID, bool, error) {
	return a.db.FirstRootID(ctx, a.room)
}

func (a *LayoutStore) LastRootID(ctx context.Context) (euphid.ID, bool, error) {
	return a.db.LastRootID(ctx, a.room)
}

func (a *LayoutStore) PrevRootID(ctx context.Context, id euphid.ID) (euphid.ID, bool, error) {
	return a.db.PrevRootID(ctx, a.room, id)
}

func (a *LayoutStore) NextRootID(ctx context.Context, id euphid.ID) (euphid.ID, bool, error) {
	return a.db.NextRootID(ctx, a.room, id)
}

// CursorStore adapts *store.DB to internal/cursor.Store. The cursor
// package's navigation queries are synchronous and error-free by
// design (a move that can't be resolved just leaves the cursor in
// place), so a CursorStore is built fresh for each UI frame, binding
// the ctx and room for that frame's lifetime; any store error is
// logged and treated as "no such id" rather than propagated.
type CursorStore struct {
	ctx  context.Context
	db   *store.DB
	room store.RoomID
	log  *zap.Logger
}

// NewCursorStore returns a cursor.Store (and cursor.Tree, for a tree
// materialised elsewhere) scoped to one frame's ctx and room.
func NewCursorStore(ctx context.Context, db *store.DB, room store.RoomID, log *zap.Logger) *CursorStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &CursorStore{ctx: ctx, db: db, room: room, log: log}
}

func (a *CursorStore) warn(op string, err error) {
	if err != nil {
		a.log.Warn("room: cursor store query failed", zap.String("op", op), zap.Error(err))
	}
}

func (a *CursorStore) Contains(id euphid.ID) bool {
	path, err := a.db.Path(a.ctx, a.room, id)
	a.warn("contains", err)
	return err == nil && len(path) > 0
}

func (a *CursorStore) Parent(id euphid.ID) (euphid.ID, bool) {
	path, err := a.db.Path(a.ctx, a.room, id)
	a.warn("parent", err)
	if err != nil || len(path) < 2 {
		return euphid.None, false
	}
	return path[len(path)-2], true
}

func (a *CursorStore) PrevSibling(euphid.ID) (euphid.ID, bool) {
	// Sibling order within a tree is a property of the materialised
	// *tree.Tree, not the flat store; callers pass that tree directly
	// to the cursor movement functions that need it (MoveUpInTree,
	// MoveToPrevSibling, ...) rather than through this adapter.
	return euphid.None, false
}

func (a *CursorStore) NextSibling(euphid.ID) (euphid.ID, bool) { return euphid.None, false }
func (a *CursorStore) FirstChild(euphid.ID) (euphid.ID, bool)  { return euphid.None, false }
func (a *CursorStore) LastChild(euphid.ID) (euphid.ID, bool)   { return euphid.None, false }

func (a *CursorStore) FirstRootID() (euphid.ID, bool) {
	id, ok, err := a.db.FirstRootID(a.ctx, a.room)
	a.warn("first_root_id", err)
	return id, ok && err == nil
}

func (a *CursorStore) LastRootID() (euphid.ID, bool) {
	id, ok, err := a.db.LastRootID(a.ctx, a.room)
	a.warn("last_root_id", err)
	return id, ok && err == nil
}

func (a *CursorStore) PrevRootID(id euphid.ID) (euphid.ID, bool) {
	out, ok, err := a.db.PrevRootID(a.ctx, a.room, id)
	a.warn("prev_root_id", err)
	return out, ok && err == nil
}

func (a *CursorStore) NextRootID(id euphid.ID) (euphid.ID, bool) {
	out, ok, err := a.db.NextRootID(a.ctx, a.room, id)
	a.warn("next_root_id", err)
	return out, ok && err == nil
}

func (a *CursorStore) OlderMsgID(id euphid.ID) (euphid.ID, bool) {
	out, ok, err := a.db.OlderMsgID(a.ctx, a.room, id)
	a.warn("older_msg_id", err)
	return out, ok && err == nil
}

func (a *CursorStore) NewerMsgID(id euphid.ID) (euphid.ID, bool) {
	out, ok, err := a.db.NewerMsgID(a.ctx, a.room, id)
	a.warn("newer_msg_id", err)
	return out, ok && err == nil
}

func (a *CursorStore) OlderUnseenMsgID(id euphid.ID) (euphid.ID, bool) {
	out, ok, err := a.db.OlderUnseenMsgID(a.ctx, a.room, id)
	a.warn("older_unseen_msg_id", err)
	return out, ok && err == nil
}

func (a *CursorStore) NewerUnseenMsgID(id euphid.ID) (euphid.ID, bool) {
	out, ok, err := a.db.NewerUnseenMsgID(a.ctx, a.room, id)
	a.warn("newer_unseen_msg_id", err)
	return out, ok && err == nil
}

func (a *CursorStore) Path(id euphid.ID) []euphid.ID {
	path, err := a.db.Path(a.ctx, a.room, id)
	a.warn("path", err)
	return path
}

func (a *CursorStore) RootOf(id euphid.ID) (euphid.ID, bool) {
	path := a.Path(id)
	if len(path) == 0 {
		return euphid.None, false
	}
	return path[0], true
}

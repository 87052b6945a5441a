package layout

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groverooms/grove/internal/cursor"
	"github.com/groverooms/grove/internal/euphid"
	"github.com/groverooms/grove/internal/tree"
	"github.com/groverooms/grove/internal/wire"
)

// fakeStore serves one single-message tree per root id, sorted
// ascending, with no replies: enough to exercise root expansion and
// cross-tree navigation without needing a real persistent store.
type fakeStore struct {
	roots []euphid.ID
	trees map[euphid.ID]*tree.Tree
}

func newFakeStore(rootIDs ...uint64) *fakeStore {
	s := &fakeStore{trees: make(map[euphid.ID]*tree.Tree)}
	for _, n := range rootIDs {
		id := euphid.ID(n)
		s.roots = append(s.roots, id)
		tr, err := tree.Build(id, []wire.Message{{ID: id}})
		if err != nil {
			panic(err)
		}
		s.trees[id] = tr
	}
	sort.Slice(s.roots, func(i, j int) bool { return s.roots[i] < s.roots[j] })
	return s
}

func (s *fakeStore) Tree(_ context.Context, rootID euphid.ID) (*tree.Tree, error) {
	return s.trees[rootID], nil
}

func (s *fakeStore) Path(_ context.Context, id euphid.ID) ([]euphid.ID, error) {
	for _, r := range s.roots {
		if r == id {
			return []euphid.ID{id}, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FirstRootID(context.Context) (euphid.ID, bool, error) {
	if len(s.roots) == 0 {
		return euphid.None, false, nil
	}
	return s.roots[0], true, nil
}

func (s *fakeStore) LastRootID(context.Context) (euphid.ID, bool, error) {
	if len(s.roots) == 0 {
		return euphid.None, false, nil
	}
	return s.roots[len(s.roots)-1], true, nil
}

func (s *fakeStore) PrevRootID(_ context.Context, id euphid.ID) (euphid.ID, bool, error) {
	idx := sort.Search(len(s.roots), func(i int) bool { return s.roots[i] >= id })
	if idx <= 0 {
		return euphid.None, false, nil
	}
	return s.roots[idx-1], true, nil
}

func (s *fakeStore) NextRootID(_ context.Context, id euphid.ID) (euphid.ID, bool, error) {
	idx := sort.Search(len(s.roots), func(i int) bool { return s.roots[i] > id })
	if idx >= len(s.roots) {
		return euphid.None, false, nil
	}
	return s.roots[idx], true, nil
}

// fakeMeasurer assigns every message, placeholder, editor and pseudo
// block a one-line height, which is all the scroll math cares about.
type fakeMeasurer struct{}

func (fakeMeasurer) MessageHeight(wire.Message, int, int, bool) int    { return 1 }
func (fakeMeasurer) PlaceholderHeight(int, int, bool) int              { return 1 }
func (fakeMeasurer) EditorHeight(int) (int, int)                       { return 1, 0 }
func (fakeMeasurer) PseudoHeight(int) int                              { return 1 }

func TestPrepareBlocksForDrawingKeepsCursorInScrollArea(t *testing.T) {
	store := newFakeStore(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	cur := cursor.NewMsg(euphid.ID(5))

	r := NewTreeRenderer(Context{Height: 20, LastCursor: cursor.NewBottom()}, store, fakeMeasurer{}, cur)
	require.NoError(t, r.PrepareBlocksForDrawing(context.Background(), nil))

	cursorID := MsgBlockID(euphid.ID(5))
	rng, blk, ok := r.Blocks().FindBlock(cursorID)
	require.True(t, ok, "cursor block must be present after layout")

	area := ScrollArea(r)
	focus := blk.Focus(rng)
	overlapsArea := Overlaps(area, focus)
	pinnedToTop := focus.Top <= VisibleArea(r).Top
	require.True(t, overlapsArea || pinnedToTop,
		"cursor focus range must overlap the scroll area or be pinned to the top")
}

func TestScrollPositionPreservedAcrossFramesWhenHistoryGrows(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(15, 16, 17, 18, 19, 20)
	cur := cursor.NewMsg(euphid.ID(17))

	frame1 := NewTreeRenderer(Context{Height: 10, LastCursor: cursor.NewBottom()}, store, fakeMeasurer{}, cur)
	require.NoError(t, frame1.PrepareBlocksForDrawing(ctx, nil))

	info := frame1.UpdateRenderInfo()
	cursorTop := info.CursorTop

	// Ten older roots arrive between frames (e.g. a backfilled log).
	for n := uint64(5); n <= 14; n++ {
		store.roots = append(store.roots, euphid.ID(n))
	}
	sort.Slice(store.roots, func(i, j int) bool { return store.roots[i] < store.roots[j] })
	for _, n := range []uint64{5, 6, 7, 8, 9, 10, 11, 12, 13, 14} {
		id := euphid.ID(n)
		tr, err := tree.Build(id, []wire.Message{{ID: id}})
		require.NoError(t, err)
		store.trees[id] = tr
	}

	frame2 := NewTreeRenderer(Context{
		Height:        10,
		LastCursor:    info.Cursor,
		LastCursorTop: cursorTop,
	}, store, fakeMeasurer{}, cur)
	require.NoError(t, frame2.PrepareBlocksForDrawing(ctx, nil))

	rng, _, ok := frame2.Blocks().FindBlock(MsgBlockID(euphid.ID(17)))
	require.True(t, ok)
	require.Equal(t, cursorTop, rng.Top, "cursor block must stay at the same screen row across frames")
}

func TestFoldedSubtreeCollapsesToSingleBlock(t *testing.T) {
	ctx := context.Background()
	root := euphid.ID(1)
	tr, err := tree.Build(root, []wire.Message{
		{ID: root},
		{ID: euphid.ID(2), Parent: idp(1)},
		{ID: euphid.ID(3), Parent: idp(2)},
	})
	require.NoError(t, err)

	store := &fakeStore{roots: []euphid.ID{root}, trees: map[euphid.ID]*tree.Tree{root: tr}}
	cur := cursor.NewMsg(root)
	folded := map[euphid.ID]bool{euphid.ID(2): true}

	r := NewTreeRenderer(Context{
		Height: 20,
		Folded: func(id euphid.ID) bool { return folded[id] },
	}, store, fakeMeasurer{}, cur)
	require.NoError(t, r.PrepareBlocksForDrawing(ctx, nil))

	_, ok3, found3 := r.Blocks().FindBlock(MsgBlockID(euphid.ID(3)))
	require.False(t, found3, "folded descendant must not be laid out: %+v", ok3)

	_, blk2, ok2 := r.Blocks().FindBlock(MsgBlockID(euphid.ID(2)))
	require.True(t, ok2)
	require.Equal(t, 1, blk2.Folded)
}

func idp(n uint64) *euphid.ID { v := euphid.ID(n); return &v }

package cursor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groverooms/grove/internal/euphid"
	"github.com/groverooms/grove/internal/tree"
	"github.com/groverooms/grove/internal/wire"
)

func id(n uint64) euphid.ID { return euphid.ID(n) }
func ptr(n uint64) *euphid.ID { i := id(n); return &i }

// buildSample: root A(1), children B(2), C(3) (in that order), C has
// child D(4). Exactly the tree from the spec's reply-targeting scenario.
func buildSample(t *testing.T) *tree.Tree {
	t.Helper()
	msgs := []wire.Message{
		{ID: id(1)},
		{ID: id(2), Parent: ptr(1)},
		{ID: id(3), Parent: ptr(1)},
		{ID: id(4), Parent: ptr(3)},
	}
	tr, err := tree.Build(id(1), msgs)
	require.NoError(t, err)
	return tr
}

func TestParentForNormalReply(t *testing.T) {
	tr := buildSample(t)

	// Cursor on B: normal reply parent = B (B has younger sibling C).
	got := ParentForNormalReply(id(2), tr)
	require.NotNil(t, got)
	require.Equal(t, id(2), *got)

	// Cursor on D: normal reply parent = C (D has no younger sibling,
	// its parent is C).
	got = ParentForNormalReply(id(4), tr)
	require.NotNil(t, got)
	require.Equal(t, id(3), *got)
}

func TestParentForAlternateReply(t *testing.T) {
	tr := buildSample(t)

	// Cursor on B: alternate reply parent = parent of B = A, since B has
	// a younger sibling.
	got := ParentForAlternateReply(id(2), tr)
	require.NotNil(t, got)
	require.Equal(t, id(1), *got)

	// Cursor on D: alternate reply parent = D itself, since D has no
	// younger sibling.
	got = ParentForAlternateReply(id(4), tr)
	require.NotNil(t, got)
	require.Equal(t, id(4), *got)
}

func TestMoveUpDownInTreeRespectsPreOrder(t *testing.T) {
	tr := buildSample(t)
	noFold := func(euphid.ID) bool { return false }

	// Down from A -> B
	down := MoveDownInTree(NewMsg(id(1)), nil, tr, noFold)
	require.Equal(t, id(2), down.ID)

	// Down from B -> C (B has no children, next sibling is C)
	down = MoveDownInTree(NewMsg(id(2)), nil, tr, noFold)
	require.Equal(t, id(3), down.ID)

	// Down from C -> D (C's first child)
	down = MoveDownInTree(NewMsg(id(3)), nil, tr, noFold)
	require.Equal(t, id(4), down.ID)

	// Up from D -> C (parent, since D has no prev sibling)
	up := MoveUpInTree(NewMsg(id(4)), nil, tr, noFold)
	require.Equal(t, id(3), up.ID)

	// Up from C -> B (prev sibling's last descendant; B has no children)
	up = MoveUpInTree(NewMsg(id(3)), nil, tr, noFold)
	require.Equal(t, id(2), up.ID)
}

func TestMoveUpInTreeSkipsFoldedSubtree(t *testing.T) {
	// A(1) has children B(2) and C(3); B has child X(5). With B folded,
	// moving up from C skips the hidden X and lands on B itself.
	msgs := []wire.Message{
		{ID: id(1)},
		{ID: id(2), Parent: ptr(1)},
		{ID: id(3), Parent: ptr(1)},
		{ID: id(5), Parent: ptr(2)},
	}
	tr, err := tree.Build(id(1), msgs)
	require.NoError(t, err)
	folded := func(id euphid.ID) bool { return id == 2 }

	up := MoveUpInTree(NewMsg(id(3)), nil, tr, folded)
	require.Equal(t, id(2), up.ID)
}

func TestSendSuccessfulPromotesPseudo(t *testing.T) {
	parent := id(1)
	c := NewPseudo(nil, &parent)
	c = c.SendSuccessful(id(5))
	require.Equal(t, Msg, c.Kind)
	require.Equal(t, id(5), c.ID)
}

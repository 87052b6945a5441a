package tree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groverooms/grove/internal/euphid"
	"github.com/groverooms/grove/internal/wire"
)

func id(n uint64) euphid.ID { return euphid.ID(n) }

func ptr(n uint64) *euphid.ID { i := id(n); return &i }

// buildSample constructs: root A(1), children B(2), C(3) in that order,
// C has child D(4). Matches the reply-targeting scenario from the spec.
func buildSample(t *testing.T) *Tree {
	t.Helper()
	msgs := []wire.Message{
		{ID: id(1)},
		{ID: id(2), Parent: ptr(1)},
		{ID: id(3), Parent: ptr(1)},
		{ID: id(4), Parent: ptr(3)},
	}
	tr, err := Build(id(1), msgs)
	require.NoError(t, err)
	return tr
}

func TestTreeContainsExactlyTransitiveChildren(t *testing.T) {
	tr := buildSample(t)
	for _, want := range []euphid.ID{id(1), id(2), id(3), id(4)} {
		require.True(t, tr.Contains(want))
	}
	require.False(t, tr.Contains(id(5)))
}

func TestSiblingNavigation(t *testing.T) {
	tr := buildSample(t)

	next, ok := tr.NextSibling(id(2))
	require.True(t, ok)
	require.Equal(t, id(3), next)

	_, ok = tr.NextSibling(id(3))
	require.False(t, ok)

	prev, ok := tr.PrevSibling(id(3))
	require.True(t, ok)
	require.Equal(t, id(2), prev)
}

func TestParentAndChildren(t *testing.T) {
	tr := buildSample(t)

	p, ok := tr.Parent(id(4))
	require.True(t, ok)
	require.Equal(t, id(3), p)

	_, ok = tr.Parent(id(1))
	require.False(t, ok)

	require.Equal(t, []euphid.ID{id(2), id(3)}, tr.Children(id(1)))
}

func TestSubtreeSize(t *testing.T) {
	tr := buildSample(t)
	require.Equal(t, 4, tr.SubtreeSize(id(1)))
	require.Equal(t, 1, tr.SubtreeSize(id(2)))
	require.Equal(t, 2, tr.SubtreeSize(id(3)))
}

func TestMissingParentBecomesPlaceholder(t *testing.T) {
	msgs := []wire.Message{
		{ID: id(2), Parent: ptr(1)},
	}
	tr, err := Build(id(1), msgs)
	require.NoError(t, err)

	root, ok := tr.Node(id(1))
	require.True(t, ok)
	require.True(t, root.Placeholder)

	child, ok := tr.Node(id(2))
	require.True(t, ok)
	require.False(t, child.Placeholder)
}

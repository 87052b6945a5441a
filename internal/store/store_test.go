package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groverooms/grove/internal/euphid"
	"github.com/groverooms/grove/internal/wire"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func id(n uint64) euphid.ID { return euphid.ID(n) }
func idp(n uint64) *euphid.ID { v := id(n); return &v }

var testRoom = RoomID{Domain: "example.com", Name: "test"}

func TestSpanMergeScenario(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureRoom(ctx, testRoom, 1000))

	require.NoError(t, db.AddSpan(ctx, testRoom, idp(10), idp(20)))
	require.NoError(t, db.AddSpan(ctx, testRoom, idp(30), idp(40)))

	spans, err := db.Spans(ctx, testRoom)
	require.NoError(t, err)
	require.Len(t, spans, 2)

	require.NoError(t, db.AddSpan(ctx, testRoom, idp(15), idp(35)))
	spans, err = db.Spans(ctx, testRoom)
	require.NoError(t, err)
	require.Equal(t, []Span{{Start: idp(10), End: idp(40)}}, spans)

	require.NoError(t, db.AddSpan(ctx, testRoom, idp(50), nil))
	spans, err = db.Spans(ctx, testRoom)
	require.NoError(t, err)
	require.Equal(t, []Span{{Start: idp(10), End: idp(40)}, {Start: idp(50), End: nil}}, spans)

	// A null-start span reaching exactly to the existing [50, null) span's
	// start bridges the two into a single all-covering span. (A gap would
	// remain if the new span's end fell short of 50, since the merge rule
	// only joins spans whose start is <= the open span's end.)
	require.NoError(t, db.AddSpan(ctx, testRoom, nil, idp(50)))
	spans, err = db.Spans(ctx, testRoom)
	require.NoError(t, err)
	require.Equal(t, []Span{{Start: nil, End: nil}}, spans)
}

func TestSpansAreSortedAndNonOverlappingAfterArbitraryInserts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureRoom(ctx, testRoom, 1000))

	inserts := [][2]uint64{{100, 110}, {1, 5}, {50, 60}, {60, 70}, {7, 49}}
	for _, iv := range inserts {
		require.NoError(t, db.AddSpan(ctx, testRoom, idp(iv[0]), idp(iv[1])))
	}

	spans, err := db.Spans(ctx, testRoom)
	require.NoError(t, err)

	for i := 1; i < len(spans); i++ {
		require.NotNil(t, spans[i-1].End)
		require.NotNil(t, spans[i].Start)
		require.Less(t, *spans[i-1].End, *spans[i].Start, "spans must be sorted and non-overlapping")
	}
}

func TestLogReplyExtendsStoreScenario(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureRoom(ctx, testRoom, 1000))
	require.NoError(t, db.AddSpan(ctx, testRoom, idp(100), idp(200)))

	msgs := make([]wire.Message, 0, 50)
	for i := uint64(50); i < 100; i++ {
		msgs = append(msgs, wire.Message{ID: id(i), Time: 1, Sender: wire.SessionView{ID: "u1"}})
	}
	next := id(100)
	require.NoError(t, db.InsertMessageBatch(ctx, testRoom, msgs, &next, "u1"))

	spans, err := db.Spans(ctx, testRoom)
	require.NoError(t, err)
	require.Equal(t, []Span{{Start: idp(50), End: idp(200)}}, spans)
}

func TestInsertMessageTwiceIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureRoom(ctx, testRoom, 1000))

	msgs := []wire.Message{{ID: id(1), Time: 5, Content: "hi", Sender: wire.SessionView{ID: "u1", Name: "alice"}}}
	require.NoError(t, db.InsertMessageBatch(ctx, testRoom, msgs, nil, "u2"))
	require.NoError(t, db.InsertMessageBatch(ctx, testRoom, msgs, nil, "u2"))

	tr, err := db.Tree(ctx, testRoom, id(1))
	require.NoError(t, err)
	require.Len(t, tr, 1)
	require.Equal(t, "hi", tr[0].Content)
}

func TestOwnMessagesAndPreReadMessagesAreSeen(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureRoom(ctx, testRoom, 1000))

	msgs := []wire.Message{
		{ID: id(1), Time: 500, Sender: wire.SessionView{ID: "other"}}, // pre-read (predates first_joined)
		{ID: id(2), Time: 2000, Sender: wire.SessionView{ID: "u1"}}, // own message
		{ID: id(3), Time: 2000, Sender: wire.SessionView{ID: "other"}}, // neither
	}
	require.NoError(t, db.InsertMessageBatch(ctx, testRoom, msgs, nil, "u1"))

	n, err := db.UnseenCount(ctx, testRoom)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPathIsAscendingAndRootedAtNoParent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureRoom(ctx, testRoom, 1000))

	msgs := []wire.Message{
		{ID: id(1), Time: 1},
		{ID: id(2), Time: 1, Parent: idp(1)},
		{ID: id(3), Time: 1, Parent: idp(2)},
	}
	require.NoError(t, db.InsertMessageBatch(ctx, testRoom, msgs, nil, "u1"))

	path, err := db.Path(ctx, testRoom, id(3))
	require.NoError(t, err)
	require.Equal(t, []euphid.ID{id(1), id(2), id(3)}, path)
}

func TestTreeContainsExactlyTransitiveChildren(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureRoom(ctx, testRoom, 1000))

	msgs := []wire.Message{
		{ID: id(1), Time: 1},
		{ID: id(2), Time: 1, Parent: idp(1)},
		{ID: id(3), Time: 1, Parent: idp(1)},
		{ID: id(4), Time: 1, Parent: idp(3)},
		{ID: id(5), Time: 1}, // unrelated root
	}
	require.NoError(t, db.InsertMessageBatch(ctx, testRoom, msgs, nil, "u1"))

	tr, err := db.Tree(ctx, testRoom, id(1))
	require.NoError(t, err)
	var ids []euphid.ID
	for _, m := range tr {
		ids = append(ids, m.ID)
	}
	require.ElementsMatch(t, []euphid.ID{id(1), id(2), id(3), id(4)}, ids)
}

func TestRootNavigation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureRoom(ctx, testRoom, 1000))

	msgs := []wire.Message{
		{ID: id(1), Time: 1},
		{ID: id(5), Time: 1},
		{ID: id(10), Time: 1},
	}
	require.NoError(t, db.InsertMessageBatch(ctx, testRoom, msgs, nil, "u1"))

	first, ok, err := db.FirstRootID(ctx, testRoom)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id(1), first)

	last, ok, err := db.LastRootID(ctx, testRoom)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id(10), last)

	next, ok, err := db.NextRootID(ctx, testRoom, id(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id(5), next)

	prev, ok, err := db.PrevRootID(ctx, testRoom, id(10))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id(5), prev)
}

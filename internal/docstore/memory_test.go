package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type note struct {
	Title string `json:"title"`
	Rank  int    `json:"rank"`
	Tag   string `json:"tag,omitempty"`
}

func receive(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
	return Snapshot{}
}

func TestMemory_SetGetRevisions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clockwork.NewFakeClock())

	_, err := m.Get(ctx, "notes", "a")
	require.ErrorIs(t, err, ErrNotFound)

	doc, err := m.Set(ctx, "notes", "a", note{Title: "first", Rank: 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), doc.Revision)

	doc, err = m.Set(ctx, "notes", "a", note{Title: "second", Rank: 2})
	require.NoError(t, err)
	require.Equal(t, int64(2), doc.Revision)

	got, err := m.Get(ctx, "notes", "a")
	require.NoError(t, err)
	var n note
	require.NoError(t, got.Decode(&n))
	require.Equal(t, note{Title: "second", Rank: 2}, n)
}

func TestMemory_MergeAndUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clockwork.NewFakeClock())

	_, err := m.Update(ctx, "notes", "a", map[string]any{"rank": 3})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = m.Set(ctx, "notes", "a", note{Title: "keep", Rank: 1, Tag: "x"})
	require.NoError(t, err)

	_, err = m.Set(ctx, "notes", "a", map[string]any{"rank": 5}, Merge())
	require.NoError(t, err)
	doc, err := m.Update(ctx, "notes", "a", map[string]any{"tag": "y"})
	require.NoError(t, err)
	require.Equal(t, int64(3), doc.Revision)

	var n note
	require.NoError(t, doc.Decode(&n))
	require.Equal(t, note{Title: "keep", Rank: 5, Tag: "y"}, n)
}

func TestMemory_ConditionalWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clockwork.NewFakeClock())

	_, err := m.Set(ctx, "notes", "a", note{Title: "new"}, IfRevision(0))
	require.NoError(t, err)

	_, err = m.Set(ctx, "notes", "a", note{Title: "again"}, IfRevision(0))
	require.ErrorIs(t, err, ErrConflict)

	_, err = m.Set(ctx, "notes", "a", note{Title: "stale"}, IfRevision(7))
	require.ErrorIs(t, err, ErrConflict)

	doc, err := m.Set(ctx, "notes", "a", note{Title: "fresh"}, IfRevision(1))
	require.NoError(t, err)
	require.Equal(t, int64(2), doc.Revision)
}

func TestMemory_RejectsNonObjectsAndBadPaths(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	_, err := m.Set(ctx, "notes", "a", []int{1, 2})
	require.ErrorIs(t, err, ErrInvalid)

	_, err = m.Set(ctx, "no/tes", "a", note{})
	require.ErrorIs(t, err, ErrInvalid)

	_, err = m.Get(ctx, "notes", "../a")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestMemory_ListOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	for id, rank := range map[string]int{"a": 2, "b": 9, "c": 5} {
		_, err := m.Set(ctx, "notes", id, note{Rank: rank})
		require.NoError(t, err)
	}
	_, err := m.Set(ctx, "notes", "d", map[string]any{"title": "unranked"})
	require.NoError(t, err)

	docs, err := m.List(ctx, "notes", Query{OrderBy: "rank", Descending: true})
	require.NoError(t, err)
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	require.Equal(t, []string{"b", "c", "a", "d"}, ids)

	docs, err = m.List(ctx, "notes", Query{OrderBy: "rank"})
	require.NoError(t, err)
	require.Equal(t, "d", docs[0].ID)
	require.Equal(t, "b", docs[3].ID)
}

func TestMemory_WatchDocument(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory(nil)

	sub, err := m.WatchDocument(ctx, "notes", "a")
	require.NoError(t, err)

	initial := receive(t, sub)
	require.False(t, initial.Exists)
	require.Equal(t, "notes/a", initial.Path)

	_, err = m.Set(ctx, "notes", "a", note{Title: "hello"})
	require.NoError(t, err)
	snap := receive(t, sub)
	require.True(t, snap.Exists)
	require.Equal(t, int64(1), snap.Document.Revision)

	// Writes elsewhere do not wake the watcher.
	_, err = m.Set(ctx, "notes", "b", note{Title: "other"})
	require.NoError(t, err)
	select {
	case s := <-sub.C():
		t.Fatalf("unexpected snapshot %+v", s)
	default:
	}

	require.NoError(t, m.Delete(ctx, "notes", "a"))
	snap = receive(t, sub)
	require.False(t, snap.Exists)
}

func TestMemory_WatchKeepsLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	sub, err := m.WatchCollection(ctx, "notes", Query{OrderBy: "rank"})
	require.NoError(t, err)
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		_, err := m.Set(ctx, "notes", "a", note{Rank: i})
		require.NoError(t, err)
	}

	snap := receive(t, sub)
	require.Len(t, snap.Documents, 1)
	require.Equal(t, int64(5), snap.Documents[0].Revision)
}

func TestMemory_WatchEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory(nil)

	sub, err := m.WatchCollection(ctx, "notes", Query{})
	require.NoError(t, err)
	receive(t, sub)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	_, ok := <-sub.C()
	require.False(t, ok)

	m.mu.Lock()
	require.Empty(t, m.watchers)
	m.mu.Unlock()
}

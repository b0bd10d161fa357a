package docstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Memory is an in-process Store. Several sessions sharing one Memory behave
// like clients of the same replicated store.
type Memory struct {
	clock clockwork.Clock

	mu       sync.Mutex
	docs     map[string]map[string]Document
	watchers map[*watcher]struct{}
}

type watcher struct {
	collection string
	id         string
	query      Query
	sub        *Subscription
}

func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock:    clock,
		docs:     make(map[string]map[string]Document),
		watchers: make(map[*watcher]struct{}),
	}
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ValidatePath(collection, id); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (m *Memory) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ValidatePath(collection, ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(collection, q), nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, data any, opts ...WriteOption) (Document, error) {
	if err := ValidatePath(collection, id); err != nil {
		return Document{}, err
	}
	raw, err := EncodeObject(data)
	if err != nil {
		return Document{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(collection, id, raw, ApplyOptions(opts), false)
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any, opts ...WriteOption) (Document, error) {
	if err := ValidatePath(collection, id); err != nil {
		return Document{}, err
	}
	raw, err := EncodeObject(fields)
	if err != nil {
		return Document{}, err
	}

	o := ApplyOptions(opts)
	o.Merge = true
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(collection, id, raw, o, true)
}

func (m *Memory) Add(ctx context.Context, collection string, data any) (Document, error) {
	return m.Set(ctx, collection, uuid.NewString(), data, IfRevision(0))
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ValidatePath(collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[collection][id]; !ok {
		return nil
	}
	delete(m.docs[collection], id)
	m.notifyLocked(collection, id)
	return nil
}

func (m *Memory) WatchDocument(ctx context.Context, collection, id string) (*Subscription, error) {
	if err := ValidatePath(collection, id); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrInvalid
	}
	return m.watch(ctx, &watcher{collection: collection, id: id}), nil
}

func (m *Memory) WatchCollection(ctx context.Context, collection string, q Query) (*Subscription, error) {
	if err := ValidatePath(collection, ""); err != nil {
		return nil, err
	}
	return m.watch(ctx, &watcher{collection: collection, query: q}), nil
}

func (m *Memory) watch(ctx context.Context, w *watcher) *Subscription {
	w.sub = NewSubscription(ctx, func() {
		m.mu.Lock()
		delete(m.watchers, w)
		m.mu.Unlock()
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers[w] = struct{}{}
	w.sub.Publish(m.snapshotLocked(w))
	return w.sub
}

func (m *Memory) writeLocked(collection, id string, raw []byte, o WriteOptions, mustExist bool) (Document, error) {
	current, exists := m.docs[collection][id]
	if mustExist && !exists {
		return Document{}, ErrNotFound
	}
	if o.HasRevision && current.Revision != o.Revision {
		return current, ErrConflict
	}

	data := raw
	if o.Merge && exists {
		merged, err := MergeJSON(current.Data, raw)
		if err != nil {
			return Document{}, err
		}
		data = merged
	}

	doc := Document{
		Collection: collection,
		ID:         id,
		Revision:   current.Revision + 1,
		Data:       data,
		UpdatedAt:  m.clock.Now().UTC(),
	}
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]Document)
	}
	m.docs[collection][id] = doc
	m.notifyLocked(collection, id)
	return doc, nil
}

func (m *Memory) notifyLocked(collection, id string) {
	for w := range m.watchers {
		if w.collection != collection {
			continue
		}
		if w.id != "" && w.id != id {
			continue
		}
		w.sub.Publish(m.snapshotLocked(w))
	}
}

func (m *Memory) snapshotLocked(w *watcher) Snapshot {
	if w.id != "" {
		snap := Snapshot{Path: w.collection + "/" + w.id}
		if doc, ok := m.docs[w.collection][w.id]; ok {
			snap.Exists = true
			snap.Document = &doc
		}
		return snap
	}
	docs := m.listLocked(w.collection, w.query)
	return Snapshot{Path: w.collection, Exists: true, Documents: docs}
}

func (m *Memory) listLocked(collection string, q Query) []Document {
	docs := make([]Document, 0, len(m.docs[collection]))
	for _, doc := range m.docs[collection] {
		docs = append(docs, doc)
	}
	SortDocuments(docs, q)
	return docs
}

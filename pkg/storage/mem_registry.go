package storage

import (
	"context"
	"iter"
	"strconv"
	"sync"
)

// MemRegistry is an in-memory Registry fake used by unit tests that do not
// need to survive a process restart. Optimistic concurrency is emulated the
// same way as BoltRegistry: a monotonically incrementing revision counter
// guarded by a single mutex standing in for bolt's single-writer semantics.
type MemRegistry struct {
	mu         sync.Mutex
	containers map[string]map[string]record
}

// NewMemRegistry returns an empty MemRegistry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{containers: make(map[string]map[string]record)}
}

func (r *MemRegistry) Get(ctx context.Context, container, id string) (Doc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.containers[container][id]
	if !ok {
		return Doc{}, ErrNotFound
	}
	return Doc{ID: id, Body: rec.Body, Revision: rec.Revision}, nil
}

func (r *MemRegistry) Query(ctx context.Context, container string, filter map[string]string) iter.Seq2[Doc, error] {
	return func(yield func(Doc, error) bool) {
		r.mu.Lock()
		docs := make([]Doc, 0, len(r.containers[container]))
		for id, rec := range r.containers[container] {
			if matchesFilter(rec.Body, filter) {
				docs = append(docs, Doc{ID: id, Body: rec.Body, Revision: rec.Revision})
			}
		}
		r.mu.Unlock()
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func (r *MemRegistry) Upsert(ctx context.Context, container string, doc Doc) (Doc, error) {
	return r.write(container, doc, func(existing *record) error { return nil })
}

func (r *MemRegistry) CreateIfAbsent(ctx context.Context, container string, doc Doc) (Doc, error) {
	return r.write(container, doc, func(existing *record) error {
		if existing != nil {
			return ErrConflict
		}
		return nil
	})
}

func (r *MemRegistry) Replace(ctx context.Context, container string, doc Doc) (Doc, error) {
	return r.write(container, doc, func(existing *record) error {
		if existing == nil || existing.Revision != doc.Revision {
			return ErrConflict
		}
		return nil
	})
}

func (r *MemRegistry) write(container string, doc Doc, check func(existing *record) error) (Doc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.containers[container]
	if !ok {
		bucket = make(map[string]record)
		r.containers[container] = bucket
	}
	var existing *record
	if rec, ok := bucket[doc.ID]; ok {
		existing = &rec
	}
	if err := check(existing); err != nil {
		return Doc{}, err
	}
	nextRevision := "1"
	if existing != nil {
		n, _ := strconv.Atoi(existing.Revision)
		nextRevision = strconv.Itoa(n + 1)
	}
	bucket[doc.ID] = record{Body: doc.Body, Revision: nextRevision}
	return Doc{ID: doc.ID, Body: doc.Body, Revision: nextRevision}, nil
}

func (r *MemRegistry) Delete(ctx context.Context, container, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.containers[container], id)
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"path/filepath"
	"strconv"

	bolt "go.etcd.io/bbolt"
)

// record is the on-disk wrapper around a Doc's raw body, carrying the
// revision bolt assigns on every write so CreateIfAbsent/Replace can emulate
// Cosmos DB's ETag-conditional replace inside a single bolt transaction.
type record struct {
	Body     json.RawMessage `json:"body"`
	Revision string          `json:"revision"`
}

// BoltRegistry implements Registry using BoltDB, one bucket per container,
// created on first use. Each document's revision is a monotonically
// incrementing counter string, read-modify-written inside a single bolt
// transaction — bolt's single-writer transactions make this a correct
// emulation of conditional replace without any extra locking.
type BoltRegistry struct {
	db *bolt.DB
}

// NewBoltRegistry opens (creating if absent) a BoltDB file under dataDir.
func NewBoltRegistry(dataDir string) (*BoltRegistry, error) {
	dbPath := filepath.Join(dataDir, "contentflow.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	return &BoltRegistry{db: db}, nil
}

// Close closes the underlying database.
func (r *BoltRegistry) Close() error {
	return r.db.Close()
}

func bucketName(container string) []byte {
	return []byte("container:" + container)
}

func (r *BoltRegistry) Get(ctx context.Context, container, id string) (Doc, error) {
	var doc Doc
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(container))
		if b == nil {
			return ErrNotFound
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		doc = Doc{ID: id, Body: rec.Body, Revision: rec.Revision}
		return nil
	})
	return doc, err
}

func (r *BoltRegistry) Query(ctx context.Context, container string, filter map[string]string) iter.Seq2[Doc, error] {
	return func(yield func(Doc, error) bool) {
		err := r.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketName(container))
			if b == nil {
				return nil
			}
			return b.ForEach(func(k, raw []byte) error {
				var rec record
				if err := json.Unmarshal(raw, &rec); err != nil {
					return err
				}
				if !matchesFilter(rec.Body, filter) {
					return nil
				}
				doc := Doc{ID: string(k), Body: rec.Body, Revision: rec.Revision}
				if !yield(doc, nil) {
					return errStopIteration
				}
				return nil
			})
		})
		if err != nil && err != errStopIteration {
			yield(Doc{}, err)
		}
	}
}

var errStopIteration = fmt.Errorf("stop iteration")

func matchesFilter(body json.RawMessage, filter map[string]string) bool {
	if len(filter) == 0 {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	for k, want := range filter {
		got, ok := fields[k]
		if !ok {
			return false
		}
		switch v := got.(type) {
		case string:
			if v != want {
				return false
			}
		case bool:
			if strconv.FormatBool(v) != want {
				return false
			}
		default:
			if fmt.Sprintf("%v", v) != want {
				return false
			}
		}
	}
	return true
}

func (r *BoltRegistry) Upsert(ctx context.Context, container string, doc Doc) (Doc, error) {
	return r.write(container, doc, func(existing *record) error { return nil })
}

func (r *BoltRegistry) CreateIfAbsent(ctx context.Context, container string, doc Doc) (Doc, error) {
	return r.write(container, doc, func(existing *record) error {
		if existing != nil {
			return ErrConflict
		}
		return nil
	})
}

func (r *BoltRegistry) Replace(ctx context.Context, container string, doc Doc) (Doc, error) {
	return r.write(container, doc, func(existing *record) error {
		if existing == nil || existing.Revision != doc.Revision {
			return ErrConflict
		}
		return nil
	})
}

func (r *BoltRegistry) write(container string, doc Doc, check func(existing *record) error) (Doc, error) {
	var result Doc
	err := r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(container))
		if err != nil {
			return err
		}
		var existing *record
		if raw := b.Get([]byte(doc.ID)); raw != nil {
			var rec record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			existing = &rec
		}
		if err := check(existing); err != nil {
			return err
		}
		nextRevision := "1"
		if existing != nil {
			n, _ := strconv.Atoi(existing.Revision)
			nextRevision = strconv.Itoa(n + 1)
		}
		rec := record{Body: doc.Body, Revision: nextRevision}
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(doc.ID), raw); err != nil {
			return err
		}
		result = Doc{ID: doc.ID, Body: doc.Body, Revision: nextRevision}
		return nil
	})
	if err != nil {
		return Doc{}, err
	}
	return result, nil
}

func (r *BoltRegistry) Delete(ctx context.Context, container, id string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(container))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
}

// Package memory implements store.Backend in process memory. It backs the
// test suite and local development; production deployments plug a real
// document-store driver into the same interface.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/veridoc/veridoc/store"
)

// Store is an in-memory hierarchical document store keyed by full document
// path. All operations are safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
}

// New creates an empty store.
func New() *Store {
	return &Store{docs: make(map[string]map[string]any)}
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Get implements store.Backend.
func (s *Store) Get(ctx context.Context, path string) (*store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(path), nil
}

// Set implements store.Backend.
func (s *Store) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(store.Write{Kind: store.WriteSet, Path: path, Data: data, Merge: merge})
	return nil
}

// Update implements store.Backend. Updating a missing document fails with
// store.ErrNotFound.
func (s *Store) Update(ctx context.Context, path string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[path]; !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, path)
	}
	s.apply(store.Write{Kind: store.WriteUpdate, Path: path, Data: updates})
	return nil
}

// Delete implements store.Backend. Deleting a missing document is a no-op.
func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path)
	return nil
}

// Query implements store.Backend.
func (s *Store) Query(ctx context.Context, collection string, spec store.QuerySpec) ([]*store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []*store.Snapshot
	for path := range s.docs {
		if store.ParentPath(path) == collection {
			snaps = append(snaps, s.snapshot(path))
		}
	}
	return applySpec(snaps, spec), nil
}

// CollectionGroup implements store.Backend: every document whose immediate
// collection carries the given name, anywhere in the hierarchy.
func (s *Store) CollectionGroup(ctx context.Context, name string, spec store.QuerySpec) ([]*store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []*store.Snapshot
	for path := range s.docs {
		parent := store.ParentPath(path)
		if parent == name || strings.HasSuffix(parent, "/"+name) {
			snaps = append(snaps, s.snapshot(path))
		}
	}
	return applySpec(snaps, spec), nil
}

// GetAll implements store.Backend.
func (s *Store) GetAll(ctx context.Context, paths []string) ([]*store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := make([]*store.Snapshot, len(paths))
	for i, p := range paths {
		snaps[i] = s.snapshot(p)
	}
	return snaps, nil
}

// Commit implements store.Backend: all writes apply atomically.
func (s *Store) Commit(ctx context.Context, writes []store.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		if w.Kind == store.WriteUpdate {
			if _, ok := s.docs[w.Path]; !ok {
				return fmt.Errorf("%w: %s", store.ErrNotFound, w.Path)
			}
		}
	}
	for _, w := range writes {
		s.apply(w)
	}
	return nil
}

type memTx struct {
	s      *Store
	writes []store.Write
}

func (t *memTx) Get(ctx context.Context, path string) (*store.Snapshot, error) {
	return t.s.snapshot(path), nil
}

func (t *memTx) Stage(w store.Write) {
	t.writes = append(t.writes, w)
}

// RunTransaction implements store.Backend. The whole store is locked for
// the duration of fn; staged writes apply on success and are discarded on
// error.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BackendTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, w := range tx.writes {
		s.apply(w)
	}
	return nil
}

// snapshot assumes the lock is held.
func (s *Store) snapshot(path string) *store.Snapshot {
	data, ok := s.docs[path]
	if !ok {
		return &store.Snapshot{Path: path, Exists: false}
	}
	return &store.Snapshot{Path: path, Exists: true, Data: copyDoc(data)}
}

// apply assumes the lock is held.
func (s *Store) apply(w store.Write) {
	switch w.Kind {
	case store.WriteSet:
		if w.Merge {
			if existing, ok := s.docs[w.Path]; ok {
				merged := copyDoc(existing)
				for k, v := range w.Data {
					merged[k] = v
				}
				s.docs[w.Path] = merged
				return
			}
		}
		s.docs[w.Path] = copyDoc(w.Data)
	case store.WriteUpdate:
		existing, ok := s.docs[w.Path]
		if !ok {
			return
		}
		merged := copyDoc(existing)
		for k, v := range w.Data {
			merged[k] = v
		}
		s.docs[w.Path] = merged
	case store.WriteDelete:
		delete(s.docs, w.Path)
	}
}

func copyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyDoc(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func applySpec(snaps []*store.Snapshot, spec store.QuerySpec) []*store.Snapshot {
	var out []*store.Snapshot
	for _, snap := range snaps {
		if matchesAll(snap, spec.Filters) {
			out = append(out, snap)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range spec.Orders {
			c := compare(out[i].Data[o.Field], out[j].Data[o.Field])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		// Stable fallback so pagination is deterministic.
		return out[i].Path < out[j].Path
	})

	if len(spec.StartAfter) > 0 {
		out = afterCursor(out, spec.Orders, spec.StartAfter)
	}
	if spec.Offset > 0 {
		if spec.Offset >= len(out) {
			return nil
		}
		out = out[spec.Offset:]
	}
	if spec.Limit > 0 && len(out) > spec.Limit {
		out = out[:spec.Limit]
	}
	return out
}

func afterCursor(snaps []*store.Snapshot, orders []store.Order, cursor []any) []*store.Snapshot {
	for i, snap := range snaps {
		past := false
		for j, o := range orders {
			if j >= len(cursor) {
				break
			}
			c := compare(snap.Data[o.Field], cursor[j])
			if o.Desc {
				c = -c
			}
			if c > 0 {
				past = true
			}
			if c != 0 {
				break
			}
		}
		if past {
			return snaps[i:]
		}
	}
	return nil
}

func matchesAll(snap *store.Snapshot, filters []store.Filter) bool {
	for _, f := range filters {
		value, ok := snap.Data[f.Field]
		if !ok {
			return false
		}
		c := compare(value, f.Value)
		switch f.Op {
		case "==":
			if c != 0 {
				return false
			}
		case "!=":
			if c == 0 {
				return false
			}
		case "<":
			if c >= 0 {
				return false
			}
		case "<=":
			if c > 0 {
				return false
			}
		case ">":
			if c <= 0 {
				return false
			}
		case ">=":
			if c < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func compare(a, b any) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case !ba && bb:
				return -1
			case ba && !bb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

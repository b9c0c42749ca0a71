// Package store provides tenant-scoped access to a hierarchical document
// store addressed by slash-separated paths (collection/document/collection/...).
//
// The Backend interface is the seam to the real store; Scoped is the
// capability facade every caller in this repository goes through. Scoped
// validates each path against the tenant bound to the request context before
// delegating, so no operation — including parent navigation, batched writes,
// transactions and multi-gets — can reach outside tenants/{tenant}/.
package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Update when the target document does not exist.
var ErrNotFound = errors.New("store: document not found")

// Snapshot is a point-in-time view of a document.
type Snapshot struct {
	Path   string
	Exists bool
	Data   map[string]any
}

// ID returns the document id (the last path segment).
func (s *Snapshot) ID() string {
	if i := strings.LastIndex(s.Path, "/"); i >= 0 {
		return s.Path[i+1:]
	}
	return s.Path
}

// Filter is a single field predicate in a query.
type Filter struct {
	Field string
	Op    string // one of ==, !=, <, <=, >, >=
	Value any
}

// Order is a sort clause in a query.
type Order struct {
	Field string
	Desc  bool
}

// QuerySpec describes a collection query: filters, ordering, limit, offset
// and an optional cursor (values aligned with Orders, exclusive).
type QuerySpec struct {
	Filters    []Filter
	Orders     []Order
	Limit      int
	Offset     int
	StartAfter []any
}

// WriteKind discriminates staged writes in batches and transactions.
type WriteKind int

const (
	WriteSet WriteKind = iota
	WriteUpdate
	WriteDelete
)

// Write is one staged mutation.
type Write struct {
	Kind  WriteKind
	Path  string
	Data  map[string]any
	Merge bool
}

// Backend is the consumed hierarchical document store. Implementations must
// treat paths as opaque beyond their slash structure; all tenant scoping
// happens above this interface.
type Backend interface {
	Get(ctx context.Context, path string) (*Snapshot, error)
	Set(ctx context.Context, path string, data map[string]any, merge bool) error
	Update(ctx context.Context, path string, updates map[string]any) error
	Delete(ctx context.Context, path string) error

	Query(ctx context.Context, collection string, spec QuerySpec) ([]*Snapshot, error)
	// CollectionGroup spans every collection with the given name regardless
	// of ancestor. Scoped never calls it; it exists because the underlying
	// store has the capability and the facade must disable it explicitly.
	CollectionGroup(ctx context.Context, name string, spec QuerySpec) ([]*Snapshot, error)
	GetAll(ctx context.Context, paths []string) ([]*Snapshot, error)

	Commit(ctx context.Context, writes []Write) error
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx BackendTx) error) error
}

// BackendTx is the backend's view of an in-flight transaction.
type BackendTx interface {
	Get(ctx context.Context, path string) (*Snapshot, error)
	Stage(w Write)
}

// CleanPath normalizes a slash path: trims surrounding slashes.
func CleanPath(path string) string {
	return strings.Trim(path, "/")
}

// ParentPath returns the path one level up, or "" at the root.
func ParentPath(path string) string {
	clean := CleanPath(path)
	i := strings.LastIndex(clean, "/")
	if i < 0 {
		return ""
	}
	return clean[:i]
}

func segmentCount(path string) int {
	clean := CleanPath(path)
	if clean == "" {
		return 0
	}
	return strings.Count(clean, "/") + 1
}

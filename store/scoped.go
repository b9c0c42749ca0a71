package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridoc/veridoc/tenancy"
)

const tenantsRoot = "tenants"

// BreachHook is invoked whenever Scoped rejects an access. Used to feed
// metrics; the rejection itself is already logged and returned as an error.
type BreachHook func(tenant tenancy.Tenant, path string)

// Scoped is the tenant-scoped facade over a Backend. Every operation
// resolves the active tenant from the request context and validates the
// addressed path through a single choke point before delegating.
type Scoped struct {
	backend  Backend
	logger   *zap.Logger
	onBreach BreachHook
}

// Option configures a Scoped store.
type Option func(*Scoped)

// WithBreachHook registers a hook called on every rejected access.
func WithBreachHook(hook BreachHook) Option {
	return func(s *Scoped) { s.onBreach = hook }
}

// New creates a tenant-scoped store over the given backend.
func New(backend Backend, logger *zap.Logger, opts ...Option) *Scoped {
	s := &Scoped{backend: backend, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// guard is the single validation choke point. A path is in bounds iff it
// equals tenants/{t} or starts with tenants/{t}/, where t is the tenant
// bound to ctx. Everything else — including the bare root collection and
// other tenants' subtrees — is a breach.
func (s *Scoped) guard(ctx context.Context, path string) error {
	clean := CleanPath(path)
	tenant, ok := tenancy.FromContext(ctx)
	if !ok {
		return s.breach("", clean, "no active tenant context")
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" {
			return s.breach(tenant, clean, "malformed path")
		}
	}
	root := tenantsRoot + "/" + string(tenant)
	if clean == root || strings.HasPrefix(clean, root+"/") {
		return nil
	}
	return s.breach(tenant, clean, "path outside tenant scope")
}

func (s *Scoped) breach(tenant tenancy.Tenant, path, reason string) error {
	s.logger.Error("tenant isolation violation",
		zap.String("tenant", string(tenant)),
		zap.String("path", path),
		zap.String("reason", reason))
	if s.onBreach != nil {
		s.onBreach(tenant, path)
	}
	return &BreachError{Tenant: tenant, Path: path, Reason: reason}
}

func (s *Scoped) guardDoc(ctx context.Context, path string) error {
	if err := s.guard(ctx, path); err != nil {
		return err
	}
	if segmentCount(path)%2 != 0 {
		return fmt.Errorf("store: %q is not a document path", CleanPath(path))
	}
	return nil
}

func (s *Scoped) guardCollection(ctx context.Context, path string) error {
	if err := s.guard(ctx, path); err != nil {
		return err
	}
	if segmentCount(path)%2 != 1 {
		return fmt.Errorf("store: %q is not a collection path", CleanPath(path))
	}
	return nil
}

// Doc returns a handle to the document at path after validating it.
func (s *Scoped) Doc(ctx context.Context, path string) (*Document, error) {
	if err := s.guardDoc(ctx, path); err != nil {
		return nil, err
	}
	return &Document{s: s, path: CleanPath(path)}, nil
}

// Collection returns a handle to the collection at path after validating it.
func (s *Scoped) Collection(ctx context.Context, path string) (*Collection, error) {
	if err := s.guardCollection(ctx, path); err != nil {
		return nil, err
	}
	return &Collection{s: s, path: CleanPath(path)}, nil
}

// CollectionGroup queries span all collections of a given name regardless of
// ancestor. No path-prefix check can scope them, so the capability is
// disabled outright rather than partially validated.
func (s *Scoped) CollectionGroup(ctx context.Context, name string) (*Query, error) {
	tenant, _ := tenancy.FromContext(ctx)
	return nil, s.breach(tenant, name, "collection group queries are disabled for tenant isolation")
}

// GetAll fetches multiple documents; every path is validated first.
func (s *Scoped) GetAll(ctx context.Context, paths []string) ([]*Snapshot, error) {
	clean := make([]string, len(paths))
	for i, p := range paths {
		if err := s.guardDoc(ctx, p); err != nil {
			return nil, err
		}
		clean[i] = CleanPath(p)
	}
	return s.backend.GetAll(ctx, clean)
}

// Batch starts a batched multi-write. Writes are validated when staged and
// once more at commit.
func (s *Scoped) Batch() *Batch {
	return &Batch{s: s}
}

// RunTransaction runs fn inside a backend transaction. The transaction
// handle passed to fn revalidates every read and staged write.
func (s *Scoped) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return s.backend.RunTransaction(ctx, func(ctx context.Context, btx BackendTx) error {
		return fn(ctx, &Tx{s: s, btx: btx})
	})
}

// Document is a validated handle to a single document. Navigation from a
// document re-validates the destination, so holding a handle grants no
// capability beyond the tenant subtree.
type Document struct {
	s    *Scoped
	path string
}

// Path returns the full document path.
func (d *Document) Path() string { return d.path }

// ID returns the document id.
func (d *Document) ID() string {
	return d.path[strings.LastIndex(d.path, "/")+1:]
}

// Parent returns the document's parent collection. The result is validated,
// not the ancestor: navigating up from the tenant root document fails here
// even though the document itself was in bounds.
func (d *Document) Parent(ctx context.Context) (*Collection, error) {
	return d.s.Collection(ctx, ParentPath(d.path))
}

// Collection returns a child collection of this document.
func (d *Document) Collection(ctx context.Context, id string) (*Collection, error) {
	return d.s.Collection(ctx, d.path+"/"+id)
}

// Get reads the document.
func (d *Document) Get(ctx context.Context) (*Snapshot, error) {
	if err := d.s.guardDoc(ctx, d.path); err != nil {
		return nil, err
	}
	return d.s.backend.Get(ctx, d.path)
}

// Set writes the document, replacing it unless merge is true.
func (d *Document) Set(ctx context.Context, data map[string]any, merge bool) error {
	if err := d.s.guardDoc(ctx, d.path); err != nil {
		return err
	}
	return d.s.backend.Set(ctx, d.path, data, merge)
}

// Update applies field updates to an existing document.
func (d *Document) Update(ctx context.Context, updates map[string]any) error {
	if err := d.s.guardDoc(ctx, d.path); err != nil {
		return err
	}
	return d.s.backend.Update(ctx, d.path, updates)
}

// Delete removes the document.
func (d *Document) Delete(ctx context.Context) error {
	if err := d.s.guardDoc(ctx, d.path); err != nil {
		return err
	}
	return d.s.backend.Delete(ctx, d.path)
}

// Collection is a validated handle to a collection.
type Collection struct {
	s    *Scoped
	path string
}

// Path returns the full collection path.
func (c *Collection) Path() string { return c.path }

// ID returns the collection id.
func (c *Collection) ID() string {
	return c.path[strings.LastIndex(c.path, "/")+1:]
}

// Parent returns the collection's parent document. For a root-level
// collection there is no parent document and the navigation is rejected.
func (c *Collection) Parent(ctx context.Context) (*Document, error) {
	parent := ParentPath(c.path)
	if parent == "" {
		tenant, _ := tenancy.FromContext(ctx)
		return nil, c.s.breach(tenant, c.path, "cannot navigate above the root collection")
	}
	return c.s.Doc(ctx, parent)
}

// Doc returns a handle to a document in this collection.
func (c *Collection) Doc(ctx context.Context, id string) (*Document, error) {
	return c.s.Doc(ctx, c.path+"/"+id)
}

// NewDoc returns a handle to a fresh document with a generated id.
func (c *Collection) NewDoc(ctx context.Context) (*Document, error) {
	return c.s.Doc(ctx, c.path+"/"+uuid.NewString())
}

// Add creates a document with a generated id and the given data.
func (c *Collection) Add(ctx context.Context, data map[string]any) (*Document, error) {
	doc, err := c.NewDoc(ctx)
	if err != nil {
		return nil, err
	}
	if err := doc.Set(ctx, data, false); err != nil {
		return nil, err
	}
	return doc, nil
}

// Documents reads every document in the collection.
func (c *Collection) Documents(ctx context.Context) ([]*Snapshot, error) {
	return c.query().Documents(ctx)
}

func (c *Collection) query() *Query {
	return &Query{s: c.s, collection: c.path}
}

// Where adds a field predicate and returns the extended query.
func (c *Collection) Where(field, op string, value any) *Query {
	return c.query().Where(field, op, value)
}

// OrderBy adds a sort clause and returns the extended query.
func (c *Collection) OrderBy(field string, desc bool) *Query {
	return c.query().OrderBy(field, desc)
}

// Limit caps the number of results.
func (c *Collection) Limit(n int) *Query { return c.query().Limit(n) }

// Offset skips the first n results.
func (c *Collection) Offset(n int) *Query { return c.query().Offset(n) }

// Query is an immutable, tenant-scoped query builder. Every chained call
// returns another scoped query; there is no way to obtain an unwrapped
// handle from an intermediate step.
type Query struct {
	s          *Scoped
	collection string
	spec       QuerySpec
}

func (q *Query) clone() *Query {
	next := &Query{s: q.s, collection: q.collection, spec: q.spec}
	next.spec.Filters = append([]Filter(nil), q.spec.Filters...)
	next.spec.Orders = append([]Order(nil), q.spec.Orders...)
	next.spec.StartAfter = append([]any(nil), q.spec.StartAfter...)
	return next
}

// Where adds a field predicate.
func (q *Query) Where(field, op string, value any) *Query {
	next := q.clone()
	next.spec.Filters = append(next.spec.Filters, Filter{Field: field, Op: op, Value: value})
	return next
}

// OrderBy adds a sort clause.
func (q *Query) OrderBy(field string, desc bool) *Query {
	next := q.clone()
	next.spec.Orders = append(next.spec.Orders, Order{Field: field, Desc: desc})
	return next
}

// Limit caps the number of results.
func (q *Query) Limit(n int) *Query {
	next := q.clone()
	next.spec.Limit = n
	return next
}

// Offset skips the first n results.
func (q *Query) Offset(n int) *Query {
	next := q.clone()
	next.spec.Offset = n
	return next
}

// StartAfter positions the query after the given cursor values, which align
// with the query's OrderBy clauses.
func (q *Query) StartAfter(values ...any) *Query {
	next := q.clone()
	next.spec.StartAfter = values
	return next
}

// Documents executes the query. The collection path is validated again at
// execution time: the tenant bound to ctx decides, not the tenant that was
// active when the builder chain started.
func (q *Query) Documents(ctx context.Context) ([]*Snapshot, error) {
	if err := q.s.guardCollection(ctx, q.collection); err != nil {
		return nil, err
	}
	return q.s.backend.Query(ctx, q.collection, q.spec)
}

// Batch stages multiple writes for a single commit. Each staging call
// validates its path synchronously; Commit validates the whole set again
// before delegating.
type Batch struct {
	s      *Scoped
	writes []Write
}

// Set stages a set write.
func (b *Batch) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	if err := b.s.guardDoc(ctx, path); err != nil {
		return err
	}
	b.writes = append(b.writes, Write{Kind: WriteSet, Path: CleanPath(path), Data: data, Merge: merge})
	return nil
}

// Update stages a field update.
func (b *Batch) Update(ctx context.Context, path string, updates map[string]any) error {
	if err := b.s.guardDoc(ctx, path); err != nil {
		return err
	}
	b.writes = append(b.writes, Write{Kind: WriteUpdate, Path: CleanPath(path), Data: updates})
	return nil
}

// Delete stages a delete.
func (b *Batch) Delete(ctx context.Context, path string) error {
	if err := b.s.guardDoc(ctx, path); err != nil {
		return err
	}
	b.writes = append(b.writes, Write{Kind: WriteDelete, Path: CleanPath(path)})
	return nil
}

// Commit applies all staged writes atomically.
func (b *Batch) Commit(ctx context.Context) error {
	for _, w := range b.writes {
		if err := b.s.guardDoc(ctx, w.Path); err != nil {
			return err
		}
	}
	return b.s.backend.Commit(ctx, b.writes)
}

// Tx is the tenant-scoped view of an in-flight transaction.
type Tx struct {
	s   *Scoped
	btx BackendTx
}

// Get reads a document inside the transaction.
func (t *Tx) Get(ctx context.Context, path string) (*Snapshot, error) {
	if err := t.s.guardDoc(ctx, path); err != nil {
		return nil, err
	}
	return t.btx.Get(ctx, CleanPath(path))
}

// Set stages a set write inside the transaction.
func (t *Tx) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	if err := t.s.guardDoc(ctx, path); err != nil {
		return err
	}
	t.btx.Stage(Write{Kind: WriteSet, Path: CleanPath(path), Data: data, Merge: merge})
	return nil
}

// Update stages a field update inside the transaction.
func (t *Tx) Update(ctx context.Context, path string, updates map[string]any) error {
	if err := t.s.guardDoc(ctx, path); err != nil {
		return err
	}
	t.btx.Stage(Write{Kind: WriteUpdate, Path: CleanPath(path), Data: updates})
	return nil
}

// Delete stages a delete inside the transaction.
func (t *Tx) Delete(ctx context.Context, path string) error {
	if err := t.s.guardDoc(ctx, path); err != nil {
		return err
	}
	t.btx.Stage(Write{Kind: WriteDelete, Path: CleanPath(path)})
	return nil
}

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veridoc/veridoc/store"
	"github.com/veridoc/veridoc/store/memory"
	"github.com/veridoc/veridoc/tenancy"
)

func scoped(t *testing.T) (*store.Scoped, *memory.Store) {
	t.Helper()
	backend := memory.New()
	return store.New(backend, zap.NewNop()), backend
}

func ctxFor(tenant string) context.Context {
	return tenancy.WithTenant(context.Background(), tenancy.Tenant(tenant))
}

func seedJob(t *testing.T, s *store.Scoped, tenant, id string, data map[string]any) {
	t.Helper()
	ctx := ctxFor(tenant)
	doc, err := s.Doc(ctx, "tenants/"+tenant+"/jobs/"+id)
	require.NoError(t, err)
	require.NoError(t, doc.Set(ctx, data, false))
}

func TestGuardRejectsForeignPaths(t *testing.T) {
	s, _ := scoped(t)
	ctx := ctxFor("t1")

	cases := []struct {
		name string
		path string
	}{
		{"other tenant root", "tenants/t2"},
		{"other tenant subtree", "tenants/t2/jobs/abc"},
		{"unrelated top-level", "admin/settings"},
		{"prefix trick", "tenants/t1-evil/jobs/abc"},
		{"empty segment", "tenants/t1//jobs"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Doc(ctx, tc.path)
			var be *store.BreachError
			if !assert.ErrorAs(t, err, &be) {
				return
			}
			assert.Equal(t, tenancy.Tenant("t1"), be.Tenant)
		})
	}
}

func TestGuardAllowsTenantSubtree(t *testing.T) {
	s, _ := scoped(t)
	ctx := ctxFor("t1")

	_, err := s.Doc(ctx, "tenants/t1")
	assert.NoError(t, err, "tenant root document is the legal boundary case")

	_, err = s.Doc(ctx, "tenants/t1/jobs/abc")
	assert.NoError(t, err)

	_, err = s.Collection(ctx, "tenants/t1/jobs")
	assert.NoError(t, err)

	// Leading/trailing slashes normalize rather than escape.
	_, err = s.Doc(ctx, "/tenants/t1/jobs/abc/")
	assert.NoError(t, err)
}

func TestNoTenantContextIsRejected(t *testing.T) {
	s, _ := scoped(t)

	_, err := s.Doc(context.Background(), "tenants/t1/jobs/abc")
	assert.True(t, store.IsBreach(err))

	_, err = s.Collection(context.Background(), "tenants/t1/jobs")
	assert.True(t, store.IsBreach(err))
}

func TestParentTraversalFailsOneStepPastTenantRoot(t *testing.T) {
	s, _ := scoped(t)
	ctx := ctxFor("t1")

	doc, err := s.Doc(ctx, "tenants/t1/jobs/abc")
	require.NoError(t, err)

	jobs, err := doc.Parent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tenants/t1/jobs", jobs.Path())

	root, err := jobs.Parent(ctx)
	require.NoError(t, err, "tenant root document is still in bounds")
	assert.Equal(t, "tenants/t1", root.Path())

	_, err = root.Parent(ctx)
	assert.True(t, store.IsBreach(err), "the all-tenants collection must be unreachable")
}

func TestParentChainStopsAtTenantBoundary(t *testing.T) {
	s, _ := scoped(t)
	ctx := ctxFor("t1")

	// Even a handle built inside the subtree cannot climb above the root
	// collection of a nested hierarchy.
	coll, err := s.Collection(ctx, "tenants/t1/jobs")
	require.NoError(t, err)
	docHandle, err := coll.Doc(ctx, "abc")
	require.NoError(t, err)
	sub, err := docHandle.Collection(ctx, "attachments")
	require.NoError(t, err)

	up1, err := sub.Parent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tenants/t1/jobs/abc", up1.Path())
}

func TestCollectionGroupAlwaysRejected(t *testing.T) {
	s, _ := scoped(t)

	_, err := s.CollectionGroup(ctxFor("t1"), "jobs")
	assert.True(t, store.IsBreach(err))

	_, err = s.CollectionGroup(context.Background(), "jobs")
	assert.True(t, store.IsBreach(err), "no execution context state makes an aggregate query safe")
}

func TestTenantCannotReadAnotherTenantsDocuments(t *testing.T) {
	s, _ := scoped(t)
	seedJob(t, s, "t2", "secret", map[string]any{"status": "QUEUED"})

	ctx := ctxFor("t1")
	_, err := s.Doc(ctx, "tenants/t2/jobs/secret")
	assert.True(t, store.IsBreach(err))

	_, err = s.Collection(ctx, "tenants/t2/jobs")
	assert.True(t, store.IsBreach(err))

	_, err = s.GetAll(ctx, []string{"tenants/t1/jobs/mine", "tenants/t2/jobs/secret"})
	assert.True(t, store.IsBreach(err), "one foreign path poisons the whole multi-get")
}

func TestQueryBuilderStaysScoped(t *testing.T) {
	s, _ := scoped(t)
	seedJob(t, s, "t1", "a", map[string]any{"status": "QUEUED", "n": 1})
	seedJob(t, s, "t1", "b", map[string]any{"status": "COMPLETED", "n": 2})
	seedJob(t, s, "t1", "c", map[string]any{"status": "QUEUED", "n": 3})

	ctx := ctxFor("t1")
	coll, err := s.Collection(ctx, "tenants/t1/jobs")
	require.NoError(t, err)

	q := coll.Where("status", "==", "QUEUED").OrderBy("n", false).Limit(5)
	snaps, err := q.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "a", snaps[0].ID())
	assert.Equal(t, "c", snaps[1].ID())

	// The same chained query executed under a different tenant context is
	// rejected: validation happens at execution, not only at construction.
	_, err = q.Documents(ctxFor("t2"))
	assert.True(t, store.IsBreach(err))
}

func TestQueryPagination(t *testing.T) {
	s, _ := scoped(t)
	for i, id := range []string{"a", "b", "c", "d"} {
		seedJob(t, s, "t1", id, map[string]any{"n": i})
	}

	ctx := ctxFor("t1")
	coll, err := s.Collection(ctx, "tenants/t1/jobs")
	require.NoError(t, err)

	page, err := coll.OrderBy("n", false).Limit(2).Documents(ctx)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].ID())

	next, err := coll.OrderBy("n", false).StartAfter(page[1].Data["n"]).Documents(ctx)
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, "c", next[0].ID())

	offset, err := coll.OrderBy("n", false).Offset(3).Documents(ctx)
	require.NoError(t, err)
	require.Len(t, offset, 1)
	assert.Equal(t, "d", offset[0].ID())
}

func TestBatchRejectsCrossTenantWrites(t *testing.T) {
	s, backend := scoped(t)
	ctx := ctxFor("t1")

	b := s.Batch()
	require.NoError(t, b.Set(ctx, "tenants/t1/jobs/a", map[string]any{"status": "QUEUED"}, false))

	err := b.Set(ctx, "tenants/t2/jobs/b", map[string]any{"status": "QUEUED"}, false)
	assert.True(t, store.IsBreach(err), "staging a foreign write must fail synchronously")

	require.NoError(t, b.Commit(ctx))
	assert.Equal(t, 1, backend.Len(), "only the in-bounds write lands")
}

func TestBatchCommitRevalidates(t *testing.T) {
	s, backend := scoped(t)

	b := s.Batch()
	require.NoError(t, b.Set(ctxFor("t1"), "tenants/t1/jobs/a", map[string]any{"status": "QUEUED"}, false))

	// Committing under a different tenant context fails the whole batch.
	err := b.Commit(ctxFor("t2"))
	assert.True(t, store.IsBreach(err))
	assert.Equal(t, 0, backend.Len())
}

func TestTransactionScoped(t *testing.T) {
	s, _ := scoped(t)
	seedJob(t, s, "t1", "a", map[string]any{"status": "QUEUED"})
	seedJob(t, s, "t2", "b", map[string]any{"status": "QUEUED"})

	ctx := ctxFor("t1")
	err := s.RunTransaction(ctx, func(ctx context.Context, tx *store.Tx) error {
		snap, err := tx.Get(ctx, "tenants/t1/jobs/a")
		if err != nil {
			return err
		}
		if !snap.Exists {
			t.Fatal("expected job to exist")
		}
		return tx.Update(ctx, "tenants/t1/jobs/a", map[string]any{"status": "PROCESSING"})
	})
	require.NoError(t, err)

	doc, err := s.Doc(ctx, "tenants/t1/jobs/a")
	require.NoError(t, err)
	snap, err := doc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PROCESSING", snap.Data["status"])

	err = s.RunTransaction(ctx, func(ctx context.Context, tx *store.Tx) error {
		_, err := tx.Get(ctx, "tenants/t2/jobs/b")
		return err
	})
	assert.True(t, store.IsBreach(err), "transactional reads are validated too")
}

func TestBreachHookFires(t *testing.T) {
	backend := memory.New()
	var gotTenant tenancy.Tenant
	var gotPath string
	s := store.New(backend, zap.NewNop(), store.WithBreachHook(func(tenant tenancy.Tenant, path string) {
		gotTenant, gotPath = tenant, path
	}))

	_, err := s.Doc(ctxFor("t1"), "tenants/t2/jobs/x")
	require.Error(t, err)
	assert.Equal(t, tenancy.Tenant("t1"), gotTenant)
	assert.Equal(t, "tenants/t2/jobs/x", gotPath)
}

func TestDocumentCRUD(t *testing.T) {
	s, _ := scoped(t)
	ctx := ctxFor("t1")

	coll, err := s.Collection(ctx, "tenants/t1/jobs")
	require.NoError(t, err)

	doc, err := coll.Add(ctx, map[string]any{"status": "QUEUED"})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID())

	require.NoError(t, doc.Update(ctx, map[string]any{"status": "PROCESSING"}))

	snap, err := doc.Get(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.Equal(t, "PROCESSING", snap.Data["status"])

	require.NoError(t, doc.Delete(ctx))
	snap, err = doc.Get(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

package persistence_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/asaidimu/go-crud/core/persistence"
	"github.com/asaidimu/go-crud/core/query"
	"github.com/asaidimu/go-crud/core/schema"
	"github.com/asaidimu/go-crud/sqlite"
	"github.com/stretchr/testify/require"
)

var (
	tierModel = schema.MustModel("tier",
		schema.Column{Name: "id", Type: schema.FieldTypeInteger, PrimaryKey: true},
		schema.Column{Name: "name", Type: schema.FieldTypeString, Required: true},
	)
	userModel = schema.MustModel("user",
		schema.Column{Name: "id", Type: schema.FieldTypeInteger, PrimaryKey: true},
		schema.Column{Name: "name", Type: schema.FieldTypeString, Required: true},
		schema.Column{Name: "email", Type: schema.FieldTypeString, Nullable: true},
		schema.Column{Name: "age", Type: schema.FieldTypeInteger},
		schema.Column{Name: "tier_id", Type: schema.FieldTypeInteger, Nullable: true, References: &schema.ForeignKey{Model: "tier", Column: "id"}},
		schema.Column{Name: "is_deleted", Type: schema.FieldTypeBoolean, Default: false},
		schema.Column{Name: "deleted_at", Type: schema.FieldTypeDatetime, Nullable: true},
		schema.Column{Name: "updated_at", Type: schema.FieldTypeDatetime, Nullable: true},
	)
	postModel = schema.MustModel("post",
		schema.Column{Name: "id", Type: schema.FieldTypeInteger, PrimaryKey: true},
		schema.Column{Name: "user_id", Type: schema.FieldTypeInteger, Required: true, References: &schema.ForeignKey{Model: "user", Column: "id"}},
		schema.Column{Name: "title", Type: schema.FieldTypeString, Required: true},
		schema.Column{Name: "views", Type: schema.FieldTypeInteger},
	)
	projectModel = schema.MustModel("project",
		schema.Column{Name: "id", Type: schema.FieldTypeInteger, PrimaryKey: true},
		schema.Column{Name: "name", Type: schema.FieldTypeString, Required: true},
	)
	participantModel = schema.MustModel("participant",
		schema.Column{Name: "id", Type: schema.FieldTypeInteger, PrimaryKey: true},
		schema.Column{Name: "name", Type: schema.FieldTypeString, Required: true},
	)
	linkModel = schema.MustModel("project_participant",
		schema.Column{Name: "project_id", Type: schema.FieldTypeInteger, PrimaryKey: true, References: &schema.ForeignKey{Model: "project", Column: "id"}},
		schema.Column{Name: "participant_id", Type: schema.FieldTypeInteger, PrimaryKey: true, References: &schema.ForeignKey{Model: "participant", Column: "id"}},
		schema.Column{Name: "role", Type: schema.FieldTypeString},
	)

	fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
)

// recorder wraps an execution context and records every statement it runs.
type recorder struct {
	persistence.ExecutionContext

	mu      sync.Mutex
	queries []string
	execs   []string
}

func (r *recorder) Query(ctx context.Context, stmt query.Statement) ([]schema.Document, error) {
	r.mu.Lock()
	r.queries = append(r.queries, stmt.SQL)
	r.mu.Unlock()
	return r.ExecutionContext.Query(ctx, stmt)
}

func (r *recorder) Exec(ctx context.Context, stmt query.Statement) (persistence.ExecResult, error) {
	r.mu.Lock()
	r.execs = append(r.execs, stmt.SQL)
	r.mu.Unlock()
	return r.ExecutionContext.Exec(ctx, stmt)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries, r.execs = nil, nil
}

func (r *recorder) statements() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries) + len(r.execs)
}

// writes lists the data-changing statements run, including RETURNING ones sent
// through Query.
func (r *recorder) writes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.execs...)
	for _, q := range r.queries {
		for _, verb := range []string{"INSERT", "UPDATE", "DELETE"} {
			if strings.HasPrefix(q, verb) {
				out = append(out, q)
			}
		}
	}
	return out
}

type fixture struct {
	ctx   context.Context
	ec    *sqlite.Interactor
	rec   *recorder
	users *persistence.CRUD
	tiers *persistence.CRUD
	posts *persistence.CRUD
}

func openInteractor(t *testing.T, session bool) *sqlite.Interactor {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ec := sqlite.New(db, nil)
	if session {
		ec = sqlite.NewSession(db, nil)
	}
	ctx := context.Background()
	for _, m := range []*schema.Model{tierModel, userModel, postModel, projectModel, participantModel, linkModel} {
		require.NoError(t, ec.CreateTable(ctx, m, nil))
	}
	require.NoError(t, ec.Commit(ctx))
	return ec
}

func testOptions() *persistence.Options {
	opts := persistence.DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

func newCRUD(t *testing.T, ec persistence.ExecutionContext, model *schema.Model, opts *persistence.Options) *persistence.CRUD {
	t.Helper()
	if opts == nil {
		opts = testOptions()
	}
	c, err := persistence.New(model, ec, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// setup seeds tiers, users and posts:
//
//	alice (30, gold) 3 posts, bob (17, silver, no email) 1 post,
//	carol (45, gold), dave (70, no tier), erin (25, silver)
func setup(t *testing.T) *fixture {
	t.Helper()
	ec := openInteractor(t, false)
	rec := &recorder{ExecutionContext: ec}
	f := &fixture{
		ctx:   context.Background(),
		ec:    ec,
		rec:   rec,
		users: newCRUD(t, rec, userModel, nil),
		tiers: newCRUD(t, rec, tierModel, nil),
		posts: newCRUD(t, rec, postModel, nil),
	}

	create(t, f.tiers, map[string]any{"id": 1, "name": "gold"})
	create(t, f.tiers, map[string]any{"id": 2, "name": "silver"})

	create(t, f.users, map[string]any{"id": 1, "name": "alice", "email": "alice@example.com", "age": 30, "tier_id": 1})
	create(t, f.users, map[string]any{"id": 2, "name": "bob", "email": nil, "age": 17, "tier_id": 2})
	create(t, f.users, map[string]any{"id": 3, "name": "carol", "email": "carol@example.org", "age": 45, "tier_id": 1})
	create(t, f.users, map[string]any{"id": 4, "name": "dave", "email": "dave@example.com", "age": 70, "tier_id": nil})
	create(t, f.users, map[string]any{"id": 5, "name": "erin", "email": "erin@example.com", "age": 25, "tier_id": 2})

	create(t, f.posts, map[string]any{"id": 1, "user_id": 1, "title": "first", "views": 10})
	create(t, f.posts, map[string]any{"id": 2, "user_id": 1, "title": "second", "views": 30})
	create(t, f.posts, map[string]any{"id": 3, "user_id": 1, "title": "third", "views": 20})
	create(t, f.posts, map[string]any{"id": 4, "user_id": 2, "title": "hello", "views": 5})

	rec.reset()
	return f
}

func create(t *testing.T, c *persistence.CRUD, payload map[string]any) schema.Document {
	t.Helper()
	doc, err := c.Create(context.Background(), payload, persistence.CreateOptions{})
	require.NoError(t, err)
	return doc
}

// ids lists the id column of docs in order.
func ids(docs []schema.Document) []int64 {
	out := make([]int64, len(docs))
	for i, d := range docs {
		out[i] = d["id"].(int64)
	}
	return out
}

func sortedIDs(docs []schema.Document) []int64 {
	out := ids(docs)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func names(docs []schema.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d["name"].(string)
	}
	return out
}

func allUsers(t *testing.T, f *fixture, filters query.Filters) []schema.Document {
	t.Helper()
	envelope, err := f.users.GetMulti(f.ctx, persistence.GetMultiOptions{
		Filters:     filters,
		Pagination:  query.Pagination{Unbounded: true},
		SortColumns: []string{"id"},
	})
	require.NoError(t, err)
	return envelope.Data
}

func hasSQL(statements []string, fragment string) bool {
	for _, s := range statements {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}

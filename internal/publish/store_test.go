package publish

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tablegen/internal/core"
)

type call struct {
	sql  string
	args []any
}

// fakeDB records statements and answers queries from canned rows.
type fakeDB struct {
	calls   []call
	rows    [][]any
	execErr error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{sql, args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.calls = append(f.calls, call{sql, args})
	return &fakeRows{rows: f.rows, pos: -1}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	f.calls = append(f.calls, call{sql, args})
	if len(f.rows) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{values: f.rows[0]}
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.pos], nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	// list queries select every column but the blob
	return assign(r.rows[r.pos][:len(dest)], dest)
}

func assign(values, dest []any) error {
	if len(values) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, v := range values {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func testDataset() *core.Dataset {
	return &core.Dataset{
		BuildID:   uuid.MustParse("6f1c1a52-3d1e-4b8e-9a51-0c2f1e9b7a10"),
		CommitID:  "abc123",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Audience:  core.AudienceServer,
		Tables: []*core.CompiledTable{
			{Name: "item", Rows: make([]core.Row, 3)},
			{Name: "skill", Rows: make([]core.Row, 2)},
		},
	}
}

func storedRow(ds *core.Dataset, audience string, blob []byte) []any {
	return []any{
		pgtype.UUID{Bytes: ds.BuildID, Valid: true},
		pgtype.Text{String: ds.CommitID, Valid: ds.CommitID != ""},
		audience,
		pgtype.Timestamptz{Time: ds.CreatedAt, Valid: true},
		int32(len(ds.Tables)),
		int32(5),
		blob,
	}
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	require.NoError(t, NewStore(db).EnsureSchema(context.Background()))
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS tablegen_builds")

	db.execErr = errors.New("permission denied")
	err := NewStore(db).EnsureSchema(context.Background())
	assert.ErrorContains(t, err, "permission denied")
}

func TestPublish(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	ds := testDataset()
	blob := []byte{1, 2, 3}
	require.NoError(t, NewStore(db).Publish(context.Background(), ds, blob))

	require.Len(t, db.calls, 1)
	c := db.calls[0]
	assert.True(t, strings.Contains(c.sql, "INSERT INTO tablegen_builds"))
	assert.Equal(t, []any{
		pgtype.UUID{Bytes: ds.BuildID, Valid: true},
		pgtype.Text{String: "abc123", Valid: true},
		"server",
		pgtype.Timestamptz{Time: ds.CreatedAt, Valid: true},
		int32(2),
		int32(5),
		blob,
	}, c.args)
}

func TestPublishRejectsUnfiltered(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	ds := testDataset()
	ds.Audience = core.AudienceAll
	err := NewStore(db).Publish(context.Background(), ds, nil)
	assert.ErrorContains(t, err, "not exported")
	assert.Empty(t, db.calls)
}

func TestLatest(t *testing.T) {
	t.Parallel()

	ds := testDataset()
	db := &fakeDB{rows: [][]any{storedRow(ds, "server", []byte("blob"))}}

	b, err := NewStore(db).Latest(context.Background(), core.AudienceServer)
	require.NoError(t, err)
	assert.Equal(t, ds.BuildID, b.BuildID)
	assert.Equal(t, "abc123", b.CommitID)
	assert.Equal(t, core.AudienceServer, b.Audience)
	assert.Equal(t, ds.CreatedAt, b.CreatedAt)
	assert.Equal(t, 2, b.Tables)
	assert.Equal(t, 5, b.Rows)
	assert.Equal(t, []byte("blob"), b.Blob)
	assert.Equal(t, []any{"server"}, db.calls[0].args)
}

func TestLatestNone(t *testing.T) {
	t.Parallel()

	_, err := NewStore(&fakeDB{}).Latest(context.Background(), core.AudienceClient)
	assert.ErrorIs(t, err, ErrNoBuild)
	assert.ErrorContains(t, err, "client")
}

func TestList(t *testing.T) {
	t.Parallel()

	first := testDataset()
	second := testDataset()
	second.BuildID = uuid.MustParse("0b3e0f3a-5b6c-4f7d-8e9f-a0b1c2d3e4f5")
	second.CommitID = ""
	db := &fakeDB{rows: [][]any{
		storedRow(first, "server", nil),
		storedRow(second, "client", nil),
	}}

	builds, err := NewStore(db).List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, first.BuildID, builds[0].BuildID)
	assert.Equal(t, core.AudienceClient, builds[1].Audience)
	assert.Empty(t, builds[1].CommitID)
	assert.Nil(t, builds[0].Blob)
	assert.Equal(t, []any{10}, db.calls[0].args)
}

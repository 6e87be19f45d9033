package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeRow struct {
	raw     []byte
	takenAt time.Time
	err     error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*[]byte) = r.raw
	*dest[1].(*time.Time) = r.takenAt
	return nil
}

type fakeDB struct {
	execs   []execCall
	execErr error
	row     fakeRow
	queries []string
	closed  bool
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("OK"), db.execErr
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	db.queries = append(db.queries, sql)
	return db.row
}

func (db *fakeDB) Close() { db.closed = true }

var snapshotTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFakeArchiver(t *testing.T, db *fakeDB) *PostgresArchiver {
	t.Helper()
	a, err := newPostgresArchiver(context.Background(), db, func() time.Time { return snapshotTime })
	require.NoError(t, err)
	return a
}

func TestPostgresArchiverCreatesSchema(t *testing.T) {
	db := &fakeDB{}
	newFakeArchiver(t, db)

	require.Len(t, db.execs, 2)
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS memory_snapshots")
	assert.Contains(t, db.execs[1].sql, "CREATE INDEX IF NOT EXISTS")
	assert.False(t, db.closed)
}

func TestPostgresArchiverClosesOnSchemaFailure(t *testing.T) {
	db := &fakeDB{execErr: errors.New("permission denied")}
	_, err := newPostgresArchiver(context.Background(), db, time.Now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.True(t, db.closed)
}

func TestPostgresArchiverInsertsSnapshot(t *testing.T) {
	db := &fakeDB{}
	a := newFakeArchiver(t, db)
	doc := Skeleton()
	doc.People["josh"] = &PersonRecord{Name: "Josh"}
	doc.Interactions = append(doc.Interactions, InteractionRecord{UserID: "josh", UserText: "hi", Reply: "hello"})

	require.NoError(t, a.Archive(context.Background(), doc))

	insert := db.execs[len(db.execs)-1]
	assert.Contains(t, insert.sql, "INSERT INTO memory_snapshots")
	require.Len(t, insert.args, 5)
	assert.NotEmpty(t, insert.args[0])
	assert.Equal(t, snapshotTime, insert.args[1])
	assert.Equal(t, 1, insert.args[2])
	assert.Equal(t, 1, insert.args[3])

	var stored Document
	require.NoError(t, json.Unmarshal([]byte(insert.args[4].(string)), &stored))
	assert.Equal(t, "Josh", stored.People["josh"].Name)
}

func TestPostgresArchiverWrapsInsertError(t *testing.T) {
	db := &fakeDB{}
	a := newFakeArchiver(t, db)
	db.execErr = errors.New("disk full")

	err := a.Archive(context.Background(), Skeleton())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save snapshot")
}

func TestPostgresArchiverLatest(t *testing.T) {
	raw, err := json.Marshal(Document{GlobalFacts: []FactRecord{{Text: "bins go out on tuesday"}}})
	require.NoError(t, err)
	db := &fakeDB{row: fakeRow{raw: raw, takenAt: snapshotTime}}
	a := newFakeArchiver(t, db)

	doc, takenAt, err := a.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snapshotTime, takenAt)
	require.Len(t, doc.GlobalFacts, 1)
	assert.NotNil(t, doc.People)
	assert.NotNil(t, doc.Interactions)
	assert.Contains(t, db.queries[0], "ORDER BY taken_at DESC LIMIT 1")
}

func TestPostgresArchiverLatestWithoutSnapshots(t *testing.T) {
	a := newFakeArchiver(t, &fakeDB{row: fakeRow{err: pgx.ErrNoRows}})

	_, _, err := a.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestPostgresArchiverLatestRejectsCorruptSnapshot(t *testing.T) {
	a := newFakeArchiver(t, &fakeDB{row: fakeRow{raw: []byte("{not json"), takenAt: snapshotTime}})

	_, _, err := a.Latest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode snapshot")
}

func TestNewArchiversKeepsSinksThatOpened(t *testing.T) {
	archivers, err := NewArchivers(context.Background(), BackupConfig{
		DatabaseURL: "postgres://%zz",
		S3Bucket:    "navi-backups",
	}, func(context.Context) (aws.Config, error) { return aws.Config{Region: "us-east-1"}, nil })
	defer CloseAll(archivers)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres archiver")
	require.Len(t, archivers, 1)
	assert.Equal(t, "s3", archivers[0].Name())
}

func TestNewArchiversReportsAWSFailure(t *testing.T) {
	archivers, err := NewArchivers(context.Background(), BackupConfig{S3Bucket: "navi-backups"},
		func(context.Context) (aws.Config, error) { return aws.Config{}, errors.New("no credentials") })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 archiver")
	assert.Empty(t, archivers)
}

func TestNewArchiversNoneConfigured(t *testing.T) {
	archivers, err := NewArchivers(context.Background(), BackupConfig{}, nil)
	require.NoError(t, err)
	assert.Empty(t, archivers)
}

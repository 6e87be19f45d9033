package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoSnapshot is returned by Latest when nothing has been archived yet.
var ErrNoSnapshot = errors.New("no memory snapshot archived")

// pgDB is the part of *pgxpool.Pool the archiver uses.
type pgDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresArchiver keeps memory snapshots in a PostgreSQL table.
type PostgresArchiver struct {
	db  pgDB
	now func() time.Time
}

func NewPostgresArchiver(ctx context.Context, databaseURL string) (*PostgresArchiver, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newPostgresArchiver(ctx, pool, func() time.Time { return time.Now().UTC() })
}

func newPostgresArchiver(ctx context.Context, db pgDB, now func() time.Time) (*PostgresArchiver, error) {
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresArchiver{db: db, now: now}, nil
}

func initSchema(ctx context.Context, db pgDB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_snapshots (
			id TEXT PRIMARY KEY,
			taken_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			people INTEGER NOT NULL,
			interactions INTEGER NOT NULL,
			document JSONB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_snapshots_taken ON memory_snapshots (taken_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (a *PostgresArchiver) Name() string { return "postgres" }

func (a *PostgresArchiver) Archive(ctx context.Context, doc Document) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = a.db.Exec(ctx,
		`INSERT INTO memory_snapshots (id, taken_at, people, interactions, document)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(),
		a.now(),
		len(doc.People),
		len(doc.Interactions),
		string(b),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot and when it was taken. It backs
// "navi memory restore".
func (a *PostgresArchiver) Latest(ctx context.Context) (Document, time.Time, error) {
	var (
		raw     []byte
		takenAt time.Time
	)
	err := a.db.QueryRow(ctx,
		`SELECT document, taken_at FROM memory_snapshots ORDER BY taken_at DESC LIMIT 1`,
	).Scan(&raw, &takenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return Document{}, time.Time{}, fmt.Errorf("query latest snapshot: %w", err)
	}
	doc := Skeleton()
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, time.Time{}, fmt.Errorf("decode snapshot: %w", err)
	}
	doc.normalize()
	return doc, takenAt, nil
}

func (a *PostgresArchiver) Close() error {
	a.db.Close()
	return nil
}

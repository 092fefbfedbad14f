package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/jask/homedeck/internal/database"
)

// SnapshotRepo stores the placement snapshot as one row that is replaced
// wholesale on every write.
type SnapshotRepo struct{ db *sql.DB }

func NewSnapshotRepo(db *sql.DB) *SnapshotRepo { return &SnapshotRepo{db: db} }

// Get returns the stored snapshot, or nil when none has been written.
func (r *SnapshotRepo) Get(ctx context.Context) (*Snapshot, error) {
	return getSnapshot(ctx, r.db)
}

// Put replaces the snapshot and returns its new revision.
func (r *SnapshotRepo) Put(ctx context.Context, payload []byte) (string, error) {
	return putSnapshot(ctx, r.db, payload)
}

// Update reads the current payload (nil if absent), passes it to fn and
// stores the result, all in one transaction.
func (r *SnapshotRepo) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		cur, err := getSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		var payload []byte
		if cur != nil {
			payload = cur.Payload
		}
		next, err := fn(payload)
		if err != nil {
			return err
		}
		_, err = putSnapshot(ctx, tx, next)
		return err
	})
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSnapshot(ctx context.Context, q querier) (*Snapshot, error) {
	row := q.QueryRowContext(ctx, `SELECT payload, revision, updated_at FROM placement_snapshot WHERE id = 1`)
	var s Snapshot
	var payload string
	if err := row.Scan(&payload, &s.Revision, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.Payload = []byte(payload)
	return &s, nil
}

func putSnapshot(ctx context.Context, q querier, payload []byte) (string, error) {
	rev := uuid.NewString()
	_, err := q.ExecContext(ctx, `
	INSERT INTO placement_snapshot(id, payload, revision, updated_at)
	VALUES (1, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 payload=excluded.payload,
	 revision=excluded.revision,
	 updated_at=CURRENT_TIMESTAMP;
	`, string(payload), rev)
	if err != nil {
		return "", err
	}
	return rev, nil
}

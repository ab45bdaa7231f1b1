package ros

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the set of storage operations available inside one recording
// transaction.
type Tx interface {
	// RetireAll flips is_current to false on every current ROS record for
	// the participant, returning how many were retired.
	RetireAll(ctx context.Context, participantID string) (int64, error)

	// Insert persists a new ROS record, assigning its id and timestamp.
	Insert(ctx context.Context, rec *Record) error

	// Current loads the participant's current ROS record, or (nil, nil)
	// when none exists.
	Current(ctx context.Context, participantID string) (*Record, error)
}

// Store opens transactions over the return-of-service table.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

// ─── PostgreSQL implementation ───────────────────────────────────────────────

// PGStore is the PostgreSQL-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a Store backed by the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) RetireAll(ctx context.Context, participantID string) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE return_of_service_statuses
		 SET is_current = false
		 WHERE participant_id = $1 AND is_current`,
		participantID)
	if err != nil {
		return 0, fmt.Errorf("retire ros records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("encode ros data: %w", err)
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO return_of_service_statuses
		   (id, participant_id, data, is_current, created_at)
		 VALUES ($1, $2, $3::jsonb, $4, $5)`,
		rec.ID, rec.ParticipantID, raw, rec.IsCurrent, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ros record: %w", err)
	}
	return nil
}

func (t *pgTx) Current(ctx context.Context, participantID string) (*Record, error) {
	var (
		rec Record
		raw []byte
	)
	err := t.tx.QueryRow(ctx,
		`SELECT id, participant_id, data, is_current, created_at
		 FROM return_of_service_statuses
		 WHERE participant_id = $1 AND is_current
		 ORDER BY created_at DESC
		 LIMIT 1`,
		participantID,
	).Scan(&rec.ID, &rec.ParticipantID, &raw, &rec.IsCurrent, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load current ros record: %w", err)
	}
	if err := json.Unmarshal(raw, &rec.Data); err != nil {
		return nil, fmt.Errorf("decode ros data: %w", err)
	}
	return &rec, nil
}

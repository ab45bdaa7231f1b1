package cohort

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the set of storage operations available inside one reassignment
// transaction.
type Tx interface {
	// Cohort loads a cohort by id. ErrCohortNotFound when missing.
	Cohort(ctx context.Context, id string) (*Cohort, error)

	// Membership loads the participant's current cohort membership, or
	// (nil, nil) when they are not assigned to any cohort.
	Membership(ctx context.Context, participantID string) (*Membership, error)

	// MoveMembership points an existing membership row at a new cohort.
	MoveMembership(ctx context.Context, membershipID, toCohortID string) error

	// PostHireStatuses loads all post-hire statuses for the participant.
	PostHireStatuses(ctx context.Context, participantID string) ([]PostHireStatus, error)

	// DeleteStatus removes one post-hire status row.
	DeleteStatus(ctx context.Context, id string) error

	// InsertStatus persists a new post-hire status, assigning its id.
	InsertStatus(ctx context.Context, st *PostHireStatus) error

	// InsertAudit persists one reassignment audit record.
	InsertAudit(ctx context.Context, a *AuditEntry) error
}

// Store opens transactions over the cohort tables.
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

func (t *pgTx) Cohort(ctx context.Context, id string) (*Cohort, error) {
	var c Cohort
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, end_date FROM cohorts WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cohort %s: %w", id, ErrCohortNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load cohort %s: %w", id, err)
	}
	return &c, nil
}

func (t *pgTx) Membership(ctx context.Context, participantID string) (*Membership, error) {
	var m Membership
	err := t.tx.QueryRow(ctx,
		`SELECT id, participant_id, cohort_id
		 FROM cohort_participants WHERE participant_id = $1`,
		participantID,
	).Scan(&m.ID, &m.ParticipantID, &m.CohortID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	return &m, nil
}

func (t *pgTx) MoveMembership(ctx context.Context, membershipID, toCohortID string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE cohort_participants SET cohort_id = $2 WHERE id = $1`,
		membershipID, toCohortID)
	if err != nil {
		return fmt.Errorf("move membership %s: %w", membershipID, err)
	}
	return nil
}

func (t *pgTx) PostHireStatuses(ctx context.Context, participantID string) ([]PostHireStatus, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, participant_id, status_type, graduation_date
		 FROM participant_post_hire_statuses WHERE participant_id = $1`,
		participantID)
	if err != nil {
		return nil, fmt.Errorf("load post-hire statuses: %w", err)
	}
	defer rows.Close()

	var statuses []PostHireStatus
	for rows.Next() {
		var st PostHireStatus
		if err := rows.Scan(&st.ID, &st.ParticipantID, &st.Type, &st.GraduationDate); err != nil {
			return nil, fmt.Errorf("scan post-hire status: %w", err)
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

func (t *pgTx) DeleteStatus(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM participant_post_hire_statuses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post-hire status %s: %w", id, err)
	}
	return nil
}

func (t *pgTx) InsertStatus(ctx context.Context, st *PostHireStatus) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO participant_post_hire_statuses
		   (id, participant_id, status_type, graduation_date)
		 VALUES ($1, $2, $3, $4)`,
		st.ID, st.ParticipantID, st.Type, st.GraduationDate)
	if err != nil {
		return fmt.Errorf("insert post-hire status: %w", err)
	}
	return nil
}

func (t *pgTx) InsertAudit(ctx context.Context, a *AuditEntry) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO cohort_audit
		   (id, participant_id, from_cohort_id, to_cohort_id, user_id, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), a.ParticipantID, a.FromCohortID, a.ToCohortID,
		a.UserID, a.Reason, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert cohort audit: %w", err)
	}
	return nil
}

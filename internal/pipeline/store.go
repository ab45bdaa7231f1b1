package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a record or participant id does not resolve.
var ErrNotFound = errors.New("not found")

// Tx is the set of storage operations available inside one transaction.
// All validation reads and all writes of a logical status change go through
// the same Tx so that transaction isolation is the only exclusion mechanism.
type Tx interface {
	// Record loads a status record by id. ErrNotFound when missing.
	Record(ctx context.Context, id string) (*StatusRecord, error)

	// CurrentForEmployer loads the employer's current record for the
	// participant, excluding acknowledgement markers. Returns (nil, nil)
	// when the employer has no current record.
	CurrentForEmployer(ctx context.Context, participantID, employerID string) (*StatusRecord, error)

	// CurrentHired loads all current hired records for the participant,
	// across every employer.
	CurrentHired(ctx context.Context, participantID string) ([]StatusRecord, error)

	// HasArchived reports whether any archived record exists for the
	// participant, current or not.
	HasArchived(ctx context.Context, participantID string) (bool, error)

	// Insert persists a new status record, assigning its id and timestamp.
	Insert(ctx context.Context, rec *StatusRecord) error

	// Retire flips one record's current flag to false.
	Retire(ctx context.Context, recordID string) error

	// RetireSiteScope flips current to false on every record for the
	// participant scoped to the given site, skipping acknowledgement
	// markers. Returns the number of records retired.
	RetireSiteScope(ctx context.Context, participantID, site string) (int64, error)

	// Participant loads a participant by id. ErrNotFound when missing.
	Participant(ctx context.Context, id string) (*Participant, error)

	// Withdraw marks the participant withdrawn from the program and appends
	// an "interested" change entry to their history log.
	Withdraw(ctx context.Context, participantID string, prev Interest) error
}

// Store opens transactions over the status record store.
type Store interface {
	// InTx runs fn inside one atomic transaction. A non-nil error from fn
	// rolls the transaction back with no partial effect.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// ─── PostgreSQL implementation ───────────────────────────────────────────────

// PGStore is the PostgreSQL-backed Store. Transactions run serializable:
// the global-hired check is a read-then-write on disjoint rows, which
// snapshot isolation (repeatable read) does not protect — two concurrent
// hires of the same participant would both see no current hired record and
// both commit. Serializable turns that write skew into a 40001 abort, which
// InTx retries.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a Store backed by the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// maxTxAttempts bounds serialization-failure retries per InTx call.
const maxTxAttempts = 3

func (s *PGStore) InTx(ctx context.Context, fn func(Tx) error) error {
	return withTxRetry(func() error {
		return s.inTxOnce(ctx, fn)
	})
}

func (s *PGStore) inTxOnce(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
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

// withTxRetry runs fn up to maxTxAttempts times, retrying only on
// serialization failures.
func withTxRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = fn()
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

// isSerializationFailure reports whether err is a PostgreSQL 40001 abort.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

type pgTx struct {
	tx pgx.Tx
}

const recordColumns = `id, participant_id, employer_id, status, current, created_at, data`

func scanRecord(row pgx.Row) (*StatusRecord, error) {
	var (
		rec StatusRecord
		raw []byte
	)
	err := row.Scan(&rec.ID, &rec.ParticipantID, &rec.EmployerID, &rec.Status,
		&rec.Current, &rec.CreatedAt, &raw)
	if err != nil {
		return nil, err
	}
	rec.Data, err = decodeData(rec.Status, raw)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *pgTx) Record(ctx context.Context, id string) (*StatusRecord, error) {
	rec, err := scanRecord(t.tx.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM participant_statuses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", id, err)
	}
	return rec, nil
}

func (t *pgTx) CurrentForEmployer(ctx context.Context, participantID, employerID string) (*StatusRecord, error) {
	rec, err := scanRecord(t.tx.QueryRow(ctx,
		`SELECT `+recordColumns+`
		 FROM participant_statuses
		 WHERE participant_id = $1 AND employer_id = $2 AND current
		   AND status NOT IN ('pending_acknowledgement', 'reject_acknowledgement')
		 ORDER BY created_at DESC
		 LIMIT 1`,
		participantID, employerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load current record: %w", err)
	}
	return rec, nil
}

func (t *pgTx) CurrentHired(ctx context.Context, participantID string) ([]StatusRecord, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+recordColumns+`
		 FROM participant_statuses
		 WHERE participant_id = $1 AND status = 'hired' AND current`,
		participantID)
	if err != nil {
		return nil, fmt.Errorf("load hired records: %w", err)
	}
	defer rows.Close()

	var recs []StatusRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hired record: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func (t *pgTx) HasArchived(ctx context.Context, participantID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM participant_statuses
		   WHERE participant_id = $1 AND status = 'archived')`,
		participantID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check archived: %w", err)
	}
	return exists, nil
}

func (t *pgTx) Insert(ctx context.Context, rec *StatusRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	raw, err := encodeData(rec.Data)
	if err != nil {
		return fmt.Errorf("encode %s data: %w", rec.Status, err)
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO participant_statuses
		   (id, participant_id, employer_id, status, current, created_at, data)
		 VALUES ($1, $2, $3, $4::participant_status, $5, $6, $7::jsonb)`,
		rec.ID, rec.ParticipantID, rec.EmployerID, string(rec.Status),
		rec.Current, rec.CreatedAt, raw)
	if err != nil {
		return fmt.Errorf("insert %s record: %w", rec.Status, err)
	}
	return nil
}

func (t *pgTx) Retire(ctx context.Context, recordID string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE participant_statuses SET current = false WHERE id = $1`, recordID)
	if err != nil {
		return fmt.Errorf("retire record %s: %w", recordID, err)
	}
	return nil
}

func (t *pgTx) RetireSiteScope(ctx context.Context, participantID, site string) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE participant_statuses
		 SET current = false
		 WHERE participant_id = $1 AND current
		   AND data->>'site' = $2
		   AND status NOT IN ('pending_acknowledgement', 'reject_acknowledgement')`,
		participantID, site)
	if err != nil {
		return 0, fmt.Errorf("retire site scope: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) Participant(ctx context.Context, id string) (*Participant, error) {
	var (
		p   Participant
		raw []byte
	)
	err := t.tx.QueryRow(ctx,
		`SELECT id, first_name, last_name, email_address, phone_number, interested, history
		 FROM participants WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &p.EmailAddress, &p.PhoneNumber,
		&p.Interested, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load participant %s: %w", id, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p.History); err != nil {
			return nil, fmt.Errorf("decode participant history: %w", err)
		}
	}
	return &p, nil
}

func (t *pgTx) Withdraw(ctx context.Context, participantID string, prev Interest) error {
	entry, err := json.Marshal(HistoryEntry{
		Field:     "interested",
		From:      string(prev),
		To:        string(InterestWithdrawn),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	_, err = t.tx.Exec(ctx,
		`UPDATE participants
		 SET interested = 'withdrawn',
		     history    = history || $2::jsonb
		 WHERE id = $1`,
		participantID, fmt.Sprintf("[%s]", entry))
	if err != nil {
		return fmt.Errorf("withdraw participant %s: %w", participantID, err)
	}
	return nil
}

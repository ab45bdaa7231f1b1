// Package ros tracks return-of-service records for hired participants.
//
// A participant has one globally current ROS record (no per-site scoping).
// Updates follow the same invalidate-then-insert discipline as the status
// engine: inside one transaction, every current record is retired, then one
// new current record is inserted. Rows are never mutated otherwise, which
// keeps the full commitment history.
package ros

import (
	"context"
	"log/slog"
	"time"
)

// Data is the payload of one ROS record.
type Data struct {
	Site           string `json:"site,omitempty"`
	Date           string `json:"date"`
	PositionType   string `json:"positionType,omitempty"`
	EmploymentType string `json:"employmentType,omitempty"`
}

// Record is one row of the return-of-service table.
type Record struct {
	ID            string
	ParticipantID string
	Data          Data
	IsCurrent     bool
	CreatedAt     time.Time
}

// Result reports a completed recording.
type Result struct {
	ID            string `json:"id"`
	ParticipantID string `json:"participantId"`
	Superseded    int64  `json:"superseded"`
}

// Recorder writes return-of-service records.
type Recorder struct {
	store Store
}

// NewRecorder returns a Recorder over the given store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record retires every current ROS record for the participant and inserts
// one new current record, atomically.
func (r *Recorder) Record(ctx context.Context, participantID string, data Data) (*Result, error) {
	var res *Result
	err := r.store.InTx(ctx, func(tx Tx) error {
		superseded, err := tx.RetireAll(ctx, participantID)
		if err != nil {
			return err
		}
		rec := &Record{
			ParticipantID: participantID,
			Data:          data,
			IsCurrent:     true,
		}
		if err := tx.Insert(ctx, rec); err != nil {
			return err
		}
		res = &Result{ID: rec.ID, ParticipantID: participantID, Superseded: superseded}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("return-of-service recorded",
		"participantId", participantID,
		"recordId", res.ID,
		"superseded", res.Superseded)
	return res, nil
}

// Current returns the participant's current ROS record, or nil when none
// exists.
func (r *Recorder) Current(ctx context.Context, participantID string) (*Record, error) {
	var rec *Record
	err := r.store.InTx(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.Current(ctx, participantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

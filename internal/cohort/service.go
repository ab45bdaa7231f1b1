// Package cohort implements training-cohort reassignment for hired
// participants. It follows the same transactional discipline as the status
// engine: every reassignment is one atomic read-validate-write sequence with
// no partial effect on failure.
package cohort

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Sentinel errors surfaced to the route layer as not-found / conflict
// classes.
var (
	ErrNotInCohort    = errors.New("participant is not in the given cohort")
	ErrCohortNotFound = errors.New("cohort not found")
)

// Cohort is a training-program batch.
type Cohort struct {
	ID      string
	Name    string
	EndDate time.Time
}

// Membership is a participant's current cohort assignment.
type Membership struct {
	ID            string
	ParticipantID string
	CohortID      string
}

// GraduationTypeCompleted marks a post-hire status recording a completed
// graduation.
const GraduationTypeCompleted = "graduation_completed"

// PostHireStatus is one row of the participant's post-hire status table.
type PostHireStatus struct {
	ID             string
	ParticipantID  string
	Type           string
	GraduationDate time.Time
}

// AuditEntry captures the before/after state of one reassignment plus
// caller-supplied metadata.
type AuditEntry struct {
	ParticipantID string
	FromCohortID  string
	ToCohortID    string
	UserID        string
	Reason        string
	CreatedAt     time.Time
}

// Result reports a completed reassignment.
type Result struct {
	ParticipantID      string `json:"participantId"`
	CohortID           string `json:"cohortId"`
	GraduationRestated bool   `json:"graduationRestated"`
}

// Service moves participants between cohorts.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService returns a Service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// ChangeCohort moves a participant from one cohort to another inside one
// transaction. A completed-graduation post-hire status tied to the old
// cohort is deleted and re-stamped with the new cohort's end date, but only
// when that end date is already in the past; otherwise the graduation
// outcome is pending again.
func (s *Service) ChangeCohort(ctx context.Context, participantID, fromCohortID, toCohortID, userID, reason string) (*Result, error) {
	var res *Result
	err := s.store.InTx(ctx, func(tx Tx) error {
		m, err := tx.Membership(ctx, participantID)
		if err != nil {
			return err
		}
		if m == nil || m.CohortID != fromCohortID {
			return ErrNotInCohort
		}

		to, err := tx.Cohort(ctx, toCohortID)
		if err != nil {
			return err
		}

		statuses, err := tx.PostHireStatuses(ctx, participantID)
		if err != nil {
			return err
		}

		if err := tx.MoveMembership(ctx, m.ID, toCohortID); err != nil {
			return err
		}

		restated := false
		for _, st := range statuses {
			if st.Type != GraduationTypeCompleted {
				continue
			}
			if err := tx.DeleteStatus(ctx, st.ID); err != nil {
				return err
			}
			if to.EndDate.Before(s.now()) {
				if err := tx.InsertStatus(ctx, &PostHireStatus{
					ParticipantID:  participantID,
					Type:           GraduationTypeCompleted,
					GraduationDate: to.EndDate,
				}); err != nil {
					return err
				}
				restated = true
			}
		}

		if err := tx.InsertAudit(ctx, &AuditEntry{
			ParticipantID: participantID,
			FromCohortID:  fromCohortID,
			ToCohortID:    toCohortID,
			UserID:        userID,
			Reason:        reason,
			CreatedAt:     s.now().UTC(),
		}); err != nil {
			return err
		}

		res = &Result{
			ParticipantID:      participantID,
			CohortID:           toCohortID,
			GraduationRestated: restated,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("participant cohort changed",
		"participantId", participantID,
		"fromCohortId", fromCohortID,
		"toCohortId", toCohortID)
	return res, nil
}

// AssignedCohort returns the participant's current cohort id, or an error
// wrapping ErrNotInCohort when they have no assignment.
func (s *Service) AssignedCohort(ctx context.Context, participantID string) (string, error) {
	var cohortID string
	err := s.store.InTx(ctx, func(tx Tx) error {
		m, err := tx.Membership(ctx, participantID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("participant %s: %w", participantID, ErrNotInCohort)
		}
		cohortID = m.CohortID
		return nil
	})
	if err != nil {
		return "", err
	}
	return cohortID, nil
}

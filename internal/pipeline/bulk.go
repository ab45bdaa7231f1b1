package pipeline

import (
	"context"
	"errors"
)

// BulkResult is the per-participant outcome of a bulk engage call.
type BulkResult struct {
	ParticipantID string `json:"participantId"`
	Status        string `json:"status"`
	Success       bool   `json:"success"`
}

// BulkEngage fans one "move to prospecting" request out over a list of
// participants, each applied independently in its own transaction.
//
// Semantics are deliberately permissive: only invalid_status_transition and
// invalid_archive count as per-row failures. already_hired reports
// success=true — batch engagement is best-effort, and a participant hired
// elsewhere is not actionable for the operator running the batch. Callers
// that care can still read the outcome off the status string.
func (e *Engine) BulkEngage(ctx context.Context, employerID string, participantIDs []string, actor Actor) ([]BulkResult, error) {
	results := make([]BulkResult, 0, len(participantIDs))
	for _, pid := range participantIDs {
		r, err := e.engageOne(ctx, employerID, pid, actor)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (e *Engine) engageOne(ctx context.Context, employerID, participantID string, actor Actor) (BulkResult, error) {
	if _, err := e.lookupParticipant(ctx, participantID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return BulkResult{ParticipantID: participantID, Status: "not found"}, nil
		}
		return BulkResult{}, err
	}

	res, err := e.SetStatus(ctx, Request{
		EmployerID:    employerID,
		ParticipantID: participantID,
		Status:        StatusProspecting,
		Actor:         actor,
	})
	if err != nil {
		return BulkResult{}, err
	}

	br := BulkResult{ParticipantID: participantID}
	switch res.Outcome {
	case OutcomeOK:
		br.Status = string(StatusProspecting)
		br.Success = true
	case OutcomeInvalidTransition, OutcomeInvalidArchive:
		br.Status = string(res.Outcome)
	default:
		br.Status = string(res.Outcome)
		br.Success = true
	}
	return br, nil
}

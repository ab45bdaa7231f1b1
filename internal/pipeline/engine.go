package pipeline

import (
	"context"
	"errors"
	"log/slog"
)

// Engine is the status transition orchestrator. It is transport-agnostic:
// the HTTP handlers call it, and any other transport could.
//
// Each SetStatus call executes as one atomic transaction — validation reads
// and writes included — so transaction isolation is the only serialization
// between concurrent callers. The engine keeps no cross-call state.
type Engine struct {
	store    Store
	notifier *Notifier
}

// NewEngine returns an Engine over the given store. notifier may be nil to
// disable event publication.
func NewEngine(store Store, notifier *Notifier) *Engine {
	return &Engine{store: store, notifier: notifier}
}

// SetStatus applies one proposed status change for a participant. State
// conflicts (illegal transition, already hired, archive precondition
// failures) come back as Result outcomes with a nil error; a non-nil error
// means the operation failed outright and nothing was written.
func (e *Engine) SetStatus(ctx context.Context, req Request) (*Result, error) {
	// Acknowledgement statuses are workflow side effects only.
	if IsAcknowledgement(req.Status) {
		res := &Result{Outcome: OutcomeInvalidStatus, NewStatus: req.Status}
		observeTransition(req.Status, res.Outcome)
		return res, nil
	}
	wf, ok := workflows[req.Status]
	if !ok {
		res := &Result{Outcome: OutcomeInvalidStatus, NewStatus: req.Status}
		observeTransition(req.Status, res.Outcome)
		return res, nil
	}

	var res *Result
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		res, err = e.setStatusTx(ctx, tx, wf, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	observeTransition(req.Status, res.Outcome)
	if res.OK() {
		slog.Info("participant status changed",
			"participantId", req.ParticipantID,
			"employerId", req.EmployerID,
			"status", req.Status,
			"recordId", res.ID)
		e.notifier.StatusChanged(ctx, req, res)
	}
	return res, nil
}

// setStatusTx runs the full read-validate-write sequence inside tx.
func (e *Engine) setStatusTx(ctx context.Context, tx Tx, wf workflow, req Request) (*Result, error) {
	// A current hired record anywhere blocks everything except closing the
	// engagement out via archived or rejected.
	hired, err := tx.CurrentHired(ctx, req.ParticipantID)
	if err != nil {
		return nil, err
	}
	if len(hired) > 0 && req.Status != StatusArchived && req.Status != StatusRejected {
		return &Result{Outcome: OutcomeAlreadyHired, NewStatus: req.Status}, nil
	}

	// Resolve the reference record: the explicitly named prior record, or the
	// employer's own current record.
	var ref *StatusRecord
	if req.PriorStatusID != "" {
		ref, err = tx.Record(ctx, req.PriorStatusID)
		if err != nil {
			return nil, err
		}
		if ref.ParticipantID != req.ParticipantID {
			// A reference may cross employers, never participants: honoring
			// it would retire another participant's record.
			return &Result{
				Outcome:   OutcomeInvalidTransition,
				NewStatus: req.Status,
			}, nil
		}
		if !ref.Current {
			// The caller observed a state that has since been superseded.
			return &Result{
				Outcome:       OutcomeInvalidTransition,
				CurrentStatus: ref.Status,
				NewStatus:     req.Status,
			}, nil
		}
	} else {
		ref, err = tx.CurrentForEmployer(ctx, req.ParticipantID, req.EmployerID)
		if err != nil {
			return nil, err
		}
	}

	prior := StatusNone
	if ref != nil {
		prior = ref.Status
	}
	if !IsValidTransition(req.Status, prior) {
		return &Result{
			Outcome:       OutcomeInvalidTransition,
			CurrentStatus: prior,
			NewStatus:     req.Status,
		}, nil
	}

	tr := &transition{req: req, ref: ref, hired: hired, data: req.Data}
	if res, err := wf.apply(ctx, tx, tr); err != nil || res != nil {
		return res, err
	}

	// Default invalidation: the reference record stops being current, except
	// reject acknowledgements, which stay as re-engageable markers.
	if !tr.suppressInvalidation && ref != nil && ref.Status != StatusRejectAck {
		if err := tx.Retire(ctx, ref.ID); err != nil {
			return nil, err
		}
	}

	rec := &StatusRecord{
		ParticipantID: req.ParticipantID,
		EmployerID:    req.EmployerID,
		Status:        req.Status,
		Current:       true,
		Data:          tr.data,
	}
	if err := tx.Insert(ctx, rec); err != nil {
		return nil, err
	}

	res := &Result{ID: rec.ID, Outcome: OutcomeOK, NewStatus: req.Status}
	if InFlight(req.Status) {
		p, err := tx.Participant(ctx, req.ParticipantID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if p != nil {
			res.EmailAddress = p.EmailAddress
			res.PhoneNumber = p.PhoneNumber
		}
	}
	return res, nil
}

// lookupParticipant resolves a participant outside any transition, for bulk
// pre-checks.
func (e *Engine) lookupParticipant(ctx context.Context, id string) (*Participant, error) {
	var p *Participant
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		p, err = tx.Participant(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

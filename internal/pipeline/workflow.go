package pipeline

import (
	"context"
)

// transition carries the in-flight state of one SetStatus call between the
// engine and the dispatched workflow.
type transition struct {
	req   Request
	ref   *StatusRecord  // resolved reference record, nil when prior is none
	hired []StatusRecord // current hired records, loaded by the engine

	// data is the bag the new record will be inserted with; workflows may
	// enrich it.
	data StatusData

	// suppressInvalidation skips the default retirement of the reference
	// record for this call.
	suppressInvalidation bool
}

// workflow is the per-target-status side-effect strategy. apply runs inside
// the engine's transaction, after transition validation and before the
// default invalidate-and-insert steps. Returning a non-nil Result aborts the
// call with that outcome; no writes may precede a failure outcome.
type workflow interface {
	apply(ctx context.Context, tx Tx, tr *transition) (*Result, error)
}

// workflows maps each requestable target status to its strategy.
var workflows = map[Status]workflow{
	StatusProspecting:  engageWorkflow{},
	StatusInterviewing: engageWorkflow{},
	StatusOfferMade:    engageWorkflow{},
	StatusHired:        hiredWorkflow{},
	StatusArchived:     archiveWorkflow{},
	StatusRejected:     rejectWorkflow{},
}

// ─── In-flight engagement ────────────────────────────────────────────────────

// engageWorkflow covers prospecting, interviewing and offer_made: no side
// effects beyond the default invalidate-and-insert.
type engageWorkflow struct{}

func (engageWorkflow) apply(ctx context.Context, tx Tx, tr *transition) (*Result, error) {
	return nil, nil
}

// ─── Hired ───────────────────────────────────────────────────────────────────

// hiredWorkflow handles site continuity on hire. When the employer's prior
// record sits at a different site than the hire, the new record keeps a
// previousStatus pointer and the prior record stays current until its own
// site is invalidated. The destination site is always swept of stray
// in-flight records.
type hiredWorkflow struct{}

func (hiredWorkflow) apply(ctx context.Context, tx Tx, tr *transition) (*Result, error) {
	hd, ok := tr.data.(*HiredData)
	if !ok || hd == nil {
		hd = &HiredData{SiteID: dataSite(tr.data)}
		tr.data = hd
	}

	if tr.ref != nil {
		prevSite := dataSite(tr.ref.Data)
		if prevSite != "" && prevSite != hd.SiteID {
			hd.PreviousStatus = tr.ref.ID
			tr.suppressInvalidation = true
		}
	}

	if _, err := tx.RetireSiteScope(ctx, tr.req.ParticipantID, hd.SiteID); err != nil {
		return nil, err
	}
	return nil, nil
}

// ─── Archived ────────────────────────────────────────────────────────────────

// archiveWorkflow closes out a hired engagement. Preconditions run before any
// write so a failed archive leaves the store untouched.
type archiveWorkflow struct{}

func (archiveWorkflow) apply(ctx context.Context, tx Tx, tr *transition) (*Result, error) {
	if len(tr.hired) == 0 {
		return &Result{
			Outcome:   OutcomeInvalidArchive,
			NewStatus: StatusArchived,
			Reason:    "participant is not hired",
		}, nil
	}
	hiredRec := tr.hired[0]

	archived, err := tx.HasArchived(ctx, tr.req.ParticipantID)
	if err != nil {
		return nil, err
	}
	if archived {
		return &Result{
			Outcome:   OutcomeInvalidArchive,
			NewStatus: StatusArchived,
			Reason:    "participant is already archived",
		}, nil
	}

	hireSite := dataSite(hiredRec.Data)
	if hiredRec.EmployerID != tr.req.EmployerID && !tr.req.Actor.HasSite(hireSite) {
		return &Result{
			Outcome:   OutcomeInvalidArchive,
			NewStatus: StatusArchived,
			Reason:    "employer does not own the hired record",
		}, nil
	}

	ad, _ := tr.data.(*ArchivedData)
	if ad == nil {
		ad = &ArchivedData{SiteID: hireSite}
		tr.data = ad
	}
	ad.Previous = hiredRec.Status

	// Archival by a peer employer raises a pending acknowledgement attributed
	// to the hiring employer, so they learn the candidate was archived out
	// from under them.
	if hiredRec.EmployerID != tr.req.EmployerID {
		ack := &StatusRecord{
			ParticipantID: tr.req.ParticipantID,
			EmployerID:    hiredRec.EmployerID,
			Status:        StatusPendingAck,
			Current:       true,
			Data: &AckData{
				SiteID:      hireSite,
				FinalStatus: ad.FinalStatus,
				RefStatusID: hiredRec.ID,
				RefStatus:   hiredRec.Status,
			},
		}
		if err := tx.Insert(ctx, ack); err != nil {
			return nil, err
		}
	}

	// Close out any stray in-flight records at the hire's site.
	if _, err := tx.RetireSiteScope(ctx, tr.req.ParticipantID, hireSite); err != nil {
		return nil, err
	}

	// Archival withdraws the participant from the program, unless the
	// archive marks a return-of-service completion.
	if ad.Reason != ArchiveReasonROSComplete {
		p, err := tx.Participant(ctx, tr.req.ParticipantID)
		if err != nil {
			return nil, err
		}
		if p.Interested != InterestWithdrawn {
			if err := tx.Withdraw(ctx, p.ID, p.Interested); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

// ─── Rejected ────────────────────────────────────────────────────────────────

// rejectWorkflow preserves a re-engageable audit pointer. When the caller
// named the record they observed, a reject acknowledgement referencing it is
// inserted for the acting employer, so the candidate's pre-rejection state
// stays visible and re-prospecting stays possible.
type rejectWorkflow struct{}

func (rejectWorkflow) apply(ctx context.Context, tx Tx, tr *transition) (*Result, error) {
	if tr.ref == nil || tr.ref.Status == StatusRejectAck || tr.req.PriorStatusID == "" {
		return nil, nil
	}
	ack := &StatusRecord{
		ParticipantID: tr.req.ParticipantID,
		EmployerID:    tr.req.EmployerID,
		Status:        StatusRejectAck,
		Current:       true,
		Data: &AckData{
			SiteID:      dataSite(tr.ref.Data),
			RefStatusID: tr.ref.ID,
			RefStatus:   tr.ref.Status,
		},
	}
	if err := tx.Insert(ctx, ack); err != nil {
		return nil, err
	}
	return nil, nil
}

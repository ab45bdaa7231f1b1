// Package pipeline implements the participant status transition engine for
// the workforce hiring program.
//
// Status graph (per employer/site scope):
//
//	(none) ──► PROSPECTING ──► INTERVIEWING ──► OFFER_MADE ──► HIRED ──► ARCHIVED
//	                │                │               │
//	                └────────────────┴───────────────┴──► REJECTED ──► PROSPECTING
//
// HIRED is global: only one employer may hold a current hired record for a
// participant at any time. A logical status change never mutates an existing
// record; it flips the old record's current flag to false and inserts a new
// one, keeping the full audit trail.
package pipeline

import "fmt"

// Status values mirror the participant_status enum in PostgreSQL.
type Status string

const (
	StatusProspecting  Status = "prospecting"
	StatusInterviewing Status = "interviewing"
	StatusOfferMade    Status = "offer_made"
	StatusHired        Status = "hired"
	StatusArchived     Status = "archived"
	StatusRejected     Status = "rejected"

	// Acknowledgement statuses are additive notification markers produced as
	// workflow side effects. They are never a legal target of an external
	// transition request.
	StatusPendingAck Status = "pending_acknowledgement"
	StatusRejectAck  Status = "reject_acknowledgement"
)

// StatusNone stands for "no current record in scope" on the prior side of a
// transition.
const StatusNone Status = ""

// allowedPriors lists, for each requestable target status, every prior status
// the transition may start from.
var allowedPriors = map[Status][]Status{
	StatusProspecting:  {StatusNone, StatusRejected, StatusRejectAck},
	StatusInterviewing: {StatusProspecting},
	StatusOfferMade:    {StatusInterviewing},
	StatusHired:        {StatusOfferMade},
	StatusArchived:     {StatusHired},
	StatusRejected:     {StatusOfferMade, StatusInterviewing, StatusProspecting, StatusRejectAck},
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusProspecting, StatusInterviewing, StatusOfferMade, StatusHired,
		StatusArchived, StatusRejected, StatusPendingAck, StatusRejectAck:
		return st, nil
	}
	return "", fmt.Errorf("unknown participant status %q", s)
}

// IsValidTransition returns true when moving to proposed from prior is
// permitted by the transition table. prior is StatusNone when the scope has
// no current record.
func IsValidTransition(proposed, prior Status) bool {
	allowed, ok := allowedPriors[proposed]
	if !ok {
		return false // acknowledgement statuses are never directly requestable
	}
	for _, s := range allowed {
		if s == prior {
			return true
		}
	}
	return false
}

// IsAcknowledgement returns true for the two ephemeral notification statuses.
func IsAcknowledgement(s Status) bool {
	return s == StatusPendingAck || s == StatusRejectAck
}

// InFlight returns true for statuses whose transition result carries the
// participant's contact fields for the downstream notifier.
func InFlight(s Status) bool {
	switch s {
	case StatusProspecting, StatusInterviewing, StatusOfferMade, StatusHired:
		return true
	}
	return false
}

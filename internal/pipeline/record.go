package pipeline

import (
	"time"
)

// ─── Participants ────────────────────────────────────────────────────────────

// Interest is the participant's program-interest tri-state.
type Interest string

const (
	InterestYes       Interest = "yes"
	InterestNo        Interest = "no"
	InterestWithdrawn Interest = "withdrawn"
)

// HistoryEntry is one field-level change in a participant's append-only
// history log.
type HistoryEntry struct {
	Field     string    `json:"field"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Participant is a candidate tracked by the program.
type Participant struct {
	ID           string
	FirstName    string
	LastName     string
	EmailAddress string
	PhoneNumber  string
	Interested   Interest
	History      []HistoryEntry
}

// ─── Status records ──────────────────────────────────────────────────────────

// StatusRecord is one row of the append-mostly status table. Records are
// inserted once and never mutated except to flip Current from true to false.
type StatusRecord struct {
	ID            string
	ParticipantID string
	EmployerID    string
	Status        Status
	Current       bool
	CreatedAt     time.Time
	Data          StatusData
}

// Actor identifies the user performing a transition and the sites they are
// associated with.
type Actor struct {
	ID    string
	Sites []string
}

// HasSite reports whether the actor is associated with the given site.
func (a Actor) HasSite(site string) bool {
	for _, s := range a.Sites {
		if s == site {
			return true
		}
	}
	return false
}

// ─── Requests and results ────────────────────────────────────────────────────

// Request is one proposed status change for a participant from an employer.
type Request struct {
	EmployerID    string
	ParticipantID string
	Status        Status
	Data          StatusData
	Actor         Actor

	// PriorStatusID optionally names the reference record the caller observed.
	// When empty, the employer's own current record is the reference.
	PriorStatusID string
}

// Outcome classifies the result of a transition request. State conflicts are
// routine under concurrent multi-tenant usage and are returned as values,
// never as errors.
type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeInvalidStatus     Outcome = "invalid_status"
	OutcomeInvalidTransition Outcome = "invalid_status_transition"
	OutcomeAlreadyHired      Outcome = "already_hired"
	OutcomeInvalidArchive    Outcome = "invalid_archive"
)

// Result is the structured outcome of one SetStatus call.
type Result struct {
	// ID is the new record's id; set only on success.
	ID      string
	Outcome Outcome

	// CurrentStatus and NewStatus report the attempted transition on
	// an invalid_status_transition outcome.
	CurrentStatus Status
	NewStatus     Status

	// Reason explains an invalid_archive outcome.
	Reason string

	// Contact fields for the downstream notifier; set on successful
	// in-flight transitions only.
	EmailAddress string
	PhoneNumber  string
}

// OK reports whether the transition succeeded.
func (r *Result) OK() bool { return r.Outcome == OutcomeOK }

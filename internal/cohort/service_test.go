package cohort

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// In-memory Store for the service tests; transactions roll back by snapshot,
// mirroring the atomicity the PostgreSQL store gets from its transaction.

type memStore struct {
	mu          sync.Mutex
	cohorts     map[string]Cohort
	memberships map[string]Membership // keyed by participant id
	statuses    map[string]PostHireStatus
	audits      []AuditEntry
}

func newMemStore() *memStore {
	return &memStore{
		cohorts:     make(map[string]Cohort),
		memberships: make(map[string]Membership),
		statuses:    make(map[string]PostHireStatus),
	}
}

func (s *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapMembers := make(map[string]Membership, len(s.memberships))
	for k, v := range s.memberships {
		snapMembers[k] = v
	}
	snapStatuses := make(map[string]PostHireStatus, len(s.statuses))
	for k, v := range s.statuses {
		snapStatuses[k] = v
	}
	snapAudits := s.audits

	if err := fn(&memTx{s: s}); err != nil {
		s.memberships = snapMembers
		s.statuses = snapStatuses
		s.audits = snapAudits
		return err
	}
	return nil
}

type memTx struct {
	s *memStore
}

func (t *memTx) Cohort(ctx context.Context, id string) (*Cohort, error) {
	c, ok := t.s.cohorts[id]
	if !ok {
		return nil, ErrCohortNotFound
	}
	return &c, nil
}

func (t *memTx) Membership(ctx context.Context, participantID string) (*Membership, error) {
	m, ok := t.s.memberships[participantID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (t *memTx) MoveMembership(ctx context.Context, membershipID, toCohortID string) error {
	for pid, m := range t.s.memberships {
		if m.ID == membershipID {
			m.CohortID = toCohortID
			t.s.memberships[pid] = m
			return nil
		}
	}
	return errors.New("membership not found")
}

func (t *memTx) PostHireStatuses(ctx context.Context, participantID string) ([]PostHireStatus, error) {
	var out []PostHireStatus
	for _, st := range t.s.statuses {
		if st.ParticipantID == participantID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (t *memTx) DeleteStatus(ctx context.Context, id string) error {
	delete(t.s.statuses, id)
	return nil
}

func (t *memTx) InsertStatus(ctx context.Context, st *PostHireStatus) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	t.s.statuses[st.ID] = *st
	return nil
}

func (t *memTx) InsertAudit(ctx context.Context, a *AuditEntry) error {
	t.s.audits = append(t.s.audits, *a)
	return nil
}

// ── Fixtures ───────────────────────────────────────────────────────────────

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(ms *memStore) *Service {
	svc := NewService(ms)
	svc.now = func() time.Time { return testNow }
	return svc
}

func seedCohorts(ms *memStore) {
	ms.cohorts["c-old"] = Cohort{ID: "c-old", Name: "Spring 24", EndDate: testNow.AddDate(-1, 0, 0)}
	ms.cohorts["c-past"] = Cohort{ID: "c-past", Name: "Fall 24", EndDate: testNow.AddDate(0, -3, 0)}
	ms.cohorts["c-future"] = Cohort{ID: "c-future", Name: "Fall 25", EndDate: testNow.AddDate(0, 3, 0)}
}

// ── ChangeCohort ───────────────────────────────────────────────────────────

func TestChangeCohort_MovesMembership(t *testing.T) {
	ms := newMemStore()
	seedCohorts(ms)
	ms.memberships["p-1"] = Membership{ID: "m-1", ParticipantID: "p-1", CohortID: "c-old"}
	svc := newTestService(ms)

	res, err := svc.ChangeCohort(context.Background(), "p-1", "c-old", "c-future", "user-1", "site transfer")
	if err != nil {
		t.Fatalf("ChangeCohort: %v", err)
	}
	if res.CohortID != "c-future" {
		t.Errorf("result cohort = %s, want c-future", res.CohortID)
	}

	// Round-trip: the assigned cohort is the new one, the old assignment is gone.
	got, err := svc.AssignedCohort(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("AssignedCohort: %v", err)
	}
	if got != "c-future" {
		t.Errorf("assigned cohort = %s, want c-future", got)
	}

	if len(ms.audits) != 1 {
		t.Fatalf("found %d audit entries, want 1", len(ms.audits))
	}
	a := ms.audits[0]
	if a.FromCohortID != "c-old" || a.ToCohortID != "c-future" || a.UserID != "user-1" || a.Reason != "site transfer" {
		t.Errorf("audit entry = %+v, want before/after state with caller metadata", a)
	}
}

func TestChangeCohort_NotInCohort(t *testing.T) {
	ms := newMemStore()
	seedCohorts(ms)
	svc := newTestService(ms)

	// No membership at all.
	_, err := svc.ChangeCohort(context.Background(), "p-1", "c-old", "c-future", "user-1", "")
	if !errors.Is(err, ErrNotInCohort) {
		t.Errorf("ChangeCohort with no membership: err = %v, want ErrNotInCohort", err)
	}

	// Membership in a different cohort than claimed.
	ms.memberships["p-1"] = Membership{ID: "m-1", ParticipantID: "p-1", CohortID: "c-past"}
	_, err = svc.ChangeCohort(context.Background(), "p-1", "c-old", "c-future", "user-1", "")
	if !errors.Is(err, ErrNotInCohort) {
		t.Errorf("ChangeCohort with mismatched membership: err = %v, want ErrNotInCohort", err)
	}
	if got := ms.memberships["p-1"].CohortID; got != "c-past" {
		t.Errorf("membership moved to %s on failed reassignment", got)
	}
}

func TestChangeCohort_TargetNotFound(t *testing.T) {
	ms := newMemStore()
	seedCohorts(ms)
	ms.memberships["p-1"] = Membership{ID: "m-1", ParticipantID: "p-1", CohortID: "c-old"}
	svc := newTestService(ms)

	_, err := svc.ChangeCohort(context.Background(), "p-1", "c-old", "c-gone", "user-1", "")
	if !errors.Is(err, ErrCohortNotFound) {
		t.Errorf("err = %v, want ErrCohortNotFound", err)
	}
	if got := ms.memberships["p-1"].CohortID; got != "c-old" {
		t.Errorf("membership moved to %s on failed reassignment", got)
	}
	if len(ms.audits) != 0 {
		t.Error("audit written for a failed reassignment")
	}
}

// Moving into a cohort that already ended re-stamps a completed graduation
// with the new end date.
func TestChangeCohort_RestampsGraduationForPastCohort(t *testing.T) {
	ms := newMemStore()
	seedCohorts(ms)
	ms.memberships["p-1"] = Membership{ID: "m-1", ParticipantID: "p-1", CohortID: "c-old"}
	ms.statuses["g-1"] = PostHireStatus{
		ID: "g-1", ParticipantID: "p-1",
		Type:           GraduationTypeCompleted,
		GraduationDate: ms.cohorts["c-old"].EndDate,
	}
	svc := newTestService(ms)

	res, err := svc.ChangeCohort(context.Background(), "p-1", "c-old", "c-past", "user-1", "")
	if err != nil {
		t.Fatalf("ChangeCohort: %v", err)
	}
	if !res.GraduationRestated {
		t.Error("GraduationRestated = false, want true for a past-end-date cohort")
	}
	if _, ok := ms.statuses["g-1"]; ok {
		t.Error("old graduation status not deleted")
	}

	var restamped []PostHireStatus
	for _, st := range ms.statuses {
		restamped = append(restamped, st)
	}
	if len(restamped) != 1 {
		t.Fatalf("found %d graduation statuses, want 1", len(restamped))
	}
	if !restamped[0].GraduationDate.Equal(ms.cohorts["c-past"].EndDate) {
		t.Errorf("graduation date = %v, want new cohort end date %v",
			restamped[0].GraduationDate, ms.cohorts["c-past"].EndDate)
	}
}

// Moving into a still-running cohort clears the graduation outcome entirely:
// the participant has not graduated from the new cohort yet.
func TestChangeCohort_ClearsGraduationForFutureCohort(t *testing.T) {
	ms := newMemStore()
	seedCohorts(ms)
	ms.memberships["p-1"] = Membership{ID: "m-1", ParticipantID: "p-1", CohortID: "c-old"}
	ms.statuses["g-1"] = PostHireStatus{
		ID: "g-1", ParticipantID: "p-1",
		Type:           GraduationTypeCompleted,
		GraduationDate: ms.cohorts["c-old"].EndDate,
	}
	svc := newTestService(ms)

	res, err := svc.ChangeCohort(context.Background(), "p-1", "c-old", "c-future", "user-1", "")
	if err != nil {
		t.Fatalf("ChangeCohort: %v", err)
	}
	if res.GraduationRestated {
		t.Error("GraduationRestated = true, want false for a future-end-date cohort")
	}
	if len(ms.statuses) != 0 {
		t.Errorf("found %d graduation statuses, want 0", len(ms.statuses))
	}
}

// Non-graduation post-hire statuses are untouched by reassignment.
func TestChangeCohort_LeavesOtherStatusesAlone(t *testing.T) {
	ms := newMemStore()
	seedCohorts(ms)
	ms.memberships["p-1"] = Membership{ID: "m-1", ParticipantID: "p-1", CohortID: "c-old"}
	ms.statuses["s-1"] = PostHireStatus{
		ID: "s-1", ParticipantID: "p-1", Type: "cohort_unsuccessful",
	}
	svc := newTestService(ms)

	if _, err := svc.ChangeCohort(context.Background(), "p-1", "c-old", "c-past", "user-1", ""); err != nil {
		t.Fatalf("ChangeCohort: %v", err)
	}
	if _, ok := ms.statuses["s-1"]; !ok {
		t.Error("non-graduation post-hire status was deleted")
	}
}

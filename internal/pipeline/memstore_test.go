package pipeline

// In-memory Store used by the engine tests. Transactions are serialized by a
// single mutex and roll back by restoring a snapshot, which mirrors the
// atomicity the PostgreSQL store delegates to its transaction boundary.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memStore struct {
	mu           sync.Mutex
	seq          int
	records      map[string]StatusRecord
	recordSeq    map[string]int
	participants map[string]Participant
}

func newMemStore() *memStore {
	return &memStore{
		records:      make(map[string]StatusRecord),
		recordSeq:    make(map[string]int),
		participants: make(map[string]Participant),
	}
}

func (s *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapRecords := make(map[string]StatusRecord, len(s.records))
	for k, v := range s.records {
		snapRecords[k] = cloneRecord(v)
	}
	snapSeq := make(map[string]int, len(s.recordSeq))
	for k, v := range s.recordSeq {
		snapSeq[k] = v
	}
	snapParticipants := make(map[string]Participant, len(s.participants))
	for k, v := range s.participants {
		snapParticipants[k] = v
	}
	seq := s.seq

	if err := fn(&memTx{s: s}); err != nil {
		s.records = snapRecords
		s.recordSeq = snapSeq
		s.participants = snapParticipants
		s.seq = seq
		return err
	}
	return nil
}

// cloneRecord deep-copies a record through the storage codec so transactions
// never alias each other's data bags.
func cloneRecord(rec StatusRecord) StatusRecord {
	raw, err := encodeData(rec.Data)
	if err != nil {
		panic(fmt.Sprintf("clone record %s: %v", rec.ID, err))
	}
	data, err := decodeData(rec.Status, raw)
	if err != nil {
		panic(fmt.Sprintf("clone record %s: %v", rec.ID, err))
	}
	rec.Data = data
	return rec
}

// seed inserts a record directly, bypassing the engine.
func (s *memStore) seed(rec StatusRecord) StatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.seq++
	s.records[rec.ID] = cloneRecord(rec)
	s.recordSeq[rec.ID] = s.seq
	return rec
}

func (s *memStore) seedParticipant(p Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ID] = p
}

func (s *memStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// countCurrent tallies current records matching the filter.
func (s *memStore) countCurrent(filter func(StatusRecord) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.Current && filter(rec) {
			n++
		}
	}
	return n
}

func (s *memStore) record(id string) (StatusRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return StatusRecord{}, false
	}
	return cloneRecord(rec), true
}

func (s *memStore) participant(id string) (Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	return p, ok
}

// ─── Tx implementation ──────────────────────────────────────────────────────

type memTx struct {
	s *memStore
}

func (t *memTx) Record(ctx context.Context, id string) (*StatusRecord, error) {
	rec, ok := t.s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRecord(rec)
	return &out, nil
}

func (t *memTx) CurrentForEmployer(ctx context.Context, participantID, employerID string) (*StatusRecord, error) {
	var (
		best    *StatusRecord
		bestSeq int
	)
	for id, rec := range t.s.records {
		if !rec.Current || rec.ParticipantID != participantID || rec.EmployerID != employerID {
			continue
		}
		if IsAcknowledgement(rec.Status) {
			continue
		}
		if seq := t.s.recordSeq[id]; best == nil || seq > bestSeq {
			out := cloneRecord(rec)
			best, bestSeq = &out, seq
		}
	}
	return best, nil
}

func (t *memTx) CurrentHired(ctx context.Context, participantID string) ([]StatusRecord, error) {
	var recs []StatusRecord
	for _, rec := range t.s.records {
		if rec.Current && rec.ParticipantID == participantID && rec.Status == StatusHired {
			recs = append(recs, cloneRecord(rec))
		}
	}
	return recs, nil
}

func (t *memTx) HasArchived(ctx context.Context, participantID string) (bool, error) {
	for _, rec := range t.s.records {
		if rec.ParticipantID == participantID && rec.Status == StatusArchived {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) Insert(ctx context.Context, rec *StatusRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	t.s.seq++
	t.s.records[rec.ID] = cloneRecord(*rec)
	t.s.recordSeq[rec.ID] = t.s.seq
	return nil
}

func (t *memTx) Retire(ctx context.Context, recordID string) error {
	rec, ok := t.s.records[recordID]
	if !ok {
		return ErrNotFound
	}
	rec.Current = false
	t.s.records[recordID] = rec
	return nil
}

func (t *memTx) RetireSiteScope(ctx context.Context, participantID, site string) (int64, error) {
	var n int64
	for id, rec := range t.s.records {
		if !rec.Current || rec.ParticipantID != participantID {
			continue
		}
		if IsAcknowledgement(rec.Status) || dataSite(rec.Data) != site {
			continue
		}
		rec.Current = false
		t.s.records[id] = rec
		n++
	}
	return n, nil
}

func (t *memTx) Participant(ctx context.Context, id string) (*Participant, error) {
	p, ok := t.s.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) Withdraw(ctx context.Context, participantID string, prev Interest) error {
	p, ok := t.s.participants[participantID]
	if !ok {
		return ErrNotFound
	}
	p.Interested = InterestWithdrawn
	p.History = append(p.History, HistoryEntry{
		Field:     "interested",
		From:      string(prev),
		To:        string(InterestWithdrawn),
		Timestamp: time.Now().UTC(),
	})
	t.s.participants[participantID] = p
	return nil
}

// Package audit is the durable, hash-chained record of every AuditEntry
// appended to any tip. It is the source of truth; the per-tip
// model.Tip.Audit slice returned to API callers is a projection of it.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cybertip/triage/pkg/model"
	"github.com/cybertip/triage/pkg/observability"
)

var (
	ErrEntryNotFound = errors.New("audit: entry not found")
	ErrChainBroken   = errors.New("audit: hash chain is broken")
)

// Record is the durably stored, hash-chained wrapper around a model.AuditEntry.
type Record struct {
	Sequence     uint64           `json:"sequence"`
	Entry        model.AuditEntry `json:"entry"`
	EntryHash    string           `json:"entry_hash"`
	PreviousHash string           `json:"previous_hash"`
}

// Store is an append-only, hash-chained audit log shared by every tip.
// One process-wide Store backs the whole pipeline; entries are filterable
// by tip ID for the per-tip projection.
type Store struct {
	mu        sync.RWMutex
	records   []*Record
	byID      map[string]*Record
	byTip     map[string][]*Record
	chainHead string
	timeline  *observability.AuditTimeline
}

// NewStore creates an empty audit store with a genesis chain head.
func NewStore() *Store {
	return &Store{
		byID:      make(map[string]*Record),
		byTip:     make(map[string][]*Record),
		chainHead: "genesis",
	}
}

// WithTimeline attaches a processing timeline that mirrors every appended
// entry at dashboard granularity. Optional: a nil timeline (the default)
// leaves Append exactly as before.
func (s *Store) WithTimeline(t *observability.AuditTimeline) *Store {
	s.timeline = t
	return s
}

// Timeline returns the attached processing timeline, or nil if none was
// configured via WithTimeline.
func (s *Store) Timeline() *observability.AuditTimeline {
	return s.timeline
}

// Append appends a new entry for tipID. If entry.EntryID is empty, one is
// generated. If entry.Timestamp is zero, the current time is stamped.
// The returned entry is the durable copy; callers append it to their
// in-memory Tip via Tip.AppendAudit.
func (s *Store) Append(tipID string, entry model.AuditEntry) (model.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.EntryID == "" {
		entry.EntryID = uuid.New().String()
	}
	if entry.TipID == "" {
		entry.TipID = tipID
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	seq := uint64(len(s.records)) + 1
	rec := &Record{
		Sequence:     seq,
		Entry:        entry,
		PreviousHash: s.chainHead,
	}

	hash, err := hashRecord(rec)
	if err != nil {
		return model.AuditEntry{}, fmt.Errorf("audit: compute entry hash: %w", err)
	}
	rec.EntryHash = hash
	s.chainHead = hash

	s.records = append(s.records, rec)
	s.byID[entry.EntryID] = rec
	s.byTip[tipID] = append(s.byTip[tipID], rec)

	if s.timeline != nil {
		_ = s.timeline.Record(observability.TimelineEntry{
			EntryType: classifyTimelineEntry(entry),
			TipID:     tipID,
			Stage:     entry.Agent,
			Timestamp: entry.Timestamp,
			Actor:     entry.Agent,
			Summary:   entry.Summary,
		})
	}

	return entry, nil
}

// classifyTimelineEntry buckets one appended AuditEntry into the
// processing timeline's coarser event categories (§4.7's minimum
// recorded events): a human actor always means a human action, unless
// its summary names a warrant transition, in which case it is the more
// specific file-warrant flip; an info-status entry from the orchestrator
// marks a pipeline/stage start; a blocked entry is a hard stop; anything
// else is a stage end.
func classifyTimelineEntry(e model.AuditEntry) observability.TimelineEntryType {
	switch {
	case e.HumanActor != "" && strings.Contains(strings.ToLower(e.Summary), "warrant"):
		return observability.EntryTypeWarrantFlip
	case e.HumanActor != "":
		return observability.EntryTypeHumanAction
	case e.Status == model.EntryBlocked:
		return observability.EntryTypeHardStop
	case e.Status == model.EntryInfo:
		return observability.EntryTypeStageStart
	default:
		return observability.EntryTypeStageEnd
	}
}

func hashRecord(rec *Record) (string, error) {
	payload, err := json.Marshal(rec.Entry)
	if err != nil {
		return "", err
	}
	hashable := struct {
		Sequence     uint64 `json:"sequence"`
		PayloadHash  string `json:"payload_hash"`
		PreviousHash string `json:"previous_hash"`
	}{
		Sequence:     rec.Sequence,
		PayloadHash:  sha256Hex(payload),
		PreviousHash: rec.PreviousHash,
	}
	data, err := json.Marshal(hashable)
	if err != nil {
		return "", err
	}
	return sha256Hex(data), nil
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Get retrieves a record by entry ID.
func (s *Store) Get(entryID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[entryID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return rec, nil
}

// ForTip returns the ordered audit trail for one tip.
func (s *Store) ForTip(tipID string) []model.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.byTip[tipID]
	out := make([]model.AuditEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Entry)
	}
	return out
}

// Filter selects records across all tips for export.
type Filter struct {
	TipID      string
	Agent      string
	Status     model.EntryStatus
	Since      *time.Time
	Until      *time.Time
	MaxResults int
}

func (f Filter) matches(r *Record) bool {
	if f.TipID != "" && r.Entry.TipID != f.TipID {
		return false
	}
	if f.Agent != "" && r.Entry.Agent != f.Agent {
		return false
	}
	if f.Status != "" && r.Entry.Status != f.Status {
		return false
	}
	if f.Since != nil && r.Entry.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && r.Entry.Timestamp.After(*f.Until) {
		return false
	}
	return true
}

// Query returns records matching filter, in append order.
func (s *Store) Query(filter Filter) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0)
	for _, r := range s.records {
		if filter.matches(r) {
			out = append(out, r)
			if filter.MaxResults > 0 && len(out) >= filter.MaxResults {
				break
			}
		}
	}
	return out
}

// VerifyChain recomputes every record's hash and confirms the chain links.
func (s *Store) VerifyChain() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expectedPrev := "genesis"
	for i, rec := range s.records {
		if rec.PreviousHash != expectedPrev {
			return fmt.Errorf("%w: record %d previous_hash mismatch", ErrChainBroken, i)
		}
		computed, err := hashRecord(rec)
		if err != nil {
			return fmt.Errorf("%w: record %d: %w", ErrChainBroken, i, err)
		}
		if computed != rec.EntryHash {
			return fmt.Errorf("%w: record %d hash mismatch", ErrChainBroken, i)
		}
		expectedPrev = rec.EntryHash
	}
	return nil
}

// ChainHead returns the current chain head hash.
func (s *Store) ChainHead() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainHead
}

// Size returns the total number of records across all tips.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Package observability — processing timeline.
//
// A lightweight, content-hashed event log over a tip's lifecycle: one
// entry per stage start, stage end, hard stop, human action, or
// file-warrant flip. It mirrors the minimum-recorded-events list the
// durable chain-of-custody log in pkg/audit already enforces, but at
// dashboard granularity — queryable by tip and stage without walking the
// full hash chain. pkg/audit.Store feeds it directly from Append so the
// two views never drift apart.
package observability

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// TimelineEntryType categorizes processing-timeline entries against the
// minimum-recorded-events list: a tip's pipeline start, every stage start
// and end, every hard stop, every human action, and every file-warrant
// flip must each be representable.
type TimelineEntryType string

const (
	EntryTypeStageStart  TimelineEntryType = "STAGE_START"
	EntryTypeStageEnd    TimelineEntryType = "STAGE_END"
	EntryTypeHardStop    TimelineEntryType = "HARD_STOP"
	EntryTypeHumanAction TimelineEntryType = "HUMAN_ACTION"
	EntryTypeWarrantFlip TimelineEntryType = "WARRANT_FLIP"
)

// TimelineEntry is a single lifecycle event for one tip.
type TimelineEntry struct {
	EntryID     string                 `json:"entry_id"`
	EntryType   TimelineEntryType      `json:"entry_type"`
	TipID       string                 `json:"tip_id"`
	Stage       string                 `json:"stage,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Actor       string                 `json:"actor,omitempty"`
	Summary     string                 `json:"summary"`
	ContentHash string                 `json:"content_hash"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// TimelineQuery filters timeline entries.
type TimelineQuery struct {
	TipID     string             `json:"tip_id,omitempty"`
	Stage     string             `json:"stage,omitempty"`
	EntryType *TimelineEntryType `json:"entry_type,omitempty"`
	After     *time.Time         `json:"after,omitempty"`
	Before    *time.Time         `json:"before,omitempty"`
	Limit     int                `json:"limit,omitempty"`
}

// AuditTimeline collects and queries processing-timeline events.
type AuditTimeline struct {
	mu      sync.RWMutex
	entries []TimelineEntry
	index   map[string][]int // tipID → entry indices
	seq     int64
	clock   func() time.Time
}

// NewAuditTimeline creates a new timeline.
func NewAuditTimeline() *AuditTimeline {
	return &AuditTimeline{
		entries: make([]TimelineEntry, 0),
		index:   make(map[string][]int),
		clock:   time.Now,
	}
}

// WithClock overrides clock for testing.
func (t *AuditTimeline) WithClock(clock func() time.Time) *AuditTimeline {
	t.clock = clock
	return t
}

// Record adds an entry to the timeline.
func (t *AuditTimeline) Record(entry TimelineEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	if entry.EntryID == "" {
		entry.EntryID = fmt.Sprintf("tl-%d", t.seq)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = t.clock()
	}

	data, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	h := sha256.Sum256(data)
	entry.ContentHash = "sha256:" + hex.EncodeToString(h[:])

	idx := len(t.entries)
	t.entries = append(t.entries, entry)

	if entry.TipID != "" {
		t.index[entry.TipID] = append(t.index[entry.TipID], idx)
	}

	return nil
}

// Query retrieves entries matching the query.
func (t *AuditTimeline) Query(q TimelineQuery) []TimelineEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var candidates []TimelineEntry

	if q.TipID != "" {
		indices, ok := t.index[q.TipID]
		if !ok {
			return nil
		}
		for _, i := range indices {
			candidates = append(candidates, t.entries[i])
		}
	} else {
		candidates = make([]TimelineEntry, len(t.entries))
		copy(candidates, t.entries)
	}

	var results []TimelineEntry
	for _, e := range candidates {
		if q.Stage != "" && e.Stage != q.Stage {
			continue
		}
		if q.EntryType != nil && e.EntryType != *q.EntryType {
			continue
		}
		if q.After != nil && e.Timestamp.Before(*q.After) {
			continue
		}
		if q.Before != nil && e.Timestamp.After(*q.Before) {
			continue
		}
		results = append(results, e)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}

	return results
}

// Count returns total entries.
func (t *AuditTimeline) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/cybertip/triage/pkg/model"
)

// MemoryRepository is an in-process ordered map keyed by tip_id, used for
// DB_MODE=memory (demo/dev/test). Writes are serialized by a single mutex;
// reads return deep-enough copies that callers can't mutate repository
// state through a returned Tip (§5: "reads lock-free snapshot semantics"
// — here approximated with a copy-on-read under a short-held read lock,
// since the whole aggregate, not just a scalar, needs isolation).
type MemoryRepository struct {
	mu   sync.RWMutex
	tips map[string]model.Tip
	seen map[string]map[string]bool // tipID -> set of audit EntryIDs already recorded
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tips: make(map[string]model.Tip),
		seen: make(map[string]map[string]bool),
	}
}

// Upsert implements Repository. Idempotence (§8 invariant 6) is kept by
// merging the incoming tip's audit slice into the stored one by EntryID
// instead of replacing it wholesale: replaying the same tip never
// duplicates an audit entry.
func (m *MemoryRepository) Upsert(_ context.Context, tip model.Tip) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := m.seen[tip.TipID]
	if seen == nil {
		seen = make(map[string]bool)
	}

	existing, had := m.tips[tip.TipID]
	mergedAudit := existing.Audit
	if !had {
		mergedAudit = nil
	}
	for _, e := range tip.Audit {
		key := e.EntryID
		if key == "" {
			key = e.Agent + "|" + e.Summary + "|" + e.Timestamp.String()
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		mergedAudit = append(mergedAudit, e)
	}

	tip.Audit = mergedAudit
	m.tips[tip.TipID] = tip
	m.seen[tip.TipID] = seen
	return nil
}

// Get implements Repository.
func (m *MemoryRepository) Get(_ context.Context, tipID string) (model.Tip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tips[tipID]
	if !ok {
		return model.Tip{}, ErrNotFound
	}
	return t, nil
}

// List implements Repository: tier order first, then received_at descending.
func (m *MemoryRepository) List(_ context.Context, filter ListFilter) (ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []model.Tip
	for _, t := range m.tips {
		if filter.Tier != "" && (t.Priority == nil || t.Priority.Tier != filter.Tier) {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Unit != "" && (t.Priority == nil || t.Priority.RoutingUnit != filter.Unit) {
			continue
		}
		if filter.CrisisOnly && (t.Priority == nil || !t.Priority.VictimCrisisAlert) {
			continue
		}
		matched = append(matched, t)
	}

	sort.Slice(matched, func(i, j int) bool {
		ti, tj := tierRank(priorityTierOf(matched[i])), tierRank(priorityTierOf(matched[j]))
		if ti != tj {
			return ti < tj
		}
		return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return ListResult{Tips: append([]model.Tip(nil), matched[offset:end]...), Total: total}, nil
}

func priorityTierOf(t model.Tip) model.Tier {
	if t.Priority == nil {
		return ""
	}
	return t.Priority.Tier
}

// UpdateFileWarrant implements Repository. The file-state update and the
// parent's legal_status aggregate booleans update together or not at all
// (§4.6 consistency rule), which under a single mutex-held critical
// section is automatic: no other goroutine observes a half-updated tip.
func (m *MemoryRepository) UpdateFileWarrant(_ context.Context, tipID, fileID string, newStatus model.WarrantStatus, warrantNumber, grantingJudge string, entry model.AuditEntry) (model.TipFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tip, ok := m.tips[tipID]
	if !ok {
		return model.TipFile{}, ErrNotFound
	}

	idx := -1
	for i, f := range tip.Files {
		if f.FileID == fileID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.TipFile{}, ErrNotFound
	}

	f := &tip.Files[idx]
	f.WarrantStatus = newStatus
	if warrantNumber != "" {
		f.WarrantNumber = warrantNumber
	}
	if grantingJudge != "" {
		f.GrantingJudge = grantingJudge
	}
	f.RecomputeAccessBlock()

	recomputeLegalStatusAggregate(&tip)
	tip.AppendAudit(entry)
	m.tips[tipID] = tip

	return *f, nil
}

// recomputeLegalStatusAggregate recomputes the legal_status aggregate
// booleans from the current file set without re-running the Wilson Gate's
// per-file decision function (that decision was already made and must
// not be re-derived here — only the human-driven warrant_status field
// changed).
func recomputeLegalStatusAggregate(tip *model.Tip) {
	if tip.LegalStatus == nil {
		tip.LegalStatus = &model.LegalStatus{}
	}
	var pending, accessible bool
	accessibleAny := false
	for _, f := range tip.Files {
		if f.WarrantRequired && f.WarrantStatus != model.WarrantGranted && f.WarrantStatus != model.WarrantDenied {
			pending = true
		}
		if !f.FileAccessBlocked {
			accessibleAny = true
		}
	}
	accessible = accessibleAny
	tip.LegalStatus.AllWarrantsResolved = !pending
	tip.LegalStatus.AnyFilesAccessible = accessible
}

// IssuePreservationRequest implements Repository, idempotently.
func (m *MemoryRepository) IssuePreservationRequest(_ context.Context, tipID, requestID, approver string, entry model.AuditEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tip, ok := m.tips[tipID]
	if !ok {
		return false, ErrNotFound
	}

	for i, r := range tip.PreservationRequests {
		if r.RequestID != requestID {
			continue
		}
		if r.Status == model.PreservationIssued {
			return true, nil // idempotent retry
		}
		tip.PreservationRequests[i].Status = model.PreservationIssued
		tip.PreservationRequests[i].Approver = approver
		issuedAt := entry.Timestamp
		tip.PreservationRequests[i].IssuedAt = &issuedAt
		tip.AppendAudit(entry)
		m.tips[tipID] = tip
		return true, nil
	}
	return false, ErrNotFound
}

// Stats implements Repository.
func (m *MemoryRepository) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{ByTier: make(map[model.Tier]int)}
	for _, t := range m.tips {
		s.Total++
		if t.Priority != nil {
			s.ByTier[t.Priority.Tier]++
			if t.Priority.VictimCrisisAlert {
				s.CrisisAlerts++
			}
		}
		if t.Status == model.StatusBlocked {
			s.Blocked++
		}
	}
	return s, nil
}

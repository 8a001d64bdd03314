// Package repository is the only code that writes Tip aggregates to
// durable storage (§4.6). Two backends share the Repository interface —
// an in-process ordered map for DB_MODE=memory and a Postgres-backed
// store for DB_MODE=postgres — so callers never branch on backend.
package repository

import (
	"context"
	"errors"

	"github.com/cybertip/triage/pkg/model"
)

// ErrNotFound is returned by Get/UpdateFileWarrant when the identifier is
// unknown. Handlers map this to HTTP 404 per the §7 error taxonomy.
var ErrNotFound = errors.New("repository: not found")

// ListFilter narrows List's result set. Zero values mean "no filter" for
// that field.
type ListFilter struct {
	Tier       model.Tier
	Status     model.Status
	Unit       string
	CrisisOnly bool
	Limit      int
	Offset     int
}

// ListResult is the paginated response to List.
type ListResult struct {
	Tips  []model.Tip
	Total int
}

// Stats is the aggregate snapshot returned by Stats (§4.6, feeds GET /api/stats).
type Stats struct {
	ByTier       map[model.Tier]int `json:"by_tier"`
	CrisisAlerts int                `json:"crisis_alerts"`
	Blocked      int                `json:"blocked"`
	Total        int                `json:"total"`
}

// Repository is the Tip Repository contract of §4.6.
type Repository interface {
	// Upsert persists the full aggregate. It is idempotent: replaying the
	// same tip does not duplicate audit entries (Audit is appended by
	// identity, never blind-appended a second time for an unchanged tail).
	Upsert(ctx context.Context, tip model.Tip) error

	// Get returns the tip or ErrNotFound.
	Get(ctx context.Context, tipID string) (model.Tip, error)

	// List returns tips ordered by priority tier, then received_at
	// descending, honoring filter's pagination.
	List(ctx context.Context, filter ListFilter) (ListResult, error)

	// UpdateFileWarrant transitions one file's warrant state, recomputes
	// file_access_blocked and the parent's legal_status booleans
	// transactionally, and appends an audit entry. Returns ErrNotFound if
	// tipID or fileID is unknown.
	UpdateFileWarrant(ctx context.Context, tipID, fileID string, newStatus model.WarrantStatus, warrantNumber, grantingJudge string, entry model.AuditEntry) (model.TipFile, error)

	// IssuePreservationRequest flips a draft stub to issued. Idempotent:
	// repeated calls with the same requestID return the same result.
	IssuePreservationRequest(ctx context.Context, tipID, requestID, approver string, entry model.AuditEntry) (bool, error)

	// Stats returns the aggregate counters behind GET /api/stats.
	Stats(ctx context.Context) (Stats, error)
}

var tierOrder = map[model.Tier]int{
	model.TierImmediate: 0,
	model.TierUrgent:    1,
	model.TierPaused:    2,
	model.TierStandard:  3,
	model.TierMonitor:   4,
}

func tierRank(t model.Tier) int {
	if r, ok := tierOrder[t]; ok {
		return r
	}
	return len(tierOrder) // unknown/unset tiers sort last
}

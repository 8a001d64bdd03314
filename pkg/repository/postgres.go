package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/cybertip/triage/pkg/model"
)

// PostgresRepository is the durable backend for DB_MODE=postgres. Per
// §6's persistence layout it stores each tip's enrichment output as an
// aggregate JSON column in the `tips` table, beside a few denormalized
// index columns (tier, routing unit, crisis, blocked) used by List and
// Stats; files and their warrant state live only inside the aggregate,
// with no separate table. The audit trail's durable copy of
// record lives in pkg/audit.Store, so this table carries only the
// per-tip projection needed to answer Get/List.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository opens (but does not migrate) a Postgres-backed
// repository. Schema setup is an operational concern left to migrations
// run outside this package; EnsureSchema below exists for tests and the
// demo bootstrap path, not production migration.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the tables this repository needs if they don't
// already exist. Safe to call repeatedly.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS tips (
	tip_id       TEXT PRIMARY KEY,
	received_at  TIMESTAMPTZ NOT NULL,
	status       TEXT NOT NULL,
	tier         TEXT NOT NULL DEFAULT '',
	routing_unit TEXT NOT NULL DEFAULT '',
	crisis_alert BOOLEAN NOT NULL DEFAULT FALSE,
	blocked      BOOLEAN NOT NULL DEFAULT FALSE,
	aggregate    JSONB NOT NULL,
	audit_ids    JSONB NOT NULL DEFAULT '[]'
)`)
	return err
}

// Upsert implements Repository over a single transaction: the aggregate
// row and its denormalized index columns update together or not at all.
func (r *PostgresRepository) Upsert(ctx context.Context, tip model.Tip) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	var existingAuditIDs []string
	var existingAggregate []byte
	err = tx.QueryRowContext(ctx, `SELECT audit_ids, aggregate FROM tips WHERE tip_id = $1 FOR UPDATE`, tip.TipID).
		Scan(pqJSON(&existingAuditIDs), &existingAggregate)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("repository: read existing for upsert: %w", err)
	}

	seen := make(map[string]bool, len(existingAuditIDs))
	for _, id := range existingAuditIDs {
		seen[id] = true
	}

	var merged []model.AuditEntry
	if existingAggregate != nil {
		var existingTip model.Tip
		if err := json.Unmarshal(existingAggregate, &existingTip); err == nil {
			merged = existingTip.Audit
		}
	}
	var mergedIDs []string
	mergedIDs = append(mergedIDs, existingAuditIDs...)
	for _, e := range tip.Audit {
		key := e.EntryID
		if key == "" {
			key = e.Agent + "|" + e.Summary + "|" + e.Timestamp.String()
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, e)
		mergedIDs = append(mergedIDs, key)
	}
	tip.Audit = merged

	aggregate, err := json.Marshal(tip)
	if err != nil {
		return fmt.Errorf("repository: marshal aggregate: %w", err)
	}
	auditIDs, err := json.Marshal(mergedIDs)
	if err != nil {
		return fmt.Errorf("repository: marshal audit ids: %w", err)
	}

	tier, unit, crisis, blocked := "", "", false, tip.Status == model.StatusBlocked
	if tip.Priority != nil {
		tier = string(tip.Priority.Tier)
		unit = tip.Priority.RoutingUnit
		crisis = tip.Priority.VictimCrisisAlert
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO tips (tip_id, received_at, status, tier, routing_unit, crisis_alert, blocked, aggregate, audit_ids)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (tip_id) DO UPDATE SET
	received_at = EXCLUDED.received_at,
	status = EXCLUDED.status,
	tier = EXCLUDED.tier,
	routing_unit = EXCLUDED.routing_unit,
	crisis_alert = EXCLUDED.crisis_alert,
	blocked = EXCLUDED.blocked,
	aggregate = EXCLUDED.aggregate,
	audit_ids = EXCLUDED.audit_ids
`, tip.TipID, tip.ReceivedAt, tip.Status, tier, unit, crisis, blocked, aggregate, auditIDs)
	if err != nil {
		return fmt.Errorf("repository: upsert: %w", err)
	}

	return tx.Commit()
}

// Get implements Repository.
func (r *PostgresRepository) Get(ctx context.Context, tipID string) (model.Tip, error) {
	var aggregate []byte
	err := r.db.QueryRowContext(ctx, `SELECT aggregate FROM tips WHERE tip_id = $1`, tipID).Scan(&aggregate)
	if err == sql.ErrNoRows {
		return model.Tip{}, ErrNotFound
	}
	if err != nil {
		return model.Tip{}, fmt.Errorf("repository: get: %w", err)
	}
	var tip model.Tip
	if err := json.Unmarshal(aggregate, &tip); err != nil {
		return model.Tip{}, fmt.Errorf("repository: unmarshal aggregate: %w", err)
	}
	return tip, nil
}

// List implements Repository: tier rank then received_at descending,
// matching the in-memory backend's ordering exactly (§4.6).
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Tier != "" {
		conds = append(conds, "tier = "+arg(string(filter.Tier)))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(string(filter.Status)))
	}
	if filter.Unit != "" {
		conds = append(conds, "routing_unit = "+arg(filter.Unit))
	}
	if filter.CrisisOnly {
		conds = append(conds, "crisis_alert = TRUE")
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT count(*) FROM tips %s`, where)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("repository: count: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
SELECT aggregate FROM tips %s
ORDER BY
	CASE tier
		WHEN 'IMMEDIATE' THEN 0 WHEN 'URGENT' THEN 1 WHEN 'PAUSED' THEN 2
		WHEN 'STANDARD' THEN 3 WHEN 'MONITOR' THEN 4 ELSE 5
	END,
	received_at DESC
LIMIT %s OFFSET %s`, where, arg(limit), arg(offset))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ListResult{}, fmt.Errorf("repository: list: %w", err)
	}
	defer rows.Close()

	var tips []model.Tip
	for rows.Next() {
		var aggregate []byte
		if err := rows.Scan(&aggregate); err != nil {
			return ListResult{}, fmt.Errorf("repository: scan: %w", err)
		}
		var t model.Tip
		if err := json.Unmarshal(aggregate, &t); err != nil {
			return ListResult{}, fmt.Errorf("repository: unmarshal row: %w", err)
		}
		tips = append(tips, t)
	}
	return ListResult{Tips: tips, Total: total}, rows.Err()
}

// UpdateFileWarrant implements Repository, round-tripping the aggregate
// through the same transaction so the file update and legal_status
// booleans are all-or-nothing.
func (r *PostgresRepository) UpdateFileWarrant(ctx context.Context, tipID, fileID string, newStatus model.WarrantStatus, warrantNumber, grantingJudge string, entry model.AuditEntry) (model.TipFile, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.TipFile{}, fmt.Errorf("repository: begin: %w", err)
	}
	defer tx.Rollback()

	var aggregate []byte
	err = tx.QueryRowContext(ctx, `SELECT aggregate FROM tips WHERE tip_id = $1 FOR UPDATE`, tipID).Scan(&aggregate)
	if err == sql.ErrNoRows {
		return model.TipFile{}, ErrNotFound
	}
	if err != nil {
		return model.TipFile{}, fmt.Errorf("repository: read for warrant update: %w", err)
	}

	var tip model.Tip
	if err := json.Unmarshal(aggregate, &tip); err != nil {
		return model.TipFile{}, fmt.Errorf("repository: unmarshal: %w", err)
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

	newAggregate, err := json.Marshal(tip)
	if err != nil {
		return model.TipFile{}, fmt.Errorf("repository: marshal: %w", err)
	}

	tier, unit, crisis := "", "", false
	if tip.Priority != nil {
		tier, unit, crisis = string(tip.Priority.Tier), tip.Priority.RoutingUnit, tip.Priority.VictimCrisisAlert
	}

	_, err = tx.ExecContext(ctx, `
UPDATE tips SET aggregate = $1, status = $2, tier = $3, routing_unit = $4, crisis_alert = $5 WHERE tip_id = $6`,
		newAggregate, tip.Status, tier, unit, crisis, tipID)
	if err != nil {
		return model.TipFile{}, fmt.Errorf("repository: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.TipFile{}, fmt.Errorf("repository: commit: %w", err)
	}
	return *f, nil
}

// IssuePreservationRequest implements Repository, idempotently.
func (r *PostgresRepository) IssuePreservationRequest(ctx context.Context, tipID, requestID, approver string, entry model.AuditEntry) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("repository: begin: %w", err)
	}
	defer tx.Rollback()

	var aggregate []byte
	err = tx.QueryRowContext(ctx, `SELECT aggregate FROM tips WHERE tip_id = $1 FOR UPDATE`, tipID).Scan(&aggregate)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("repository: read: %w", err)
	}

	var tip model.Tip
	if err := json.Unmarshal(aggregate, &tip); err != nil {
		return false, fmt.Errorf("repository: unmarshal: %w", err)
	}

	found := false
	for i, req := range tip.PreservationRequests {
		if req.RequestID != requestID {
			continue
		}
		found = true
		if req.Status == model.PreservationIssued {
			return true, nil
		}
		tip.PreservationRequests[i].Status = model.PreservationIssued
		tip.PreservationRequests[i].Approver = approver
		issuedAt := entry.Timestamp
		tip.PreservationRequests[i].IssuedAt = &issuedAt
		tip.AppendAudit(entry)
	}
	if !found {
		return false, ErrNotFound
	}

	newAggregate, err := json.Marshal(tip)
	if err != nil {
		return false, fmt.Errorf("repository: marshal: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tips SET aggregate = $1 WHERE tip_id = $2`, newAggregate, tipID); err != nil {
		return false, fmt.Errorf("repository: update: %w", err)
	}
	return true, tx.Commit()
}

// Stats implements Repository.
func (r *PostgresRepository) Stats(ctx context.Context) (Stats, error) {
	s := Stats{ByTier: make(map[model.Tier]int)}

	rows, err := r.db.QueryContext(ctx, `SELECT tier, count(*) FROM tips WHERE tier != '' GROUP BY tier`)
	if err != nil {
		return Stats{}, fmt.Errorf("repository: stats by tier: %w", err)
	}
	for rows.Next() {
		var tier string
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			rows.Close()
			return Stats{}, fmt.Errorf("repository: scan tier count: %w", err)
		}
		s.ByTier[model.Tier(tier)] = count
	}
	rows.Close()

	err = r.db.QueryRowContext(ctx, `
SELECT count(*),
       count(*) FILTER (WHERE crisis_alert),
       count(*) FILTER (WHERE blocked)
FROM tips`).Scan(&s.Total, &s.CrisisAlerts, &s.Blocked)
	if err != nil {
		return Stats{}, fmt.Errorf("repository: stats totals: %w", err)
	}
	return s, nil
}

// pqJSON adapts a *[]string destination to scan a JSONB array column via
// database/sql's generic []byte path, since lib/pq doesn't itself decode
// JSON arrays into Go slices.
func pqJSON(dst *[]string) *jsonScanner {
	return &jsonScanner{dst: dst}
}

type jsonScanner struct {
	dst *[]string
}

func (j *jsonScanner) Scan(src any) error {
	if src == nil {
		*j.dst = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("repository: unsupported scan source %T", src)
	}
	return json.Unmarshal(raw, j.dst)
}

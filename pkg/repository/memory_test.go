package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertip/triage/pkg/model"
	"github.com/cybertip/triage/pkg/repository"
)

func sampleTip(id string, tier model.Tier, receivedAt time.Time) model.Tip {
	return model.Tip{
		TipID:      id,
		Status:     model.StatusTriaged,
		ReceivedAt: receivedAt,
		Priority:   &model.Priority{Tier: tier},
		Audit: []model.AuditEntry{
			{EntryID: "e-1", Agent: "Orchestrator", Summary: "pipeline start"},
		},
	}
}

func TestMemoryRepository_Upsert_IsIdempotent(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	tip := sampleTip("t-1", model.TierStandard, time.Now())

	require.NoError(t, repo.Upsert(ctx, tip))
	require.NoError(t, repo.Upsert(ctx, tip))

	got, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Len(t, got.Audit, 1)
}

func TestMemoryRepository_List_OrdersByTierThenReceivedAtDescending(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Upsert(ctx, sampleTip("standard-old", model.TierStandard, now.Add(-time.Hour))))
	require.NoError(t, repo.Upsert(ctx, sampleTip("immediate", model.TierImmediate, now.Add(-2*time.Hour))))
	require.NoError(t, repo.Upsert(ctx, sampleTip("standard-new", model.TierStandard, now)))

	res, err := repo.List(ctx, repository.ListFilter{})
	require.NoError(t, err)
	require.Len(t, res.Tips, 3)
	assert.Equal(t, "immediate", res.Tips[0].TipID)
	assert.Equal(t, "standard-new", res.Tips[1].TipID)
	assert.Equal(t, "standard-old", res.Tips[2].TipID)
}

func TestMemoryRepository_UpdateFileWarrant_GrantUnblocks(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	tip := sampleTip("t-2", model.TierStandard, time.Now())
	tip.Files = []model.TipFile{
		{FileID: "f-1", WarrantRequired: true, WarrantStatus: model.WarrantPendingApplication, FileAccessBlocked: true},
	}
	tip.LegalStatus = &model.LegalStatus{AllWarrantsResolved: false, AnyFilesAccessible: false}
	require.NoError(t, repo.Upsert(ctx, tip))

	f, err := repo.UpdateFileWarrant(ctx, "t-2", "f-1", model.WarrantGranted, "W-1", "Judge X", model.AuditEntry{
		EntryID: "e-2", Agent: "HumanAction", Summary: "warrant granted",
	})
	require.NoError(t, err)
	assert.False(t, f.FileAccessBlocked)

	got, err := repo.Get(ctx, "t-2")
	require.NoError(t, err)
	assert.True(t, got.LegalStatus.AnyFilesAccessible)
	assert.True(t, got.LegalStatus.AllWarrantsResolved)
	assert.Len(t, got.Audit, 2)
}

func TestMemoryRepository_IssuePreservationRequest_IdempotentRetry(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	tip := sampleTip("t-3", model.TierStandard, time.Now())
	tip.PreservationRequests = []model.PreservationRequest{
		{RequestID: "pres-1", Status: model.PreservationDraft, AutoGenerated: true},
	}
	require.NoError(t, repo.Upsert(ctx, tip))

	ok1, err := repo.IssuePreservationRequest(ctx, "t-3", "pres-1", "supervisor-1", model.AuditEntry{EntryID: "e-3"})
	require.NoError(t, err)
	assert.True(t, ok1)

	ok2, err := repo.IssuePreservationRequest(ctx, "t-3", "pres-1", "supervisor-1", model.AuditEntry{EntryID: "e-3"})
	require.NoError(t, err)
	assert.True(t, ok2)

	got, err := repo.Get(ctx, "t-3")
	require.NoError(t, err)
	assert.Equal(t, model.PreservationIssued, got.PreservationRequests[0].Status)
	assert.Len(t, got.Audit, 2) // pipeline-start + issue entry, not duplicated on retry
}

func TestMemoryRepository_Get_UnknownReturnsErrNotFound(t *testing.T) {
	repo := repository.NewMemoryRepository()
	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

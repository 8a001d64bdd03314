package priority_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertip/triage/pkg/model"
	"github.com/cybertip/triage/pkg/priority"
)

func TestCompute_CSAMMinorVictim_FloorsImmediateAndScore(t *testing.T) {
	in := priority.Inputs{
		Classification: &model.Classification{
			OffenseCategory: model.OffenseCSAM,
			Severity:        model.Severity{USICAC: model.SeverityP2High},
		},
	}
	in.Classification.ApplyChildSafetyFloor([]string{"10-12"})

	p := priority.Compute(in)
	assert.Equal(t, model.TierImmediate, p.Tier)
	assert.GreaterOrEqual(t, p.Score, 95)
	assert.True(t, p.SupervisorAlert)
}

func TestCompute_ActiveDeconfliction_ForcesPaused(t *testing.T) {
	in := priority.Inputs{
		Classification: &model.Classification{
			OffenseCategory: model.OffenseOther,
			Severity:        model.Severity{USICAC: model.SeverityP4Low},
		},
		Links: &model.Links{
			DeconflictionMatches: []model.DeconflictionMatch{
				{Agency: "FBI", ActiveInvestigation: true},
			},
		},
	}

	p := priority.Compute(in)
	assert.Equal(t, model.TierPaused, p.Tier)
}

func TestCompute_OngoingAbuse_FloorsUrgent(t *testing.T) {
	in := priority.Inputs{
		Classification: &model.Classification{
			OffenseCategory: model.OffenseGrooming,
			Severity:        model.Severity{USICAC: model.SeverityP4Low},
			OngoingAbuse:    true,
		},
	}

	p := priority.Compute(in)
	assert.Equal(t, model.TierUrgent, p.Tier)
	assert.GreaterOrEqual(t, p.Score, 65)
}

func TestCompute_LowSeverityDefaultsToMonitor(t *testing.T) {
	in := priority.Inputs{
		Classification: &model.Classification{
			OffenseCategory: model.OffenseOther,
			Severity:        model.Severity{USICAC: model.SeverityP4Low},
		},
	}

	p := priority.Compute(in)
	assert.Equal(t, model.TierMonitor, p.Tier)
	assert.False(t, p.SupervisorAlert)
}

func TestEngine_Run_ProposesPreservationRequestsForKnownESPs(t *testing.T) {
	e := priority.NewEngine(nil, nil)
	receivedAt, err := time.Parse(time.RFC3339, "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	in := priority.Inputs{
		Reporter: model.Reporter{Kind: model.ReporterESP, ESPName: "Meta"},
		Extracted: &model.ExtractedEntities{
			Platforms: []string{"Discord", "UnknownPlatformXYZ"},
		},
	}

	_, reqs, entry := e.Run(context.Background(), "tip-1", receivedAt, in)
	require.Len(t, reqs, 2)
	assert.Equal(t, "Meta", reqs[0].ESPName)
	assert.Equal(t, "Discord", reqs[1].ESPName)
	assert.True(t, reqs[0].AutoGenerated)
	assert.Equal(t, model.PreservationDraft, reqs[0].Status)
	assert.NotNil(t, reqs[0].Deadline)
	assert.Equal(t, model.EntrySuccess, entry.Status)
}

package orchestrator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertip/triage/pkg/audit"
	"github.com/cybertip/triage/pkg/harness"
	"github.com/cybertip/triage/pkg/legal"
	"github.com/cybertip/triage/pkg/llm"
	"github.com/cybertip/triage/pkg/model"
	"github.com/cybertip/triage/pkg/orchestrator"
	"github.com/cybertip/triage/pkg/priority"
	"github.com/cybertip/triage/pkg/repository"
	"github.com/cybertip/triage/pkg/retry"
)

// scriptedClient replies with canned JSON keyed by a substring of the
// outbound system prompt, so a single fake can stand in for every stage's
// oracle client in one test.
type scriptedClient struct {
	byPromptSubstr map[string]string
	fallback       string
}

func (c *scriptedClient) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolDefinition, opts *llm.SamplingOptions) (*llm.Response, error) {
	system := ""
	if len(msgs) > 0 {
		system = msgs[0].Content
	}
	for substr, reply := range c.byPromptSubstr {
		if contains(system, substr) {
			return &llm.Response{Content: reply}, nil
		}
	}
	return &llm.Response{Content: c.fallback}, nil
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (substr == "" || indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func zeroJitterPolicy() retry.Policy {
	return retry.Policy{BaseMs: 1, MaxMs: 2, MaxJitterMs: 0, MaxAttempts: 2}
}

func happyPathClient() *scriptedClient {
	return &scriptedClient{byPromptSubstr: map[string]string{
		"enrich the legal note":       `{"confidence": 0.95, "exigent_possibility": false, "note_enrichment": "reviewed"}`,
		"Extract victim age ranges":   `{"victim_age_ranges": ["13-15"], "usernames": ["user1"], "platforms": ["Meta"]}`,
		"hash/OSINT watchlist":        `{"per_file_results": [{"file_id": "f1", "ncmec_hash_match": true}]}`,
		"Classify the offense":        `{"offense_category": "CSAM", "severity": {"us_icac": "P2_HIGH"}, "ongoing_abuse_indicator": false, "confidence": 0.9}`,
		"deconfliction matches":       `{"deconfliction_matches": []}`,
		"produce a one-sentence rationale": `{"rationale": "elevated due to known-content hash match"}`,
	}}
}

func baseTip(tipID string) model.Tip {
	return model.Tip{
		TipID:          tipID,
		NormalizedBody: "report body text",
		Reporter:       model.Reporter{Kind: model.ReporterESP, ESPName: "Meta"},
		Files: []model.TipFile{
			{FileID: "f1", MediaType: model.MediaImage, ESPViewed: true},
		},
	}
}

func newOrchestrator(t *testing.T, client *scriptedClient) (*orchestrator.Orchestrator, repository.Repository) {
	t.Helper()
	h := harness.New(llm.NewRouter(client, client)).WithPolicy(zeroJitterPolicy())
	legalRef := legal.New()
	prio := priority.NewEngine(h, priority.DefaultRetentionTable)
	repo := repository.NewMemoryRepository()
	store := audit.NewStore()
	cfg := orchestrator.DefaultConfig()
	return orchestrator.New(h, legalRef, prio, repo, store, orchestrator.NewEventBus(), cfg), repo
}

func TestProcess_HappyPath_TriagesWithEnrichment(t *testing.T) {
	o, _ := newOrchestrator(t, happyPathClient())

	out, err := o.Process(context.Background(), baseTip("tip-1"), "")
	require.NoError(t, err)

	assert.Equal(t, model.StatusTriaged, out.Status)
	require.NotNil(t, out.Classification)
	assert.Equal(t, model.OffenseCSAM, out.Classification.OffenseCategory)
	// child-safety floor: CSAM + age range 13-15 forces P1_CRITICAL regardless
	// of the oracle's P2_HIGH call.
	assert.Equal(t, model.SeverityP1Critical, out.Classification.Severity.USICAC)
	require.NotNil(t, out.Priority)
	assert.Equal(t, model.TierImmediate, out.Priority.Tier)
	require.NotNil(t, out.LegalStatus)
	assert.False(t, out.Files[0].FileAccessBlocked)
	assert.NotEmpty(t, out.Audit)
}

func TestProcess_MalformedOracleOutput_EnrichmentFieldsLeftUnsetButPipelineCompletes(t *testing.T) {
	client := &scriptedClient{fallback: "not json at all, transport fine but garbage"}
	o, repo := newOrchestrator(t, client)

	tip := baseTip("tip-2")
	tip.Files[0].ESPViewed = false
	tip.Files[0].PubliclyAvailable = false

	out, err := o.Process(context.Background(), tip, "")
	require.NoError(t, err)

	// Every stage's schema-validated extraction fails on the garbage reply,
	// so each enrichment field is left unset rather than populated with
	// nonsense, matching the per-stage structured-outcome policy.
	assert.Nil(t, out.Classification)
	assert.Nil(t, out.Extracted)
	assert.Equal(t, model.StatusTriaged, out.Status)

	stored, err := repo.Get(context.Background(), "tip-2")
	require.NoError(t, err)
	assert.Equal(t, out.Status, stored.Status)
}

func TestProcess_ActiveDeconfliction_PausesTip(t *testing.T) {
	client := happyPathClient()
	client.byPromptSubstr["deconfliction matches"] = `{"deconfliction_matches": [{"agency": "FBI", "case_reference": "C-1", "active_investigation": true}]}`
	o, _ := newOrchestrator(t, client)

	out, err := o.Process(context.Background(), baseTip("tip-3"), "")
	require.NoError(t, err)

	require.NotNil(t, out.Priority)
	assert.Equal(t, model.TierPaused, out.Priority.Tier)
	assert.Equal(t, model.StatusPending, out.Status)
}

func TestProcess_DemoBypass_SkipsOracleStagesEntirely(t *testing.T) {
	cfg := orchestrator.DefaultConfig()
	cfg.DemoBypass = true
	o := orchestrator.New(nil, legal.New(), priority.NewEngine(nil, priority.DefaultRetentionTable), repository.NewMemoryRepository(), audit.NewStore(), orchestrator.NewEventBus(), cfg)

	out, err := o.Process(context.Background(), baseTip("tip-4"), "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusTriaged, out.Status)
	assert.Nil(t, out.Classification)
}

func TestEventBus_PublishesStageTransitions(t *testing.T) {
	client := happyPathClient()
	o, _ := newOrchestrator(t, client)

	ch := make(chan orchestrator.Event, 64)
	o.Events().Subscribe("tip-5", ch)
	defer o.Events().Unsubscribe("tip-5", ch)

	_, err := o.Process(context.Background(), baseTip("tip-5"), "")
	require.NoError(t, err)

	var sawComplete bool
	for {
		select {
		case e := <-ch:
			if e.Step == orchestrator.StepComplete {
				sawComplete = true
			}
		default:
			goto done
		}
	}
done:
	assert.True(t, sawComplete)
}

package legal_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertip/triage/pkg/legal"
	"github.com/cybertip/triage/pkg/model"
)

func TestHydrate_LoadsBundledRuleset(t *testing.T) {
	ref, err := legal.Hydrate("../../legalrules/circuits.yaml")
	require.NoError(t, err)

	circuit, ok := ref.CircuitForState("CA")
	require.True(t, ok)
	assert.Equal(t, "9th", circuit)

	rule, ok := ref.Lookup("9th")
	require.True(t, ok)
	assert.Equal(t, model.ApplicationNoPrecedentConservative, rule.ApplicationMode)

	statutes := ref.StatutesFor(model.OffenseCSAM, true, false)
	assert.Contains(t, statutes, "18 U.S.C. § 2251")
}

func TestHydrate_RejectsIncompatibleVersion(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.yaml"
	require.NoError(t, writeFile(path, "version: \"2.0\"\ncircuit_map: {}\ncircuits: {}\n"))

	_, err := legal.Hydrate(path)
	assert.Error(t, err)
}

func TestRecordPrecedentUpdate_NowBindingMutatesRuleLive(t *testing.T) {
	ref, err := legal.Hydrate("../../legalrules/circuits.yaml")
	require.NoError(t, err)

	before, _ := ref.Lookup("9th")
	assert.Equal(t, model.ApplicationNoPrecedentConservative, before.ApplicationMode)

	ref.RecordPrecedentUpdate(model.PrecedentUpdate{
		Date:     time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Circuit:  "9th",
		CaseName: "United States v. Example",
		Citation: "123 F.4th 456 (9th Cir. 2026)",
		Effect:   model.EffectNowBinding,
		Summary:  "Established binding rule on file-access standard.",
		Actor:    "supervisor-1",
	})

	after, ok := ref.Lookup("9th")
	require.True(t, ok)
	assert.Equal(t, model.ApplicationStrict, after.ApplicationMode)
	assert.Equal(t, "123 F.4th 456 (9th Cir. 2026)", after.BindingPrecedent)

	log := ref.PrecedentLog()
	require.Len(t, log, 1)
	assert.Equal(t, "United States v. Example", log[0].CaseName)
}

func TestRecordPrecedentUpdate_NonBindingLeavesRuleUnchanged(t *testing.T) {
	ref, err := legal.Hydrate("../../legalrules/circuits.yaml")
	require.NoError(t, err)

	before, _ := ref.Lookup("5th")
	ref.RecordPrecedentUpdate(model.PrecedentUpdate{
		Circuit: "5th",
		Effect:  model.EffectAffirmed,
	})
	after, _ := ref.Lookup("5th")
	assert.Equal(t, before.ApplicationMode, after.ApplicationMode)

	log := ref.PrecedentLog()
	require.Len(t, log, 1)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

package wilson_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertip/triage/pkg/model"
	"github.com/cybertip/triage/pkg/wilson"
)

func TestDecide_PubliclyAvailable_NoWarrant(t *testing.T) {
	f := &model.TipFile{FileID: "f1", PubliclyAvailable: true}
	wilson.Decide(f)
	assert.False(t, f.WarrantRequired)
	assert.False(t, f.FileAccessBlocked)
}

func TestDecide_ESPViewed_NoWarrant(t *testing.T) {
	f := &model.TipFile{FileID: "f1", ESPViewed: true, ESPViewedMissing: false}
	wilson.Decide(f)
	assert.False(t, f.WarrantRequired)
}

func TestDecide_AmbiguousViewing_RequiresWarrant(t *testing.T) {
	f := &model.TipFile{FileID: "f1", ESPViewed: true, ESPViewedMissing: true}
	wilson.Decide(f)
	assert.True(t, f.WarrantRequired)
	assert.True(t, f.FileAccessBlocked)
}

func TestDecide_DefaultRequiresWarrant(t *testing.T) {
	f := &model.TipFile{FileID: "f1"}
	wilson.Decide(f)
	assert.True(t, f.WarrantRequired)
	assert.Equal(t, model.WarrantPendingApplication, f.WarrantStatus)
	assert.True(t, f.FileAccessBlocked)
}

func TestDecide_GrantedWarrant_Unblocks(t *testing.T) {
	f := &model.TipFile{FileID: "f1", WarrantStatus: model.WarrantGranted}
	wilson.Decide(f)
	assert.True(t, f.WarrantRequired)
	assert.False(t, f.FileAccessBlocked)
}

type fakeRules struct{ rule model.CircuitRule }

func (f fakeRules) Lookup(circuit string) (model.CircuitRule, bool) {
	if circuit == f.rule.Circuit {
		return f.rule, true
	}
	return model.CircuitRule{}, false
}

func TestRun_AssemblesLegalStatus(t *testing.T) {
	files := []model.TipFile{
		{FileID: "f1", PubliclyAvailable: true},
		{FileID: "f2"},
	}
	rules := fakeRules{rule: model.CircuitRule{
		Circuit: "9th", ApplicationMode: model.ApplicationStrict,
		BindingPrecedent: "United States v. Example", FileAccessStandard: "warrant required absent consent",
	}}

	status := wilson.Run(files, "9th", rules)
	require.Equal(t, []string{"f2"}, status.FileIDsRequiringWarrant)
	assert.False(t, status.AllWarrantsResolved)
	assert.True(t, status.AnyFilesAccessible)
	assert.Contains(t, status.LegalNote, "9th")
	assert.Contains(t, status.LegalNote, "United States v. Example")
	assert.Equal(t, "9th", status.RelevantCircuit)
	assert.False(t, status.ExigentCircumstancesClaimed)
}

func TestHardBlockResult_ForcesAllFilesBlocked(t *testing.T) {
	files := []model.TipFile{
		{FileID: "f1", PubliclyAvailable: true},
		{FileID: "f2", WarrantStatus: model.WarrantGranted},
	}
	status, blocked := wilson.HardBlockResult(files, "transport failure")
	assert.False(t, status.AnyFilesAccessible)
	assert.False(t, status.AllWarrantsResolved)
	assert.Len(t, status.FileIDsRequiringWarrant, 2)
	for _, f := range blocked {
		assert.True(t, f.WarrantRequired)
		assert.True(t, f.FileAccessBlocked)
	}
	assert.Contains(t, status.LegalNote, "human legal review")
}

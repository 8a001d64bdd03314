// Package llm provides LLM integration types shared by the router, the
// harness, and each oracle client implementation.
package llm

// ModelFingerprint identifies exactly which oracle answered one Harness
// call, for the model-provenance half of a tip's audit trail: a
// supervisor reviewing a classification or Wilson Gate decision needs to
// know which model version produced it, not just which role band
// ("fast"/"high") the harness dispatched to. Populated by Harness.Invoke
// from Router.ModelID when the underlying Client reports one; left zero
// for clients (including every test stub) that don't implement
// ModelIdentifier.
type ModelFingerprint struct {
	ProviderID string `json:"provider_id,omitempty"`
	ModelID    string `json:"model_id,omitempty"`
}

// Package legal serves the reference data consulted by the Wilson Gate and
// surfaced in legal notes: the circuit map, per-circuit rules, the statute
// lookup, and the append-mostly precedent log.
//
// Reads are lock-free snapshots; writes (precedent updates) are
// copy-on-write at the rule-record granularity, following the
// reader-majority pattern the jurisdiction resolver uses elsewhere in this
// lineage.
package legal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cybertip/triage/pkg/model"
)

// Reference serves circuit rules, the statute lookup, and the precedent log.
type Reference struct {
	mu    sync.Mutex // guards precedent log writes and rule swaps
	rules atomic.Pointer[map[string]model.CircuitRule]
	log   []model.PrecedentUpdate
	logMu sync.RWMutex

	circuitMap map[string]string // state code -> circuit label
	statutes   StatuteBook
}

// New creates an empty Reference. Use Hydrate to seed it.
func New() *Reference {
	r := &Reference{circuitMap: map[string]string{}}
	empty := map[string]model.CircuitRule{}
	r.rules.Store(&empty)
	return r
}

// Lookup satisfies wilson.CircuitRuleLookup.
func (r *Reference) Lookup(circuit string) (model.CircuitRule, bool) {
	rules := *r.rules.Load()
	rule, ok := rules[circuit]
	return rule, ok
}

// CircuitForState resolves a state/territory code to its federal circuit
// label via the static circuit map.
func (r *Reference) CircuitForState(stateCode string) (string, bool) {
	c, ok := r.circuitMap[stateCode]
	return c, ok
}

// PrecedentLog returns a snapshot of the append-only precedent log.
func (r *Reference) PrecedentLog() []model.PrecedentUpdate {
	r.logMu.RLock()
	defer r.logMu.RUnlock()
	out := make([]model.PrecedentUpdate, len(r.log))
	copy(out, r.log)
	return out
}

// RecordPrecedentUpdate appends entry to the log and, if its effect is
// now_binding, mutates the matching circuit rule in place: application
// becomes strict, binding_precedent is updated, last_reviewed advances.
// The mutation is live — the next Wilson Gate decision observes it
// immediately because Lookup always reads the current atomic snapshot.
func (r *Reference) RecordPrecedentUpdate(entry model.PrecedentUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logMu.Lock()
	r.log = append(r.log, entry)
	r.logMu.Unlock()

	if entry.Effect != model.EffectNowBinding {
		return
	}

	current := *r.rules.Load()
	next := make(map[string]model.CircuitRule, len(current))
	for k, v := range current {
		next[k] = v
	}
	rule := next[entry.Circuit]
	rule.Circuit = entry.Circuit
	rule.ApplicationMode = model.ApplicationStrict
	rule.BindingPrecedent = entry.Citation
	rule.LastReviewed = entry.Date
	if rule.LastReviewed.IsZero() {
		rule.LastReviewed = time.Now().UTC()
	}
	next[entry.Circuit] = rule
	r.rules.Store(&next)
}

// StatutesFor returns the applicable statute citations for an offense
// category, honoring the minor-victim and AIG-CSAM flags.
func (r *Reference) StatutesFor(category model.OffenseCategory, minorVictim, aigSuspected bool) []string {
	return r.statutes.Lookup(category, minorVictim, aigSuspected)
}

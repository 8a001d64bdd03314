package legal

import (
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/cybertip/triage/pkg/model"
)

// RulesetVersion is the ruleset schema version this build understands.
// Hydrate rejects files declaring an incompatible major version.
const RulesetVersion = "1.x"

// ruleFile is the on-disk shape of the YAML ruleset named by LEGAL_RULES_PATH.
type ruleFile struct {
	Version    string                  `yaml:"version"`
	CircuitMap map[string]string       `yaml:"circuit_map"`
	Circuits   map[string]circuitEntry `yaml:"circuits"`
	Statutes   []statuteEntry          `yaml:"statutes"`
}

type circuitEntry struct {
	BindingPrecedent   string `yaml:"binding_precedent"`
	ApplicationMode    string `yaml:"application_mode"`
	FileAccessStandard string `yaml:"file_access_standard"`
	LastReviewed       string `yaml:"last_reviewed"`
}

type statuteEntry struct {
	Category     string   `yaml:"category"`
	MinorOnly    bool     `yaml:"minor_only"`
	AIGOnly      bool     `yaml:"aig_only"`
	Citations    []string `yaml:"citations"`
}

// Hydrate loads the circuit map, per-circuit rules, and statute book from a
// YAML file at path. It is called once at startup (LEGAL_RULES_PATH).
func Hydrate(path string) (*Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("legal: read ruleset %s: %w", path, err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("legal: parse ruleset %s: %w", path, err)
	}

	if err := checkRulesetVersion(file.Version); err != nil {
		return nil, err
	}

	r := New()
	r.circuitMap = file.CircuitMap
	if r.circuitMap == nil {
		r.circuitMap = map[string]string{}
	}

	rules := make(map[string]model.CircuitRule, len(file.Circuits))
	for label, entry := range file.Circuits {
		reviewed, _ := time.Parse("2006-01-02", entry.LastReviewed)
		rules[label] = model.CircuitRule{
			Circuit:            label,
			BindingPrecedent:   entry.BindingPrecedent,
			ApplicationMode:    model.CircuitApplicationMode(entry.ApplicationMode),
			FileAccessStandard: entry.FileAccessStandard,
			LastReviewed:       reviewed,
		}
	}
	r.rules.Store(&rules)

	r.statutes = buildStatuteBook(file.Statutes)

	return r, nil
}

// checkRulesetVersion enforces that the YAML's declared version is
// compatible with RulesetVersion (same major version).
func checkRulesetVersion(declared string) error {
	if declared == "" {
		return fmt.Errorf("legal: ruleset missing version field")
	}
	constraint, err := semver.NewConstraint("^" + stripMajorWildcard(RulesetVersion))
	if err != nil {
		return fmt.Errorf("legal: invalid internal version constraint: %w", err)
	}
	v, err := semver.NewVersion(declared)
	if err != nil {
		return fmt.Errorf("legal: ruleset declares unparseable version %q: %w", declared, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("legal: ruleset version %s incompatible with supported %s", declared, RulesetVersion)
	}
	return nil
}

func stripMajorWildcard(v string) string {
	// "1.x" -> "1.0.0" as the floor of the compatible range.
	for i := 0; i < len(v); i++ {
		if v[i] == '.' && i+1 < len(v) && v[i+1] == 'x' {
			return v[:i+1] + "0.0"
		}
	}
	return v
}

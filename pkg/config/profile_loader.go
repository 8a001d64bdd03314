package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// JurisdictionOpsProfile is operational policy for one jurisdiction code,
// layered on top of the per-circuit legal rules pkg/legal hydrates: how
// long a draft preservation request must wait for supervisor override
// before auto-issuing, where evidence export packs may be sent, what
// encryption an export requires, and how long records must be retained.
type JurisdictionOpsProfile struct {
	Name       string           `yaml:"name" json:"name"`
	Code       string           `yaml:"code" json:"code"`
	Approval   ApprovalPolicy   `yaml:"approval" json:"approval"`
	Export     ExportPolicy     `yaml:"export" json:"export"`
	Encryption string           `yaml:"encryption" json:"encryption"`
	Retention  RetentionPolicy  `yaml:"retention" json:"retention"`
}

// ApprovalPolicy governs the hold window before an auto-generated
// preservation request is allowed to issue without an explicit human
// approver (§4.4: "auto-generated... issued after a hold window unless a
// supervisor intervenes").
type ApprovalPolicy struct {
	HoldMs            int  `yaml:"hold_ms" json:"hold_ms"`
	RequireSecondApprover bool `yaml:"require_second_approver" json:"require_second_approver"`
}

// ExportPolicy controls which evidence-export destinations this
// jurisdiction permits (§4.6 evidence pack export, DOMAIN STACK sinks).
type ExportPolicy struct {
	Mode      string   `yaml:"mode" json:"mode"` // "allowlist" | "denylist" | "none"
	Allowlist []string `yaml:"allowlist,omitempty" json:"allowlist,omitempty"`
	Denylist  []string `yaml:"denylist,omitempty" json:"denylist,omitempty"`
}

// RetentionPolicy defines how long audit records and evidence must be kept.
type RetentionPolicy struct {
	AuditLogDays    int `yaml:"audit_log_days" json:"audit_log_days"`
	EvidenceDays    int `yaml:"evidence_days" json:"evidence_days"`
}

// LoadJurisdictionProfile loads a jurisdiction ops profile YAML by code.
// It searches profilesDir for profile_<code>.yaml.
func LoadJurisdictionProfile(profilesDir, code string) (*JurisdictionOpsProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load jurisdiction profile %q: %w", code, err)
	}

	var profile JurisdictionOpsProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("config: parse jurisdiction profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}
	return &profile, nil
}

// LoadAllJurisdictionProfiles loads every profile_*.yaml in profilesDir.
func LoadAllJurisdictionProfiles(profilesDir string) (map[string]*JurisdictionOpsProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*JurisdictionOpsProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}

		var profile JurisdictionOpsProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}

		if profile.Code == "" {
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		profiles[profile.Code] = &profile
	}

	return profiles, nil
}

// IsExportBlocked reports whether destination is blocked by this profile's
// export policy.
func (p *JurisdictionOpsProfile) IsExportBlocked(destination string) bool {
	switch p.Export.Mode {
	case "none":
		return true
	case "allowlist":
		for _, d := range p.Export.Allowlist {
			if d == destination {
				return false
			}
		}
		return true
	case "denylist":
		for _, d := range p.Export.Denylist {
			if d == destination {
				return true
			}
		}
		return false
	default:
		return false
	}
}

package priority

// RetentionTable maps an ESP/platform name to its preservation retention
// window in days. Per spec.md §9 Open Questions, exact retention-day
// constants per ESP are reference data, not core logic, so this table is a
// plain value the caller can override or reload — never a hardcoded switch.
type RetentionTable map[string]int

// DefaultRetentionTable is a small seed table covering the platforms that
// appear most often in CyberTip traffic. Deployments are expected to
// override it with data sourced from each ESP's published transparency
// report or legal-process guidelines.
var DefaultRetentionTable = RetentionTable{
	"Meta":      90,
	"Facebook":  90,
	"Instagram": 90,
	"WhatsApp":  90,
	"Google":    180,
	"YouTube":   180,
	"Snap":      30,
	"Snapchat":  30,
	"Discord":   90,
	"TikTok":    90,
	"Microsoft": 180,
	"Kik":       60,
}

// DaysFor returns the retention window for name and whether it is known.
func (t RetentionTable) DaysFor(name string) (int, bool) {
	d, ok := t[name]
	return d, ok
}

package legal

import "github.com/cybertip/triage/pkg/model"

type statuteRule struct {
	category  model.OffenseCategory
	minorOnly bool
	aigOnly   bool
	citations []string
}

// StatuteBook answers the per-category statute lookup.
type StatuteBook struct {
	rules []statuteRule
}

func buildStatuteBook(entries []statuteEntry) StatuteBook {
	book := StatuteBook{rules: make([]statuteRule, 0, len(entries))}
	for _, e := range entries {
		book.rules = append(book.rules, statuteRule{
			category:  model.OffenseCategory(e.Category),
			minorOnly: e.MinorOnly,
			aigOnly:   e.AIGOnly,
			citations: e.Citations,
		})
	}
	return book
}

// Lookup returns the citations applicable to category given whether a
// minor victim and/or AIG-CSAM suspicion applies. A rule requiring
// minor_only or aig_only is skipped unless the corresponding flag is set.
func (b StatuteBook) Lookup(category model.OffenseCategory, minorVictim, aigSuspected bool) []string {
	var out []string
	for _, r := range b.rules {
		if r.category != category {
			continue
		}
		if r.minorOnly && !minorVictim {
			continue
		}
		if r.aigOnly && !aigSuspected {
			continue
		}
		out = append(out, r.citations...)
	}
	return out
}

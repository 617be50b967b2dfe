package registry

import "strings"

// classifyRule is one ordered pattern test. Rules run top to bottom and the
// first match wins; reordering changes classification results, so the
// sequence below is fixed and pinned by tests.
type classifyRule struct {
	pattern string
	slug    string
}

// classifyRules is the documented match sequence for asset-type strings.
// Native coin first, then registered module addresses, then ticker suffixes.
var classifyRules = []classifyRule{
	{NativeCoinType, "native"},
	{EchelonAddress, "echelon"},
	{MeridianAddress, "meridian"},
	{CanopyAddress, "canopy"},
	{MirageAddress, "mirage"},
	{TruFinAddress, "trufin"},
	{"::lp_coin::", "meridian"},
	{"::vault_share::", "canopy"},
	{"::musd::", "mirage"},
	{"::stmove::", "trufin"},
}

// Classify maps a Move asset-type string to a protocol slug.
//
// Unregistered assets appear over time, so a string matching no rule
// classifies as Unknown rather than erroring.
func (r *Registry) Classify(assetType string) string {
	for _, rule := range classifyRules {
		if strings.Contains(assetType, rule.pattern) {
			return rule.slug
		}
	}
	return Unknown
}

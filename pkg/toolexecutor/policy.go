package toolexecutor

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/harun/pymolagent/pkg/capability"
)

const groupPrefix = "group:"

// ToolPolicy defines which capabilities may run. Entries are capability
// names, "group:<group>" or "*".
type ToolPolicy struct {
	Allow []string `json:"allow"` // List of allowed capabilities (* for all)
	Deny  []string `json:"deny"`  // List of denied capabilities (overrides allow)
}

// IsToolAllowed checks if a capability is allowed by the policy
func (tp *ToolPolicy) IsToolAllowed(toolName string) bool {
	if tp == nil {
		// No policy means allow all
		return true
	}

	// Check deny list first (overrides allow list)
	for _, denied := range tp.Deny {
		if matches(denied, toolName) {
			return false
		}
	}

	for _, allowed := range tp.Allow {
		if matches(allowed, toolName) {
			return true
		}
	}

	// If no explicit allow, deny by default
	return false
}

func matches(entry, toolName string) bool {
	entry = strings.TrimSpace(entry)
	if entry == "*" || entry == toolName {
		return true
	}
	if group, ok := strings.CutPrefix(entry, groupPrefix); ok {
		return string(capability.Kind(toolName).Group()) == group
	}
	return false
}

// ValidatePolicy warns about policies that deny everything. Unknown names
// and groups are reported so that typos do not pass silently.
func ValidatePolicy(policy *ToolPolicy) []string {
	if policy == nil {
		return nil
	}

	var warnings []string
	hasAllowWildcard := false
	hasDenyWildcard := false
	check := func(list string, entries []string) {
		for _, entry := range entries {
			switch {
			case entry == "*":
			case strings.HasPrefix(entry, groupPrefix):
				if !knownGroup(strings.TrimPrefix(entry, groupPrefix)) {
					warnings = append(warnings, list+" entry names unknown group: "+entry)
				}
			default:
				if _, ok := capability.Parse(entry); !ok {
					warnings = append(warnings, list+" entry names unknown capability: "+entry)
				}
			}
		}
	}
	check("allow", policy.Allow)
	check("deny", policy.Deny)

	for _, allowed := range policy.Allow {
		if allowed == "*" {
			hasAllowWildcard = true
		}
	}
	for _, denied := range policy.Deny {
		if denied == "*" {
			hasDenyWildcard = true
		}
	}
	if hasAllowWildcard && hasDenyWildcard {
		warnings = append(warnings, "policy has both allow and deny wildcards - deny will override allow")
	}
	if len(policy.Allow) == 0 {
		warnings = append(warnings, "policy has empty allow list - all capabilities will be denied")
	}

	for _, w := range warnings {
		log.Warn().Msg("Capability policy: " + w)
	}
	return warnings
}

func knownGroup(group string) bool {
	for _, kind := range capability.All() {
		if string(kind.Group()) == group {
			return true
		}
	}
	return false
}

// MergePolicies merges multiple policies into one. The result is the
// intersection of all allow lists and the union of all deny lists.
func MergePolicies(policies ...*ToolPolicy) *ToolPolicy {
	validPolicies := []*ToolPolicy{}
	for _, p := range policies {
		if p != nil {
			validPolicies = append(validPolicies, p)
		}
	}

	if len(validPolicies) == 0 {
		return nil
	}
	if len(validPolicies) == 1 {
		return validPolicies[0]
	}

	merged := &ToolPolicy{
		Allow: []string{},
		Deny:  []string{},
	}

	denySet := make(map[string]bool)
	for _, policy := range validPolicies {
		for _, denied := range policy.Deny {
			if !denySet[denied] {
				denySet[denied] = true
				merged.Deny = append(merged.Deny, denied)
			}
		}
	}

	allow := validPolicies[0].Allow
	for i := 1; i < len(validPolicies); i++ {
		other := make(map[string]bool)
		for _, allowed := range validPolicies[i].Allow {
			other[allowed] = true
		}
		kept := []string{}
		for _, allowed := range allow {
			if other[allowed] || other["*"] {
				kept = append(kept, allowed)
			} else if allowed == "*" {
				kept = append(kept, validPolicies[i].Allow...)
			}
		}
		allow = kept
	}

	seen := make(map[string]bool)
	for _, allowed := range allow {
		if !seen[allowed] {
			seen[allowed] = true
			merged.Allow = append(merged.Allow, allowed)
		}
	}

	return merged
}

// FilterToolsByPolicy filters a list of capability names based on a policy
func FilterToolsByPolicy(tools []string, policy *ToolPolicy) []string {
	if policy == nil {
		return tools
	}

	filtered := []string{}
	for _, tool := range tools {
		if policy.IsToolAllowed(tool) {
			filtered = append(filtered, tool)
		}
	}

	return filtered
}

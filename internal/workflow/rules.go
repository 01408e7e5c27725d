package workflow

import (
	"regexp"
	"strings"

	"outreach-platform/internal/campaign"
)

// Rule is one reply-matching predicate. Rules are evaluated in declaration
// order against normalized input; the first match wins.
type Rule struct {
	Match string // equals | contains | regex | starts_with | any
	Value string
	Edge  string

	// Status optionally promotes the lead when this rule matches.
	Status string
}

const (
	MatchEquals     = "equals"
	MatchContains   = "contains"
	MatchRegex      = "regex"
	MatchStartsWith = "starts_with"
	MatchAny        = "any"
)

// normalizeInput trims and lower-cases a reply before matching.
func normalizeInput(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Matches reports whether the normalized input satisfies the rule. A regex
// that fails to compile is treated as non-matching, not fatal.
func (r Rule) Matches(input string) bool {
	value := normalizeInput(r.Value)
	switch r.Match {
	case MatchAny:
		return true
	case MatchEquals:
		return input == value
	case MatchContains:
		return strings.Contains(input, value)
	case MatchStartsWith:
		return strings.HasPrefix(input, value)
	case MatchRegex:
		re, err := regexp.Compile(r.Value)
		if err != nil {
			return false
		}
		return re.MatchString(input)
	default:
		return false
	}
}

// SelectEdge evaluates rules in order against input. No match routes to the
// reserved fallback edge.
func SelectEdge(rules []Rule, input string) (edge string, status string) {
	normalized := normalizeInput(input)
	for _, r := range rules {
		if r.Matches(normalized) {
			return r.Edge, r.Status
		}
	}
	return campaign.EdgeFallback, ""
}

// rulesFromConfig decodes the ordered rule list from node configuration.
// Entries that are not maps are skipped.
func rulesFromConfig(cfg map[string]any) []Rule {
	raw, ok := cfg["rules"].([]any)
	if !ok {
		return nil
	}
	out := make([]Rule, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r := Rule{
			Match:  configString(m, "match"),
			Value:  configString(m, "value"),
			Edge:   configString(m, "edge"),
			Status: configString(m, "status"),
		}
		if r.Match == "" {
			continue
		}
		if r.Edge == "" {
			r.Edge = campaign.EdgeOutput0
		}
		out = append(out, r)
	}
	return out
}

func configString(cfg map[string]any, key string) string {
	if cfg == nil {
		return ""
	}
	if s, ok := cfg[key].(string); ok {
		return s
	}
	return ""
}

func configStrings(cfg map[string]any, key string) []string {
	raw, ok := cfg[key].([]any)
	if !ok {
		if ss, ok := cfg[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

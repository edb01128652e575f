package securitytier

import (
	"strings"
	"time"
)

type Level int

const (
	Low Level = iota
	Medium
	High
)

func (l Level) String() string {
	switch l {
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

// Tier bundles the session policy applied to a path classification.
type Tier struct {
	Level                Level
	IdleTimeout          time.Duration
	AbsoluteTimeout      time.Duration
	RequireTrustedDevice bool
}

type rule struct {
	prefix string
	level  Level
}

// Resolver classifies request paths. The table is ordered: HIGH
// prefixes are checked before MEDIUM, everything else is LOW.
type Resolver struct {
	rules []rule
	tiers map[Level]Tier
}

// NewResolver builds a resolver from explicit prefix lists. The prefix
// lists are fixed at startup; Resolve is a pure lookup.
func NewResolver(highPrefixes, mediumPrefixes []string) *Resolver {
	rules := make([]rule, 0, len(highPrefixes)+len(mediumPrefixes))
	for _, p := range highPrefixes {
		rules = append(rules, rule{prefix: p, level: High})
	}
	for _, p := range mediumPrefixes {
		rules = append(rules, rule{prefix: p, level: Medium})
	}

	return &Resolver{
		rules: rules,
		tiers: map[Level]Tier{
			Low: {
				Level:           Low,
				IdleTimeout:     2 * time.Hour,
				AbsoluteTimeout: 24 * time.Hour,
			},
			Medium: {
				Level:           Medium,
				IdleTimeout:     30 * time.Minute,
				AbsoluteTimeout: 12 * time.Hour,
			},
			High: {
				Level:                High,
				IdleTimeout:          10 * time.Minute,
				AbsoluteTimeout:      4 * time.Hour,
				RequireTrustedDevice: true,
			},
		},
	}
}

// NewDefaultResolver carries the clinic platform's path table.
func NewDefaultResolver() *Resolver {
	return NewResolver(
		[]string{
			"/api/admin",
			"/api/prescriptions",
			"/api/audit",
		},
		[]string{
			"/api/patients",
			"/api/triage",
			"/api/records",
		},
	)
}

func (r *Resolver) Resolve(path string) Tier {
	for _, rule := range r.rules {
		if strings.HasPrefix(path, rule.prefix) {
			return r.tiers[rule.level]
		}
	}
	return r.tiers[Low]
}

// Tier returns the policy for a level directly, for callers that have
// already classified the path.
func (r *Resolver) Tier(level Level) Tier {
	return r.tiers[level]
}

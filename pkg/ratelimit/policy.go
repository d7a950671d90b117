package ratelimit

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/tier"
)

// Limit is a parsed rate expression such as "5 per minute".
type Limit struct {
	Count  int64
	Window time.Duration
}

// String renders the limit back into its expression form.
func (l Limit) String() string {
	var unit string
	switch l.Window {
	case time.Minute:
		unit = "minute"
	case time.Hour:
		unit = "hour"
	case 24 * time.Hour:
		unit = "day"
	default:
		return fmt.Sprintf("%d per %s", l.Count, l.Window)
	}
	return fmt.Sprintf("%d per %s", l.Count, unit)
}

// ParseLimit parses expressions of the form "N per minute|hour|day".
// A slash separator ("N/minute") is accepted as shorthand.
func ParseLimit(s string) (Limit, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "/", " per ")
	fields := strings.Fields(norm)
	if len(fields) != 3 || fields[1] != "per" {
		return Limit{}, fmt.Errorf("%w: %q", ErrInvalidLimit, s)
	}

	count, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || count <= 0 {
		return Limit{}, fmt.Errorf("%w: count in %q", ErrInvalidLimit, s)
	}

	var window time.Duration
	switch fields[2] {
	case "minute", "min":
		window = time.Minute
	case "hour", "hr":
		window = time.Hour
	case "day":
		window = 24 * time.Hour
	default:
		return Limit{}, fmt.Errorf("%w: unit in %q", ErrInvalidLimit, s)
	}

	return Limit{Count: count, Window: window}, nil
}

// Policy is the fully scaled admission policy for one check.
type Policy struct {
	Category           string
	Limit              Limit
	BaseCount          int64
	TierMultiplier     float64
	AdaptiveMultiplier float64
	Smooth             bool
}

// DefaultLimits returns the built-in per-category limit table.
func DefaultLimits() map[string]string {
	return map[string]string{
		"auth":         "10 per minute",
		"mood":         "60 per hour",
		"ai":           "20 per hour",
		"memory":       "30 per hour",
		"integration":  "15 per hour",
		"subscription": "10 per hour",
		"admin":        "100 per hour",
		"docs":         "50 per hour",
	}
}

// DefaultLimit is the fallback for endpoints with no category match.
const DefaultLimit = "100 per hour"

// CategoryDefault names the fallback category.
const CategoryDefault = "default"

// Resolver maps endpoints to categories and scales base limits.
type Resolver struct {
	table  map[string]Limit
	def    Limit
	smooth map[string]bool
}

// NewResolver builds a Resolver from limit expressions. Entries in
// overrides replace the built-in table; an empty defaultLimit keeps the
// built-in fallback. Categories listed in smooth are admitted via the
// smooth (GCRA) strategy when the gate has a smooth store.
func NewResolver(overrides map[string]string, defaultLimit string, smooth []string) (*Resolver, error) {
	table := make(map[string]Limit)
	for cat, expr := range DefaultLimits() {
		l, err := ParseLimit(expr)
		if err != nil {
			return nil, err
		}
		table[cat] = l
	}
	for cat, expr := range overrides {
		l, err := ParseLimit(expr)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", cat, err)
		}
		table[cat] = l
	}

	if defaultLimit == "" {
		defaultLimit = DefaultLimit
	}
	def, err := ParseLimit(defaultLimit)
	if err != nil {
		return nil, err
	}

	sm := make(map[string]bool, len(smooth))
	for _, cat := range smooth {
		sm[cat] = true
	}

	return &Resolver{table: table, def: def, smooth: sm}, nil
}

// Category maps an endpoint path to a limit category. The last non-empty
// path segment is checked first; remaining segments are scanned right to
// left so "/api/mood/log" lands in the mood category. No match yields
// CategoryDefault.
func (r *Resolver) Category(endpoint string) string {
	path := endpoint
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segments := strings.FieldsFunc(path, func(c rune) bool { return c == '/' })
	for i := len(segments) - 1; i >= 0; i-- {
		seg := strings.ToLower(segments[i])
		if _, ok := r.table[seg]; ok {
			return seg
		}
	}
	return CategoryDefault
}

// Resolve produces the effective policy for a category: the base limit
// scaled by the tier and adaptive multipliers, rounded up.
func (r *Resolver) Resolve(category string, t tier.Tier, adaptive float64) Policy {
	base, ok := r.table[category]
	if !ok {
		base = r.def
	}
	if adaptive < 1.0 {
		adaptive = 1.0
	}

	tm := t.Multiplier()
	count := int64(math.Ceil(float64(base.Count) * tm * adaptive))

	return Policy{
		Category:           category,
		Limit:              Limit{Count: count, Window: base.Window},
		BaseCount:          base.Count,
		TierMultiplier:     tm,
		AdaptiveMultiplier: adaptive,
		Smooth:             r.smooth[category],
	}
}

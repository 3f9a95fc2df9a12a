// Package trend derives monthly enforcement-rate series from artifacts.
package trend

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rentguard/rentguard-cli/internal/model"
)

// FallbackSeries is returned by Monthly when there are no artifacts, so that
// a portfolio view always has something to plot.
var FallbackSeries = []model.TrendPoint{
	{Period: "Mar 2024", EnforcementRate: 18.5, Enforced: 37, Total: 200},
	{Period: "Apr 2024", EnforcementRate: 21.2, Enforced: 45, Total: 212},
	{Period: "May 2024", EnforcementRate: 19.0, Enforced: 41, Total: 216},
	{Period: "Jun 2024", EnforcementRate: 22.5, Enforced: 50, Total: 222},
}

// Fallback returns a copy of FallbackSeries.
func Fallback() []model.TrendPoint {
	out := make([]model.TrendPoint, len(FallbackSeries))
	copy(out, FallbackSeries)
	return out
}

// timestampLayouts are tried in order. Zone-less values are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp reads an artifact timestamp. The second result is false when
// no known layout matches. An empty or blank timestamp counts as unparseable,
// so Monthly leaves such artifacts out of every period.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// IsEnforced reports whether art counts toward the enforced total: its status
// is anything other than CLEAR (case-insensitive) or it carries an action.
// An empty status is not enforcement by itself.
func IsEnforced(art model.Artifact) bool {
	status := strings.TrimSpace(art.Status)
	if status != "" && !strings.EqualFold(status, model.StatusClear) {
		return true
	}
	return strings.TrimSpace(art.Action) != ""
}

// Rate is the one-decimal percentage of enforced over total.
func Rate(enforced, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(enforced)/float64(total)*1000) / 10
}

type bucket struct {
	month    time.Time
	enforced int
	total    int
}

// Monthly groups artifacts by UTC calendar month of their timestamp and
// returns one point per month, oldest first. Artifacts whose timestamp cannot
// be parsed are ignored. With no artifacts at all it returns Fallback().
//
// If every artifact has an unparseable timestamp the result is empty, not the
// fallback.
func Monthly(arts []model.Artifact) []model.TrendPoint {
	if len(arts) == 0 {
		return Fallback()
	}

	buckets := make(map[string]*bucket)
	for _, art := range arts {
		ts, ok := ParseTimestamp(art.Timestamp)
		if !ok {
			continue
		}
		key := ts.Format("2006-01")
		b, exists := buckets[key]
		if !exists {
			b = &bucket{month: time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)}
			buckets[key] = b
		}
		b.total++
		if IsEnforced(art) {
			b.enforced++
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	points := make([]model.TrendPoint, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		points = append(points, model.TrendPoint{
			Period:          b.month.Format("Jan 2006"),
			EnforcementRate: Rate(b.enforced, b.total),
			Enforced:        b.enforced,
			Total:           b.total,
		})
	}
	return points
}

// Summarize totals a series and compares its last two periods.
func Summarize(points []model.TrendPoint) model.TrendSummary {
	sum := model.TrendSummary{Periods: len(points), Direction: model.TrendFlat}
	for _, p := range points {
		sum.Enforced += p.Enforced
		sum.Total += p.Total
	}
	sum.OverallRate = Rate(sum.Enforced, sum.Total)

	if len(points) == 0 {
		return sum
	}
	sum.LatestRate = points[len(points)-1].EnforcementRate
	if len(points) < 2 {
		return sum
	}

	sum.Delta = math.Round((sum.LatestRate-points[len(points)-2].EnforcementRate)*10) / 10
	switch {
	case sum.Delta > 0:
		sum.Direction = model.TrendUp
	case sum.Delta < 0:
		sum.Direction = model.TrendDown
	}
	return sum
}

package trend

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/rentguard/rentguard-cli/internal/model"
)

var genArtifact = gopter.CombineGens(
	gen.IntRange(0, 47),
	gen.IntRange(1, 28),
	gen.OneConstOf("CLEAR", "clear", "NOTICE_REQUIRED", "ESCALATE", ""),
	gen.OneConstOf("", "", "SEND_NOTICE"),
).Map(func(v []interface{}) model.Artifact {
	month := time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, v[0].(int), 0)
	ts := time.Date(month.Year(), month.Month(), v[1].(int), 12, 0, 0, 0, time.UTC)
	return model.Artifact{
		ArtifactID: fmt.Sprintf("a-%d-%d", v[0], v[1]),
		Status:     v[2].(string),
		Action:     v[3].(string),
		Timestamp:  ts.Format(time.RFC3339),
	}
})

// TestMonthlyRateBoundsProperty checks that every rate is a one-decimal
// percentage in [0, 100] and that counts add up.
func TestMonthlyRateBoundsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("rates are bounded and rounded", prop.ForAll(
		func(arts []model.Artifact) bool {
			total := 0
			for _, p := range Monthly(arts) {
				if p.EnforcementRate < 0 || p.EnforcementRate > 100 {
					return false
				}
				if math.Abs(p.EnforcementRate*10-math.Round(p.EnforcementRate*10)) > 1e-9 {
					return false
				}
				if p.Enforced > p.Total || p.Total == 0 {
					return false
				}
				total += p.Total
			}
			return len(arts) == 0 || total == len(arts)
		},
		gen.SliceOf(genArtifact),
	))

	properties.TestingRun(t)
}

// TestMonthlyChronologicalProperty checks that output months are strictly
// increasing whatever the input order.
func TestMonthlyChronologicalProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("months strictly increase", prop.ForAll(
		func(arts []model.Artifact) bool {
			points := Monthly(arts)
			for i := 1; i < len(points); i++ {
				prev, err1 := time.Parse("Jan 2006", points[i-1].Period)
				cur, err2 := time.Parse("Jan 2006", points[i].Period)
				if err1 != nil || err2 != nil || !prev.Before(cur) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(30, genArtifact),
	))

	properties.Property("input order does not matter", prop.ForAll(
		func(arts []model.Artifact) bool {
			reversed := make([]model.Artifact, len(arts))
			for i, a := range arts {
				reversed[len(arts)-1-i] = a
			}
			a, b := Monthly(arts), Monthly(reversed)
			if len(a) != len(b) {
				return false
			}
			for i := range a {
				if a[i] != b[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genArtifact),
	))

	properties.TestingRun(t)
}

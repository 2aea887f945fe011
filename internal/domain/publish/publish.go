// Package publish decides when a study's comparison data supports a
// publishable ranking.
package publish

import (
	"math"

	"github.com/scAIentist/sciblind-sub001/internal/domain/graph"
	"github.com/scAIentist/sciblind-sub001/internal/domain/model"
)

// defaultConfirmationMargin is how far past the publishable thresholds the
// exposure and volume counts must go before a study counts as confirmed.
const defaultConfirmationMargin = 1.5

// Status classifies how far along a study's data collection is.
type Status string

// Gate statuses in increasing order of evidence.
const (
	StatusInsufficient Status = "insufficient"
	StatusPublishable  Status = "publishable"
	StatusConfirmation Status = "confirmation"
)

// Condition names reported in a Verdict.
const (
	ConditionExposure     = "per_item_exposures"
	ConditionVolume       = "total_comparisons"
	ConditionConnectivity = "graph_connected"
)

// Condition is one gate requirement with what was required and observed.
// For the exposure condition Observed is the worst per-item count; for
// connectivity Observed is the component count against a requirement of 1.
type Condition struct {
	Name     string `json:"name"`
	Met      bool   `json:"met"`
	Required int    `json:"required"`
	Observed int    `json:"observed"`
}

// Thresholds carries the study policy the gate evaluates against.
// A nil MinTotalComparisons derives the volume requirement as
// model.DefaultTotalMultiplier times the item count.
type Thresholds struct {
	MinExposuresPerItem int
	MinTotalComparisons *int
}

// Verdict is the gate's full answer. CountedComparisons is the comparison
// total after flagged test sessions are dropped.
type Verdict struct {
	Publishable        bool        `json:"publishable"`
	Status             Status      `json:"status"`
	Conditions         []Condition `json:"conditions"`
	CountedComparisons int         `json:"counted_comparisons"`
}

// Option applies a configuration option to the gate.
type Option func(*settings)

// WithConfirmationMargin overrides the confirmation margin. Margins below
// one would make confirmation easier than publishable and are ignored.
func WithConfirmationMargin(margin float64) Option {
	return func(s *settings) {
		if margin >= 1 {
			s.margin = margin
		}
	}
}

type settings struct {
	margin float64
}

// EloStandardError approximates the standard error of an Elo rating after
// n comparisons: 400/(sqrt(n)*ln 10). It is +Inf when n is not positive.
func EloStandardError(n int) float64 {
	if n <= 0 {
		return math.Inf(1)
	}
	return 400.0 / (math.Sqrt(float64(n)) * math.Ln10)
}

// Evaluate runs the publishability gate. Comparisons flagged as test
// sessions are dropped before any counting. The three conditions are
// per-item exposure, total volume, and connectivity of the comparison
// graph; all must hold for a publishable verdict, and the exposure and
// volume counts must additionally clear the confirmation margin for a
// confirmation verdict.
func Evaluate(items []model.Item, comparisons []model.Comparison, thresholds Thresholds, opts ...Option) Verdict {
	s := &settings{margin: defaultConfirmationMargin}
	for _, opt := range opts {
		opt(s)
	}

	counted := make([]model.Comparison, 0, len(comparisons))
	for _, c := range comparisons {
		if c.IsTestSession() {
			continue
		}
		counted = append(counted, c)
	}

	exposures := make(map[string]int, len(items))
	for _, c := range counted {
		exposures[c.ItemAID]++
		exposures[c.ItemBID]++
	}

	// Worst per-item exposure over the item set, not over the log: items
	// missing from the log count as zero.
	worstExposure := 0
	exposuresMet := true
	exposuresConfirmed := true
	for i, it := range items {
		n := exposures[it.ID]
		if i == 0 || n < worstExposure {
			worstExposure = n
		}
		if n < thresholds.MinExposuresPerItem {
			exposuresMet = false
		}
		if float64(n) < s.margin*float64(thresholds.MinExposuresPerItem) {
			exposuresConfirmed = false
		}
	}

	requiredTotal := model.DefaultTotalMultiplier * len(items)
	if thresholds.MinTotalComparisons != nil {
		requiredTotal = *thresholds.MinTotalComparisons
	}
	volumeMet := len(counted) >= requiredTotal
	volumeConfirmed := float64(len(counted)) >= s.margin*float64(requiredTotal)

	connectivity := graph.Connectivity(items, counted)

	verdict := Verdict{
		CountedComparisons: len(counted),
		Conditions: []Condition{
			{
				Name:     ConditionExposure,
				Met:      exposuresMet,
				Required: thresholds.MinExposuresPerItem,
				Observed: worstExposure,
			},
			{
				Name:     ConditionVolume,
				Met:      volumeMet,
				Required: requiredTotal,
				Observed: len(counted),
			},
			{
				Name:     ConditionConnectivity,
				Met:      connectivity.Connected,
				Required: 1,
				Observed: connectivity.ComponentCount,
			},
		},
	}

	switch {
	case !exposuresMet || !volumeMet || !connectivity.Connected:
		verdict.Status = StatusInsufficient
	case exposuresConfirmed && volumeConfirmed:
		verdict.Status = StatusConfirmation
		verdict.Publishable = true
	default:
		verdict.Status = StatusPublishable
		verdict.Publishable = true
	}
	return verdict
}

// DataStatus returns only the gate classification.
func DataStatus(items []model.Item, comparisons []model.Comparison, thresholds Thresholds, opts ...Option) Status {
	return Evaluate(items, comparisons, thresholds, opts...).Status
}

// Package bradleyterry fits the Bradley-Terry model to the comparison log
// with the minorization-maximization algorithm (Hunter, 2004). The fitted
// abilities back the publication-grade ranking; incremental Elo stays the
// live scoreboard.
package bradleyterry

import (
	"math"
	"sort"

	"github.com/scAIentist/sciblind-sub001/internal/domain/model"
)

// Default estimation constants.
const (
	defaultTolerance     = 1e-8
	defaultMaxIterations = 1000

	// abilityFloor pins zero-win items instead of letting their strength
	// collapse to zero and poison later denominators.
	abilityFloor = 1e-10

	// abilityCeil mirrors the floor: fully separated data pushes winner
	// strengths toward infinity, so sweeps clamp into [floor, ceil].
	abilityCeil = 1e10

	// eloPointsPerLog converts a natural-log ability gap to Elo points.
	eloPointsPerLog = 400.0 / math.Ln10
)

// Option applies a configuration option to the estimator settings.
type Option func(*settings)

// WithTolerance sets the convergence tolerance on the largest parameter
// change per sweep.
func WithTolerance(tolerance float64) Option {
	return func(s *settings) {
		if tolerance > 0 {
			s.tolerance = tolerance
		}
	}
}

// WithMaxIterations caps the number of MM sweeps before giving up.
func WithMaxIterations(maxIterations int) Option {
	return func(s *settings) {
		if maxIterations > 0 {
			s.maxIterations = maxIterations
		}
	}
}

type settings struct {
	tolerance     float64
	maxIterations int
}

// Result contains the fitted model. Abilities are on the natural-log scale,
// normalized so they sum to zero. StandardErrors are the Fisher-information
// errors of the log abilities, +Inf where the information is zero.
// Converged is false when maxIterations ran out; the fit is still returned.
type Result struct {
	Abilities      map[string]float64
	StandardErrors map[string]float64
	Iterations     int
	Converged      bool
	LogLikelihood  float64
}

// Estimate fits abilities to the given comparisons. Self-pairs are ignored.
// Fewer than two distinct items yields an empty converged result. The input
// is never mutated and the function is safe to call concurrently.
func Estimate(comparisons []model.Comparison, opts ...Option) Result {
	s := &settings{
		tolerance:     defaultTolerance,
		maxIterations: defaultMaxIterations,
	}
	for _, opt := range opts {
		opt(s)
	}

	wins := make(map[string]float64)
	counts := make(map[string]map[string]float64)
	touch := func(id string) {
		if _, ok := counts[id]; !ok {
			counts[id] = make(map[string]float64)
		}
	}
	for _, c := range comparisons {
		w, l := c.WinnerID, c.LoserID()
		if w == l || w == "" || l == "" {
			continue
		}
		touch(w)
		touch(l)
		counts[w][l]++
		counts[l][w]++
		wins[w]++
	}

	if len(counts) < 2 {
		return Result{
			Abilities:      map[string]float64{},
			StandardErrors: map[string]float64{},
			Converged:      true,
		}
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	strength := make(map[string]float64, len(ids))
	for _, id := range ids {
		strength[id] = 1.0
	}

	var result Result
	for iter := 1; iter <= s.maxIterations; iter++ {
		next := make(map[string]float64, len(ids))
		for _, id := range ids {
			if wins[id] == 0 {
				next[id] = abilityFloor
				continue
			}
			denom := 0.0
			for opp, n := range counts[id] {
				denom += n / (strength[id] + strength[opp])
			}
			next[id] = wins[id] / denom
		}
		normalize(next, ids)
		for _, id := range ids {
			if next[id] < abilityFloor {
				next[id] = abilityFloor
			} else if next[id] > abilityCeil {
				next[id] = abilityCeil
			}
		}

		maxDelta := 0.0
		for _, id := range ids {
			if d := math.Abs(next[id] - strength[id]); d > maxDelta {
				maxDelta = d
			}
		}
		strength = next
		result.Iterations = iter
		if maxDelta < s.tolerance {
			result.Converged = true
			break
		}
	}

	result.Abilities = make(map[string]float64, len(ids))
	for _, id := range ids {
		result.Abilities[id] = math.Log(strength[id])
	}
	result.StandardErrors = standardErrors(ids, counts, strength)
	result.LogLikelihood = logLikelihood(comparisons, strength)
	return result
}

// normalize rescales strengths so their geometric mean is one, keeping the
// log abilities centered on zero.
func normalize(strength map[string]float64, ids []string) {
	logSum := 0.0
	for _, id := range ids {
		logSum += math.Log(strength[id])
	}
	scale := math.Exp(logSum / float64(len(ids)))
	for _, id := range ids {
		strength[id] /= scale
	}
}

// standardErrors derives per-item errors from the observed Fisher
// information of the log-scale parameters.
func standardErrors(ids []string, counts map[string]map[string]float64, strength map[string]float64) map[string]float64 {
	errs := make(map[string]float64, len(ids))
	for _, id := range ids {
		info := 0.0
		for opp, n := range counts[id] {
			sum := strength[id] + strength[opp]
			info += n * strength[opp] / (sum * sum)
		}
		if info == 0 {
			errs[id] = math.Inf(1)
			continue
		}
		errs[id] = 1.0 / math.Sqrt(info*strength[id]*strength[id])
	}
	return errs
}

func logLikelihood(comparisons []model.Comparison, strength map[string]float64) float64 {
	ll := 0.0
	for _, c := range comparisons {
		w, l := c.WinnerID, c.LoserID()
		sw, okW := strength[w]
		sl, okL := strength[l]
		if !okW || !okL {
			continue
		}
		ll += math.Log(sw / (sw + sl))
	}
	return ll
}

// WinProbability converts two log-scale abilities into the probability
// that the first beats the second.
func WinProbability(abilityA, abilityB float64) float64 {
	return 1.0 / (1.0 + math.Exp(-(abilityA - abilityB)))
}

// AbilityToEloScale maps a log-scale ability onto the familiar Elo scale,
// centered at 1500.
func AbilityToEloScale(ability float64) float64 {
	return model.InitialRating + ability*eloPointsPerLog
}

// ErrorToEloScale converts a log-ability standard error into Elo points.
// Errors are gaps, not locations, so there is no 1500 offset.
func ErrorToEloScale(se float64) float64 {
	return se * eloPointsPerLog
}

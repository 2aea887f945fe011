package publish_test

import (
	"math"
	"testing"

	"github.com/scAIentist/sciblind-sub001/internal/domain/model"
	"github.com/scAIentist/sciblind-sub001/internal/domain/publish"
	"github.com/smartystreets/goconvey/convey"
)

func items(ids ...string) []model.Item {
	out := make([]model.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.NewItem(id))
	}
	return out
}

func beat(winner, loser string) model.Comparison {
	return model.Comparison{ItemAID: winner, ItemBID: loser, WinnerID: winner}
}

func intPtr(n int) *int { return &n }

func conditionByName(v publish.Verdict, name string) publish.Condition {
	for _, c := range v.Conditions {
		if c.Name == name {
			return c
		}
	}
	return publish.Condition{}
}

func TestEloStandardError(t *testing.T) {
	convey.Convey("Given the Elo standard error approximation", t, func() {
		convey.Convey("When the comparison count is not positive", func() {
			convey.So(math.IsInf(publish.EloStandardError(0), 1), convey.ShouldBeTrue)
			convey.So(math.IsInf(publish.EloStandardError(-4), 1), convey.ShouldBeTrue)
		})

		convey.Convey("When the comparison count is one", func() {
			convey.So(publish.EloStandardError(1), convey.ShouldAlmostEqual, 400.0/math.Ln10, 1e-9)
		})

		convey.Convey("When the comparison count is one hundred", func() {
			convey.So(publish.EloStandardError(100), convey.ShouldAlmostEqual, 40.0/math.Ln10, 1e-9)
		})

		convey.Convey("When the count grows", func() {
			convey.Convey("Then the error should shrink monotonically", func() {
				prev := publish.EloStandardError(1)
				for n := 2; n <= 50; n++ {
					cur := publish.EloStandardError(n)
					convey.So(cur, convey.ShouldBeLessThan, prev)
					prev = cur
				}
			})
		})
	})
}

func TestEvaluate(t *testing.T) {
	convey.Convey("Given the publishability gate", t, func() {
		thresholds := publish.Thresholds{
			MinExposuresPerItem: 2,
			MinTotalComparisons: intPtr(4),
		}

		convey.Convey("When every condition is met without margin", func() {
			comparisons := []model.Comparison{
				beat("a", "b"), beat("b", "c"), beat("a", "c"), beat("a", "b"),
			}
			v := publish.Evaluate(items("a", "b", "c"), comparisons, thresholds)

			convey.Convey("Then the study should be publishable but not confirmed", func() {
				convey.So(v.Publishable, convey.ShouldBeTrue)
				convey.So(v.Status, convey.ShouldEqual, publish.StatusPublishable)
				convey.So(v.CountedComparisons, convey.ShouldEqual, 4)
			})

			convey.Convey("Then every condition should report met", func() {
				for _, c := range v.Conditions {
					convey.So(c.Met, convey.ShouldBeTrue)
				}
			})

			convey.Convey("Then the exposure condition should carry the worst count", func() {
				c := conditionByName(v, publish.ConditionExposure)
				convey.So(c.Required, convey.ShouldEqual, 2)
				convey.So(c.Observed, convey.ShouldEqual, 2) // item c
			})
		})

		convey.Convey("When the data clears the confirmation margin", func() {
			comparisons := []model.Comparison{
				beat("a", "b"), beat("b", "c"), beat("a", "c"),
				beat("b", "a"), beat("c", "b"), beat("c", "a"),
			}
			v := publish.Evaluate(items("a", "b", "c"), comparisons, thresholds)

			convey.Convey("Then the status should be confirmation", func() {
				// Every item has 4 exposures >= 1.5*2 and 6 >= 1.5*4.
				convey.So(v.Status, convey.ShouldEqual, publish.StatusConfirmation)
				convey.So(v.Publishable, convey.ShouldBeTrue)
			})

			convey.Convey("And a stricter margin should demote it to publishable", func() {
				strict := publish.Evaluate(items("a", "b", "c"), comparisons, thresholds,
					publish.WithConfirmationMargin(3.0))
				convey.So(strict.Status, convey.ShouldEqual, publish.StatusPublishable)
			})
		})

		convey.Convey("When one item is underexposed", func() {
			comparisons := []model.Comparison{
				beat("a", "b"), beat("a", "b"), beat("a", "c"), beat("b", "a"),
			}
			v := publish.Evaluate(items("a", "b", "c"), comparisons, thresholds)

			convey.Convey("Then the study should be insufficient", func() {
				convey.So(v.Status, convey.ShouldEqual, publish.StatusInsufficient)
				convey.So(v.Publishable, convey.ShouldBeFalse)
				convey.So(conditionByName(v, publish.ConditionExposure).Met, convey.ShouldBeFalse)
				convey.So(conditionByName(v, publish.ConditionExposure).Observed, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the graph is disconnected despite the counts", func() {
			comparisons := []model.Comparison{
				beat("a", "b"), beat("b", "a"), beat("c", "d"), beat("d", "c"),
			}
			v := publish.Evaluate(items("a", "b", "c", "d"), comparisons, publish.Thresholds{
				MinExposuresPerItem: 2,
				MinTotalComparisons: intPtr(4),
			})

			convey.Convey("Then connectivity should block publishability", func() {
				convey.So(v.Status, convey.ShouldEqual, publish.StatusInsufficient)
				c := conditionByName(v, publish.ConditionConnectivity)
				convey.So(c.Met, convey.ShouldBeFalse)
				convey.So(c.Observed, convey.ShouldEqual, 2)
				convey.So(c.Required, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When all comparisons are flagged test sessions", func() {
			flagged := beat("a", "b")
			flagged.IsFlagged = true
			flagged.FlagReason = model.FlagReasonTestSession
			v := publish.Evaluate(items("a", "b"), []model.Comparison{flagged, flagged, flagged}, publish.Thresholds{
				MinExposuresPerItem: 1,
				MinTotalComparisons: intPtr(1),
			})

			convey.Convey("Then nothing should count and the study is insufficient", func() {
				convey.So(v.CountedComparisons, convey.ShouldEqual, 0)
				convey.So(v.Status, convey.ShouldEqual, publish.StatusInsufficient)
			})
		})

		convey.Convey("When a comparison is flagged for a different reason", func() {
			flagged := beat("a", "b")
			flagged.IsFlagged = true
			flagged.FlagReason = "slow_response"
			v := publish.Evaluate(items("a", "b"), []model.Comparison{flagged}, publish.Thresholds{
				MinExposuresPerItem: 1,
				MinTotalComparisons: intPtr(1),
			})

			convey.Convey("Then it should still count toward the gate", func() {
				convey.So(v.CountedComparisons, convey.ShouldEqual, 1)
				convey.So(v.Publishable, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the total threshold is left unset", func() {
			v := publish.Evaluate(items("a", "b"), []model.Comparison{beat("a", "b")}, publish.Thresholds{
				MinExposuresPerItem: 1,
			})

			convey.Convey("Then the requirement should derive from the item count", func() {
				c := conditionByName(v, publish.ConditionVolume)
				convey.So(c.Required, convey.ShouldEqual, 20) // 10 per item
				convey.So(c.Met, convey.ShouldBeFalse)
				convey.So(v.Status, convey.ShouldEqual, publish.StatusInsufficient)
			})
		})

		convey.Convey("When the study has no items and zeroed thresholds", func() {
			v := publish.Evaluate(nil, nil, publish.Thresholds{
				MinTotalComparisons: intPtr(0),
			})

			convey.Convey("Then the conditions hold vacuously", func() {
				convey.So(v.Status, convey.ShouldEqual, publish.StatusConfirmation)
				convey.So(v.Publishable, convey.ShouldBeTrue)
			})
		})
	})
}

func TestDataStatus(t *testing.T) {
	convey.Convey("Given the standalone status classifier", t, func() {
		thresholds := publish.Thresholds{MinExposuresPerItem: 1, MinTotalComparisons: intPtr(1)}

		convey.Convey("When the data meets the gate", func() {
			status := publish.DataStatus(items("a", "b"), []model.Comparison{beat("a", "b")}, thresholds)
			convey.So(status, convey.ShouldEqual, publish.StatusPublishable)
		})

		convey.Convey("When there is no data", func() {
			status := publish.DataStatus(items("a", "b"), nil, thresholds)
			convey.So(status, convey.ShouldEqual, publish.StatusInsufficient)
		})

		convey.Convey("When the classification matches the full verdict", func() {
			comparisons := []model.Comparison{beat("a", "b"), beat("b", "a")}
			full := publish.Evaluate(items("a", "b"), comparisons, thresholds)
			status := publish.DataStatus(items("a", "b"), comparisons, thresholds)
			convey.So(status, convey.ShouldEqual, full.Status)
		})
	})
}

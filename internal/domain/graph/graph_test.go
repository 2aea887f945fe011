package graph_test

import (
	"testing"

	"github.com/scAIentist/sciblind-sub001/internal/domain/graph"
	"github.com/scAIentist/sciblind-sub001/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
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

func TestConnectivity(t *testing.T) {
	Convey("Given the connectivity diagnostic", t, func() {
		Convey("When there are no items at all", func() {
			report := graph.Connectivity(nil, nil)

			Convey("Then the empty graph should count as connected", func() {
				So(report.Connected, ShouldBeTrue)
				So(report.ComponentCount, ShouldEqual, 0)
				So(report.ComponentSizes, ShouldBeEmpty)
				So(report.IsolatedItems, ShouldBeEmpty)
			})
		})

		Convey("When a single item has never been compared", func() {
			report := graph.Connectivity(items("only"), nil)

			Convey("Then it should be one isolated component", func() {
				So(report.Connected, ShouldBeTrue)
				So(report.ComponentCount, ShouldEqual, 1)
				So(report.ComponentSizes, ShouldResemble, []int{1})
				So(report.IsolatedItems, ShouldResemble, []string{"only"})
			})
		})

		Convey("When all items link into one chain", func() {
			report := graph.Connectivity(
				items("a", "b", "c", "d"),
				[]model.Comparison{beat("a", "b"), beat("b", "c"), beat("c", "d")},
			)

			Convey("Then the graph should be connected with no isolation", func() {
				So(report.Connected, ShouldBeTrue)
				So(report.ComponentCount, ShouldEqual, 1)
				So(report.ComponentSizes, ShouldResemble, []int{4})
				So(report.IsolatedItems, ShouldBeEmpty)
			})
		})

		Convey("When the graph splits into two islands", func() {
			report := graph.Connectivity(
				items("a", "b", "c", "d"),
				[]model.Comparison{beat("a", "b"), beat("c", "d")},
			)

			Convey("Then both components should be reported", func() {
				So(report.Connected, ShouldBeFalse)
				So(report.ComponentCount, ShouldEqual, 2)
				So(report.ComponentSizes, ShouldResemble, []int{2, 2})
				So(report.IsolatedItems, ShouldBeEmpty)
			})
		})

		Convey("When one item never enters a comparison", func() {
			report := graph.Connectivity(
				items("a", "b", "c", "lonely"),
				[]model.Comparison{beat("a", "b"), beat("b", "c")},
			)

			Convey("Then the untouched item should be isolated and split the graph", func() {
				So(report.Connected, ShouldBeFalse)
				So(report.ComponentCount, ShouldEqual, 2)
				So(report.ComponentSizes, ShouldResemble, []int{3, 1})
				So(report.IsolatedItems, ShouldResemble, []string{"lonely"})
			})
		})

		Convey("When a comparison references an unknown item", func() {
			report := graph.Connectivity(
				items("a", "b"),
				[]model.Comparison{beat("a", "ghost")},
			)

			Convey("Then the dangling edge should not join anything", func() {
				So(report.Connected, ShouldBeFalse)
				So(report.ComponentCount, ShouldEqual, 2)
			})

			Convey("Then the known endpoint should still count as compared", func() {
				So(report.IsolatedItems, ShouldResemble, []string{"b"})
			})
		})

		Convey("When isolated items are reported", func() {
			report := graph.Connectivity(
				items("z", "m", "a"),
				nil,
			)

			Convey("Then the list should be sorted for stable output", func() {
				So(report.IsolatedItems, ShouldResemble, []string{"a", "m", "z"})
			})
		})
	})
}

func TestCircularTriads(t *testing.T) {
	Convey("Given the circular triad census", t, func() {
		Convey("When the tournament is perfectly transitive", func() {
			report := graph.CircularTriads([]model.Comparison{
				beat("a", "b"), beat("a", "c"), beat("b", "c"),
			})

			Convey("Then one triad should exist and none should be circular", func() {
				So(report.TotalTriads, ShouldEqual, 1)
				So(report.CircularTriadCount, ShouldEqual, 0)
				So(report.TransitivityIndex, ShouldNotBeNil)
				So(*report.TransitivityIndex, ShouldEqual, 1.0)
			})
		})

		Convey("When the tournament is rock-paper-scissors", func() {
			report := graph.CircularTriads([]model.Comparison{
				beat("rock", "scissors"), beat("scissors", "paper"), beat("paper", "rock"),
			})

			Convey("Then the single triad should be circular", func() {
				So(report.TotalTriads, ShouldEqual, 1)
				So(report.CircularTriadCount, ShouldEqual, 1)
				So(*report.TransitivityIndex, ShouldEqual, 0.0)
			})
		})

		Convey("When a pair was compared multiple times", func() {
			report := graph.CircularTriads([]model.Comparison{
				beat("a", "b"), beat("a", "b"), beat("b", "a"), // majority a over b
				beat("b", "c"),
				beat("c", "a"),
			})

			Convey("Then the majority winner should hold the edge", func() {
				So(report.TotalTriads, ShouldEqual, 1)
				So(report.CircularTriadCount, ShouldEqual, 1)
			})
		})

		Convey("When a pair is tied head-to-head", func() {
			report := graph.CircularTriads([]model.Comparison{
				beat("a", "b"), beat("b", "a"), // tied, no edge
				beat("b", "c"),
				beat("a", "c"),
			})

			Convey("Then the triple should not count as a complete triad", func() {
				So(report.TotalTriads, ShouldEqual, 0)
				So(report.CircularTriadCount, ShouldEqual, 0)
				So(report.TransitivityIndex, ShouldBeNil)
			})
		})

		Convey("When only a single pair exists", func() {
			report := graph.CircularTriads([]model.Comparison{beat("a", "b")})

			Convey("Then there should be no triads and no index", func() {
				So(report.TotalTriads, ShouldEqual, 0)
				So(report.TransitivityIndex, ShouldBeNil)
			})
		})

		Convey("When four items mix one cycle into a transitive web", func() {
			report := graph.CircularTriads([]model.Comparison{
				beat("a", "b"), beat("b", "c"), beat("c", "a"), // cycle
				beat("a", "d"), beat("b", "d"), beat("c", "d"), // d loses to all
			})

			Convey("Then all four triads should be complete and one circular", func() {
				// Triples: abc (cycle), abd, acd, bcd (transitive).
				So(report.TotalTriads, ShouldEqual, 4)
				So(report.CircularTriadCount, ShouldEqual, 1)
				So(*report.TransitivityIndex, ShouldAlmostEqual, 0.75, 1e-12)
			})
		})

		Convey("When the item set exceeds the census limit", func() {
			report := graph.CircularTriads(
				[]model.Comparison{
					beat("a", "b"), beat("b", "c"), beat("c", "d"), beat("d", "a"),
				},
				graph.WithTriadItemLimit(3),
			)

			Convey("Then the census should short-circuit with the sentinel", func() {
				So(report.CircularTriadCount, ShouldEqual, graph.TriadLimitExceeded)
				So(report.TotalTriads, ShouldEqual, 0)
				So(report.TransitivityIndex, ShouldBeNil)
			})
		})

		Convey("When there are no comparisons at all", func() {
			report := graph.CircularTriads(nil)

			Convey("Then everything should be zero with no index", func() {
				So(report.TotalTriads, ShouldEqual, 0)
				So(report.CircularTriadCount, ShouldEqual, 0)
				So(report.TransitivityIndex, ShouldBeNil)
			})
		})
	})
}

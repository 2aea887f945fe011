package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scAIentist/sciblind-sub001/internal/adapters/repository"
	service "github.com/scAIentist/sciblind-sub001/internal/app"
	"github.com/scAIentist/sciblind-sub001/internal/domain/model"
	"github.com/scAIentist/sciblind-sub001/internal/domain/publish"
	"github.com/scAIentist/sciblind-sub001/internal/domain/schedule"
	"github.com/scAIentist/sciblind-sub001/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// startService boots a service for a test and fails fast when it cannot.
func startService(ctx context.Context, t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	return svc
}

// addItems registers plain items and fails the test on error.
func addItems(ctx context.Context, t *testing.T, svc *service.Service, ids ...string) {
	t.Helper()
	specs := make([]service.ItemSpec, len(ids))
	for i, id := range ids {
		specs[i] = service.ItemSpec{ID: id}
	}
	if _, err := svc.AddItems(ctx, specs); err != nil {
		t.Fatalf("add items: %v", err)
	}
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should be created with the default policy", func() {
			So(svc, ShouldNotBeNil)
			So(svc.StudyConfig(), ShouldResemble, model.DefaultStudyConfig())
		})
	})

	Convey("Given a new service with custom options", t, func() {
		cfg := model.DefaultStudyConfig()
		cfg.ComparisonMode = model.ModeQuad
		cfg.MinExposuresPerItem = 3

		svc := service.New(
			service.WithStudyConfig(cfg),
			service.WithWorkerCount(2),
			service.WithQueueSize(64),
			service.WithDedupeSize(25_000),
			service.WithEstimateEveryVotes(5),
			service.WithEstimatorTolerance(1e-6),
			service.WithEstimatorMaxIterations(500),
			service.WithTriadItemLimit(50),
			service.WithConfirmationMargin(2.0),
			service.WithSchedulerSeed(7),
		)

		Convey("Then it should be created successfully", func() {
			So(svc, ShouldNotBeNil)
			So(svc.StudyConfig().ComparisonMode, ShouldEqual, model.ModeQuad)
			So(svc.StudyConfig().MinExposuresPerItem, ShouldEqual, 3)
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When starting the service", func() {
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
			})

			Convey("And starting again should be a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})

		Convey("When stopping twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			svc.Stop()

			Convey("Then the second stop should not panic", func() {
				So(svc.Stop, ShouldNotPanic)
			})
		})
	})

	Convey("Given a service with an invalid study policy", t, func() {
		cfg := model.DefaultStudyConfig()
		cfg.KFactor = -1
		svc := service.New(service.WithStudyConfig(cfg))

		ctx := context.Background()

		Convey("When starting the service", func() {
			err := svc.Start(ctx)

			Convey("Then it should refuse to start", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, model.ErrInvalidStudyConfig), ShouldBeTrue)
			})
		})
	})

	Convey("Given a service that was never started", t, func() {
		svc := service.New()
		ctx := context.Background()

		Convey("When calling operations", func() {
			_, itemsErr := svc.Items(ctx)
			_, unitErr := svc.NextUnit(ctx, "s1")
			_, voteErr := svc.SubmitVote(ctx, service.Vote{})
			_, quadErr := svc.SubmitQuadVote(ctx, service.QuadVote{})
			_, rankErr := svc.Rankings(ctx)
			_, verdictErr := svc.Publishability(ctx)
			_, diagErr := svc.Diagnostics(ctx)
			refreshErr := svc.RefreshEstimates(ctx)

			Convey("Then each should report the service as not started", func() {
				for _, err := range []error{
					itemsErr, unitErr, voteErr, quadErr, rankErr, verdictErr, diagErr, refreshErr,
				} {
					So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				}
			})

			Convey("And stats should carry only the vote counters", func() {
				st := svc.Stats(ctx)
				So(st.Items, ShouldEqual, 0)
				So(st.Comparisons, ShouldEqual, 0)
				So(st.AcceptedVotes, ShouldEqual, 0)
			})
		})
	})
}

func TestService_WithStore(t *testing.T) {
	Convey("Given a service with an injected store", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store := repository.NewTreapStore(ctx,
			repository.WithPrioritySeed(7),
			repository.WithMetricsUpdateInterval(10*time.Millisecond),
		)
		svc := startService(ctx, t, service.WithStore(store))
		defer svc.Stop()

		Convey("When items are registered through the service", func() {
			addItems(ctx, t, svc, "a", "b", "c")

			Convey("Then the injected store should hold them", func() {
				So(store.Count(ctx), ShouldEqual, 3)
			})

			Convey("And rankings should read from the same store", func() {
				entries, err := svc.Rankings(ctx)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 3)
			})
		})
	})
}

func TestService_AddItems(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := startService(ctx, t, service.WithSchedulerSeed(7))
		defer svc.Stop()

		Convey("When adding items with explicit ids", func() {
			ids, err := svc.AddItems(ctx, []service.ItemSpec{{ID: "alpha"}, {ID: "beta"}})

			Convey("Then the ids should come back in input order", func() {
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []string{"alpha", "beta"})
			})

			Convey("And the items should start at the initial rating", func() {
				So(err, ShouldBeNil)
				items, itemsErr := svc.Items(ctx)
				So(itemsErr, ShouldBeNil)
				So(len(items), ShouldEqual, 2)
				for _, it := range items {
					So(it.Rating, ShouldEqual, model.InitialRating)
					So(it.ComparisonCount, ShouldEqual, 0)
					So(it.CountersConsistent(), ShouldBeTrue)
				}
			})
		})

		Convey("When adding an item without an id", func() {
			ids, err := svc.AddItems(ctx, []service.ItemSpec{{}})

			Convey("Then one should be generated", func() {
				So(err, ShouldBeNil)
				So(len(ids), ShouldEqual, 1)
				So(len(ids[0]), ShouldEqual, 36) // uuid string form
			})
		})

		Convey("When adding ranked items", func() {
			one, ten := 1, 10
			ids, err := svc.AddItems(ctx, []service.ItemSpec{
				{ID: "top", ArtistRank: &one},
				{ID: "tail", ArtistRank: &ten},
				{ID: "unranked"},
			})
			So(err, ShouldBeNil)
			So(len(ids), ShouldEqual, 3)

			Convey("Then the artist boost should follow the rank", func() {
				items, itemsErr := svc.Items(ctx)
				So(itemsErr, ShouldBeNil)

				boosts := make(map[string]float64, len(items))
				for _, it := range items {
					boosts[it.ID] = it.ArtistBoost
				}
				So(boosts["top"], ShouldEqual, 200)
				So(boosts["tail"], ShouldEqual, 20)
				So(boosts["unranked"], ShouldEqual, 0)
			})
		})

		Convey("When adding a duplicate id", func() {
			_, err := svc.AddItems(ctx, []service.ItemSpec{{ID: "dupe"}})
			So(err, ShouldBeNil)
			_, err = svc.AddItems(ctx, []service.ItemSpec{{ID: "dupe"}})

			Convey("Then the second add should fail", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, repository.ErrDuplicateItem), ShouldBeTrue)
			})
		})
	})
}

func TestService_SubmitVote(t *testing.T) {
	Convey("Given a started service with three items", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := startService(ctx, t, service.WithSchedulerSeed(7))
		defer svc.Stop()
		addItems(ctx, t, svc, "a", "b", "c")

		Convey("When submitting a pairwise vote between fresh items", func() {
			res, err := svc.SubmitVote(ctx, service.Vote{
				VoteID:    "v-1",
				WinnerID:  "a",
				LoserID:   "b",
				SessionID: "s1",
			})

			Convey("Then the vote should be accepted with symmetric deltas", func() {
				So(err, ShouldBeNil)
				So(res.VoteID, ShouldEqual, "v-1")
				So(res.Duplicate, ShouldBeFalse)
				So(res.Appended, ShouldEqual, 1)
				So(len(res.Changes), ShouldEqual, 2)

				So(res.Changes[0].ItemID, ShouldEqual, "a")
				So(res.Changes[0].Delta, ShouldAlmostEqual, 16)
				So(res.Changes[0].Rating, ShouldAlmostEqual, 1516)
				So(res.Changes[1].ItemID, ShouldEqual, "b")
				So(res.Changes[1].Delta, ShouldAlmostEqual, -16)
				So(res.Changes[1].Rating, ShouldAlmostEqual, 1484)
			})

			Convey("And resubmitting the same vote id should be a duplicate", func() {
				So(err, ShouldBeNil)
				dup, dupErr := svc.SubmitVote(ctx, service.Vote{
					VoteID:    "v-1",
					WinnerID:  "a",
					LoserID:   "b",
					SessionID: "s1",
				})
				So(dupErr, ShouldBeNil)
				So(dup.Duplicate, ShouldBeTrue)
				So(dup.Appended, ShouldEqual, 0)

				st := svc.Stats(ctx)
				So(st.Comparisons, ShouldEqual, 1)
				So(st.AcceptedVotes, ShouldEqual, 1)
				So(st.DuplicateVotes, ShouldEqual, 1)
			})
		})

		Convey("When submitting a vote of an item against itself", func() {
			_, err := svc.SubmitVote(ctx, service.Vote{
				VoteID:    "v-self",
				WinnerID:  "a",
				LoserID:   "a",
				SessionID: "s1",
			})

			Convey("Then it should be rejected as invalid", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, model.ErrInvalidComparison), ShouldBeTrue)
				So(svc.Stats(ctx).RejectedVotes, ShouldEqual, 1)
			})
		})

		Convey("When a vote names an unknown item", func() {
			_, err := svc.SubmitVote(ctx, service.Vote{
				VoteID:    "v-2",
				WinnerID:  "a",
				LoserID:   "ghost",
				SessionID: "s1",
			})

			Convey("Then it should be rejected", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, repository.ErrItemNotFound), ShouldBeTrue)
				So(svc.Stats(ctx).Comparisons, ShouldEqual, 0)
			})

			Convey("And the vote id should be free for a retry", func() {
				So(err, ShouldNotBeNil)
				res, retryErr := svc.SubmitVote(ctx, service.Vote{
					VoteID:    "v-2",
					WinnerID:  "a",
					LoserID:   "b",
					SessionID: "s1",
				})
				So(retryErr, ShouldBeNil)
				So(res.Duplicate, ShouldBeFalse)
				So(res.Appended, ShouldEqual, 1)
			})
		})

		Convey("When a vote carries its display sides", func() {
			res, err := svc.SubmitVote(ctx, service.Vote{
				VoteID:      "v-3",
				WinnerID:    "b",
				LoserID:     "c",
				LeftItemID:  "c",
				RightItemID: "b",
				SessionID:   "s1",
			})

			Convey("Then it should be accepted", func() {
				So(err, ShouldBeNil)
				So(res.Appended, ShouldEqual, 1)
			})

			Convey("And mismatched sides should be rejected", func() {
				So(err, ShouldBeNil)
				_, badErr := svc.SubmitVote(ctx, service.Vote{
					VoteID:      "v-4",
					WinnerID:    "b",
					LoserID:     "c",
					LeftItemID:  "a",
					RightItemID: "b",
					SessionID:   "s1",
				})
				So(badErr, ShouldNotBeNil)
				So(errors.Is(badErr, model.ErrInvalidComparison), ShouldBeTrue)
			})
		})
	})
}

func TestService_SubmitQuadVote(t *testing.T) {
	Convey("Given a started quad-mode service with four items", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cfg := model.DefaultStudyConfig()
		cfg.ComparisonMode = model.ModeQuad
		svc := startService(ctx, t, service.WithStudyConfig(cfg), service.WithSchedulerSeed(7))
		defer svc.Stop()
		addItems(ctx, t, svc, "a", "b", "c", "d")

		Convey("When submitting a quad vote", func() {
			res, err := svc.SubmitQuadVote(ctx, service.QuadVote{
				VoteID:    "q-1",
				WinnerID:  "b",
				ItemIDs:   []string{"a", "b", "c", "d"},
				SessionID: "s1",
			})

			Convey("Then it should expand into three comparisons", func() {
				So(err, ShouldBeNil)
				So(res.VoteID, ShouldEqual, "q-1")
				So(res.Appended, ShouldEqual, 3)
				So(len(res.Changes), ShouldEqual, 6)
				So(svc.Stats(ctx).Comparisons, ShouldEqual, 3)
			})

			Convey("And the rating movement should stay zero-sum", func() {
				So(err, ShouldBeNil)
				sum := 0.0
				for _, ch := range res.Changes {
					sum += ch.Delta
				}
				So(sum, ShouldAlmostEqual, 0)
			})

			Convey("And the winner should come out above the initial rating", func() {
				So(err, ShouldBeNil)
				items, itemsErr := svc.Items(ctx)
				So(itemsErr, ShouldBeNil)
				for _, it := range items {
					if it.ID == "b" {
						So(it.Rating, ShouldBeGreaterThan, model.InitialRating)
						So(it.WinCount, ShouldEqual, 3)
					} else {
						So(it.Rating, ShouldBeLessThan, model.InitialRating)
						So(it.LossCount, ShouldEqual, 1)
					}
				}
			})

			Convey("And resubmitting the same vote id should be a duplicate", func() {
				So(err, ShouldBeNil)
				dup, dupErr := svc.SubmitQuadVote(ctx, service.QuadVote{
					VoteID:    "q-1",
					WinnerID:  "b",
					ItemIDs:   []string{"a", "b", "c", "d"},
					SessionID: "s1",
				})
				So(dupErr, ShouldBeNil)
				So(dup.Duplicate, ShouldBeTrue)
				So(svc.Stats(ctx).Comparisons, ShouldEqual, 3)
			})
		})

		Convey("When the quad shape is wrong", func() {
			_, short := svc.SubmitQuadVote(ctx, service.QuadVote{
				VoteID: "q-short", WinnerID: "a", ItemIDs: []string{"a", "b", "c"}, SessionID: "s1",
			})
			_, absent := svc.SubmitQuadVote(ctx, service.QuadVote{
				VoteID: "q-absent", WinnerID: "x", ItemIDs: []string{"a", "b", "c", "d"}, SessionID: "s1",
			})
			_, repeated := svc.SubmitQuadVote(ctx, service.QuadVote{
				VoteID: "q-repeat", WinnerID: "a", ItemIDs: []string{"a", "a", "c", "d"}, SessionID: "s1",
			})

			Convey("Then each should be rejected as invalid", func() {
				for _, err := range []error{short, absent, repeated} {
					So(err, ShouldNotBeNil)
					So(errors.Is(err, model.ErrInvalidComparison), ShouldBeTrue)
				}
				So(svc.Stats(ctx).RejectedVotes, ShouldEqual, 3)
			})
		})

		Convey("When one displayed item is unknown", func() {
			_, err := svc.SubmitQuadVote(ctx, service.QuadVote{
				VoteID:    "q-ghost",
				WinnerID:  "a",
				ItemIDs:   []string{"a", "b", "c", "ghost"},
				SessionID: "s1",
			})

			Convey("Then nothing should be recorded", func() {
				So(err, ShouldNotBeNil)
				So(svc.Stats(ctx).Comparisons, ShouldEqual, 0)
			})

			Convey("And the vote id should be free for a retry", func() {
				So(err, ShouldNotBeNil)
				res, retryErr := svc.SubmitQuadVote(ctx, service.QuadVote{
					VoteID:    "q-ghost",
					WinnerID:  "a",
					ItemIDs:   []string{"a", "b", "c", "d"},
					SessionID: "s1",
				})
				So(retryErr, ShouldBeNil)
				So(res.Appended, ShouldEqual, 3)
			})
		})
	})
}

func TestService_NextUnit(t *testing.T) {
	Convey("Given a started pair-mode service with two items", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := startService(ctx, t, service.WithSchedulerSeed(7))
		defer svc.Stop()
		addItems(ctx, t, svc, "a", "b")

		Convey("When asking for the first unit", func() {
			unit, err := svc.NextUnit(ctx, "s1")

			Convey("Then a coverage pair should be offered", func() {
				So(err, ShouldBeNil)
				So(unit.Done, ShouldBeFalse)
				So(unit.Exhausted, ShouldBeFalse)
				So(unit.Phase, ShouldEqual, string(schedule.PhaseCoverage))
				So(unit.Pair, ShouldNotBeNil)
				So(unit.Quad, ShouldBeNil)

				offered := map[string]bool{unit.Pair.LeftItemID: true, unit.Pair.RightItemID: true}
				So(offered["a"], ShouldBeTrue)
				So(offered["b"], ShouldBeTrue)
			})

			Convey("And after voting the only pair the session should be exhausted", func() {
				So(err, ShouldBeNil)
				_, voteErr := svc.SubmitVote(ctx, service.Vote{
					VoteID:      "v-1",
					WinnerID:    unit.Pair.LeftItemID,
					LoserID:     unit.Pair.RightItemID,
					LeftItemID:  unit.Pair.LeftItemID,
					RightItemID: unit.Pair.RightItemID,
					SessionID:   "s1",
				})
				So(voteErr, ShouldBeNil)

				next, nextErr := svc.NextUnit(ctx, "s1")
				So(nextErr, ShouldBeNil)
				So(next.Done, ShouldBeFalse)
				So(next.Exhausted, ShouldBeTrue)
				So(next.Pair, ShouldBeNil)

				Convey("While a fresh session still gets the pair", func() {
					fresh, freshErr := svc.NextUnit(ctx, "s2")
					So(freshErr, ShouldBeNil)
					So(fresh.Pair, ShouldNotBeNil)
				})
			})
		})
	})

	Convey("Given a started quad-mode service with four items", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cfg := model.DefaultStudyConfig()
		cfg.ComparisonMode = model.ModeQuad
		svc := startService(ctx, t, service.WithStudyConfig(cfg), service.WithSchedulerSeed(7))
		defer svc.Stop()
		addItems(ctx, t, svc, "a", "b", "c", "d")

		Convey("When asking for the first unit", func() {
			unit, err := svc.NextUnit(ctx, "s1")

			Convey("Then a quad of all four items should be offered", func() {
				So(err, ShouldBeNil)
				So(unit.Quad, ShouldNotBeNil)
				So(unit.Pair, ShouldBeNil)
				So(len(unit.Quad.ItemIDs), ShouldEqual, 4)
			})

			Convey("And after one quad vote no fresh quad should remain", func() {
				So(err, ShouldBeNil)
				_, voteErr := svc.SubmitQuadVote(ctx, service.QuadVote{
					VoteID:    "q-1",
					WinnerID:  unit.Quad.ItemIDs[0],
					ItemIDs:   unit.Quad.ItemIDs,
					SessionID: "s1",
				})
				So(voteErr, ShouldBeNil)

				next, nextErr := svc.NextUnit(ctx, "s1")
				So(nextErr, ShouldBeNil)
				So(next.Exhausted, ShouldBeTrue)
			})
		})
	})

	Convey("Given a service with too few items", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := startService(ctx, t, service.WithSchedulerSeed(7))
		defer svc.Stop()
		addItems(ctx, t, svc, "only")

		Convey("When asking for a unit", func() {
			_, err := svc.NextUnit(ctx, "s1")

			Convey("Then the scheduler error should surface", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, schedule.ErrNotEnoughItems), ShouldBeTrue)
			})
		})
	})
}

func TestService_Rankings(t *testing.T) {
	Convey("Given a started service with a transitive vote history", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := startService(ctx, t, service.WithSchedulerSeed(7))
		defer svc.Stop()
		addItems(ctx, t, svc, "a", "b", "c")

		votes := []service.Vote{
			{VoteID: "v-1", WinnerID: "a", LoserID: "b", SessionID: "s1"},
			{VoteID: "v-2", WinnerID: "a", LoserID: "c", SessionID: "s1"},
			{VoteID: "v-3", WinnerID: "b", LoserID: "c", SessionID: "s1"},
		}
		for _, v := range votes {
			_, err := svc.SubmitVote(ctx, v)
			So(err, ShouldBeNil)
		}

		Convey("When reading the full leaderboard", func() {
			entries, err := svc.Rankings(ctx)

			Convey("Then entries should come back in rating order", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 3)
				So(entries[0].ItemID, ShouldEqual, "a")
				So(entries[0].Rank, ShouldEqual, 1)
				So(entries[1].Rating, ShouldBeGreaterThanOrEqualTo, entries[2].Rating)
			})
		})

		Convey("When reading the top slice", func() {
			top, err := svc.TopN(ctx, 2)

			Convey("Then only the best two should come back", func() {
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 2)
				So(top[0].ItemID, ShouldEqual, "a")
			})
		})

		Convey("When asking for a single rank", func() {
			entry, err := svc.Rank(ctx, "a")

			Convey("Then the entry should carry its position", func() {
				So(err, ShouldBeNil)
				So(entry.Rank, ShouldEqual, 1)
				So(entry.ItemID, ShouldEqual, "a")
			})

			Convey("And an unknown id should fail", func() {
				So(err, ShouldBeNil)
				_, missErr := svc.Rank(ctx, "ghost")
				So(missErr, ShouldNotBeNil)
				So(errors.Is(missErr, repository.ErrItemNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_SessionState(t *testing.T) {
	Convey("Given a started service with three items", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := startService(ctx, t, service.WithSchedulerSeed(7))
		defer svc.Stop()
		addItems(ctx, t, svc, "a", "b", "c")

		Convey("When the session is fresh", func() {
			phase, err := svc.Phase(ctx, "s1")

			Convey("Then it should be in coverage", func() {
				So(err, ShouldBeNil)
				So(phase, ShouldEqual, schedule.PhaseCoverage)
			})
		})

		Convey("When votes carry a category", func() {
			_, err := svc.SubmitVote(ctx, service.Vote{
				VoteID: "v-1", WinnerID: "a", LoserID: "b", CategoryID: "cat", SessionID: "s1",
			})
			So(err, ShouldBeNil)

			Convey("Then progress should count only that category", func() {
				progress, progressErr := svc.Progress(ctx, "s1", "cat", 4)
				So(progressErr, ShouldBeNil)
				So(progress.Completed, ShouldEqual, 1)
				So(progress.Target, ShouldEqual, 4)
				So(progress.Percentage, ShouldEqual, 25)
				So(progress.IsComplete, ShouldBeFalse)

				other, otherErr := svc.Progress(ctx, "s1", "other", 4)
				So(otherErr, ShouldBeNil)
				So(other.Completed, ShouldEqual, 0)
			})
		})
	})
}

func TestService_Publishability(t *testing.T) {
	Convey("Given a small study with relaxed floors", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		minTotal := 2
		cfg := model.DefaultStudyConfig()
		cfg.MinExposuresPerItem = 1
		cfg.MinTotalComparisons = &minTotal
		svc := startService(ctx, t, service.WithStudyConfig(cfg), service.WithSchedulerSeed(7))
		defer svc.Stop()
		addItems(ctx, t, svc, "a", "b", "c")

		Convey("When no votes were recorded", func() {
			verdict, err := svc.Publishability(ctx)

			Convey("Then the study should be insufficient", func() {
				So(err, ShouldBeNil)
				So(verdict.Publishable, ShouldBeFalse)
				So(verdict.Status, ShouldEqual, publish.StatusInsufficient)
				So(len(verdict.Conditions), ShouldEqual, 3)
				So(verdict.CountedComparisons, ShouldEqual, 0)
			})
		})

		Convey("When the votes clear every floor with margin", func() {
			for _, v := range []service.Vote{
				{VoteID: "v-1", WinnerID: "a", LoserID: "b", SessionID: "s1"},
				{VoteID: "v-2", WinnerID: "a", LoserID: "c", SessionID: "s1"},
				{VoteID: "v-3", WinnerID: "b", LoserID: "c", SessionID: "s1"},
			} {
				_, err := svc.SubmitVote(ctx, v)
				So(err, ShouldBeNil)
			}

			verdict, err := svc.Publishability(ctx)

			Convey("Then the study should reach confirmation", func() {
				So(err, ShouldBeNil)
				So(verdict.Publishable, ShouldBeTrue)
				So(verdict.Status, ShouldEqual, publish.StatusConfirmation)
				So(verdict.CountedComparisons, ShouldEqual, 3)
			})
		})

		Convey("When votes come from a flagged test session", func() {
			for _, v := range []service.Vote{
				{VoteID: "v-1", WinnerID: "a", LoserID: "b", SessionID: "s1"},
				{VoteID: "t-1", WinnerID: "a", LoserID: "c", SessionID: "warmup",
					IsFlagged: true, FlagReason: model.FlagReasonTestSession},
			} {
				_, err := svc.SubmitVote(ctx, v)
				So(err, ShouldBeNil)
			}

			verdict, err := svc.Publishability(ctx)

			Convey("Then flagged comparisons should not count", func() {
				So(err, ShouldBeNil)
				So(verdict.CountedComparisons, ShouldEqual, 1)
			})
		})
	})
}

func TestService_Diagnostics(t *testing.T) {
	Convey("Given a started service with three items", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := startService(ctx, t, service.WithSchedulerSeed(7))
		defer svc.Stop()
		addItems(ctx, t, svc, "a", "b", "c")

		Convey("When no votes were recorded", func() {
			diag, err := svc.Diagnostics(ctx)

			Convey("Then every item should be isolated", func() {
				So(err, ShouldBeNil)
				So(diag.Connectivity.Connected, ShouldBeFalse)
				So(diag.Connectivity.ComponentCount, ShouldEqual, 3)
				So(len(diag.Connectivity.IsolatedItems), ShouldEqual, 3)
				So(diag.Triads.TotalTriads, ShouldEqual, 0)
			})
		})

		Convey("When a transitive round-robin was voted", func() {
			for _, v := range []service.Vote{
				{VoteID: "v-1", WinnerID: "a", LoserID: "b", SessionID: "s1"},
				{VoteID: "v-2", WinnerID: "a", LoserID: "c", SessionID: "s1"},
				{VoteID: "v-3", WinnerID: "b", LoserID: "c", SessionID: "s1"},
			} {
				_, err := svc.SubmitVote(ctx, v)
				So(err, ShouldBeNil)
			}

			diag, err := svc.Diagnostics(ctx)

			Convey("Then the graph should be one clean component", func() {
				So(err, ShouldBeNil)
				So(diag.Connectivity.Connected, ShouldBeTrue)
				So(diag.Connectivity.ComponentCount, ShouldEqual, 1)
				So(len(diag.Connectivity.IsolatedItems), ShouldEqual, 0)
			})

			Convey("And the single triad should be transitive", func() {
				So(err, ShouldBeNil)
				So(diag.Triads.TotalTriads, ShouldEqual, 1)
				So(diag.Triads.CircularTriadCount, ShouldEqual, 0)
				So(diag.Triads.TransitivityIndex, ShouldNotBeNil)
				So(*diag.Triads.TransitivityIndex, ShouldAlmostEqual, 1.0)
			})
		})
	})
}

func TestService_RefreshEstimates(t *testing.T) {
	Convey("Given a started service with a lopsided vote history", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := startService(ctx, t, service.WithSchedulerSeed(7))
		defer svc.Stop()
		addItems(ctx, t, svc, "a", "b", "c")

		// a beats b more often than b beats a, and b dominates c.
		for _, v := range []service.Vote{
			{VoteID: "v-1", WinnerID: "a", LoserID: "b", SessionID: "s1"},
			{VoteID: "v-2", WinnerID: "a", LoserID: "b", SessionID: "s1"},
			{VoteID: "v-3", WinnerID: "a", LoserID: "b", SessionID: "s2"},
			{VoteID: "v-4", WinnerID: "b", LoserID: "a", SessionID: "s2"},
			{VoteID: "v-5", WinnerID: "b", LoserID: "c", SessionID: "s1"},
			{VoteID: "v-6", WinnerID: "b", LoserID: "c", SessionID: "s2"},
			{VoteID: "v-7", WinnerID: "c", LoserID: "b", SessionID: "s1"},
			{VoteID: "v-8", WinnerID: "a", LoserID: "c", SessionID: "s2"},
			{VoteID: "v-9", WinnerID: "c", LoserID: "a", SessionID: "s1"},
		} {
			_, err := svc.SubmitVote(ctx, v)
			So(err, ShouldBeNil)
		}

		Convey("When refreshing estimates on demand", func() {
			err := svc.RefreshEstimates(ctx)

			Convey("Then fitted abilities should be visible immediately", func() {
				So(err, ShouldBeNil)

				items, itemsErr := svc.Items(ctx)
				So(itemsErr, ShouldBeNil)

				abilities := make(map[string]float64, len(items))
				for _, it := range items {
					abilities[it.ID] = it.BTAbility
				}
				So(abilities["a"], ShouldBeGreaterThan, abilities["b"])
				So(abilities["b"], ShouldBeGreaterThan, abilities["c"])
			})

			Convey("And the run should show up in the stats", func() {
				So(err, ShouldBeNil)
				st := svc.Stats(ctx)
				So(st.EstimatorRuns, ShouldBeGreaterThanOrEqualTo, 1)
				So(st.LastConverged, ShouldBeTrue)
			})
		})
	})
}

func TestService_Stats(t *testing.T) {
	Convey("Given a started service with mixed vote outcomes", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := startService(ctx, t, service.WithSchedulerSeed(7))
		defer svc.Stop()
		addItems(ctx, t, svc, "a", "b", "c")

		_, err := svc.SubmitVote(ctx, service.Vote{VoteID: "v-1", WinnerID: "a", LoserID: "b", SessionID: "s1"})
		So(err, ShouldBeNil)
		_, err = svc.SubmitVote(ctx, service.Vote{VoteID: "v-2", WinnerID: "b", LoserID: "c", SessionID: "s2"})
		So(err, ShouldBeNil)
		_, err = svc.SubmitVote(ctx, service.Vote{VoteID: "v-1", WinnerID: "a", LoserID: "b", SessionID: "s1"})
		So(err, ShouldBeNil) // duplicate
		_, err = svc.SubmitVote(ctx, service.Vote{VoteID: "v-3", WinnerID: "a", LoserID: "ghost", SessionID: "s1"})
		So(err, ShouldNotBeNil) // rejected

		Convey("When reading the stats snapshot", func() {
			st := svc.Stats(ctx)

			Convey("Then the counts should reflect the history", func() {
				So(st.Items, ShouldEqual, 3)
				So(st.Comparisons, ShouldEqual, 2)
				So(st.Sessions, ShouldEqual, 2)
				So(st.AcceptedVotes, ShouldEqual, 2)
				So(st.DuplicateVotes, ShouldEqual, 1)
				So(st.RejectedVotes, ShouldEqual, 1)
				So(st.QueueDepth, ShouldBeGreaterThanOrEqualTo, 0)
			})
		})
	})
}

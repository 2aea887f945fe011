package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating options", func() {
			namespaceOpt := WithNamespace("test-namespace")
			subsystemOpt := WithSubsystem("test-subsystem")
			histogramBucketsOpt := WithHistogramBuckets([]float64{0.1, 0.5, 1.0})
			refreshIntervalOpt := WithRefreshInterval(5 * time.Second)
			registryOpt := WithPrometheusRegistry(prometheus.NewRegistry())

			Convey("Then they should be valid functions", func() {
				So(namespaceOpt, ShouldNotBeNil)
				So(subsystemOpt, ShouldNotBeNil)
				So(histogramBucketsOpt, ShouldNotBeNil)
				So(refreshIntervalOpt, ShouldNotBeNil)
				So(registryOpt, ShouldNotBeNil)
			})
		})

		Convey("When an option carries a zero value", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithRefreshInterval(0),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults should survive", func() {
				So(manager.namespace, ShouldEqual, "sciblind")
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "sciblind")
				So(manager.subsystem, ShouldEqual, "study")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithRefreshInterval(10*time.Second),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should carry the overrides", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "test-namespace")
				So(manager.subsystem, ShouldEqual, "test-subsystem")
				So(manager.RefreshInterval(), ShouldEqual, 10*time.Second)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given metrics recording", t, func() {
		Convey("When recording vote metrics", func() {
			Convey("Then it should record accepted votes", func() {
				So(func() {
					RecordVoteAccepted()
					RecordVoteAccepted()
				}, ShouldNotPanic)
			})

			Convey("And it should record duplicate votes", func() {
				So(func() {
					RecordVoteDuplicate()
				}, ShouldNotPanic)
			})

			Convey("And it should record rejected votes", func() {
				So(func() {
					RecordVoteRejected()
				}, ShouldNotPanic)
			})

			Convey("And it should record rating updates and latency", func() {
				So(func() {
					RecordRatingUpdate()
					RecordRatingLatency(12.5)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording operational metrics", func() {
			Convey("Then it should update queue and worker gauges", func() {
				So(func() {
					UpdateQueueSize(10)
					UpdateWorkerCount(4)
					UpdateTotalItems(50)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording estimator metrics", func() {
			Convey("Then it should record runs and outcomes", func() {
				So(func() {
					RecordEstimatorRun()
					RecordEstimatorRunDuration(42.0)
					UpdateEstimatorLastIterations(17)
					UpdateEstimatorConverged(true)
					UpdateEstimatorConverged(false)
					UpdateEstimatorLastUnix(1700000000)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording store metrics", func() {
			Convey("Then it should track totals and latencies", func() {
				So(func() {
					UpdateStoreItemsTotal(100)
					UpdateStoreComparisonsTotal(4200)
					RecordStoreUpdateLatency(1.5)
					RecordStoreQueryLatency(0.2)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording scheduler metrics", func() {
			Convey("Then it should track selections by phase and mode", func() {
				So(func() {
					RecordSchedulerSelection("coverage", "pair")
					RecordSchedulerSelection("tournament", "quad")
					RecordSchedulerExhausted()
				}, ShouldNotPanic)
			})
		})

		Convey("When recording publishability metrics", func() {
			Convey("Then it should track status and counted comparisons", func() {
				So(func() {
					UpdatePublishabilityStatus("insufficient_data", true)
					UpdatePublishabilityStatus("publishable", false)
					UpdatePublishabilityComparisons(250)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording refresh queue metrics", func() {
			Convey("Then it should track queue activity", func() {
				So(func() {
					UpdateQueueCapacity(1000)
					UpdateQueueUtilization(0.25)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordQueueCoalesced()
				}, ShouldNotPanic)
			})
		})

		Convey("When recording worker metrics", func() {
			Convey("Then it should track worker activity", func() {
				So(func() {
					UpdateWorkerActiveCount(2)
					UpdateWorkerIdleCount(2)
					RecordWorkerProcessingLatency(7.0)
					RecordWorkerError()
				}, ShouldNotPanic)
			})
		})

		Convey("When recording error metrics", func() {
			Convey("Then it should track errors with labels", func() {
				So(func() {
					RecordErrorByComponent("store", "not_found")
					RecordErrorByType("estimation_error", "high")
				}, ShouldNotPanic)
			})
		})

		Convey("When recording system metrics", func() {
			Convey("Then it should track runtime health", func() {
				So(func() {
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(42)
					RecordSystemGCPauseTime(0.8)
				}, ShouldNotPanic)
			})
		})
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given the global registry", t, func() {
		Convey("When gathering registered metrics", func() {
			registry := GetRegistry()
			So(registry, ShouldNotBeNil)

			RecordVoteAccepted()
			families, err := registry.Gather()

			Convey("Then the study metrics should be exposed", func() {
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)

				found := false
				for _, fam := range families {
					if fam.GetName() == "sciblind_study_votes_accepted_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

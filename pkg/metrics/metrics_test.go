package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then defaults are applied", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "learnmatch")
				So(manager.subsystem, ShouldEqual, "knn")
				So(manager.searchBuckets, ShouldNotBeEmpty)
				So(manager.customLabels, ShouldBeEmpty)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithWeightSearchBuckets([]float64{100, 1000}),
				WithConstLabel("env", "test"),
				WithConstLabel("", "ignored"),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are honored", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.searchBuckets, ShouldResemble, []float64{100, 1000})
				So(manager.customLabels, ShouldResemble, map[string]string{"env": "test"})
			})

			Convey("And metric names carry the namespace and subsystem", func() {
				manager.trainsTotal.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_trains_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty option values are passed", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithWeightSearchBuckets(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "learnmatch")
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
				So(len(manager.searchBuckets), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording ingestion metrics", func() {
			before := testutil.ToFloat64(globalManager.progressReceived)
			RecordProgressReceived()
			RecordProgressReceived()
			RecordProgressDuplicate()
			RecordProgressProcessed()
			RecordExtractionLatency(0.4)
			RecordExtractionError()

			Convey("Then counters advance", func() {
				So(testutil.ToFloat64(globalManager.progressReceived)-before, ShouldEqual, 2)
			})
		})

		Convey("When recording model metrics", func() {
			UpdateTrainingSetSize(42)
			RecordTrain(3.5)
			RecordQueryLatency("neighbors", 0.2)
			RecordClassification("advanced")
			UpdateValidationAccuracy(0.75)
			RecordWeightSearch(120, 0.9, 64)

			Convey("Then gauges hold the latest values", func() {
				So(testutil.ToFloat64(globalManager.trainingSetSize), ShouldEqual, 42)
				So(testutil.ToFloat64(globalManager.validationAccuracy), ShouldEqual, 0.75)
				So(testutil.ToFloat64(globalManager.weightSearchBest), ShouldEqual, 0.9)
				So(testutil.ToFloat64(globalManager.classifications.WithLabelValues("advanced")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording store, queue and worker metrics", func() {
			So(func() {
				UpdateStoreProfiles(10)
				RecordStoreWriteLatency(1.2)
				IncrementStoreSnapshotCount()
				UpdateQueueSize(5)
				UpdateQueueCapacity(10)
				UpdateQueueUtilization(0.5)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerActiveCount(4)
				RecordWorkerProcessingLatency(2)
				RecordWorkerError()
			}, ShouldNotPanic)

			Convey("Then the queue gauges reflect the update", func() {
				So(testutil.ToFloat64(globalManager.queueUtilization), ShouldEqual, 0.5)
				So(testutil.ToFloat64(globalManager.workerActiveCount), ShouldEqual, 4)
			})
		})

		Convey("When recording HTTP, error and system metrics", func() {
			So(func() {
				RecordHTTPRequest("/train", "POST", "200")
				RecordHTTPRequestDuration("/train", "POST", "200", 7)
				RecordErrorByComponent("extract", "validation")
				RecordErrorByType("validation", "warning")
				RecordErrorByEndpoint("/progress", "POST", "bad_request")
				RecordErrorLatency("store", "write", 3)
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		reg := GetRegistry()

		Convey("Then it gathers service metrics without Go runtime collectors", func() {
			RecordProgressReceived()
			families, err := reg.Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
			for _, f := range families {
				So(f.GetName(), ShouldStartWith, "learnmatch_knn_")
			}
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given a reconfigured global manager", t, func() {
		reg := Configure(
			WithNamespace("lm"),
			WithSubsystem("test"),
			WithConstLabel("instance", "a"),
			WithHistogramBuckets([]float64{1, 10}),
			WithWeightSearchBuckets([]float64{100}),
		)
		defer Configure()

		Convey("Then package helpers record into the new registry", func() {
			So(GetRegistry(), ShouldEqual, reg)
			RecordTrain(3)
			families, err := reg.Gather()
			So(err, ShouldBeNil)
			names := map[string]bool{}
			for _, f := range families {
				names[f.GetName()] = true
				So(f.GetName(), ShouldStartWith, "lm_test_")
				for _, m := range f.GetMetric() {
					So(m.GetLabel(), ShouldNotBeEmpty)
				}
			}
			So(names["lm_test_trains_total"], ShouldBeTrue)
		})
	})

	Convey("Configure with no options restores the defaults", t, func() {
		reg := Configure()
		RecordProgressReceived()
		families, err := reg.Gather()
		So(err, ShouldBeNil)
		for _, f := range families {
			So(f.GetName(), ShouldStartWith, "learnmatch_knn_")
		}
	})
}

func TestSince(t *testing.T) {
	Convey("Since reports milliseconds", t, func() {
		start := time.Now().Add(-1500 * time.Microsecond)
		So(Since(start), ShouldBeGreaterThanOrEqualTo, 1.5)
	})
}

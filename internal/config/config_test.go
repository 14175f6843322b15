package config_test

import (
	"context"
	"errors"
	"math"
	"runtime"
	"testing"

	"github.com/okian/learnmatch/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.K, convey.ShouldEqual, 5)
			convey.So(cfg.UseWeightedDistance, convey.ShouldBeFalse)
			convey.So(cfg.FeatureWeights.AccuracyRate, convey.ShouldEqual, 1.0)
			convey.So(cfg.FeatureWeights.XPEarned, convey.ShouldEqual, 1.0)
			convey.So(cfg.RetrainInterval().Milliseconds(), convey.ShouldEqual, 1000)
			convey.So(cfg.EventTimeout(), convey.ShouldBeZeroValue)
			convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "learnmatch")
			convey.So(cfg.MetricsSubsystem, convey.ShouldEqual, "knn")
			convey.So(cfg.MetricsLabels, convey.ShouldBeEmpty)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("When k is not positive", func() {
			cfg.K = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a weight is negative", func() {
			cfg.FeatureWeights.Consistency = -1
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a weight is not finite", func() {
			cfg.FeatureWeights.TimePerLesson = math.Inf(1)
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the retrain interval is zero", func() {
			cfg.RetrainIntervalMS = 0
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the event timeout is negative", func() {
			cfg.EventTimeoutMS = -1
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the log format is unknown", func() {
			cfg.LogFormat = "xml"
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When a weight is zero", func() {
			cfg.FeatureWeights.XPEarned = 0
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When metric naming is customized", func() {
			cfg.MetricsNamespace = "lm"
			cfg.MetricsLabels = map[string]string{"instance": "a"}
			cfg.LatencyBucketsMS = []float64{1, 5, 25}
			convey.So(cfg.Validate(), convey.ShouldBeNil)

			convey.Convey("Then an invalid namespace is rejected", func() {
				cfg.MetricsNamespace = "learn-match"
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})

			convey.Convey("Then a reserved label name is rejected", func() {
				cfg.MetricsLabels = map[string]string{"__name": "x"}
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})

			convey.Convey("Then unordered or repeated buckets are rejected", func() {
				cfg.LatencyBucketsMS = []float64{5, 1}
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
				cfg.LatencyBucketsMS = nil
				cfg.WeightSearchBucketsMS = []float64{10, 10}
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

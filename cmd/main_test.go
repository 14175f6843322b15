package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/okian/learnmatch/internal/config"
	"github.com/okian/learnmatch/pkg/logger"
	"github.com/okian/learnmatch/pkg/metrics"
	"github.com/smartystreets/goconvey/convey"
)

func TestBuildService(t *testing.T) {
	_ = logger.Init()
	log := logger.Get()

	convey.Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.WorkerCount = 2

		convey.Convey("When the service is built and started", func() {
			svc, closeStore, err := buildService(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			defer closeStore()
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			convey.Convey("Then the configured k and worker count are used", func() {
				stats := svc.GetStats()
				convey.So(stats["k"], convey.ShouldEqual, 5)
				convey.So(stats["workerCount"], convey.ShouldEqual, 2)
			})

			convey.Convey("Then the mux serves every surface", func() {
				mux := newMux(ctx, svc, cfg)
				for path, want := range map[string]int{
					"/":                      http.StatusOK,
					"/api-docs":              http.StatusOK,
					"/openapi.yaml":          http.StatusOK,
					"/healthz":               http.StatusOK,
					"/stats":                 http.StatusOK,
					"/profiles/1":            http.StatusNotFound,
					"/users/1/neighbors":     http.StatusNotFound,
					"/definitely-not-a-page": http.StatusNotFound,
				} {
					w := httptest.NewRecorder()
					mux.ServeHTTP(w, httptest.NewRequest("GET", path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, want)
				}
			})

			convey.Convey("Then a profile round-trips through the API", func() {
				mux := newMux(ctx, svc, cfg)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest("PUT", "/profiles/3", strings.NewReader(`{"category":"beginner","accuracy_rate":0.4}`)))
				convey.So(w.Code, convey.ShouldEqual, http.StatusCreated)

				w = httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest("GET", "/users/3/classification", http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			})

			convey.Convey("Then an overflowing feature value is refused and queries stay well-formed", func() {
				mux := newMux(ctx, svc, cfg)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest("PUT", "/profiles/1", strings.NewReader(`{"time_per_lesson":1e200}`)))
				convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)

				for path, body := range map[string]string{
					"/profiles/4": `{"time_per_lesson":1e150}`,
					"/profiles/5": `{}`,
				} {
					w = httptest.NewRecorder()
					mux.ServeHTTP(w, httptest.NewRequest("PUT", path, strings.NewReader(body)))
					convey.So(w.Code, convey.ShouldEqual, http.StatusCreated)
				}

				for _, path := range []string{"/users/5/prediction", "/users/5/neighbors", "/users/5/similarity"} {
					w = httptest.NewRecorder()
					mux.ServeHTTP(w, httptest.NewRequest("GET", path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
					convey.So(strings.TrimSpace(w.Body.String()), convey.ShouldStartWith, "{")
				}

				var sim struct {
					Score float64 `json:"score"`
				}
				w = httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest("GET", "/users/5/similarity", http.NoBody))
				convey.So(json.Unmarshal(w.Body.Bytes(), &sim), convey.ShouldBeNil)
				convey.So(sim.Score, convey.ShouldBeGreaterThan, 0)
			})
		})
	})

	convey.Convey("Given a store path", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.StorePath = filepath.Join(t.TempDir(), "profiles.db")

		convey.Convey("Then the SQLite store is opened and closed", func() {
			svc, closeStore, err := buildService(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc, convey.ShouldNotBeNil)
			convey.So(func() { closeStore() }, convey.ShouldNotPanic)
		})
	})

	convey.Convey("Given a store path under a regular file", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		blocker := filepath.Join(t.TempDir(), "not-a-dir")
		convey.So(os.WriteFile(blocker, []byte("x"), 0o600), convey.ShouldBeNil)
		cfg.StorePath = filepath.Join(blocker, "profiles.db")

		convey.Convey("Then building fails", func() {
			_, _, err := buildService(ctx, cfg, log)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	_ = logger.Init()

	convey.Convey("Given the background metric updaters", t, func() {
		convey.Convey("Then the system updater returns when ctx ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then one-shot updates do not panic", func() {
			ctx := context.Background()
			svc, closeStore, err := buildService(ctx, config.New(ctx), logger.Get())
			convey.So(err, convey.ShouldBeNil)
			defer closeStore()

			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)

			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})
	})
}

func TestMetricsOptions(t *testing.T) {
	convey.Convey("Given metrics settings in the config", t, func() {
		cfg := config.New(context.Background())
		cfg.MetricsNamespace = "lm"
		cfg.MetricsSubsystem = "prod"
		cfg.MetricsLabels = map[string]string{"region": "eu"}
		cfg.LatencyBucketsMS = []float64{1, 10}

		convey.Convey("Then a manager built from them names and labels every metric", func() {
			reg := prometheus.NewRegistry()
			metrics.NewManager(append(metricsOptions(cfg), metrics.WithPrometheusRegistry(reg))...)
			families, err := reg.Gather()
			convey.So(err, convey.ShouldBeNil)
			convey.So(families, convey.ShouldNotBeEmpty)
			for _, f := range families {
				convey.So(f.GetName(), convey.ShouldStartWith, "lm_prod_")
				convey.So(f.GetMetric()[0].GetLabel()[0].GetName(), convey.ShouldEqual, "region")
			}
		})
	})
}

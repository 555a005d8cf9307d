package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/shiftmetrics/internal/adapters/repository"
	service "github.com/okian/shiftmetrics/internal/app"
	"github.com/okian/shiftmetrics/internal/config"
	"github.com/okian/shiftmetrics/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestOpenStore(t *testing.T) {
	convey.Convey("Given a storage configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("When the memory driver is selected", func() {
			s, err := openStore(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			defer s.Close()

			_, ok := s.(*repository.MemoryStore)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("When the badger driver is selected", func() {
			cfg.Storage.Driver = config.DriverBadger
			cfg.Storage.BadgerPath = t.TempDir()

			s, err := openStore(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			defer s.Close()

			convey.So(s.Ping(ctx), convey.ShouldBeNil)
		})

		convey.Convey("When the postgres dsn cannot be parsed", func() {
			cfg.Storage.Driver = config.DriverPostgres
			cfg.Storage.PostgresDSN = "postgres://%zz"

			_, err := openStore(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestNewHandler(t *testing.T) {
	convey.Convey("Given the assembled HTTP handler", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		reg := config.DefaultRegistry()
		svc := service.New(
			service.WithLogger(logger.Nop()),
			service.WithWorkerCount(1),
			service.WithRegistry(reg.Workers, reg.Workstations),
		)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		h := newHandler(ctx, svc, []string{"https://dashboard.example"})

		convey.Convey("When an event is posted and metrics are read", func() {
			body := `{"timestamp":"2026-01-29T10:00:00Z","worker_id":"W1","workstation_id":"S1","event_type":"working","confidence":0.9}`
			req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusCreated)

			w = httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/metrics/workers/W1", nil))

			convey.Convey("Then the full route table should serve them", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var m map[string]any
				convey.So(json.Unmarshal(w.Body.Bytes(), &m), convey.ShouldBeNil)
				convey.So(m["worker_id"], convey.ShouldEqual, "W1")
				convey.So(m["name"], convey.ShouldEqual, "John Smith")
			})
		})

		convey.Convey("When a browser sends a preflight from an allowed origin", func() {
			req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
			req.Header.Set("Origin", "https://dashboard.example")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Header().Get("Access-Control-Allow-Origin"), convey.ShouldEqual, "https://dashboard.example")
		})

		convey.Convey("When the docs are requested", func() {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metric updaters", t, func() {
		convey.Convey("When the system updater runs until its context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { updateSystemMetrics() }, convey.ShouldNotPanic)
		})

		convey.Convey("When the service updater reads a stopped and a started service", func() {
			svc := service.New(service.WithLogger(logger.Nop()), service.WithWorkerCount(1))
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})
	})
}

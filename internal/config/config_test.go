package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/shiftmetrics/internal/config"
	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.TailDefault, convey.ShouldEqual, 30*time.Minute)
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.Storage.Driver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.Cache.Enabled, convey.ShouldBeFalse)
			convey.So(cfg.MQTT.Enabled, convey.ShouldBeFalse)
			convey.So(cfg.Kafka.Enabled, convey.ShouldBeFalse)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("And the default registry should hold the seeded floor", func() {
			convey.So(cfg.Registry.Workers, convey.ShouldHaveLength, 6)
			convey.So(cfg.Registry.Workstations, convey.ShouldHaveLength, 6)
			convey.So(cfg.Registry.Workers[0], convey.ShouldResemble, model.Worker{WorkerID: "W1", Name: "John Smith"})
			convey.So(cfg.Registry.Workstations[1], convey.ShouldResemble,
				model.Workstation{StationID: "S2", Name: "Quality Control", StationType: "inspection"})
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with one bad setting", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":            func(c *config.Config) { c.Addr = "" },
			"negative tail":         func(c *config.Config) { c.TailDefault = -time.Minute },
			"zero queue":            func(c *config.Config) { c.EventQueueSize = 0 },
			"negative workers":      func(c *config.Config) { c.WorkerCount = -1 },
			"unknown driver":        func(c *config.Config) { c.Storage.Driver = "mysql" },
			"postgres without dsn":  func(c *config.Config) { c.Storage.Driver = config.DriverPostgres },
			"badger without path":   func(c *config.Config) { c.Storage.Driver = config.DriverBadger; c.Storage.BadgerPath = "" },
			"cache without addr":    func(c *config.Config) { c.Cache.Enabled = true; c.Cache.RedisAddr = "" },
			"mqtt without topic":    func(c *config.Config) { c.MQTT.Enabled = true; c.MQTT.Topic = "" },
			"mqtt qos":              func(c *config.Config) { c.MQTT.QoS = 3 },
			"kafka without brokers": func(c *config.Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil },
			"worker without id":     func(c *config.Config) { c.Registry.Workers = append(c.Registry.Workers, model.Worker{Name: "x"}) },
			"duplicate worker": func(c *config.Config) {
				c.Registry.Workers = append(c.Registry.Workers, model.Worker{WorkerID: "W1"})
			},
			"duplicate station": func(c *config.Config) {
				c.Registry.Workstations = append(c.Registry.Workstations, model.Workstation{StationID: "S1"})
			},
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(name, convey.ShouldNotBeEmpty)
		}

		convey.Convey("And a postgres config with a dsn should pass", func() {
			cfg := config.New()
			cfg.Storage.Driver = config.DriverPostgres
			cfg.Storage.PostgresDSN = "postgres://localhost/shiftmetrics"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

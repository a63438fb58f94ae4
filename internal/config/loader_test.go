package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/matchlearn/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.DefaultDomain, convey.ShouldEqual, "default")
				convey.So(cfg.RetrainDomains, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("MATCHLEARN_ADDR", ":8080")
			t.Setenv("MATCHLEARN_QUEUE_SIZE", "500")
			t.Setenv("MATCHLEARN_MIN_TRAINING_SAMPLES", "40")
			t.Setenv("MATCHLEARN_MAX_STEP_FRACTION", "0.1")
			t.Setenv("MATCHLEARN_AUTO_ACTIVATE", "true")
			t.Setenv("MATCHLEARN_RETRAIN_DOMAINS", "partner-match, vendors")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.MinTrainingSamples, convey.ShouldEqual, 40)
				convey.So(cfg.MaxStepFraction, convey.ShouldEqual, 0.1)
				convey.So(cfg.AutoActivate, convey.ShouldBeTrue)
				convey.So(cfg.RetrainDomains, convey.ShouldResemble, []string{"partner-match", "vendors"})
			})
		})

		convey.Convey("When loading config with a YAML file and env overrides", func() {
			path := writeConfigFile(t, `
addr: ":9090"
store_driver: sqlite
store_dsn: "file:matchlearn.db"
worker_count: 24
retrain_schedule: "0 * * * *"
retrain_domains:
  - partner-match
`)
			t.Setenv("MATCHLEARN_CONFIG", path)
			t.Setenv("MATCHLEARN_WORKER_COUNT", "32")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env wins over the file and the file over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
				convey.So(cfg.RetrainSchedule, convey.ShouldEqual, "0 * * * *")
				convey.So(cfg.RetrainDomains, convey.ShouldResemble, []string{"partner-match"})
				convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			t.Setenv("MATCHLEARN_CONFIG", writeConfigFile(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			t.Setenv("MATCHLEARN_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			t.Setenv("MATCHLEARN_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, config.EnvPrefix) {
			_ = os.Unsetenv(strings.SplitN(kv, "=", 2)[0])
		}
	}
}

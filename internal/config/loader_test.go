package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/rnaught/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.DataDir, convey.ShouldEqual, "data")
				convey.So(cfg.ThresholdValue, convey.ShouldEqual, 30)
				convey.So(cfg.Regressor, convey.ShouldEqual, config.RegressorExec)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("RNAUGHT_THRESHOLD_FIELD", "total_cases")
			_ = os.Setenv("RNAUGHT_THRESHOLD_VALUE", "100")
			_ = os.Setenv("RNAUGHT_NEW_CASES_FIELD", "new_cases")
			_ = os.Setenv("RNAUGHT_WORKER_COUNT", "3")
			_ = os.Setenv("RNAUGHT_EXCLUDES", "[[0]]")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.ThresholdField, convey.ShouldEqual, "total_cases")
				convey.So(cfg.ThresholdValue, convey.ShouldEqual, 100)
				convey.So(cfg.NewCasesField, convey.ShouldEqual, "new_cases")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				specs, err := cfg.ExclusionSpecs()
				convey.So(err, convey.ShouldBeNil)
				convey.So(specs, convey.ShouldHaveLength, 1)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
data_dir: "/srv/data"
output_dir: "/srv/out"
st_dev_factor: 1.0
regressor: linear
stages: "eigen,r0"
excludes: "[[0],[0,1]]"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("RNAUGHT_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DataDir, convey.ShouldEqual, "/srv/data")
				convey.So(cfg.OutputDir, convey.ShouldEqual, "/srv/out")
				convey.So(cfg.StDevFactor, convey.ShouldEqual, 1.0)
				convey.So(cfg.Regressor, convey.ShouldEqual, config.RegressorLinear)
				convey.So(cfg.Stages, convey.ShouldEqual, "eigen,r0")
				convey.So(cfg.MatrixDim, convey.ShouldEqual, 16) // from defaults
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile("worker_count: 24\nmatrix_dim: 8\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("RNAUGHT_CONFIG", tmpFile)
			_ = os.Setenv("RNAUGHT_WORKER_COUNT", "32")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
				convey.So(cfg.MatrixDim, convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("RNAUGHT_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("RNAUGHT_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("RNAUGHT_THRESHOLD_VALUE", "lots")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an empty output dir", func() {
			_ = os.Setenv("RNAUGHT_OUTPUT_DIR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"RNAUGHT_CONFIG",
		"RNAUGHT_THRESHOLD_FIELD",
		"RNAUGHT_THRESHOLD_VALUE",
		"RNAUGHT_NEW_CASES_FIELD",
		"RNAUGHT_WORKER_COUNT",
		"RNAUGHT_EXCLUDES",
		"RNAUGHT_OUTPUT_DIR",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "rnaught-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}

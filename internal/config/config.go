// Package config defines the pipeline configuration and its loading hooks.
//
// Conventions:
// - Defaults come from New(); Load layers a YAML file and env vars on top.
// - File names are resolved against DataDir unless absolute.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/okian/rnaught/internal/domain/model"
)

// Stage names accepted in Stages.
const (
	StagePrem   = "prem"
	StageGrowth = "growth"
	StageEigen  = "eigen"
	StageR0     = "r0"
)

// Regressor implementations.
const (
	RegressorExec   = "exec"
	RegressorLinear = "linear"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DataDir holds the input files; OutputDir receives every table.
	DataDir   string `koanf:"data_dir"`
	OutputDir string `koanf:"output_dir"`

	// Input files, relative to DataDir unless absolute.
	CasesFile               string `koanf:"cases_file"`
	CodesFile               string `koanf:"codes_file"`
	MatricesDir             string `koanf:"matrices_dir"`
	GenerationTimeFile      string `koanf:"generation_time_file"`
	PremWithHeadingsFile    string `koanf:"prem_with_headings_file"`
	PremWithoutHeadingsFile string `koanf:"prem_without_headings_file"`

	// ThresholdField must reach ThresholdValue before growth points are taken.
	ThresholdField string  `koanf:"threshold_field"`
	ThresholdValue float64 `koanf:"threshold_value"`

	// NewCasesField is read as daily new cases.
	NewCasesField string `koanf:"new_cases_field"`

	// StDevFactor multiplies the per-day Poisson error.
	StDevFactor float64 `koanf:"st_dev_factor"`

	// Excludes is a JSON list of index sets, e.g. "[[0],[0,1]]".
	Excludes string `koanf:"excludes"`

	// MatrixDim is the expected contact matrix dimension.
	MatrixDim int `koanf:"matrix_dim"`

	// Regressor selects "exec" (external tool) or "linear" (in-process).
	Regressor        string `koanf:"regressor"`
	RegressCommand   string `koanf:"regress_command"`
	RegressTimeoutMS int    `koanf:"regress_timeout_ms"`

	// WorkerCount and QueueSize size the per-country worker pool.
	WorkerCount int `koanf:"worker_count"`
	QueueSize   int `koanf:"queue_size"`

	// SQLitePath enables result persistence when non-empty.
	SQLitePath string `koanf:"sqlite_path"`

	// MetricsFile is written in Prometheus text format after the run, relative to OutputDir.
	MetricsFile string `koanf:"metrics_file"`

	// Stages is a comma-separated subset of prem,growth,eigen,r0.
	Stages string `koanf:"stages"`
}

// New creates a Config with the reference defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		DataDir:                 "data",
		OutputDir:               "output",
		CasesFile:               "owid-covid-data.json",
		CodesFile:               "UNSDMethodology.csv",
		MatricesDir:             "matrices",
		GenerationTimeFile:      "generation_time.json",
		PremWithHeadingsFile:    "MUestimates_all_locations_1.json",
		PremWithoutHeadingsFile: "MUestimates_all_locations_2.json",
		ThresholdField:          "new_cases_smoothed",
		ThresholdValue:          30,
		NewCasesField:           "new_cases_smoothed",
		StDevFactor:             1 / math.Sqrt(7),
		Excludes:                "[[0],[0,1],[0,1,2],[0,1,2,3],[0,1,2,3,4],[0,1,2,3,4,5],[0,1,2,3,4,5,6],[0,1,2,3,4,5,6,7]]",
		MatrixDim:               16,
		Regressor:               RegressorExec,
		RegressCommand:          "arrp.exe",
		RegressTimeoutMS:        60_000,
		WorkerCount:             runtime.NumCPU(),
		QueueSize:               1024,
		MetricsFile:             "metrics.prom",
		Stages:                  "growth,eigen,r0",
	}
}

// Validate checks the values the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.DataDir == "" || c.OutputDir == "" {
		return fmt.Errorf("%w: data_dir and output_dir must not be empty", ErrInvalidConfig)
	}
	if c.ThresholdField == "" || c.NewCasesField == "" {
		return fmt.Errorf("%w: threshold_field and new_cases_field must not be empty", ErrInvalidConfig)
	}
	if !(c.StDevFactor > 0) {
		return fmt.Errorf("%w: st_dev_factor must be positive", ErrInvalidConfig)
	}
	if c.MatrixDim < 0 {
		return fmt.Errorf("%w: matrix_dim must not be negative", ErrInvalidConfig)
	}
	switch c.Regressor {
	case RegressorExec:
		if c.RegressCommand == "" {
			return fmt.Errorf("%w: regress_command must not be empty", ErrInvalidConfig)
		}
		if c.RegressTimeoutMS <= 0 {
			return fmt.Errorf("%w: regress_timeout_ms must be positive", ErrInvalidConfig)
		}
	case RegressorLinear:
	default:
		return fmt.Errorf("%w: unknown regressor %q", ErrInvalidConfig, c.Regressor)
	}
	if _, err := c.ExclusionSpecs(); err != nil {
		return err
	}
	if _, err := c.StageSet(); err != nil {
		return err
	}
	return nil
}

// ExclusionSpecs parses Excludes.
func (c *Config) ExclusionSpecs() (model.ExclusionSpec, error) {
	if strings.TrimSpace(c.Excludes) == "" {
		return nil, nil
	}
	var specs model.ExclusionSpec
	if err := json.Unmarshal([]byte(c.Excludes), &specs); err != nil {
		return nil, fmt.Errorf("%w: excludes: %w", ErrInvalidConfig, err)
	}
	if err := specs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: excludes: %w", ErrInvalidConfig, err)
	}
	return specs, nil
}

// StageSet parses Stages.
func (c *Config) StageSet() (map[string]bool, error) {
	set := make(map[string]bool)
	for _, s := range strings.Split(c.Stages, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		switch s {
		case "":
		case StagePrem, StageGrowth, StageEigen, StageR0:
			set[s] = true
		default:
			return nil, fmt.Errorf("%w: unknown stage %q", ErrInvalidConfig, s)
		}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: no stages selected", ErrInvalidConfig)
	}
	return set, nil
}

// RegressTimeout returns the per-country regression timeout.
func (c *Config) RegressTimeout() time.Duration {
	return time.Duration(c.RegressTimeoutMS) * time.Millisecond
}

// InputPath resolves name against DataDir.
func (c *Config) InputPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// OutputPath resolves name against OutputDir.
func (c *Config) OutputPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.OutputDir, name)
}

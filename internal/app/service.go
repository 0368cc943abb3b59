// Package service runs the R0 pipeline: it imports contact matrices,
// estimates per-country growth rates and dominant eigenvalues, and joins
// them into R0 estimates.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/rnaught/internal/adapters/mq/queue"
	workerpool "github.com/okian/rnaught/internal/adapters/mq/worker"
	"github.com/okian/rnaught/internal/adapters/regress"
	"github.com/okian/rnaught/internal/adapters/repository"
	"github.com/okian/rnaught/internal/config"
	"github.com/okian/rnaught/internal/domain/growth"
	"github.com/okian/rnaught/internal/domain/join"
	"github.com/okian/rnaught/internal/domain/model"
	"github.com/okian/rnaught/pkg/logger"
	"github.com/okian/rnaught/pkg/metrics"
)

// Output file names under the output directory.
const (
	SlopeFile    = "slope.csv"
	EigenFile    = "pf_eigenvalue.csv"
	R0File       = "code2r0.csv"
	CountriesDir = "countries"
)

const (
	enqueueBackoff      = 5 * time.Millisecond
	poolShutdownTimeout = 5 * time.Second
)

// StageReport counts per-country outcomes of one stage.
type StageReport struct {
	Attempted int
	Succeeded int
	Skipped   int // no usable data
	Failed    int
}

// Report summarizes a run.
type Report struct {
	RunID      string
	Stages     map[string]StageReport
	Unresolved []string // prem sheets without a code
	Joined     int
	NonFinite  []string
	Gaps       join.Gaps
}

// Service runs the pipeline described by a Config.
type Service struct {
	cfg    *config.Config
	specs  model.ExclusionSpec
	stages map[string]bool

	regressor growth.Regressor
	store     repository.Store
	runID     string

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRegressor replaces the regressor selected by the configuration.
func WithRegressor(r growth.Regressor) Option {
	return func(s *Service) {
		if r != nil {
			s.regressor = r
		}
	}
}

// WithStore persists every completed r0 stage.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.runID = id
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New validates cfg and builds a Service.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	specs, err := cfg.ExclusionSpecs()
	if err != nil {
		return nil, err
	}
	stages, err := cfg.StageSet()
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		specs:  specs,
		stages: stages,
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("pipeline")
	}
	if s.regressor == nil {
		s.regressor, err = newRegressor(cfg, s.countriesDir())
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newRegressor(cfg *config.Config, dir string) (growth.Regressor, error) {
	switch cfg.Regressor {
	case config.RegressorLinear:
		return regress.NewLinear(), nil
	default:
		return regress.NewExec(cfg.RegressCommand, dir, cfg.RegressTimeout())
	}
}

// RunID returns the id attached to every log line and persisted run.
func (s *Service) RunID() string { return s.runID }

// Run executes the selected stages in order: prem, growth, eigen, r0.
// Per-country failures are counted in the report; an error is returned only
// when a stage cannot run at all.
func (s *Service) Run(ctx context.Context) (Report, error) {
	ctx = logger.WithFields(ctx, logger.String("run_id", s.runID))
	started := time.Now()
	rep := Report{RunID: s.runID, Stages: make(map[string]StageReport)}

	if !s.specs.Nested() {
		s.logger.Warn(ctx, "exclusion sets are not nested; each is applied to the full matrix",
			logger.String("excludes", s.cfg.Excludes))
	}
	s.logger.Info(ctx, "pipeline starting",
		logger.String("stages", s.cfg.Stages),
		logger.String("regressor", s.cfg.Regressor),
		logger.Int("exclusions", len(s.specs)))

	var (
		slopes []model.GrowthRecord
		eigens []model.EigenRecord
	)
	steps := []struct {
		stage string
		run   func(context.Context) error
	}{
		{config.StagePrem, func(ctx context.Context) error {
			return s.premStage(ctx, &rep)
		}},
		{config.StageGrowth, func(ctx context.Context) (err error) {
			slopes, err = s.growthStage(ctx, &rep)
			return err
		}},
		{config.StageEigen, func(ctx context.Context) (err error) {
			eigens, err = s.eigenStage(ctx, &rep)
			return err
		}},
		{config.StageR0, func(ctx context.Context) error {
			return s.r0Stage(ctx, started, slopes, eigens, &rep)
		}},
	}
	for _, step := range steps {
		if !s.stages[step.stage] {
			continue
		}
		stageStart := time.Now()
		err := step.run(logger.WithFields(ctx, logger.String("stage", step.stage)))
		metrics.RecordStageDuration(step.stage, time.Since(stageStart).Seconds())
		if err != nil {
			s.logger.Error(ctx, "stage failed", logger.String("stage", step.stage), logger.Error(err))
			return rep, fmt.Errorf("%s stage: %w", step.stage, err)
		}
		sr := rep.Stages[step.stage]
		s.logger.Info(ctx, "stage finished",
			logger.String("stage", step.stage),
			logger.Int("attempted", sr.Attempted),
			logger.Int("succeeded", sr.Succeeded),
			logger.Int("skipped", sr.Skipped),
			logger.Int("failed", sr.Failed),
			logger.Duration("elapsed", time.Since(stageStart)))
	}

	s.logger.Info(ctx, "pipeline finished", logger.Duration("elapsed", time.Since(started)))
	return rep, nil
}

// fanOut runs process for every code on a fresh queue and worker pool.
// process returns errSkip for countries without usable data. Failures,
// panics included, are taken from the pool's task counts.
func (s *Service) fanOut(ctx context.Context, stage string, codes []string, process func(context.Context, string) error) (StageReport, error) {
	var (
		mu  sync.Mutex
		rep = StageReport{Attempted: len(codes)}
	)
	q := eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.QueueSize))
	pool := workerpool.NewPool(s.cfg.WorkerCount, q, workerpool.ProcessorFunc(func(ctx context.Context, t workerpool.Task) error {
		err := process(logger.WithFields(ctx, logger.String("code", t.Code)), t.Code)
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			rep.Succeeded++
			metrics.RecordCountryProcessed(stage)
			return nil
		case errors.Is(err, errSkip):
			rep.Skipped++
			metrics.RecordCountrySkipped(stage, skipReason(err))
			s.logger.Debug(ctx, "country skipped", logger.String("code", t.Code), logger.Error(err))
			return nil
		default:
			metrics.RecordCountrySkipped(stage, "failed")
			return err
		}
	}))
	s.logger.Debug(ctx, "fan-out starting",
		logger.Int("countries", len(codes)),
		logger.Int("workers", pool.Size()))
	pool.Start(ctx)

	var enqueueErr error
	for _, code := range codes {
		if enqueueErr = enqueue(ctx, q, eventqueue.Task{Stage: stage, Code: code}); enqueueErr != nil {
			break
		}
	}
	_ = q.Close()

	waited := make(chan workerpool.Stats, 1)
	go func() { waited <- pool.Wait() }()

	var stats workerpool.Stats
	select {
	case stats = <-waited:
	case <-ctx.Done():
		stats = s.shutdownPool(ctx, pool, q)
	}

	mu.Lock()
	rep.Failed = int(stats.Failed)
	out := rep
	mu.Unlock()

	if enqueueErr != nil {
		return out, enqueueErr
	}
	return out, ctx.Err()
}

// shutdownPool stops a canceled fan-out within poolShutdownTimeout.
func (s *Service) shutdownPool(ctx context.Context, pool *workerpool.Pool, q eventqueue.Queue) workerpool.Stats {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), poolShutdownTimeout)
	defer cancel()

	pending := q.Len()
	if err := pool.Shutdown(sctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not stop in time", logger.Error(err))
	}
	s.logger.Warn(ctx, "fan-out canceled", logger.Int("pending", pending))
	return pool.Stats()
}

// enqueue retries while the bounded queue is full.
func enqueue(ctx context.Context, q eventqueue.Queue, t eventqueue.Task) error {
	for {
		err := q.Enqueue(ctx, t)
		if !errors.Is(err, eventqueue.ErrFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(enqueueBackoff):
		}
	}
}

func (s *Service) countriesDir() string {
	return s.cfg.OutputPath(CountriesDir)
}

func (s *Service) outputPath(name string) string {
	return s.cfg.OutputPath(name)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

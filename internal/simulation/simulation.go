// Package simulation drives pooled entities through a frame loop, the way
// a game's update loop spawns and despawns them.
//
// # Overview
//
// Each frame the simulation:
//   - returns the entities whose lifetime ended
//   - moves the active entities
//   - spawns entities per template at the configured rate
//   - optionally hands the registry an entity built outside it
//   - optionally sweeps every idle entity
//
// # Basic Usage
//
//	sim, err := simulation.New(cfg,
//	    simulation.WithLogger(log),
//	    simulation.WithMetrics(m),
//	)
//	if err != nil {
//	    return err
//	}
//	report, err := sim.Run(ctx)
//
// A Simulation is driven from one goroutine; Run blocks until the
// configured frames ran or ctx is cancelled.
package simulation

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/ajitpratap0/spawnpool/pkg/config"
	"github.com/ajitpratap0/spawnpool/pkg/errors"
	"github.com/ajitpratap0/spawnpool/pkg/logger"
	"github.com/ajitpratap0/spawnpool/pkg/metrics"
	"github.com/ajitpratap0/spawnpool/pkg/observability"
	"github.com/ajitpratap0/spawnpool/pkg/pool"
)

// Size of the square entities are placed in.
const worldSize = 1000.0

// Option configures a Simulation.
type Option func(*Simulation)

// WithLogger sets the logger of the simulation and its registry.
func WithLogger(l *zap.Logger) Option {
	return func(s *Simulation) {
		s.logger = l
	}
}

// WithMetrics records pool accounting and frame durations on m.
func WithMetrics(m *metrics.PoolMetrics) Option {
	return func(s *Simulation) {
		s.metrics = m
	}
}

// WithTracer opens one span per frame on t.
func WithTracer(t trace.Tracer) Option {
	return func(s *Simulation) {
		s.tracer = t
	}
}

// WithProcessStats controls whether reports include process resource usage.
func WithProcessStats(enabled bool) Option {
	return func(s *Simulation) {
		s.processStats = enabled
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(s *Simulation) {
		s.runID = id
	}
}

// Simulation owns a registry and the state of the frame loop.
type Simulation struct {
	cfg          config.SimulationConfig
	templates    []config.TemplateConfig
	registry     *pool.Registry[string]
	returns      DelayedReturns
	rng          *rand.Rand
	tally        *tally
	metrics      *metrics.PoolMetrics
	tracer       trace.Tracer
	logger       *zap.Logger
	processStats bool
	runID        string

	frame     int
	carry     map[string]float64
	strays    int
	scheduled int
	returned  int
	stale     int
	startedAt time.Time
}

// FrameStats is what one Step did.
type FrameStats struct {
	Frame     int
	Spawned   int
	Rejected  int
	Exhausted int
	Returned  int
	Stale     int
	Strays    int
	Swept     bool
}

// New creates a simulation of cfg. The pool of every template is created
// up front.
func New(cfg *config.Config, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulation{
		cfg:          cfg.Simulation,
		templates:    cfg.Templates,
		processStats: true,
		carry:        make(map[string]float64, len(cfg.Templates)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("simulation")
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("spawnpool")
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	s.logger = s.logger.With(zap.String("run_id", s.runID))

	seed := cfg.Simulation.Seed
	s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	var next pool.Observer
	if s.metrics != nil {
		next = s.metrics
	}
	s.tally = newTally(next)
	s.registry = pool.NewRegistry[string](NewCatalog(cfg.Templates),
		pool.WithLogger(s.logger.Named("pool")),
		pool.WithObserver(s.tally),
	)
	for _, t := range s.templates {
		if _, err := s.registry.GetPool(t.Name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Registry returns the registry the simulation acquires from.
func (s *Simulation) Registry() *pool.Registry[string] {
	return s.registry
}

// RunID returns the identifier of the run.
func (s *Simulation) RunID() string {
	return s.runID
}

// Frame returns the number of frames stepped so far.
func (s *Simulation) Frame() int {
	return s.frame
}

// Run steps the configured number of frames, reports, and then returns and
// destroys every entity. A cancelled ctx ends the loop between frames and
// is not an error.
func (s *Simulation) Run(ctx context.Context) (*Report, error) {
	s.startedAt = time.Now()
	s.logger.Info("starting simulation",
		zap.Int("frames", s.cfg.Frames),
		zap.Uint64("seed", s.cfg.Seed),
		zap.Int("templates", len(s.templates)))

	var tick <-chan time.Time
	if s.cfg.FrameDuration > 0 {
		ticker := time.NewTicker(s.cfg.FrameDuration)
		defer ticker.Stop()
		tick = ticker.C
	}

	cancelled := false
loop:
	for s.frame < s.cfg.Frames {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if _, err := s.Step(ctx); err != nil {
			return nil, err
		}
		if tick != nil && s.frame < s.cfg.Frames {
			select {
			case <-ctx.Done():
				cancelled = true
				break loop
			case <-tick:
			}
		}
	}

	report := s.Report()
	report.Cancelled = cancelled
	if err := s.registry.DisposeAll(); err != nil {
		return report, errors.Wrap(err, errors.ErrorTypeInternal, "failed to tear down pools")
	}

	s.logger.Info("simulation finished",
		zap.Int("frames", s.frame),
		zap.Bool("cancelled", cancelled),
		zap.Int("strays", s.strays),
		zap.Float64("elapsed_ms", report.ElapsedMS))
	return report, nil
}

// Step runs one frame.
func (s *Simulation) Step(ctx context.Context) (FrameStats, error) {
	s.frame++
	stats := FrameStats{Frame: s.frame}
	timer := metrics.NewTimer("frame")
	_, span := observability.StartFrame(ctx, s.tracer, s.frame)
	defer span.End()

	due := s.returns.Advance(s.frame)
	stats.Returned, stats.Stale = due.Returned, due.Stale
	s.returned += due.Returned
	s.stale += due.Stale
	for _, err := range due.Errors {
		s.logger.Warn("scheduled return failed", zap.Int("frame", s.frame), zap.Error(err))
	}

	s.move()

	for _, t := range s.templates {
		for n := s.spawnCount(t); n > 0; n-- {
			obj, err := s.spawn(t)
			switch {
			case errors.Is(err, pool.ErrPoolExhausted):
				stats.Exhausted++
			case err != nil:
				span.RecordError(err)
				return stats, err
			case obj == nil:
				stats.Rejected++
			default:
				stats.Spawned++
			}
		}
	}

	if s.cfg.StrayInterval > 0 && s.frame%s.cfg.StrayInterval == 0 {
		if err := s.injectStray(); err != nil {
			span.RecordError(err)
			return stats, err
		}
		stats.Strays++
	}

	if s.cfg.SweepInterval > 0 && s.frame%s.cfg.SweepInterval == 0 {
		s.registry.DisposeAllIdle()
		stats.Swept = true
	}

	span.SetAttribute("spawned", stats.Spawned)
	span.SetAttribute("rejected", stats.Rejected)
	span.SetAttribute("exhausted", stats.Exhausted)
	span.SetAttribute("returned", stats.Returned)
	span.SetAttribute("stale_returns", stats.Stale)
	span.SetAttribute("pending_returns", s.returns.Len())
	span.SetAttribute("swept", stats.Swept)
	if s.metrics != nil {
		s.metrics.ObserveFrame(timer.Stop())
	}
	return stats, nil
}

// Report summarizes the run so far.
func (s *Simulation) Report() *Report {
	r := &Report{
		RunID:     s.runID,
		Seed:      s.cfg.Seed,
		Frames:    s.frame,
		StartedAt: s.startedAt,
		Returns: ReturnReport{
			Scheduled: s.scheduled,
			Returned:  s.returned,
			Stale:     s.stale,
			Pending:   s.returns.Len(),
		},
		Strays: s.strays,
	}
	if !s.startedAt.IsZero() {
		r.ElapsedMS = float64(time.Since(s.startedAt).Microseconds()) / 1000
	}
	for _, st := range s.registry.Stats() {
		r.Pools = append(r.Pools, s.tally.template(st))
	}
	if s.processStats {
		proc, err := collectProcess()
		if err != nil {
			s.logger.Warn("process stats unavailable", zap.Error(err))
		}
		r.Process = proc
	}
	return r
}

// spawnCount accumulates the template's fractional rate and returns the
// whole spawns due this frame.
func (s *Simulation) spawnCount(t config.TemplateConfig) int {
	s.carry[t.Name] += t.SpawnPerFrame
	n := int(s.carry[t.Name])
	s.carry[t.Name] -= float64(n)
	return n
}

func (s *Simulation) spawn(t config.TemplateConfig) (pool.Object[string], error) {
	obj, err := s.registry.Acquire(t.Name, s.place)
	if err != nil || obj == nil {
		return nil, err
	}
	if err := s.registry.Ready(t.Name, obj); err != nil {
		return nil, err
	}

	lifetime := t.LifetimeFrames
	if t.LifetimeJitter > 0 {
		lifetime += s.rng.IntN(t.LifetimeJitter + 1)
	}
	s.returns.Schedule(s.frame+lifetime, obj.Lifecycle().CreateInstanceIdentity())
	s.scheduled++
	return obj, nil
}

func (s *Simulation) place(obj pool.Object[string]) {
	e, ok := obj.(*Entity)
	if !ok {
		return
	}
	e.X = s.rng.Float64() * worldSize
	e.Y = s.rng.Float64() * worldSize
	e.VX = s.rng.NormFloat64()
	e.VY = s.rng.NormFloat64()
	e.Placed = true
}

func (s *Simulation) move() {
	for _, t := range s.templates {
		p, err := s.registry.GetPool(t.Name)
		if err != nil {
			continue
		}
		for _, obj := range p.Active() {
			if e, ok := obj.(*Entity); ok {
				e.step()
			}
		}
	}
}

// injectStray hands the registry an entity it never populated, as a host
// instantiating a template directly would.
func (s *Simulation) injectStray() error {
	t := s.templates[s.rng.IntN(len(s.templates))]
	err := s.registry.Ready(t.Name, &Entity{})
	if err == nil {
		return errors.New(errors.ErrorTypeInternal, "stray entity was accepted").
			WithDetail("template", t.Name)
	}
	if !errors.Is(err, pool.ErrUntracked) {
		return errors.Wrap(err, errors.ErrorTypeInternal, "stray entity was not rejected").
			WithDetail("template", t.Name)
	}
	s.strays++
	return nil
}

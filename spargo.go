package spargo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/hupe1980/spargo/cg"
	"github.com/hupe1980/spargo/checkpoint"
	"github.com/hupe1980/spargo/codec"
	"github.com/hupe1980/spargo/config"
	"github.com/hupe1980/spargo/planner"
	"github.com/hupe1980/spargo/resource"
	"github.com/hupe1980/spargo/sched"
	"github.com/hupe1980/spargo/space"
	"github.com/hupe1980/spargo/sparse"
	"github.com/hupe1980/spargo/systems"
)

const fidB space.FieldID = 0

// checkpointFields are the solver fields needed to continue an iteration.
var checkpointFields = []space.FieldID{cg.FieldX, cg.FieldR, cg.FieldP}

// Session solves the 1-D model problem described by a configuration: a
// negative Laplacian with Dirichlet boundary values, split into equal pieces
// and solved with conjugate gradients.
type Session struct {
	cfg     config.Config
	logger  *Logger
	basic   *BasicMetricsCollector
	metrics MetricsCollector
	ctrl    *resource.Controller
	rt      *sched.Runtime
	planner *planner.Planner
	solver  *cg.Solver
	ckpt    *checkpoint.Store
	inputs  []*space.Region

	mu       sync.Mutex
	observed int
	closed   bool
}

// Result is the outcome of Run.
type Result struct {
	Iterations int
	// Residuals holds |r|² after setup and after each iteration.
	Residuals []float64
	Solution  []float64
	Duration  time.Duration
}

func parseEntry(s string) space.EntryType {
	if s == space.Float32.String() {
		return space.Float32
	}
	return space.Float64
}

func loggerFor(cfg config.LoggingConfig) *Logger {
	level := ParseLevel(cfg.Level)
	if cfg.Format == "json" {
		return NewJSONLogger(os.Stderr, level)
	}
	return NewTextLogger(os.Stderr, level)
}

// Open validates cfg, builds the system and submits the solver setup.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	if o.logger == nil {
		o.logger = loggerFor(cfg.Logging)
	}

	s := &Session{
		cfg:    cfg,
		logger: o.logger,
		basic:  &BasicMetricsCollector{},
		ctrl: resource.NewController(resource.Config{
			MemoryLimitBytes:   cfg.Runtime.MemoryLimitBytes,
			IOLimitBytesPerSec: cfg.Checkpoint.IOLimitBytesPerSec,
		}),
	}
	s.metrics = append(multiCollector{s.basic}, o.collectors...)
	s.rt = sched.NewRuntime(
		sched.WithLogger(s.logger.Logger),
		sched.WithWorkers(cfg.Runtime.Workers),
		sched.WithObserver(s.metrics),
		sched.WithBreakdownCheck(cfg.Runtime.BreakdownCheck),
	)
	s.planner = planner.New(s.rt,
		planner.WithLogger(s.logger.Logger),
		planner.WithAccountant(s.ctrl),
	)
	s.build()

	solver, err := cg.New(s.planner, cg.WithLogger(s.logger.Logger))
	if err != nil {
		_ = s.rt.Close()
		return nil, err
	}
	s.solver = solver

	blobs := o.blobs
	if blobs == nil && cfg.Checkpoint.Target != "" {
		if blobs, err = OpenBlobStore(ctx, cfg.Checkpoint); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	if blobs != nil {
		comp, _ := checkpoint.ParseCompression(cfg.Checkpoint.Compression)
		s.ckpt = checkpoint.New(blobs,
			checkpoint.WithCodec(codec.MustByName(cfg.Checkpoint.Codec)),
			checkpoint.WithCompression(comp),
			checkpoint.WithController(s.ctrl),
			checkpoint.WithLogger(s.logger.Logger),
		)
	}

	if o.resume && s.ckpt != nil {
		if err := s.resume(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "session opened",
		"n", cfg.Solver.N,
		"pieces", cfg.Solver.Pieces,
		"format", cfg.Solver.Format,
		"entry", cfg.Solver.Entry,
		"workspace_bytes", s.ctrl.MemoryUsage(),
	)
	return s, nil
}

func (s *Session) build() {
	sc := s.cfg.Solver
	entry := parseEntry(sc.Entry)
	line := space.Line(sc.N)

	rhs := space.NewRegion(line, space.Scalar(fidB, entry))
	systems.BoundaryRHS(rhs, fidB, sc.Boundary[0], sc.Boundary[1])
	slot := s.planner.AddRHS(rhs, fidB, space.EqualPartition(line, space.Colors(sc.Pieces)))
	s.inputs = append(s.inputs, rhs)

	if sc.Format == "csr" {
		kernel, rowptr := systems.Laplacian1DCSR(line, entry)
		s.planner.AddCSRMatrix(sparse.Square(entry, 1), slot, slot, kernel,
			systems.FieldCol, systems.FieldEntry, rowptr, systems.FieldRowPtr)
		s.inputs = append(s.inputs, kernel, rowptr)
		return
	}
	kernel := systems.Laplacian1DCOO(sc.N, entry)
	s.planner.AddCOOMatrix(sparse.Square(entry, 1), slot, slot, kernel,
		systems.FieldRow, systems.FieldCol, systems.FieldEntry)
	s.inputs = append(s.inputs, kernel)
}

func (s *Session) resume(ctx context.Context) error {
	name, err := s.ckpt.Latest(ctx, "")
	if errors.Is(err, checkpoint.ErrNotFound) {
		s.logger.InfoContext(ctx, "no checkpoint to resume from")
		return nil
	}
	if err != nil {
		return err
	}
	// Setup launches write the workspace; they must settle before the
	// checkpoint overwrites it.
	if err := s.rt.Wait(); err != nil {
		return err
	}
	man, err := s.ckpt.Load(ctx, name, s.solver.Workspace())
	if err != nil {
		s.logger.LogCheckpoint(ctx, name, -1, err)
		return &ErrCheckpoint{Name: name, Iteration: -1, cause: err}
	}
	if err := s.solver.Resume(man.Iteration, man.Residuals); err != nil {
		return &ErrCheckpoint{Name: name, Iteration: man.Iteration, cause: err}
	}
	s.mu.Lock()
	s.observed = len(man.Residuals)
	s.mu.Unlock()
	s.logger.LogCheckpoint(ctx, name, man.Iteration, nil)
	return nil
}

// Solver returns the CG driver.
func (s *Session) Solver() *cg.Solver { return s.solver }

// Runtime returns the task runtime.
func (s *Session) Runtime() *sched.Runtime { return s.rt }

// Controller returns the resource controller charged for workspace memory.
func (s *Session) Controller() *resource.Controller { return s.ctrl }

// Stats returns the built-in metrics.
func (s *Session) Stats() Stats { return s.basic.GetStats() }

// Run submits the remaining configured iterations, saving a checkpoint
// every checkpoint.every iterations, and waits for the result. On solver
// failure the partial residual history is returned with the error.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	start := time.Now()
	every := s.cfg.Checkpoint.Every
	for s.solver.Iterations() < s.cfg.Solver.Iterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.solver.Step()
		if s.ckpt != nil && every > 0 && s.solver.Iterations()%every == 0 {
			if _, err := s.Checkpoint(ctx); err != nil {
				return nil, err
			}
		}
	}

	res, err := s.solver.Residuals(ctx)
	s.observe(ctx, res)
	out := &Result{Iterations: s.solver.Iterations(), Residuals: res}
	if err != nil {
		out.Duration = time.Since(start)
		return out, err
	}
	if out.Solution, err = s.solver.Solution(ctx, 0); err != nil {
		return out, err
	}
	out.Duration = time.Since(start)
	s.logger.InfoContext(ctx, "solve finished",
		"iterations", out.Iterations,
		"residual_norm_squared", res[len(res)-1],
		"duration", out.Duration,
	)
	return out, nil
}

// observe reports residuals not yet seen by the collectors.
func (s *Session) observe(ctx context.Context, res []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := s.observed; i < len(res); i++ {
		s.metrics.ObserveResidual(res[i])
		s.logger.LogIteration(ctx, i, res[i])
	}
	s.observed = max(s.observed, len(res))
}

// Checkpoint waits for the current iterate and saves it. It returns the
// checkpoint name.
func (s *Session) Checkpoint(ctx context.Context) (string, error) {
	if s.ckpt == nil {
		return "", fmt.Errorf("%w: no checkpoint target configured", ErrUnsupportedTarget)
	}
	it := s.solver.Iterations()
	name := checkpoint.Name("", it)

	res, err := s.solver.Residuals(ctx)
	if err != nil {
		return "", &ErrCheckpoint{Name: name, Iteration: it, cause: err}
	}
	s.observe(ctx, res)
	for _, r := range s.solver.Workspace() {
		if err := s.rt.WaitFor(ctx, r, checkpointFields...); err != nil {
			return "", &ErrCheckpoint{Name: name, Iteration: it, cause: err}
		}
	}

	start := time.Now()
	err = s.ckpt.Save(ctx, name, checkpoint.Snapshot{
		Iteration: it,
		Residuals: res,
		Regions:   s.solver.Workspace(),
		Fields:    checkpointFields,
		Meta: map[string]string{
			"n":      strconv.FormatInt(s.cfg.Solver.N, 10),
			"pieces": strconv.Itoa(s.cfg.Solver.Pieces),
			"format": s.cfg.Solver.Format,
			"entry":  s.cfg.Solver.Entry,
		},
	})
	if err == nil {
		err = s.ckpt.Prune(ctx, "", s.cfg.Checkpoint.Keep)
	}
	s.metrics.ObserveCheckpoint(time.Since(start), err)
	s.logger.LogCheckpoint(ctx, name, it, err)
	if err != nil {
		return "", &ErrCheckpoint{Name: name, Iteration: it, cause: err}
	}
	return name, nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close waits for outstanding work and releases the session.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if s.solver != nil {
		errs = append(errs, s.solver.Destroy())
	}
	for _, r := range s.inputs {
		s.rt.Forget(r)
	}
	errs = append(errs, s.rt.Close())
	return errors.Join(errs...)
}

package cg

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/hupe1980/spargo/planner"
	"github.com/hupe1980/spargo/sched"
	"github.com/hupe1980/spargo/space"
)

// Workspace field IDs.
const (
	FieldX space.FieldID = iota
	FieldR
	FieldP
	FieldQ
)

// Solver runs unpreconditioned conjugate gradients on the block system
// registered with a planner.
//
// The iteration count is chosen by the caller; there is no residual
// threshold. Step never blocks: alpha and beta are futures consumed by the
// next launches.
type Solver struct {
	p       *planner.Planner
	rt      *sched.Runtime
	opts    options
	logger  *slog.Logger
	ws      []*space.Region
	rr      *sched.Future[float64]
	history []*sched.Future[float64]
}

// New allocates the solver workspace and submits the initial state
// X = 0, R = B, P = B.
func New(p *planner.Planner, opts ...Option) (*Solver, error) {
	o := applyOptions(opts)
	ws, err := p.NewWorkspace(FieldX, FieldR, FieldP, FieldQ)
	if err != nil {
		return nil, fmt.Errorf("cg: %w", err)
	}
	s := &Solver{
		p:      p,
		rt:     p.Runtime(),
		opts:   o,
		logger: o.logger,
		ws:     ws,
	}
	p.ZeroFill(FieldX, ws)
	p.CopyRHS(FieldR, ws)
	p.CopyRHS(FieldP, ws)
	s.rr = p.DotProduct(FieldR, FieldR, ws)
	s.history = append(s.history, s.rr)
	return s, nil
}

// Step submits one iteration.
func (s *Solver) Step() {
	p, ws := s.p, s.ws
	p.Matvec(FieldQ, FieldP, ws)
	alpha := s.divide("alpha", s.rr, p.DotProduct(FieldP, FieldQ, ws))
	p.Axpy(FieldX, alpha, FieldP, ws)
	p.Axpy(FieldR, s.rt.Negate(alpha), FieldQ, ws)
	rr := p.DotProduct(FieldR, FieldR, ws)
	beta := s.divide("beta", rr, s.rr)
	p.Xpay(FieldP, beta, FieldR, ws)
	s.rr = rr
	s.history = append(s.history, rr)
	s.logger.Debug("cg step submitted", "iteration", s.Iterations())
}

// Solve submits n iterations.
func (s *Solver) Solve(n int) {
	for range n {
		s.Step()
	}
}

func (s *Solver) divide(name string, num, den *sched.Future[float64]) *sched.Future[float64] {
	if !s.opts.breakdownCheck {
		return s.rt.Divide(num, den)
	}
	return sched.Join(num, den, func(x, y float64) (float64, error) {
		if y == 0 {
			return 0, fmt.Errorf("%w: %s denominator is zero", sched.ErrBreakdown, name)
		}
		v := x / y
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %s is %g", sched.ErrBreakdown, name, v)
		}
		return v, nil
	})
}

// Resume continues from restored state. The caller must have written X, R
// and P into Workspace after all launches settled. residuals is the
// history up to iteration, so it holds iteration+1 values.
func (s *Solver) Resume(iteration int, residuals []float64) error {
	if iteration < 0 || len(residuals) != iteration+1 {
		return fmt.Errorf("cg: resume at iteration %d with %d residuals", iteration, len(residuals))
	}
	s.history = s.history[:0]
	for _, v := range residuals {
		s.history = append(s.history, sched.FromValue(v))
	}
	s.rr = s.history[iteration]
	s.logger.Info("cg resumed", "iteration", iteration, "residual", residuals[iteration])
	return nil
}

// Iterations returns the number of submitted iterations.
func (s *Solver) Iterations() int { return len(s.history) - 1 }

// ResidualNormSquared returns the deferred |R|² after INIT and after every
// iteration, in order.
func (s *Solver) ResidualNormSquared() []*sched.Future[float64] {
	return append([]*sched.Future[float64](nil), s.history...)
}

// Residuals waits for the residual history. On failure it returns the
// values resolved before the first error.
func (s *Solver) Residuals(ctx context.Context) ([]float64, error) {
	out := make([]float64, 0, len(s.history))
	for i, f := range s.history {
		v, err := f.Get(ctx)
		if err != nil {
			return out, fmt.Errorf("cg: residual %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Workspace returns the per-slot solver regions holding FieldX..FieldQ.
func (s *Solver) Workspace() []*space.Region { return s.ws }

// Solution waits for the iterate of slot and returns it as float64.
func (s *Solver) Solution(ctx context.Context, slot int) ([]float64, error) {
	r := s.ws[slot]
	if err := s.rt.WaitFor(ctx, r, FieldX); err != nil {
		return nil, fmt.Errorf("cg: solution of slot %d: %w", slot, err)
	}
	if f, _ := r.Field(FieldX); f.Kind == space.KindFloat32 {
		src := r.Float32s(FieldX)
		out := make([]float64, len(src))
		for i, v := range src {
			out[i] = float64(v)
		}
		return out, nil
	}
	return append([]float64(nil), r.Float64s(FieldX)...), nil
}

// Destroy waits for outstanding launches and releases the workspace.
func (s *Solver) Destroy() error {
	err := s.rt.Wait()
	for _, r := range s.ws {
		s.rt.Forget(r)
	}
	planner.DestroyWorkspace(s.ws)
	return err
}

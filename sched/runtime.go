package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/cpu"

	"github.com/hupe1980/spargo/space"
)

// Runtime executes index launches with automatic dependence tracking.
//
// Submission never blocks: every launch gets a coordinator goroutine that
// waits for the launches it depends on and for its future arguments, then
// fans its points out to a worker pool. The first task failure poisons the
// runtime; every later launch and future fails with that error.
type Runtime struct {
	opts     options
	registry *Registry
	pool     *workerPool
	logger   *slog.Logger

	mu       sync.Mutex
	deps     *tracker
	inflight map[*Event]struct{}
	err      error
	closed   bool
}

// NewRuntime seals the registry and starts the worker pool.
func NewRuntime(opts ...Option) *Runtime {
	o := applyOptions(opts)
	o.registry.Seal()
	return &Runtime{
		opts:     o,
		registry: o.registry,
		pool:     newWorkerPool(o.workers),
		logger:   o.logger,
		deps:     newTracker(),
		inflight: make(map[*Event]struct{}),
	}
}

// Registry returns the sealed task registry.
func (rt *Runtime) Registry() *Registry { return rt.registry }

// Lookup returns the ID of a registered variant and panics otherwise.
func (rt *Runtime) Lookup(v Variant) TaskID { return rt.registry.MustLookup(v) }

// Logger returns the runtime logger.
func (rt *Runtime) Logger() *slog.Logger { return rt.logger }

// BreakdownCheck reports whether scalar breakdown detection is enabled.
func (rt *Runtime) BreakdownCheck() bool { return rt.opts.breakdownCheck }

// Err returns the error that poisoned the runtime, if any.
func (rt *Runtime) Err() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.err
}

func (rt *Runtime) poison(err error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.err == nil {
		rt.err = err
		rt.logger.Error("runtime poisoned", "error", err)
	}
}

// ExecuteIndexSpace launches one point task per point of l.Domain.
func (rt *Runtime) ExecuteIndexSpace(l IndexLauncher) *Event {
	ev, _ := rt.launch(l, nil)
	return ev
}

// ExecuteIndexSpaceReduce launches l and folds the scalar results of its
// point tasks with op in color order.
func (rt *Runtime) ExecuteIndexSpaceReduce(l IndexLauncher, op ReductionOp[float64]) *Future[float64] {
	_, f := rt.launch(l, &op)
	return f
}

// TaskLauncher describes a single task.
type TaskLauncher struct {
	Task         TaskID
	Requirements []Requirement
	Futures      []*Future[float64]
	Arg          any
}

var singlePoint = space.Colors(1)

// ExecuteTask launches a single task and returns its scalar result.
func (rt *Runtime) ExecuteTask(l TaskLauncher) *Future[float64] {
	reqs := make([]Requirement, len(l.Requirements))
	for i, r := range l.Requirements {
		r.Partition = nil
		reqs[i] = r
	}
	return rt.ExecuteIndexSpaceReduce(IndexLauncher{
		Task:         l.Task,
		Domain:       singlePoint,
		Requirements: reqs,
		Futures:      l.Futures,
		Arg:          l.Arg,
	}, Sum[float64]())
}

type partial struct {
	v float64
	_ cpu.CacheLinePad
}

func (rt *Runtime) launch(l IndexLauncher, op *ReductionOp[float64]) (*Event, *Future[float64]) {
	reg, ok := rt.registry.body(l.Task)
	if !ok {
		panic(fmt.Sprintf("sched: unknown task id %d", l.Task))
	}
	for i, r := range l.Requirements {
		if r.Partition != nil && r.Partition.ColorSpace().Volume() < l.Domain.Volume() {
			panic(fmt.Sprintf("sched: requirement %d of %s has %d colors for a domain of %d points",
				i, reg.variant.Name(), r.Partition.Colors(), l.Domain.Volume()))
		}
		if r.Privilege == Reduce && r.Redop == RedopNone {
			panic(fmt.Sprintf("sched: requirement %d of %s reduces without an operator", i, reg.variant.Name()))
		}
	}

	ev := newFuture[struct{}]()
	var result *Future[float64]
	if op != nil {
		result = newFuture[float64]()
	}

	rt.mu.Lock()
	if rt.closed || rt.err != nil {
		err := rt.err
		if err == nil {
			err = ErrClosed
		}
		rt.mu.Unlock()
		ev.resolve(struct{}{}, err)
		if result != nil {
			result.resolve(0, err)
		}
		return ev, result
	}
	deps := rt.deps.register(l.Requirements, ev)
	rt.inflight[ev] = struct{}{}
	depth := len(rt.inflight)
	rt.mu.Unlock()

	rt.opts.observer.OnQueueDepth(depth)
	go rt.coordinate(reg, l, deps, op, ev, result)
	return ev, result
}

func (rt *Runtime) coordinate(reg registered, l IndexLauncher, deps []*Event, op *ReductionOp[float64],
	ev *Event, result *Future[float64]) {
	name := reg.variant.Name()
	start := time.Now()
	var (
		val float64
		err error
	)
	defer func() {
		ev.resolve(struct{}{}, err)
		if result != nil {
			result.resolve(val, err)
		}
		rt.mu.Lock()
		delete(rt.inflight, ev)
		depth := len(rt.inflight)
		rt.mu.Unlock()
		rt.opts.observer.OnQueueDepth(depth)
	}()

	for _, d := range deps {
		if _, err = d.wait(); err != nil {
			return
		}
	}
	args := make([]float64, len(l.Futures))
	for i, f := range l.Futures {
		if args[i], err = f.wait(); err != nil {
			return
		}
	}
	if err = rt.Err(); err != nil {
		return
	}

	waited := time.Since(start)
	runStart := time.Now()
	val, err = rt.runPoints(reg, l, args, op)
	ran := time.Since(runStart)

	rt.opts.observer.OnLaunch(name, int(l.Domain.Volume()), waited, ran, err)
	if err != nil {
		rt.poison(err)
		return
	}
	rt.logger.Debug("launch complete", "task", name, "points", l.Domain.Volume(), "wait", waited, "run", ran)
}

func (rt *Runtime) runPoints(reg registered, l IndexLauncher, args []float64, op *ReductionOp[float64]) (float64, error) {
	n := int(l.Domain.Volume())
	partials := make([]partial, n)

	g, gctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		tc := &TaskContext{
			Color:   l.Domain.Delinear(uint32(i)),
			Index:   i,
			Regions: make([]PhysicalRegion, len(l.Requirements)),
			Futures: args,
			Arg:     l.Arg,
		}
		for j, r := range l.Requirements {
			pr := PhysicalRegion{Region: r.Region, Fields: r.Fields, Privilege: r.Privilege}
			if r.Partition != nil {
				pr.Sub = r.Partition.SubAt(i)
			}
			tc.Regions[j] = pr
		}
		g.Go(func() error {
			errc := make(chan error, 1)
			submitErr := rt.pool.Submit(gctx, func() {
				v, err := runBody(reg.fn, tc)
				partials[i].v = v
				if err != nil {
					err = &TaskError{Task: reg.variant.Name(), Color: tc.Color, Err: err}
				}
				errc <- err
			})
			if submitErr != nil {
				return submitErr
			}
			return <-errc
		})
	}
	if err := g.Wait(); err != nil {
		var te *TaskError
		if !errors.As(err, &te) {
			err = &TaskError{Task: reg.variant.Name(), Color: l.Domain.Bounds().Lo, Err: err}
		}
		return 0, err
	}
	if op == nil {
		return 0, nil
	}
	acc := op.Identity
	for i := range partials {
		acc = op.Fold(acc, partials[i].v)
	}
	return acc, nil
}

func runBody(fn TaskFunc, tc *TaskContext) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(tc)
}

// WaitFor blocks until all pending writes and reductions to the given
// fields of region have finished. It is the inline mapping used before the
// host reads region data directly.
func (rt *Runtime) WaitFor(ctx context.Context, region *space.Region, fids ...space.FieldID) error {
	rt.mu.Lock()
	deps := rt.deps.pending(region.Handle(), fids)
	rt.mu.Unlock()
	for _, d := range deps {
		if _, err := d.Get(ctx); err != nil {
			return err
		}
	}
	return rt.Err()
}

// Fence blocks until every launch submitted so far has finished.
func (rt *Runtime) Fence(ctx context.Context) error {
	rt.mu.Lock()
	pending := make([]*Event, 0, len(rt.inflight))
	for ev := range rt.inflight {
		pending = append(pending, ev)
	}
	rt.mu.Unlock()
	for _, ev := range pending {
		if _, err := ev.Get(ctx); err != nil && ctx.Err() != nil {
			return err
		}
	}
	return rt.Err()
}

// Wait is Fence without a deadline.
func (rt *Runtime) Wait() error {
	return rt.Fence(context.Background())
}

// Forget drops the dependence state of a region that will not be used
// again. The caller must have waited for its launches.
func (rt *Runtime) Forget(region *space.Region) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.deps.forget(region.Handle())
}

// Close waits for outstanding launches and stops the workers. Launches
// submitted afterwards fail with ErrClosed.
func (rt *Runtime) Close() error {
	err := rt.Wait()
	rt.mu.Lock()
	rt.closed = true
	rt.mu.Unlock()
	rt.pool.Close()
	return err
}

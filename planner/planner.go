package planner

import (
	"fmt"
	"log/slog"

	"github.com/hupe1980/spargo/sched"
	"github.com/hupe1980/spargo/space"
	"github.com/hupe1980/spargo/sparse"
)

// Slot is a distributed vector registered with a Planner together with its
// right-hand side.
type Slot struct {
	Space     *space.IndexSpace
	Partition *space.Partition
	Entry     space.EntryType
	RHS       *space.Region
	RHSField  space.FieldID
}

// Block is a registered operator mapping slot Src into slot Dst, with the
// kernel and ghost partitions used by its matvec.
type Block struct {
	Src, Dst int
	Op       sparse.Operator
	Kernel   *space.Partition
	Ghost    *space.Partition
}

// Planner holds an ordered list of vector slots and block operators between
// them, and runs collective vector operations over all slots at once.
//
// Every operation taking a workspace expects one region per slot, in slot
// order, over that slot's index space. Operations are submitted to the
// runtime and return without waiting.
type Planner struct {
	rt     *sched.Runtime
	opts   options
	logger *slog.Logger
	slots  []Slot
	blocks []Block
}

// New returns an empty planner submitting to rt.
func New(rt *sched.Runtime, opts ...Option) *Planner {
	o := applyOptions(opts)
	return &Planner{rt: rt, opts: o, logger: o.logger}
}

// Runtime returns the runtime the planner submits to.
func (p *Planner) Runtime() *sched.Runtime { return p.rt }

// NumSlots returns the number of registered slots.
func (p *Planner) NumSlots() int { return len(p.slots) }

// Slot returns slot i.
func (p *Planner) Slot(i int) Slot { return p.slots[i] }

// Blocks returns the registered operators in registration order.
func (p *Planner) Blocks() []Block { return append([]Block(nil), p.blocks...) }

// AddRHS registers a slot whose right-hand side is field fid of region,
// partitioned by partition. It returns the slot index, which stays valid
// for the planner's lifetime. The partition must be disjoint and complete:
// every vector operation writes each point from exactly one color.
func (p *Planner) AddRHS(region *space.Region, fid space.FieldID, partition *space.Partition) int {
	if partition.Parent().Handle() != region.Space().Handle() {
		panic(fmt.Sprintf("planner: %s does not partition the right-hand side space %s", partition, region.Space()))
	}
	if !partition.Disjoint() || !partition.Complete() {
		panic(fmt.Sprintf("planner: slot partition %s must be disjoint and complete", partition))
	}
	f, ok := region.Field(fid)
	if !ok || (f.Kind != space.KindFloat32 && f.Kind != space.KindFloat64) {
		panic(fmt.Sprintf("planner: right-hand side field %d is not a scalar field", fid))
	}
	entry := space.Float64
	if f.Kind == space.KindFloat32 {
		entry = space.Float32
	}
	p.slots = append(p.slots, Slot{
		Space:     region.Space(),
		Partition: partition,
		Entry:     entry,
		RHS:       region,
		RHSField:  fid,
	})
	idx := len(p.slots) - 1
	p.logger.Debug("slot added", "slot", idx, "bounds", region.Space().Bounds().String(), "colors", partition.Colors())
	return idx
}

func (p *Planner) checkSlots(shape sparse.Shape, srcSlot, dstSlot int) {
	if srcSlot < 0 || srcSlot >= len(p.slots) || dstSlot < 0 || dstSlot >= len(p.slots) {
		panic(fmt.Sprintf("planner: slots %d->%d out of range [0,%d)", srcSlot, dstSlot, len(p.slots)))
	}
	src, dst := p.slots[srcSlot], p.slots[dstSlot]
	if shape.DomainRank != src.Partition.Rank() {
		panic(fmt.Sprintf("planner: operator %s domain rank does not match slot %d rank %d", shape, srcSlot, src.Partition.Rank()))
	}
	if shape.RangeRank != dst.Partition.Rank() {
		panic(fmt.Sprintf("planner: operator %s range rank does not match slot %d rank %d", shape, dstSlot, dst.Partition.Rank()))
	}
	if shape.Entry != src.Entry || shape.Entry != dst.Entry {
		panic(fmt.Sprintf("planner: operator %s entry type does not match slots %d->%d", shape, srcSlot, dstSlot))
	}
}

// AddCOOMatrix registers a COO operator mapping slot srcSlot into slot
// dstSlot. The kernel is partitioned by the rows of the destination slot.
// It panics if the shape does not match the slots.
func (p *Planner) AddCOOMatrix(shape sparse.Shape, srcSlot, dstSlot int, kernel *space.Region, row, col, entry space.FieldID) int {
	p.checkSlots(shape, srcSlot, dstSlot)
	return p.AddOperator(srcSlot, dstSlot, sparse.NewCOO(p.rt, shape, kernel, row, col, entry))
}

// AddCSRMatrix registers a CSR operator mapping slot srcSlot into slot
// dstSlot. rowptr must be a region over the destination slot's space.
func (p *Planner) AddCSRMatrix(shape sparse.Shape, srcSlot, dstSlot int, kernel *space.Region, col, entry space.FieldID,
	rowptr *space.Region, rowRange space.FieldID) int {
	p.checkSlots(shape, srcSlot, dstSlot)
	if rowptr.Space().Handle() != p.slots[dstSlot].Space.Handle() {
		panic(fmt.Sprintf("planner: rowptr must live on the space of slot %d", dstSlot))
	}
	return p.AddOperator(srcSlot, dstSlot, sparse.NewCSR(p.rt, shape, kernel, col, entry, rowptr, rowRange))
}

// AddOperator registers op mapping slot srcSlot into slot dstSlot and
// derives its kernel and ghost partitions. It returns the operator index.
func (p *Planner) AddOperator(srcSlot, dstSlot int, op sparse.Operator) int {
	p.checkSlots(op.Shape(), srcSlot, dstSlot)
	kernel, ghost := sparse.RowPartitions(op, p.slots[dstSlot].Partition, p.slots[srcSlot].Space)
	p.blocks = append(p.blocks, Block{Src: srcSlot, Dst: dstSlot, Op: op, Kernel: kernel, Ghost: ghost})
	p.logger.Debug("operator added", "src", srcSlot, "dst", dstSlot, "shape", op.Shape().String(),
		"nonzeros", op.KernelRegion().Space().Volume())
	return len(p.blocks) - 1
}

func (p *Planner) checkWorkspace(workspace []*space.Region, fids ...space.FieldID) {
	if len(workspace) != len(p.slots) {
		panic(fmt.Sprintf("planner: workspace has %d regions for %d slots", len(workspace), len(p.slots)))
	}
	for i, r := range workspace {
		if r.Space().Handle() != p.slots[i].Space.Handle() {
			panic(fmt.Sprintf("planner: workspace region %d is not over the space of slot %d", i, i))
		}
		for _, fid := range fids {
			f, ok := r.Field(fid)
			if !ok || f.Kind != p.slots[i].Entry.Kind() {
				panic(fmt.Sprintf("planner: workspace region %d has no %s field %d", i, p.slots[i].Entry, fid))
			}
		}
	}
}

// NewWorkspace allocates one region per slot, each with the given scalar
// fields in the slot's entry type.
func (p *Planner) NewWorkspace(fids ...space.FieldID) ([]*space.Region, error) {
	ws := make([]*space.Region, len(p.slots))
	for i, s := range p.slots {
		specs := make([]space.FieldSpec, len(fids))
		for j, fid := range fids {
			specs[j] = space.Scalar(fid, s.Entry)
		}
		r, err := space.NewAccountedRegion(p.opts.accountant, s.Space, specs...)
		if err != nil {
			DestroyWorkspace(ws[:i])
			return nil, fmt.Errorf("planner: workspace for slot %d: %w", i, err)
		}
		ws[i] = r
	}
	return ws, nil
}

// DestroyWorkspace destroys every region of a workspace.
func DestroyWorkspace(ws []*space.Region) {
	for _, r := range ws {
		if r != nil {
			r.Destroy()
		}
	}
}

func (p *Planner) task(op string, slot int) sched.TaskID {
	s := p.slots[slot]
	return p.rt.Lookup(sched.Variant{Op: op, Entry: s.Entry, Dim: s.Space.Rank()})
}

func (p *Planner) requirement(slot int, r *space.Region, fid space.FieldID, priv sched.Privilege) sched.Requirement {
	return sched.Requirement{
		Region:    r,
		Partition: p.slots[slot].Partition,
		Fields:    []space.FieldID{fid},
		Privilege: priv,
	}
}

// ZeroFill sets field fid to zero on every slot.
func (p *Planner) ZeroFill(fid space.FieldID, workspace []*space.Region) {
	p.ConstantFill(fid, 0, workspace)
}

// ConstantFill sets field fid to value on every slot.
func (p *Planner) ConstantFill(fid space.FieldID, value float64, workspace []*space.Region) {
	p.checkWorkspace(workspace, fid)
	for i := range p.slots {
		p.rt.ExecuteIndexSpace(sched.IndexLauncher{
			Task:         p.task(opFill, i),
			Domain:       p.slots[i].Partition.ColorSpace(),
			Requirements: []sched.Requirement{p.requirement(i, workspace[i], fid, sched.WriteDiscard)},
			Arg:          value,
		})
	}
}

// CopyRHS copies every slot's right-hand side into field fid.
func (p *Planner) CopyRHS(fid space.FieldID, workspace []*space.Region) {
	p.checkWorkspace(workspace, fid)
	for i, s := range p.slots {
		p.rt.ExecuteIndexSpace(sched.IndexLauncher{
			Task:   p.task(opCopy, i),
			Domain: s.Partition.ColorSpace(),
			Requirements: []sched.Requirement{
				p.requirement(i, workspace[i], fid, sched.WriteDiscard),
				p.requirement(i, s.RHS, s.RHSField, sched.ReadOnly),
			},
		})
	}
}

// Matvec computes fidDst = A·fidSrc where A is the block operator formed by
// all registered operators. Operators sharing a destination slot add up.
func (p *Planner) Matvec(fidDst, fidSrc space.FieldID, workspace []*space.Region) {
	p.checkWorkspace(workspace, fidDst, fidSrc)
	p.ZeroFill(fidDst, workspace)
	for _, b := range p.blocks {
		dst := space.Vector{Region: workspace[b.Dst], Partition: p.slots[b.Dst].Partition}
		b.Op.Matvec(dst, fidDst, workspace[b.Src], fidSrc, b.Kernel, b.Ghost)
	}
}

// DotProduct returns the deferred inner product of fields fidV and fidW
// over all slots. Per-slot partial sums are added in slot order.
func (p *Planner) DotProduct(fidV, fidW space.FieldID, workspace []*space.Region) *sched.Future[float64] {
	p.checkWorkspace(workspace, fidV, fidW)
	partials := make([]*sched.Future[float64], len(p.slots))
	for i, s := range p.slots {
		partials[i] = p.rt.ExecuteIndexSpaceReduce(sched.IndexLauncher{
			Task:   p.task(opDot, i),
			Domain: s.Partition.ColorSpace(),
			Requirements: []sched.Requirement{
				p.requirement(i, workspace[i], fidV, sched.ReadOnly),
				p.requirement(i, workspace[i], fidW, sched.ReadOnly),
			},
		}, sched.Sum[float64]())
	}
	return p.rt.Sum(partials...)
}

// Axpy computes fidY += alpha * fidX on every slot.
func (p *Planner) Axpy(fidY space.FieldID, alpha *sched.Future[float64], fidX space.FieldID, workspace []*space.Region) {
	p.scaled(opAxpy, fidY, alpha, fidX, workspace)
}

// Xpay computes fidY = fidX + alpha * fidY on every slot.
func (p *Planner) Xpay(fidY space.FieldID, alpha *sched.Future[float64], fidX space.FieldID, workspace []*space.Region) {
	p.scaled(opXpay, fidY, alpha, fidX, workspace)
}

func (p *Planner) scaled(op string, fidY space.FieldID, alpha *sched.Future[float64], fidX space.FieldID, workspace []*space.Region) {
	p.checkWorkspace(workspace, fidY, fidX)
	for i, s := range p.slots {
		p.rt.ExecuteIndexSpace(sched.IndexLauncher{
			Task:   p.task(op, i),
			Domain: s.Partition.ColorSpace(),
			Requirements: []sched.Requirement{
				p.requirement(i, workspace[i], fidY, sched.ReadWrite),
				p.requirement(i, workspace[i], fidX, sched.ReadOnly),
			},
			Futures: []*sched.Future[float64]{alpha},
		})
	}
}

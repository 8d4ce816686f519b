package vulcany

import (
	"log"
	"sync"
)

// Recorder is the command-recording surface the executor drives. The
// vk-backed implementation is DeviceRecorder; tests substitute their own.
// BeginPass and EndPass bracket one pass's command stream, Barrier records a
// derived SyncPoint into it. Implementations must allow different passes to
// be recorded concurrently, each pass's Begin/Barrier/record/End sequence
// stays on a single goroutine.
type Recorder interface {
	BeginPass(step *PlanStep) error
	Barrier(sp *SyncPoint) error
	EndPass(step *PlanStep) error
}

// Submitter is implemented by recorders that also own submission. When the
// executor's recorder implements it, Submit is invoked once after every pass
// recorded successfully.
type Submitter interface {
	Submit(plan *ExecutionPlan) error
}

// PhysicalAllocator provides physical backing for the plan's resources and
// answers the resolver's aliasing check. BackingPool is the device-backed
// implementation.
type PhysicalAllocator interface {
	// AliasCheck reports whether two live ranges may share backing.
	AliasCheck(a, b LiveRange) bool
	// AllocatePhysical returns backing for a resource, reusing one
	// physical allocation per plan slot.
	AllocatePhysical(plan *ExecutionPlan, id ResourceID) (*PhysicalResource, error)
}

// Executor walks a compiled plan in order, issuing each step's SyncPoints
// and invoking record callbacks with handles scoped to the step's declared
// accesses. With Workers > 1, passes of the same wave are recorded on worker
// goroutines; submission order is unaffected.
//
// Execution never rolls back: the first failure aborts the cycle and the
// caller must discard the graph and build a fresh one.
type Executor struct {
	Recorder Recorder
	Workers  int
}

// Execute records the whole plan. The returned error, if any, is a
// *PassExecutionError naming the pass that failed.
func (e *Executor) Execute(plan *ExecutionPlan) error {
	phys, err := e.resolvePhysical(plan)
	if err != nil {
		return err
	}

	if pa, ok := e.Recorder.(PlanAware); ok {
		if err := pa.BeginPlan(plan, phys); err != nil {
			return err
		}
	}

	if e.Workers > 1 {
		return e.executeWaves(plan, phys)
	}

	for i := range plan.Steps {
		if err := e.recordStep(plan, &plan.Steps[i], phys); err != nil {
			return err
		}
	}
	return e.submit(plan)
}

// resolvePhysical allocates backing for every resource the plan touches.
// Imported resources wrap the handles they were imported with; transients go
// through the graph's allocator, one allocation per slot. Without an
// allocator the plan executes with no physical backing, which is enough for
// recorders that never dereference handles.
func (e *Executor) resolvePhysical(plan *ExecutionPlan) (map[int]*PhysicalResource, error) {
	phys := make(map[int]*PhysicalResource)
	bySlot := make(map[int]*PhysicalResource)

	for ri, res := range plan.graph.resources {
		if plan.ranges[ri].First < 0 {
			continue
		}
		id := ResourceID{index: ri, cycle: plan.cycle}

		if res.lifetime == LifetimeImported {
			p := &PhysicalResource{Slot: ri}
			switch res.kind {
			case KindImage:
				p.Image = res.importedImage
			case KindBuffer:
				p.Buffer = res.importedBuffer
				p.Size = res.buffer.Size
			}
			phys[ri] = p
			continue
		}

		if plan.graph.Allocator == nil {
			continue
		}

		slot := plan.slots[ri]
		if shared, ok := bySlot[slot]; ok {
			phys[ri] = shared
			continue
		}
		p, err := plan.graph.Allocator.AllocatePhysical(plan, id)
		if err != nil {
			return nil, err
		}
		bySlot[slot] = p
		phys[ri] = p
	}
	return phys, nil
}

func (e *Executor) recordStep(plan *ExecutionPlan, step *PlanStep, phys map[int]*PhysicalResource) error {
	pass := plan.graph.passes[step.Pass]

	if err := e.Recorder.BeginPass(step); err != nil {
		return &PassExecutionError{Pass: pass.Name, Cause: err}
	}
	for i := range step.Syncs {
		if err := e.Recorder.Barrier(&step.Syncs[i]); err != nil {
			return &PassExecutionError{Pass: pass.Name, Cause: err}
		}
	}

	ctx := &PassContext{
		Recorder: e.Recorder,
		graph:    plan.graph,
		pass:     pass,
		index:    step.Pass,
		valid:    true,
		accesses: make(map[int]Access, len(pass.Accesses)),
		phys:     phys,
	}
	for _, a := range pass.Accesses {
		ctx.accesses[a.Resource.index] = a
	}

	var err error
	if pass.Record != nil {
		err = pass.Record(ctx)
	}
	ctx.invalidate()
	if err != nil {
		return &PassExecutionError{Pass: pass.Name, Cause: err}
	}

	if err := e.Recorder.EndPass(step); err != nil {
		return &PassExecutionError{Pass: pass.Name, Cause: err}
	}
	return nil
}

// executeWaves records wave by wave, fanning each wave's passes out to a
// bounded set of workers. The first failing step, by plan order, wins.
func (e *Executor) executeWaves(plan *ExecutionPlan, phys map[int]*PhysicalResource) error {
	byWave := make(map[int][]*PlanStep)
	maxWave := 0
	for i := range plan.Steps {
		st := &plan.Steps[i]
		byWave[st.Wave] = append(byWave[st.Wave], st)
		if st.Wave > maxWave {
			maxWave = st.Wave
		}
	}

	for w := 0; w <= maxWave; w++ {
		steps := byWave[w]
		if len(steps) == 0 {
			continue
		}

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			firstErr error
			errStep  int
		)
		sem := make(chan struct{}, e.Workers)

		for _, st := range steps {
			wg.Add(1)
			sem <- struct{}{}
			go func(st *PlanStep) {
				defer wg.Done()
				defer func() { <-sem }()
				if err := e.recordStep(plan, st, phys); err != nil {
					mu.Lock()
					if firstErr == nil || st.Pass < errStep {
						firstErr = err
						errStep = st.Pass
					}
					mu.Unlock()
				}
			}(st)
		}
		wg.Wait()

		if firstErr != nil {
			log.Printf("aborting cycle at wave %d: %v", w, firstErr)
			return firstErr
		}
	}
	return e.submit(plan)
}

func (e *Executor) submit(plan *ExecutionPlan) error {
	s, ok := e.Recorder.(Submitter)
	if !ok {
		return nil
	}
	if err := s.Submit(plan); err != nil {
		return &PassExecutionError{Pass: "submit", Cause: err}
	}
	return nil
}

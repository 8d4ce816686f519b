package vulcany

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

// fakeRecorder logs every call it receives. Log order is only deterministic
// with a single worker; concurrent tests inspect the log with byPass.
type fakeRecorder struct {
	mu  sync.Mutex
	log []string

	failPass string

	submits   int
	plan      *ExecutionPlan
	planPhys  map[int]*PhysicalResource
	planCalls int
}

func (r *fakeRecorder) append(s string) {
	r.mu.Lock()
	r.log = append(r.log, s)
	r.mu.Unlock()
}

func (r *fakeRecorder) BeginPass(step *PlanStep) error {
	r.append("begin " + step.Name)
	return nil
}

func (r *fakeRecorder) Barrier(sp *SyncPoint) error {
	r.append(fmt.Sprintf("barrier %s -> pass %d", sp.ResourceName, sp.DstPass))
	return nil
}

func (r *fakeRecorder) EndPass(step *PlanStep) error {
	r.append("end " + step.Name)
	return nil
}

func (r *fakeRecorder) Submit(plan *ExecutionPlan) error {
	r.mu.Lock()
	r.submits++
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) BeginPlan(plan *ExecutionPlan, phys map[int]*PhysicalResource) error {
	r.mu.Lock()
	r.planCalls++
	r.plan = plan
	r.planPhys = phys
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) byPass(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, l := range r.log {
		if l == "begin "+name || l == "end "+name {
			out = append(out, l)
		}
	}
	return out
}

// countingAllocator hands out distinct zero-valued physical resources and
// counts how many it was asked for.
type countingAllocator struct {
	mu    sync.Mutex
	calls int
}

func (a *countingAllocator) AliasCheck(x, y LiveRange) bool {
	return !x.Overlaps(y)
}

func (a *countingAllocator) AllocatePhysical(plan *ExecutionPlan, id ResourceID) (*PhysicalResource, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return &PhysicalResource{Slot: plan.Slot(id)}, nil
}

func compileChain(t *testing.T, g *Graph) *ExecutionPlan {
	t.Helper()

	img := g.DeclareImage("chain", testImageDesc())
	stages := vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)

	_, err := g.AddPass(Pass{Name: "produce", Queue: QueueCompute, Accesses: []Access{StorageImageWrite(img)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "consume", Queue: QueueCompute, Accesses: []Access{SampledRead(img, stages)}})
	require.NoError(t, err)

	plan, err := g.Compile()
	require.NoError(t, err)
	return plan
}

func TestExecuteRecordsInPlanOrder(t *testing.T) {
	plan := compileChain(t, NewGraph())

	rec := &fakeRecorder{}
	exec := &Executor{Recorder: rec}
	require.NoError(t, exec.Execute(plan))

	assert.Equal(t, []string{
		"begin produce",
		"barrier chain -> pass 0",
		"end produce",
		"begin consume",
		"barrier chain -> pass 1",
		"end consume",
	}, rec.log)
	assert.Equal(t, 1, rec.submits)
	assert.Equal(t, 1, rec.planCalls)
	assert.Same(t, plan, rec.plan)
}

func TestExecuteWrapsRecordError(t *testing.T) {
	g := NewGraph()
	img := g.DeclareImage("target", testImageDesc())

	boom := errors.New("shader blew up")
	_, err := g.AddPass(Pass{
		Name:     "broken",
		Queue:    QueueCompute,
		Accesses: []Access{StorageImageWrite(img)},
		Record:   func(ctx *PassContext) error { return boom },
	})
	require.NoError(t, err)

	plan, err := g.Compile()
	require.NoError(t, err)

	rec := &fakeRecorder{}
	err = (&Executor{Recorder: rec}).Execute(plan)
	require.Error(t, err)

	var pe *PassExecutionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "broken", pe.Pass)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, rec.submits, "a failed cycle must not submit")
}

func TestExecuteWavesConcurrently(t *testing.T) {
	g := NewGraph()
	stages := vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)

	src := g.DeclareImage("src", testImageDesc())
	_, err := g.AddPass(Pass{Name: "produce", Queue: QueueCompute, Accesses: []Access{StorageImageWrite(src)}})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = g.AddPass(Pass{
			Name:     fmt.Sprintf("consume%d", i),
			Queue:    QueueCompute,
			Accesses: []Access{SampledRead(src, stages)},
		})
		require.NoError(t, err)
	}

	plan, err := g.Compile()
	require.NoError(t, err)

	rec := &fakeRecorder{}
	require.NoError(t, (&Executor{Recorder: rec, Workers: 3}).Execute(plan))

	// Interleaving within a wave is free, but every pass must begin and end
	// exactly once, and submission still happens exactly once at the end.
	for _, name := range []string{"produce", "consume0", "consume1", "consume2", "consume3"} {
		assert.Equal(t, []string{"begin " + name, "end " + name}, rec.byPass(name))
	}
	assert.Equal(t, 1, rec.submits)
}

func TestExecuteWavesReportLowestFailingPass(t *testing.T) {
	g := NewGraph()
	stages := vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)

	src := g.DeclareImage("src", testImageDesc())
	_, err := g.AddPass(Pass{Name: "produce", Queue: QueueCompute, Accesses: []Access{StorageImageWrite(src)}})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("consume%d", i)
		_, err = g.AddPass(Pass{
			Name:     name,
			Queue:    QueueCompute,
			Accesses: []Access{SampledRead(src, stages)},
			Record:   func(ctx *PassContext) error { return fmt.Errorf("%s failed", ctx.PassName()) },
		})
		require.NoError(t, err)
	}

	plan, err := g.Compile()
	require.NoError(t, err)

	err = (&Executor{Recorder: &fakeRecorder{}, Workers: 3}).Execute(plan)
	require.Error(t, err)

	var pe *PassExecutionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "consume0", pe.Pass)
}

func TestExecuteAllocatesOnePhysicalPerSlot(t *testing.T) {
	alloc := &countingAllocator{}
	g := NewGraph()
	g.Allocator = alloc

	early := g.DeclareImage("early", testImageDesc())
	late := g.DeclareImage("late", testImageDesc())
	solo := g.DeclareBuffer("solo", testBufferDesc())

	_, err := g.AddPass(Pass{Name: "p0", Queue: QueueCompute,
		Accesses: []Access{StorageImageWrite(early), StorageWrite(solo)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "p1", Queue: QueueCompute, Accesses: []Access{StorageImageWrite(late)}})
	require.NoError(t, err)

	require.NoError(t, g.Alias(early, late))

	plan, err := g.Compile()
	require.NoError(t, err)

	rec := &fakeRecorder{}
	require.NoError(t, (&Executor{Recorder: rec}).Execute(plan))

	// Two images share a slot, the buffer gets its own: two allocations.
	assert.Equal(t, 2, alloc.calls)
	require.NotNil(t, rec.planPhys)
	assert.Same(t, rec.planPhys[0], rec.planPhys[1], "aliased resources share backing")
	assert.NotSame(t, rec.planPhys[0], rec.planPhys[2])
}

func TestExecuteSkipsBackingForImports(t *testing.T) {
	alloc := &countingAllocator{}
	g := NewGraph()
	g.Allocator = alloc

	img, err := g.ImportImage("external", vk.NullImage, testImageDesc(), ImageState{})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "touch", Queue: QueueGraphics, Accesses: []Access{TransferDst(img)}})
	require.NoError(t, err)

	plan, err := g.Compile()
	require.NoError(t, err)

	rec := &fakeRecorder{}
	require.NoError(t, (&Executor{Recorder: rec}).Execute(plan))

	assert.Equal(t, 0, alloc.calls)
	require.NotNil(t, rec.planPhys[0])
}

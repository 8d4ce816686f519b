package vulcany

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestIndependentPassesKeepDeclarationOrder(t *testing.T) {
	g := NewGraph()

	a := g.DeclareImage("a", testImageDesc())
	b := g.DeclareImage("b", testImageDesc())
	c := g.DeclareImage("c", testImageDesc())

	for i, id := range []ResourceID{a, b, c} {
		_, err := g.AddPass(Pass{Name: fmt.Sprintf("pass%d", i), Queue: QueueCompute, Accesses: []Access{StorageImageWrite(id)}})
		require.NoError(t, err)
	}

	plan, err := g.Compile()
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, plan.Order())
	for _, step := range plan.Steps {
		assert.Equal(t, 0, step.Wave, "independent passes share the first wave")
	}
}

func TestWriteReadDerivesOneSyncPoint(t *testing.T) {
	g := NewGraph()
	img := g.DeclareImage("color", testImageDesc())

	write := StorageImageWrite(img)
	read := SampledRead(img, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit))

	_, err := g.AddPass(Pass{Name: "produce", Queue: QueueCompute, Accesses: []Access{write}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "consume", Queue: QueueCompute, Accesses: []Access{read}})
	require.NoError(t, err)

	plan, err := g.Compile()
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)

	// The producer's only sync brings the transient in from undefined.
	require.Len(t, plan.Steps[0].Syncs, 1)
	entry := plan.Steps[0].Syncs[0]
	assert.True(t, entry.IsEntry())
	assert.Equal(t, vk.ImageLayoutUndefined, entry.OldLayout)
	assert.Equal(t, write.Layout, entry.NewLayout)

	// The consumer gets exactly one merged barrier from the producer.
	require.Len(t, plan.Steps[1].Syncs, 1)
	sync := plan.Steps[1].Syncs[0]
	assert.Equal(t, 0, sync.SrcPass)
	assert.Equal(t, 1, sync.DstPass)
	assert.Equal(t, write.Stages, sync.SrcStages)
	assert.Equal(t, write.Mask, sync.SrcAccess)
	assert.Equal(t, read.Stages, sync.DstStages)
	assert.Equal(t, read.Mask, sync.DstAccess)
	assert.Equal(t, write.Layout, sync.OldLayout)
	assert.Equal(t, read.Layout, sync.NewLayout)
	assert.False(t, sync.IsQueueTransfer())

	assert.Equal(t, 0, plan.Steps[0].Wave)
	assert.Equal(t, 1, plan.Steps[1].Wave)
}

func TestWriteAfterReadersMergesSources(t *testing.T) {
	g := NewGraph()
	img := g.DeclareImage("scratch", testImageDesc())

	readStages := vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)

	_, err := g.AddPass(Pass{Name: "w1", Queue: QueueCompute, Accesses: []Access{StorageImageWrite(img)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "r1", Queue: QueueCompute, Accesses: []Access{SampledRead(img, readStages)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "w2", Queue: QueueCompute, Accesses: []Access{StorageImageWrite(img)}})
	require.NoError(t, err)

	plan, err := g.Compile()
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, plan.Order())

	// w2 must wait for both the prior write and the intervening reader, as
	// two sync points ordered by source pass.
	require.Len(t, plan.Steps[2].Syncs, 2)
	assert.Equal(t, 0, plan.Steps[2].Syncs[0].SrcPass)
	assert.Equal(t, 1, plan.Steps[2].Syncs[1].SrcPass)

	// Chain collapses to one pass per wave.
	assert.Equal(t, 2, plan.Steps[2].Wave)
}

func TestLayoutChangeBetweenReads(t *testing.T) {
	g := NewGraph()
	img := g.DeclareImage("mip", testImageDesc())

	_, err := g.AddPass(Pass{Name: "w", Queue: QueueCompute, Accesses: []Access{StorageImageWrite(img)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "sample", Queue: QueueCompute,
		Accesses: []Access{SampledRead(img, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit))}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "blit", Queue: QueueCompute, Accesses: []Access{TransferSrc(img)}})
	require.NoError(t, err)

	plan, err := g.Compile()
	require.NoError(t, err)

	// Passes 1 and 2 only read, but the layouts differ, so the transfer read
	// must wait on both the writer and the sampling reader before the
	// transition.
	require.Len(t, plan.Steps[2].Syncs, 2)
	assert.Equal(t, 0, plan.Steps[2].Syncs[0].SrcPass)
	assert.Equal(t, 1, plan.Steps[2].Syncs[1].SrcPass)
	for _, sync := range plan.Steps[2].Syncs {
		assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, sync.OldLayout)
		assert.Equal(t, vk.ImageLayoutTransferSrcOptimal, sync.NewLayout)
	}
}

func TestCrossQueueSyncIsOwnershipTransfer(t *testing.T) {
	g := NewGraph()
	img := g.DeclareImage("gbuffer", testImageDesc())

	_, err := g.AddPass(Pass{Name: "raster", Queue: QueueGraphics, Accesses: []Access{ColorWrite(img)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "post", Queue: QueueCompute,
		Accesses: []Access{SampledRead(img, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit))}})
	require.NoError(t, err)

	plan, err := g.Compile()
	require.NoError(t, err)

	require.Len(t, plan.Steps[1].Syncs, 1)
	sync := plan.Steps[1].Syncs[0]
	assert.True(t, sync.IsQueueTransfer())
	assert.Equal(t, QueueGraphics, sync.SrcQueue)
	assert.Equal(t, QueueCompute, sync.DstQueue)
}

func TestAliasOverlappingRangesRejected(t *testing.T) {
	g := NewGraph()

	long := g.DeclareImage("long", testImageDesc())
	short := g.DeclareImage("short", testImageDesc())

	_, err := g.AddPass(Pass{Name: "p0", Queue: QueueCompute, Accesses: []Access{StorageImageWrite(long)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "p1", Queue: QueueCompute, Accesses: []Access{StorageImageWrite(short)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "p2", Queue: QueueCompute,
		Accesses: []Access{SampledRead(long, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit))}})
	require.NoError(t, err)

	require.NoError(t, g.Alias(long, short))

	_, err = g.Compile()
	require.Error(t, err)

	var conflict *AliasingConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, LiveRange{First: 0, Last: 2}, conflict.RangeA)
	assert.Equal(t, LiveRange{First: 1, Last: 1}, conflict.RangeB)
}

func TestAliasChainValidatesWholeClass(t *testing.T) {
	g := NewGraph()

	a := g.DeclareImage("a", testImageDesc())
	b := g.DeclareImage("b", testImageDesc())
	c := g.DeclareImage("c", testImageDesc())

	readStages := vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)

	_, err := g.AddPass(Pass{Name: "p0", Queue: QueueCompute,
		Accesses: []Access{StorageImageWrite(a), StorageImageWrite(c)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "p1", Queue: QueueCompute,
		Accesses: []Access{SampledRead(a, readStages), SampledRead(c, readStages)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "p2", Queue: QueueCompute, Accesses: []Access{StorageImageWrite(b)}})
	require.NoError(t, err)

	// Each requested pair is disjoint, but sharing a slot is transitive: the
	// chain folds a and c onto one backing while both are live in p0 and p1.
	require.NoError(t, g.Alias(a, b))
	require.NoError(t, g.Alias(b, c))

	_, err = g.Compile()
	require.Error(t, err)

	var conflict *AliasingConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "a", conflict.A)
	assert.Equal(t, "c", conflict.B)
	assert.Equal(t, LiveRange{First: 0, Last: 1}, conflict.RangeA)
	assert.Equal(t, LiveRange{First: 0, Last: 1}, conflict.RangeB)
}

func TestAliasDisjointRangesShareSlot(t *testing.T) {
	g := NewGraph()

	early := g.DeclareImage("early", testImageDesc())
	late := g.DeclareImage("late", testImageDesc())

	_, err := g.AddPass(Pass{Name: "p0", Queue: QueueCompute, Accesses: []Access{StorageImageWrite(early)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "p1", Queue: QueueCompute, Accesses: []Access{StorageImageWrite(late)}})
	require.NoError(t, err)

	require.NoError(t, g.Alias(early, late))

	plan, err := g.Compile()
	require.NoError(t, err)

	assert.Equal(t, plan.Slot(early), plan.Slot(late))
	assert.Equal(t, []int{0, 1}, plan.Order())
}

// permissiveAllocator accepts any aliasing request. Realistic allocators
// never do this; the resolver's cycle check is the backstop when one lies.
type permissiveAllocator struct{}

func (permissiveAllocator) AliasCheck(a, b LiveRange) bool { return true }
func (permissiveAllocator) AllocatePhysical(plan *ExecutionPlan, id ResourceID) (*PhysicalResource, error) {
	return &PhysicalResource{}, nil
}

func TestAliasCycleDetected(t *testing.T) {
	g := NewGraph()
	g.Allocator = permissiveAllocator{}

	a := g.DeclareImage("a", testImageDesc())
	b := g.DeclareImage("b", testImageDesc())

	readStages := vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)

	_, err := g.AddPass(Pass{Name: "p0", Queue: QueueCompute, Accesses: []Access{StorageImageWrite(a)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "p1", Queue: QueueCompute,
		Accesses: []Access{SampledRead(a, readStages), StorageImageWrite(b)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "p2", Queue: QueueCompute, Accesses: []Access{SampledRead(b, readStages)}})
	require.NoError(t, err)

	// Ranges [0,1] and [1,2] overlap; the permissive allocator lets the
	// alias through and the ordering edge it implies closes a loop.
	require.NoError(t, g.Alias(a, b))

	_, err = g.Compile()
	require.Error(t, err)

	var cyclic *CyclicDependencyError
	require.ErrorAs(t, err, &cyclic)
	assert.NotEmpty(t, cyclic.Passes)
}

func TestImportedImageEntrySync(t *testing.T) {
	g := NewGraph()

	entry := ImageState{
		Layout: vk.ImageLayoutPresentSrc,
		Stages: vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
	}
	img, err := g.ImportImage("swapchain", vk.NullImage, testImageDesc(), entry)
	require.NoError(t, err)

	_, err = g.AddPass(Pass{Name: "clear", Queue: QueueGraphics, Accesses: []Access{TransferDst(img)}})
	require.NoError(t, err)

	plan, err := g.Compile()
	require.NoError(t, err)

	require.Len(t, plan.Steps[0].Syncs, 1)
	sync := plan.Steps[0].Syncs[0]
	assert.True(t, sync.IsEntry())
	assert.Equal(t, vk.ImageLayoutPresentSrc, sync.OldLayout)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, sync.NewLayout)
	assert.Equal(t, entry.Stages, sync.SrcStages)
}

func TestExitStateThreading(t *testing.T) {
	g := NewGraph()

	img, err := g.ImportImage("swapchain", vk.NullImage, testImageDesc(), ImageState{})
	require.NoError(t, err)

	_, err = g.AddPass(Pass{Name: "clear", Queue: QueueGraphics, Accesses: []Access{TransferDst(img)}})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "present", Queue: QueueGraphics, Accesses: []Access{Present(img)}})
	require.NoError(t, err)

	plan, err := g.Compile()
	require.NoError(t, err)

	exit, ok := plan.ExitImageState(img)
	require.True(t, ok)
	assert.Equal(t, vk.ImageLayoutPresentSrc, exit.Layout)

	// Feeding the exit state into the next cycle's import reproduces the
	// present-to-write transition.
	g.Reset()
	img2, err := g.ImportImage("swapchain", vk.NullImage, testImageDesc(), exit)
	require.NoError(t, err)
	_, err = g.AddPass(Pass{Name: "clear", Queue: QueueGraphics, Accesses: []Access{TransferDst(img2)}})
	require.NoError(t, err)

	plan2, err := g.Compile()
	require.NoError(t, err)
	require.Len(t, plan2.Steps[0].Syncs, 1)
	assert.Equal(t, vk.ImageLayoutPresentSrc, plan2.Steps[0].Syncs[0].OldLayout)
}

func TestCompileIsDeterministic(t *testing.T) {
	build := func() *ExecutionPlan {
		g := NewGraph()
		depth := g.DeclareImage("depth", testImageDesc())
		color := g.DeclareImage("color", testImageDesc())
		lut := g.DeclareBuffer("lut", testBufferDesc())

		fragment := vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
		compute := vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)

		mustAdd := func(p Pass) {
			_, err := g.AddPass(p)
			require.NoError(t, err)
		}
		mustAdd(Pass{Name: "depth", Queue: QueueGraphics, Accesses: []Access{DepthWrite(depth)}})
		mustAdd(Pass{Name: "upload", Queue: QueueTransfer, Accesses: []Access{TransferDst(lut)}})
		mustAdd(Pass{Name: "shade", Queue: QueueGraphics,
			Accesses: []Access{ColorWrite(color), SampledRead(depth, fragment), StorageRead(lut)}})
		mustAdd(Pass{Name: "post", Queue: QueueCompute, Accesses: []Access{SampledRead(color, compute)}})

		plan, err := g.Compile()
		require.NoError(t, err)
		return plan
	}

	first := build()
	second := build()

	assert.Equal(t, first.Order(), second.Order())
	assert.Equal(t, first.SyncStrings(), second.SyncStrings())
	assert.Equal(t, first.Describe(), second.Describe())
}

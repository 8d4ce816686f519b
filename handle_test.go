package vulcany

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestHandleCapabilities(t *testing.T) {
	g := NewGraph()
	g.Allocator = &countingAllocator{}

	readable := g.DeclareImage("readable", testImageDesc())
	writable := g.DeclareImage("writable", testImageDesc())
	buf := g.DeclareBuffer("buf", testBufferDesc())
	undeclared := g.DeclareImage("undeclared", testImageDesc())

	stages := vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)

	recorded := false
	_, err := g.AddPass(Pass{
		Name:  "fill",
		Queue: QueueCompute,
		Accesses: []Access{
			StorageImageWrite(undeclared),
		},
	})
	require.NoError(t, err)
	_, err = g.AddPass(Pass{
		Name:  "probe",
		Queue: QueueCompute,
		Accesses: []Access{
			SampledRead(readable, stages),
			StorageImageWrite(writable),
			StorageReadWrite(buf),
		},
		Record: func(ctx *PassContext) error {
			recorded = true

			// Declared modes gate the handle types a pass can mint.
			_, err := ctx.ReadImage(readable)
			assert.NoError(t, err)
			_, err = ctx.WriteImage(readable)
			assert.Error(t, err, "read-declared image must not produce a write handle")

			_, err = ctx.WriteImage(writable)
			assert.NoError(t, err)
			_, err = ctx.ReadImage(writable)
			assert.Error(t, err, "write-declared image must not produce a read handle")

			// ReadWrite grants both capabilities.
			_, err = ctx.ReadBuffer(buf)
			assert.NoError(t, err)
			_, err = ctx.WriteBuffer(buf)
			assert.NoError(t, err)

			// Undeclared and mismatched lookups fail.
			_, err = ctx.ReadImage(undeclared)
			assert.Error(t, err, "resource not declared by this pass")
			_, err = ctx.ReadBuffer(readable)
			assert.Error(t, err, "image id must not produce a buffer handle")
			return nil
		},
	})
	require.NoError(t, err)

	plan, err := g.Compile()
	require.NoError(t, err)
	require.NoError(t, (&Executor{Recorder: &fakeRecorder{}}).Execute(plan))
	assert.True(t, recorded)
}

func TestHandleRejectsStaleCycleID(t *testing.T) {
	g := NewGraph()
	stale := g.DeclareImage("old", testImageDesc())
	g.Reset()

	fresh := g.DeclareImage("fresh", testImageDesc())
	g.Allocator = &countingAllocator{}

	_, err := g.AddPass(Pass{
		Name:     "probe",
		Queue:    QueueCompute,
		Accesses: []Access{StorageImageWrite(fresh)},
		Record: func(ctx *PassContext) error {
			_, err := ctx.WriteImage(stale)
			assert.Error(t, err, "ids do not survive Reset")
			return nil
		},
	})
	require.NoError(t, err)

	plan, err := g.Compile()
	require.NoError(t, err)
	require.NoError(t, (&Executor{Recorder: &fakeRecorder{}}).Execute(plan))
}

func TestHandleLayoutMatchesDeclaredAccess(t *testing.T) {
	g := NewGraph()
	g.Allocator = &countingAllocator{}

	img := g.DeclareImage("img", testImageDesc())

	var layout vk.ImageLayout
	_, err := g.AddPass(Pass{
		Name:     "probe",
		Queue:    QueueCompute,
		Accesses: []Access{StorageImageWrite(img)},
		Record: func(ctx *PassContext) error {
			h, err := ctx.WriteImage(img)
			require.NoError(t, err)
			layout = h.Layout()
			return nil
		},
	})
	require.NoError(t, err)

	plan, err := g.Compile()
	require.NoError(t, err)
	require.NoError(t, (&Executor{Recorder: &fakeRecorder{}}).Execute(plan))

	assert.Equal(t, vk.ImageLayoutGeneral, layout)
}

func TestHandleExpiresWithPass(t *testing.T) {
	g := NewGraph()
	g.Allocator = &countingAllocator{}

	img := g.DeclareImage("img", testImageDesc())

	var escaped ImageWriteHandle
	_, err := g.AddPass(Pass{
		Name:     "leak",
		Queue:    QueueCompute,
		Accesses: []Access{StorageImageWrite(img)},
		Record: func(ctx *PassContext) error {
			h, err := ctx.WriteImage(img)
			require.NoError(t, err)
			assert.True(t, h.Valid())
			escaped = h
			return nil
		},
	})
	require.NoError(t, err)

	plan, err := g.Compile()
	require.NoError(t, err)
	require.NoError(t, (&Executor{Recorder: &fakeRecorder{}}).Execute(plan))

	assert.False(t, escaped.Valid())
	assert.Panics(t, func() { escaped.VKImage() }, "handles must not outlive their pass")
}

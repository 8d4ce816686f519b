package vulcany

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// PassContext is handed to a pass's record callback while it runs. It is the
// only way to reach the physical resources behind the pass's declared
// accesses, and it hands them out as capability-typed handles: a resource
// declared read-only can only ever produce a read handle. The context and
// all handles obtained from it expire when the callback returns; touching an
// expired handle is a programming error and panics.
type PassContext struct {
	// Recorder is the command-recording surface the executor is driving.
	// Backend-specific recorders expose their native stream; callbacks
	// type-assert to reach it.
	Recorder Recorder

	graph *Graph
	pass  *Pass
	index int
	valid bool

	accesses map[int]Access
	phys     map[int]*PhysicalResource
}

// PassName returns the name of the pass being recorded.
func (c *PassContext) PassName() string {
	return c.pass.Name
}

// Commands returns the vulkan command buffer this pass records into when the
// executor is driving a DeviceRecorder, or nil for any other recorder.
func (c *PassContext) Commands() *CommandBuffer {
	if dr, ok := c.Recorder.(*DeviceRecorder); ok {
		return dr.passCommands(c.index)
	}
	return nil
}

func (c *PassContext) lookup(id ResourceID, kind ResourceKind, needRead, needWrite bool) (*handleCore, error) {
	if !c.graph.owns(id) {
		return nil, fmt.Errorf("pass %q given a resource id from another cycle", c.pass.Name)
	}
	acc, ok := c.accesses[id.index]
	if !ok {
		return nil, fmt.Errorf("pass %q did not declare access to resource %s", c.pass.Name, id)
	}
	if got := c.graph.resources[id.index].kind; got != kind {
		return nil, fmt.Errorf("resource %s is a %s, not a %s", id, got, kind)
	}
	if needRead && !acc.Mode.reads() {
		return nil, fmt.Errorf("pass %q declared resource %s as %s, cannot read it", c.pass.Name, id, acc.Mode)
	}
	if needWrite && !acc.Mode.writes() {
		return nil, fmt.Errorf("pass %q declared resource %s as %s, cannot write it", c.pass.Name, id, acc.Mode)
	}
	return &handleCore{ctx: c, index: id.index, acc: acc}, nil
}

// ReadImage returns a read-capability handle for an image the pass declared
// with Read or ReadWrite access.
func (c *PassContext) ReadImage(id ResourceID) (ImageReadHandle, error) {
	h, err := c.lookup(id, KindImage, true, false)
	if err != nil {
		return ImageReadHandle{}, err
	}
	return ImageReadHandle{h}, nil
}

// WriteImage returns a write-capability handle for an image the pass
// declared with Write or ReadWrite access.
func (c *PassContext) WriteImage(id ResourceID) (ImageWriteHandle, error) {
	h, err := c.lookup(id, KindImage, false, true)
	if err != nil {
		return ImageWriteHandle{}, err
	}
	return ImageWriteHandle{h}, nil
}

// ReadBuffer returns a read-capability handle for a buffer.
func (c *PassContext) ReadBuffer(id ResourceID) (BufferReadHandle, error) {
	h, err := c.lookup(id, KindBuffer, true, false)
	if err != nil {
		return BufferReadHandle{}, err
	}
	return BufferReadHandle{h}, nil
}

// WriteBuffer returns a write-capability handle for a buffer.
func (c *PassContext) WriteBuffer(id ResourceID) (BufferWriteHandle, error) {
	h, err := c.lookup(id, KindBuffer, false, true)
	if err != nil {
		return BufferWriteHandle{}, err
	}
	return BufferWriteHandle{h}, nil
}

// invalidate expires the context and every handle minted from it. Called by
// the executor when the owning pass's callback returns.
func (c *PassContext) invalidate() {
	c.valid = false
}

type handleCore struct {
	ctx   *PassContext
	index int
	acc   Access
}

func (h *handleCore) physical() *PhysicalResource {
	if h == nil || h.ctx == nil {
		panic("vulcany: use of zero resource handle")
	}
	if !h.ctx.valid {
		panic(fmt.Sprintf("vulcany: resource handle used after pass %q completed", h.ctx.pass.Name))
	}
	p := h.ctx.phys[h.index]
	if p == nil {
		panic(fmt.Sprintf("vulcany: resource %s has no physical backing in pass %q", ResourceID{index: h.index}, h.ctx.pass.Name))
	}
	return p
}

// Valid reports whether the handle's owning pass is still recording.
func (h *handleCore) Valid() bool {
	return h != nil && h.ctx != nil && h.ctx.valid
}

// ImageReadHandle grants read access to an image for the duration of one
// pass's record callback.
type ImageReadHandle struct {
	h *handleCore
}

func (h ImageReadHandle) Valid() bool { return h.h.Valid() }

// VKImage returns the physical image to record read commands against.
func (h ImageReadHandle) VKImage() vk.Image { return h.h.physical().Image }

// Layout returns the layout the image is in while this pass runs.
func (h ImageReadHandle) Layout() vk.ImageLayout { return h.h.acc.Layout }

// ImageWriteHandle grants write access to an image for the duration of one
// pass's record callback.
type ImageWriteHandle struct {
	h *handleCore
}

func (h ImageWriteHandle) Valid() bool { return h.h.Valid() }

func (h ImageWriteHandle) VKImage() vk.Image { return h.h.physical().Image }

func (h ImageWriteHandle) Layout() vk.ImageLayout { return h.h.acc.Layout }

// BufferReadHandle grants read access to a buffer for the duration of one
// pass's record callback.
type BufferReadHandle struct {
	h *handleCore
}

func (h BufferReadHandle) Valid() bool { return h.h.Valid() }

func (h BufferReadHandle) VKBuffer() vk.Buffer { return h.h.physical().Buffer }

func (h BufferReadHandle) Offset() uint64 { return h.h.physical().Offset }

func (h BufferReadHandle) Size() uint64 { return h.h.physical().Size }

// BufferWriteHandle grants write access to a buffer for the duration of one
// pass's record callback.
type BufferWriteHandle struct {
	h *handleCore
}

func (h BufferWriteHandle) Valid() bool { return h.h.Valid() }

func (h BufferWriteHandle) VKBuffer() vk.Buffer { return h.h.physical().Buffer }

func (h BufferWriteHandle) Offset() uint64 { return h.h.physical().Offset }

func (h BufferWriteHandle) Size() uint64 { return h.h.physical().Size }

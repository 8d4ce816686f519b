package vulcany

import (
	"fmt"
	"log"
	"sync"

	gu "github.com/docker/go-units"
	vk "github.com/vulkan-go/vulkan"
)

var insufficientPoolSpaceError = fmt.Errorf("insufficient space in backing pool")

// PhysicalResource is the device backing behind one plan slot. Transient
// resources that alias share one PhysicalResource; imported resources get a
// wrapper around the handle they were imported with.
type PhysicalResource struct {
	Slot   int
	Image  vk.Image
	Buffer vk.Buffer
	Memory *DeviceMemory
	Offset uint64
	Size   uint64

	allocation  *Allocation
	ownedImage  *Image
	ownedBuffer *Buffer
	pool        *BackingPool
}

// Free returns this resource's range to its pool and destroys the vulkan
// objects it owns. Freeing an imported resource's wrapper is a no-op.
func (p *PhysicalResource) Free() {
	if p.pool == nil {
		return
	}
	p.pool.free(p)
}

// BackingPool carves transient resource backing out of one block of device
// memory. It implements PhysicalAllocator, so assigning it to
// Graph.Allocator is all the wiring a graph needs:
//
//	g := vulcany.NewGraph()
//	g.Allocator = vulcany.NewBackingPool(device, 64*1024*1024)
//
// The pool picks its memory type from the first resource it backs and
// rejects later resources that cannot live in that type. Splitting device
// local and host visible transients across two pools is the caller's job.
type BackingPool struct {
	Device           *Device
	Size             uint64
	MemoryProperties vk.MemoryPropertyFlagBits
	Allocator        IAllocator
	Memory           *DeviceMemory

	mu         sync.Mutex
	memoryType uint32
	live       []*PhysicalResource
}

// NewBackingPool creates a device local pool of the given size. Memory is
// allocated lazily on the first AllocatePhysical call.
func NewBackingPool(device *Device, size uint64) *BackingPool {
	return &BackingPool{
		Device:           device,
		Size:             size,
		MemoryProperties: vk.MemoryPropertyDeviceLocalBit,
		Allocator:        &LinearAllocator{Size: size},
	}
}

// NewHostBackingPool creates a host visible, host coherent pool, for
// transient buffers the application maps for upload or readback.
func NewHostBackingPool(device *Device, size uint64) *BackingPool {
	return &BackingPool{
		Device:           device,
		Size:             size,
		MemoryProperties: vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit,
		Allocator:        &LinearAllocator{Size: size},
	}
}

// AliasCheck accepts any pair of disjoint live ranges. A pool with no
// headroom to spare could refuse here instead; range overlap is already
// rejected before this is consulted.
func (p *BackingPool) AliasCheck(a, b LiveRange) bool {
	return !a.Overlaps(b)
}

func (p *BackingPool) ensureMemory(req *AllocationRequirements) error {
	if p.Memory != nil {
		if req.MemoryTypeBits&(1<<p.memoryType) == 0 {
			return fmt.Errorf("resource cannot live in pool memory type %d", p.memoryType)
		}
		return nil
	}

	mt, err := p.Device.PhysicalDevice.FindMemoryType(req.MemoryTypeBits, p.MemoryProperties)
	if err != nil {
		return err
	}

	mem, err := p.Device.Allocate(int(p.Size), uint32(1)<<mt, vk.MemoryPropertyFlags(p.MemoryProperties))
	if err != nil {
		return err
	}

	p.Memory = mem
	p.memoryType = mt
	return nil
}

// AllocatePhysical creates and binds backing for one transient resource of
// the plan. The executor calls it once per slot; aliased resources reuse
// the returned PhysicalResource.
func (p *BackingPool) AllocatePhysical(plan *ExecutionPlan, id ResourceID) (*PhysicalResource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := plan.graph.resources[id.index]

	switch res.kind {
	case KindImage:
		return p.allocateImage(plan, id, res)
	case KindBuffer:
		return p.allocateBuffer(plan, id, res)
	}
	return nil, fmt.Errorf("resource %s has unknown kind", id)
}

func (p *BackingPool) allocateImage(plan *ExecutionPlan, id ResourceID, res *resourceEntry) (*PhysicalResource, error) {
	img, err := p.Device.CreateImage(res.image.Extent, res.image.Format, res.image.Tiling, vk.ImageUsageFlags(res.image.Usage))
	if err != nil {
		return nil, err
	}

	req := img.AllocationRequirements()
	if err := p.ensureMemory(req); err != nil {
		img.Destroy()
		return nil, err
	}

	allocation := p.Allocator.Allocate(uint64(req.Size), uint64(req.Alignment))
	if allocation == nil {
		img.Destroy()
		return nil, insufficientPoolSpaceError
	}

	if err := img.Bind(p.Memory, allocation.Offset); err != nil {
		p.Allocator.Free(allocation)
		img.Destroy()
		return nil, err
	}

	pr := &PhysicalResource{
		Slot:       plan.Slot(id),
		Image:      img.VKImage,
		Memory:     p.Memory,
		Offset:     allocation.Offset,
		Size:       allocation.Size,
		allocation: allocation,
		ownedImage: img,
		pool:       p,
	}
	p.live = append(p.live, pr)
	return pr, nil
}

func (p *BackingPool) allocateBuffer(plan *ExecutionPlan, id ResourceID, res *resourceEntry) (*PhysicalResource, error) {
	buf, err := p.Device.CreateBufferWithOptions(res.buffer.Size, vk.BufferUsageFlags(res.buffer.Usage), vk.SharingModeExclusive)
	if err != nil {
		return nil, err
	}

	req := buf.AllocationRequirements()
	if err := p.ensureMemory(req); err != nil {
		buf.Destroy()
		return nil, err
	}

	allocation := p.Allocator.Allocate(uint64(req.Size), uint64(req.Alignment))
	if allocation == nil {
		buf.Destroy()
		return nil, insufficientPoolSpaceError
	}

	if err := buf.Bind(p.Memory, allocation.Offset); err != nil {
		p.Allocator.Free(allocation)
		buf.Destroy()
		return nil, err
	}

	pr := &PhysicalResource{
		Slot:        plan.Slot(id),
		Buffer:      buf.VKBuffer,
		Memory:      p.Memory,
		Offset:      allocation.Offset,
		Size:        res.buffer.Size,
		allocation:  allocation,
		ownedBuffer: buf,
		pool:        p,
	}
	p.live = append(p.live, pr)
	return pr, nil
}

func (p *BackingPool) free(pr *PhysicalResource) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, l := range p.live {
		if l == pr {
			p.live = append(p.live[:i], p.live[i+1:]...)
			break
		}
	}
	if pr.ownedImage != nil {
		pr.ownedImage.Destroy()
		pr.ownedImage = nil
	}
	if pr.ownedBuffer != nil {
		pr.ownedBuffer.Destroy()
		pr.ownedBuffer = nil
	}
	if pr.allocation != nil {
		p.Allocator.Free(pr.allocation)
		pr.allocation = nil
	}
	pr.pool = nil
}

// FreeAll releases every live resource. A frame loop calls this once the
// cycle's work has been waited on, before the next Compile.
func (p *BackingPool) FreeAll() {
	p.mu.Lock()
	live := p.live
	p.live = nil
	p.mu.Unlock()

	for _, pr := range live {
		if pr.ownedImage != nil {
			pr.ownedImage.Destroy()
			pr.ownedImage = nil
		}
		if pr.ownedBuffer != nil {
			pr.ownedBuffer.Destroy()
			pr.ownedBuffer = nil
		}
		if la, ok := p.Allocator.(*LinearAllocator); ok {
			la.FreeAll()
		} else if pr.allocation != nil {
			p.Allocator.Free(pr.allocation)
		}
		pr.allocation = nil
		pr.pool = nil
	}
}

// LogDetails logs the pool's size and occupancy.
func (p *BackingPool) LogDetails() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var used uint64
	for _, pr := range p.live {
		used += pr.Size
	}
	log.Printf("pool size %s, %s in %d live resources",
		gu.HumanSize(float64(p.Size)), gu.HumanSize(float64(used)), len(p.live))
}

// Destroy frees every live resource and the pool's memory block.
func (p *BackingPool) Destroy() {
	p.FreeAll()
	if p.Memory != nil {
		p.Memory.Destroy()
		p.Memory = nil
	}
}

package vulcany

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

type ResourceKind int

const (
	KindImage ResourceKind = iota
	KindBuffer
)

func (k ResourceKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindBuffer:
		return "buffer"
	}
	return "unknown"
}

type Lifetime int

const (
	// LifetimeTransient resources live only within one graph cycle and may
	// share physical backing with other transients whose live ranges do not
	// overlap.
	LifetimeTransient Lifetime = iota
	// LifetimeImported resources are owned outside the graph and persist
	// across cycles; the importer must supply their entry state each cycle.
	LifetimeImported
)

func (l Lifetime) String() string {
	switch l {
	case LifetimeTransient:
		return "transient"
	case LifetimeImported:
		return "imported"
	}
	return "unknown"
}

// ResourceID identifies a logical resource within the graph cycle that
// declared it. IDs from a previous cycle are rejected by every operation
// that takes one.
type ResourceID struct {
	index int
	cycle uint64
}

func (r ResourceID) String() string {
	return fmt.Sprintf("#%d", r.index)
}

// ImageDesc describes a logical image resource.
type ImageDesc struct {
	Extent vk.Extent2D
	Format vk.Format
	Usage  vk.ImageUsageFlagBits
	Tiling vk.ImageTiling
}

// BufferDesc describes a logical buffer resource.
type BufferDesc struct {
	Size  uint64
	Usage vk.BufferUsageFlagBits
}

// ImageState is the synchronization state of an image at a cycle boundary.
// It is threaded explicitly through cycles for imported images: the caller
// supplies it at import time and reads the exit state off the compiled plan.
type ImageState struct {
	Layout vk.ImageLayout
	Stages vk.PipelineStageFlags
	Access vk.AccessFlags
}

// BufferState is the synchronization state of a buffer at a cycle boundary.
type BufferState struct {
	Stages vk.PipelineStageFlags
	Access vk.AccessFlags
}

// LiveRange is the span of passes, by declaration index, over which a
// resource is accessed. Both ends are inclusive.
type LiveRange struct {
	First int
	Last  int
}

func (r LiveRange) String() string {
	return fmt.Sprintf("[%d..%d]", r.First, r.Last)
}

// Overlaps reports whether two live ranges share at least one pass.
func (r LiveRange) Overlaps(o LiveRange) bool {
	return r.First <= o.Last && o.First <= r.Last
}

// resourceEntry is the canonical record of one logical resource for the
// current cycle.
type resourceEntry struct {
	name     string
	kind     ResourceKind
	lifetime Lifetime

	image  ImageDesc
	buffer BufferDesc

	// Externally owned backing, only set for imported resources.
	importedImage  vk.Image
	importedBuffer vk.Buffer
	entryImage     ImageState
	entryBuffer    BufferState
}

// DeclareImage records a transient logical image and returns its id. The id
// is only valid until the next Reset.
func (g *Graph) DeclareImage(name string, desc ImageDesc) ResourceID {
	g.resources = append(g.resources, &resourceEntry{
		name:     name,
		kind:     KindImage,
		lifetime: LifetimeTransient,
		image:    desc,
	})
	return ResourceID{index: len(g.resources) - 1, cycle: g.cycle}
}

// DeclareBuffer records a transient logical buffer and returns its id.
func (g *Graph) DeclareBuffer(name string, desc BufferDesc) ResourceID {
	g.resources = append(g.resources, &resourceEntry{
		name:     name,
		kind:     KindBuffer,
		lifetime: LifetimeTransient,
		buffer:   desc,
	})
	return ResourceID{index: len(g.resources) - 1, cycle: g.cycle}
}

// ImportImage records an externally owned image, for example a swapchain
// image, along with the state it is in when the cycle begins. Importing the
// same vk.Image twice in one cycle fails with DuplicateImportError.
func (g *Graph) ImportImage(name string, img vk.Image, desc ImageDesc, entry ImageState) (ResourceID, error) {
	if prev, ok := g.importedImages[img]; ok {
		return ResourceID{}, &DuplicateImportError{Name: g.resources[prev].name}
	}
	g.resources = append(g.resources, &resourceEntry{
		name:          name,
		kind:          KindImage,
		lifetime:      LifetimeImported,
		image:         desc,
		importedImage: img,
		entryImage:    entry,
	})
	id := ResourceID{index: len(g.resources) - 1, cycle: g.cycle}
	g.importedImages[img] = id.index
	return id, nil
}

// ImportBuffer records an externally owned buffer and its entry state.
func (g *Graph) ImportBuffer(name string, buf vk.Buffer, desc BufferDesc, entry BufferState) (ResourceID, error) {
	if prev, ok := g.importedBuffers[buf]; ok {
		return ResourceID{}, &DuplicateImportError{Name: g.resources[prev].name}
	}
	g.resources = append(g.resources, &resourceEntry{
		name:           name,
		kind:           KindBuffer,
		lifetime:       LifetimeImported,
		buffer:         desc,
		importedBuffer: buf,
		entryBuffer:    entry,
	})
	id := ResourceID{index: len(g.resources) - 1, cycle: g.cycle}
	g.importedBuffers[buf] = id.index
	return id, nil
}

// ResourceName returns the name a resource was declared with, or "" for an
// id from another cycle.
func (g *Graph) ResourceName(id ResourceID) string {
	if !g.owns(id) {
		return ""
	}
	return g.resources[id.index].name
}

func (g *Graph) owns(id ResourceID) bool {
	return id.cycle == g.cycle && id.index >= 0 && id.index < len(g.resources)
}

package vulcany

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Graph accumulates the resources and passes of one build/execute cycle.
// Building is single-writer: declaration order is load bearing, it is the
// tie break that makes compiled plans deterministic, so callers must
// serialize declarations themselves. Compile turns the accumulated
// declarations into an ExecutionPlan; Reset discards everything and starts
// the next cycle, invalidating every id handed out so far.
type Graph struct {
	cycle     uint64
	resources []*resourceEntry
	passes    []*Pass
	aliases   [][2]int

	importedImages  map[vk.Image]int
	importedBuffers map[vk.Buffer]int

	// Allocator, when set, is consulted for the aliasing check during
	// Compile and for physical backing during execution. Tests and
	// dry runs may leave it nil.
	Allocator PhysicalAllocator
}

func NewGraph() *Graph {
	g := &Graph{cycle: 1}
	g.importedImages = make(map[vk.Image]int)
	g.importedBuffers = make(map[vk.Buffer]int)
	return g
}

// Alias requests that two transient resources of the same kind share
// physical backing. The request is validated during Compile: overlapping
// live ranges fail with AliasingConflictError.
func (g *Graph) Alias(a, b ResourceID) error {
	if !g.owns(a) {
		return &UnknownResourceError{Pass: "alias", Resource: a}
	}
	if !g.owns(b) {
		return &UnknownResourceError{Pass: "alias", Resource: b}
	}
	ra, rb := g.resources[a.index], g.resources[b.index]
	if ra.lifetime != LifetimeTransient || rb.lifetime != LifetimeTransient {
		return fmt.Errorf("cannot alias %q with %q: only transient resources may share backing", ra.name, rb.name)
	}
	if ra.kind != rb.kind {
		return fmt.Errorf("cannot alias %s %q with %s %q", ra.kind, ra.name, rb.kind, rb.name)
	}
	g.aliases = append(g.aliases, [2]int{a.index, b.index})
	return nil
}

// NumPasses returns the number of passes declared so far this cycle.
func (g *Graph) NumPasses() int {
	return len(g.passes)
}

// NumResources returns the number of resources declared so far this cycle.
func (g *Graph) NumResources() int {
	return len(g.resources)
}

// Reset discards the current cycle. All ResourceIDs, PassHandles and plans
// produced this cycle become invalid. Imported resources must be re-imported
// with a fresh entry state, which forces the caller to account for any
// external mutation between cycles.
func (g *Graph) Reset() {
	g.cycle++
	g.resources = g.resources[:0]
	g.passes = g.passes[:0]
	g.aliases = g.aliases[:0]
	g.importedImages = make(map[vk.Image]int)
	g.importedBuffers = make(map[vk.Buffer]int)
}

// Compile resolves the declared passes into an execution plan: it derives
// dependency edges from the declared accesses, verifies aliasing requests,
// orders the passes and computes the synchronization each pass must wait
// for. No partial plan is ever returned.
func (g *Graph) Compile() (*ExecutionPlan, error) {
	r := newResolver(g)
	return r.resolve()
}

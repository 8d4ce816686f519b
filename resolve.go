package vulcany

import (
	"fmt"
	"sort"

	vk "github.com/vulkan-go/vulkan"
)

// PlanStep is one entry of a compiled plan: a pass plus the synchronization
// that must be recorded immediately before it.
type PlanStep struct {
	Pass  int
	Name  string
	Queue QueueType
	// Wave groups passes with no transitive dependency between them; every
	// pass in a wave may be recorded concurrently with the others.
	Wave  int
	Syncs []SyncPoint
}

// ExecutionPlan is the output of Compile: the passes of one cycle in a valid
// execution order together with their derived SyncPoints, the physical slot
// assignment for transient resources, and the exit state of every imported
// resource.
type ExecutionPlan struct {
	Steps []PlanStep

	graph       *Graph
	cycle       uint64
	slots       []int
	ranges      []LiveRange
	exitImages  map[int]ImageState
	exitBuffers map[int]BufferState
}

// Slot returns the physical backing slot assigned to a transient resource.
// Aliased resources share a slot.
func (p *ExecutionPlan) Slot(id ResourceID) int {
	if id.cycle != p.cycle || id.index < 0 || id.index >= len(p.slots) {
		return -1
	}
	return p.slots[id.index]
}

// Range returns the live range computed for a resource, or a zero range for
// a resource with no accesses.
func (p *ExecutionPlan) Range(id ResourceID) LiveRange {
	if id.cycle != p.cycle || id.index < 0 || id.index >= len(p.ranges) {
		return LiveRange{}
	}
	return p.ranges[id.index]
}

// ExitImageState reports the state an imported image is left in when the
// plan finishes, for the caller to feed into the next cycle's import.
func (p *ExecutionPlan) ExitImageState(id ResourceID) (ImageState, bool) {
	if id.cycle != p.cycle {
		return ImageState{}, false
	}
	s, ok := p.exitImages[id.index]
	return s, ok
}

// ExitBufferState reports the state an imported buffer is left in when the
// plan finishes.
func (p *ExecutionPlan) ExitBufferState(id ResourceID) (BufferState, bool) {
	if id.cycle != p.cycle {
		return BufferState{}, false
	}
	s, ok := p.exitBuffers[id.index]
	return s, ok
}

// SyncStrings renders every SyncPoint of the plan in step order. Two plans
// compiled from identical declarations always produce identical output,
// which makes this the cheapest way to diff graph behavior between runs.
func (p *ExecutionPlan) SyncStrings() []string {
	var out []string
	for i := range p.Steps {
		for j := range p.Steps[i].Syncs {
			out = append(out, p.Steps[i].Syncs[j].String())
		}
	}
	return out
}

// resolver holds the intermediate state of one Compile call.
type resolver struct {
	g      *Graph
	adj    [][]int
	edges  map[[2]int]bool
	syncs  map[int][]SyncPoint
	ranges []LiveRange
	slots  []int
}

func newResolver(g *Graph) *resolver {
	r := &resolver{g: g}
	r.adj = make([][]int, len(g.passes))
	r.edges = make(map[[2]int]bool)
	r.syncs = make(map[int][]SyncPoint)
	r.ranges = make([]LiveRange, len(g.resources))
	r.slots = make([]int, len(g.resources))
	return r
}

func (r *resolver) resolve() (*ExecutionPlan, error) {
	r.deriveAccessSync()

	if err := r.assignSlots(); err != nil {
		return nil, err
	}

	r.reduce()

	order, err := r.sortStable()
	if err != nil {
		return nil, err
	}

	waves := r.waves()

	plan := &ExecutionPlan{
		graph:       r.g,
		cycle:       r.g.cycle,
		slots:       r.slots,
		ranges:      r.ranges,
		exitImages:  make(map[int]ImageState),
		exitBuffers: make(map[int]BufferState),
	}

	for _, pi := range order {
		p := r.g.passes[pi]
		plan.Steps = append(plan.Steps, PlanStep{
			Pass:  pi,
			Name:  p.Name,
			Queue: p.Queue,
			Wave:  waves[pi],
			Syncs: r.syncs[pi],
		})
	}

	r.exitStates(plan)

	return plan, nil
}

func (r *resolver) addEdge(from, to int) {
	if from == to {
		return
	}
	key := [2]int{from, to}
	if r.edges[key] {
		return
	}
	r.edges[key] = true
	r.adj[from] = append(r.adj[from], to)
}

// resourceUse pairs a pass index with the access it declared.
type resourceUse struct {
	pass int
	acc  Access
}

// deriveAccessSync walks every resource's accessors in declaration order,
// inserting dependency edges and the merged SyncPoint for each distinct
// (resource, source pass, consuming pass). It also computes live ranges.
func (r *resolver) deriveAccessSync() {
	uses := make([][]resourceUse, len(r.g.resources))
	for pi, p := range r.g.passes {
		for _, a := range p.Accesses {
			uses[a.Resource.index] = append(uses[a.Resource.index], resourceUse{pass: pi, acc: a})
		}
	}

	for ri, us := range uses {
		res := r.g.resources[ri]
		if len(us) == 0 {
			r.ranges[ri] = LiveRange{First: -1, Last: -1}
			continue
		}
		r.ranges[ri] = LiveRange{First: us[0].pass, Last: us[len(us)-1].pass}

		r.emitEntrySync(ri, res, us[0])

		lastWriter := -1
		var lastWriterAcc Access
		var readers []resourceUse
		prev := resourceUse{pass: -1}
		prevLayout := r.entryLayout(res)

		for _, u := range us {
			srcs := make(map[int]Access)
			merge := func(pass int, acc Access) {
				s := srcs[pass]
				s.Stages |= acc.Stages
				s.Mask |= acc.Mask
				srcs[pass] = s
			}

			if u.acc.Mode.writes() {
				if lastWriter >= 0 {
					merge(lastWriter, lastWriterAcc)
				}
				for _, rd := range readers {
					merge(rd.pass, rd.acc)
				}
			} else if lastWriter >= 0 {
				merge(lastWriter, lastWriterAcc)
			}

			// A layout change between two reads still needs a barrier even
			// though no write is involved. The transition rewrites the image,
			// so every reader still using the old layout must be waited on.
			if res.kind == KindImage && !u.acc.Mode.writes() && prev.pass >= 0 && prev.acc.Layout != u.acc.Layout {
				for _, rd := range readers {
					merge(rd.pass, rd.acc)
				}
			}

			srcPasses := make([]int, 0, len(srcs))
			for sp := range srcs {
				srcPasses = append(srcPasses, sp)
			}
			sort.Ints(srcPasses)

			for _, sp := range srcPasses {
				src := srcs[sp]
				sync := SyncPoint{
					Resource:     ResourceID{index: ri, cycle: r.g.cycle},
					ResourceName: res.name,
					SrcPass:      sp,
					DstPass:      u.pass,
					SrcStages:    src.Stages,
					DstStages:    u.acc.Stages,
					SrcAccess:    src.Mask,
					DstAccess:    u.acc.Mask,
					SrcQueue:     r.g.passes[sp].Queue,
					DstQueue:     r.g.passes[u.pass].Queue,
				}
				if res.kind == KindImage {
					sync.OldLayout = prevLayout
					sync.NewLayout = u.acc.Layout
				}
				r.addEdge(sp, u.pass)
				r.syncs[u.pass] = append(r.syncs[u.pass], sync)
			}

			if u.acc.Mode.writes() {
				lastWriter = u.pass
				lastWriterAcc = u.acc
				readers = readers[:0]
			} else {
				readers = append(readers, u)
			}
			prev = u
			if res.kind == KindImage {
				prevLayout = u.acc.Layout
			}
		}
	}
}

func (r *resolver) entryLayout(res *resourceEntry) vk.ImageLayout {
	if res.lifetime == LifetimeImported {
		return res.entryImage.Layout
	}
	return vk.ImageLayoutUndefined
}

// emitEntrySync brings a resource from its cycle-entry state into the state
// the first accessing pass needs. Transient images start undefined; imported
// resources start in their declared entry state. Transient buffers need
// nothing.
func (r *resolver) emitEntrySync(ri int, res *resourceEntry, first resourceUse) {
	id := ResourceID{index: ri, cycle: r.g.cycle}
	queue := r.g.passes[first.pass].Queue

	switch {
	case res.kind == KindImage:
		sync := SyncPoint{
			Resource:     id,
			ResourceName: res.name,
			SrcPass:      -1,
			DstPass:      first.pass,
			SrcStages:    vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			DstStages:    first.acc.Stages,
			DstAccess:    first.acc.Mask,
			OldLayout:    vk.ImageLayoutUndefined,
			NewLayout:    first.acc.Layout,
			SrcQueue:     queue,
			DstQueue:     queue,
		}
		if res.lifetime == LifetimeImported {
			sync.SrcStages = res.entryImage.Stages
			if sync.SrcStages == 0 {
				sync.SrcStages = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
			}
			sync.SrcAccess = res.entryImage.Access
			sync.OldLayout = res.entryImage.Layout
		}
		r.syncs[first.pass] = append(r.syncs[first.pass], sync)

	case res.lifetime == LifetimeImported:
		// Imported buffer: only needed when the outside world left writes
		// in flight.
		if res.entryBuffer.Stages == 0 && res.entryBuffer.Access == 0 {
			return
		}
		r.syncs[first.pass] = append(r.syncs[first.pass], SyncPoint{
			Resource:     id,
			ResourceName: res.name,
			SrcPass:      -1,
			DstPass:      first.pass,
			SrcStages:    res.entryBuffer.Stages,
			DstStages:    first.acc.Stages,
			SrcAccess:    res.entryBuffer.Access,
			DstAccess:    first.acc.Mask,
			SrcQueue:     queue,
			DstQueue:     queue,
		})
	}
}

// assignSlots folds aliased resources onto shared backing slots and
// validates the result against the computed live ranges. Alias requests are
// transitive through a shared slot, so validation runs over every pair in a
// slot class, not just the requested pairs. Reusing a slot orders the later
// range after the earlier one, so the ordering edges are added here and
// checked by the sort.
func (r *resolver) assignSlots() error {
	for i := range r.slots {
		r.slots[i] = i
	}
	find := func(i int) int {
		for r.slots[i] != i {
			i = r.slots[i]
		}
		return i
	}

	for _, pair := range r.g.aliases {
		ar, br := find(pair[0]), find(pair[1])
		if ar != br {
			if br < ar {
				ar, br = br, ar
			}
			r.slots[br] = ar
		}
	}
	for i := range r.slots {
		r.slots[i] = find(i)
	}

	classes := make(map[int][]int)
	for i, s := range r.slots {
		classes[s] = append(classes[s], i)
	}

	// Walk roots in index order so the first conflict reported is stable.
	for root := 0; root < len(r.slots); root++ {
		members := classes[root]
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				a, b := members[x], members[y]
				ra, rb := r.ranges[a], r.ranges[b]
				if ra.First < 0 || rb.First < 0 {
					continue
				}

				conflict := ra.Overlaps(rb)
				if r.g.Allocator != nil {
					conflict = !r.g.Allocator.AliasCheck(ra, rb)
				}
				if conflict {
					return &AliasingConflictError{
						A: r.g.resources[a].name, B: r.g.resources[b].name,
						RangeA: ra, RangeB: rb,
					}
				}

				if ra.Last < rb.First {
					r.addEdge(ra.Last, rb.First)
				} else {
					r.addEdge(rb.Last, ra.First)
				}
			}
		}
	}
	return nil
}

// reduce removes edges already implied transitively, keeping the barrier set
// minimal without weakening the ordering.
func (r *resolver) reduce() {
	for u := range r.adj {
		neighbors := append([]int(nil), r.adj[u]...)
		for _, v := range neighbors {
			kept := r.adj[u][:0]
			for _, x := range r.adj[u] {
				if x != v {
					kept = append(kept, x)
				}
			}
			r.adj[u] = kept

			if !r.reachable(u, v) {
				r.adj[u] = append(r.adj[u], v)
			}
		}
		sort.Ints(r.adj[u])
	}
}

func (r *resolver) reachable(from, to int) bool {
	visited := make([]bool, len(r.adj))
	stack := []int{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, r.adj[n]...)
	}
	return false
}

// sortStable runs Kahn's algorithm, always draining the lowest declaration
// index first so that unconstrained passes keep their declaration order.
// Passes left over when the ready set empties are part of a cycle.
func (r *resolver) sortStable() ([]int, error) {
	n := len(r.g.passes)
	indeg := make([]int, n)
	for _, targets := range r.adj {
		for _, t := range targets {
			indeg[t]++
		}
	}

	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, n)
	for len(ready) > 0 {
		// ready is kept sorted; new entries are appended and re-sorted,
		// which is cheap at these sizes.
		sort.Ints(ready)
		u := ready[0]
		ready = ready[1:]
		order = append(order, u)
		for _, v := range r.adj[u] {
			indeg[v]--
			if indeg[v] == 0 {
				ready = append(ready, v)
			}
		}
	}

	if len(order) != n {
		done := make([]bool, n)
		for _, u := range order {
			done[u] = true
		}
		var stuck []string
		for i := 0; i < n; i++ {
			if !done[i] {
				stuck = append(stuck, r.g.passes[i].Name)
			}
		}
		return nil, &CyclicDependencyError{Passes: stuck}
	}
	return order, nil
}

// waves computes, for every pass, the length of the longest dependency chain
// leading to it. Passes sharing a wave number have no transitive edge
// between them. Edges always point from a lower to a higher declaration
// index, so one forward scan suffices.
func (r *resolver) waves() []int {
	depth := make([]int, len(r.adj))
	for u := range r.adj {
		for _, v := range r.adj[u] {
			if depth[u]+1 > depth[v] {
				depth[v] = depth[u] + 1
			}
		}
	}
	return depth
}

// exitStates records the final state of every imported resource so the
// caller can thread it into the next cycle.
func (r *resolver) exitStates(plan *ExecutionPlan) {
	for ri, res := range r.g.resources {
		if res.lifetime != LifetimeImported {
			continue
		}
		last := resourceUse{pass: -1}
		for pi, p := range r.g.passes {
			for _, a := range p.Accesses {
				if a.Resource.index == ri {
					last = resourceUse{pass: pi, acc: a}
				}
			}
		}
		switch res.kind {
		case KindImage:
			state := res.entryImage
			if last.pass >= 0 {
				state = ImageState{
					Layout: last.acc.Layout,
					Stages: last.acc.Stages,
					Access: last.acc.Mask,
				}
			}
			plan.exitImages[ri] = state
		case KindBuffer:
			state := res.entryBuffer
			if last.pass >= 0 {
				state = BufferState{
					Stages: last.acc.Stages,
					Access: last.acc.Mask,
				}
			}
			plan.exitBuffers[ri] = state
		}
	}
}

// Order returns the pass indices of the plan in execution order.
func (p *ExecutionPlan) Order() []int {
	out := make([]int, len(p.Steps))
	for i := range p.Steps {
		out[i] = p.Steps[i].Pass
	}
	return out
}

// Describe renders the plan in a compact, stable text form.
func (p *ExecutionPlan) Describe() string {
	s := ""
	for i := range p.Steps {
		st := &p.Steps[i]
		s += fmt.Sprintf("[%d] wave %d %s pass %q (%d syncs)\n", i, st.Wave, st.Queue, st.Name, len(st.Syncs))
	}
	return s
}

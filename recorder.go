package vulcany

import (
	"fmt"
	"sync"
	"time"

	vk "github.com/vulkan-go/vulkan"
)

// PlanAware is implemented by recorders that need the compiled plan and its
// physical backing before the first pass records. The executor invokes
// BeginPlan once per Execute, ahead of every BeginPass.
type PlanAware interface {
	BeginPlan(plan *ExecutionPlan, phys map[int]*PhysicalResource) error
}

// DeviceRecorder records a plan into vulkan command buffers and submits
// them. One command buffer is allocated per pass from a pool of the pass's
// queue type, so passes of a wave can record concurrently. Queue ownership
// transfers become a release barrier in an extra command buffer submitted
// after the producing pass on its queue, and an acquire barrier at the head
// of the consuming pass's command buffer, with a semaphore ordering the two
// submissions.
type DeviceRecorder struct {
	Device *Device

	queues [numQueueTypes]*Queue
	pools  [numQueueTypes]*CommandPool

	mu       sync.Mutex
	plan     *ExecutionPlan
	phys     map[int]*PhysicalResource
	cbs      map[int]*CommandBuffer
	releases map[int][]*CommandBuffer
	sems     []*Semaphore
	fence    *Fence

	frameWaits   []*Semaphore
	frameSignals []*Semaphore
}

// SetFrameSemaphores attaches externally owned semaphores to the next
// Submit: the first batch waits on waits, the last batch signals signals. A
// frame loop passes the swapchain acquire semaphore and the present wait
// semaphore here. They are cleared after every Submit and never destroyed
// by the recorder.
func (r *DeviceRecorder) SetFrameSemaphores(waits, signals []*Semaphore) {
	r.frameWaits = waits
	r.frameSignals = signals
}

// NewDeviceRecorder creates a recorder over the given queues. QueueGraphics
// must be present; queue types without an entry fall back to the graphics
// queue, which collapses their ownership transfers into plain barriers.
func NewDeviceRecorder(device *Device, queues map[QueueType]*Queue) (*DeviceRecorder, error) {
	if queues[QueueGraphics] == nil {
		return nil, fmt.Errorf("recorder requires a graphics queue")
	}

	r := &DeviceRecorder{Device: device}
	for qt := QueueType(0); qt < numQueueTypes; qt++ {
		r.queues[qt] = queues[qt]
		if r.queues[qt] == nil {
			r.queues[qt] = queues[QueueGraphics]
		}
	}

	for qt := QueueType(0); qt < numQueueTypes; qt++ {
		// Share one pool per distinct family.
		shared := false
		for prev := QueueType(0); prev < qt; prev++ {
			if r.queues[prev].QueueFamily.Index == r.queues[qt].QueueFamily.Index {
				r.pools[qt] = r.pools[prev]
				shared = true
				break
			}
		}
		if shared {
			continue
		}
		pool, err := device.CreateCommandPool(r.queues[qt].QueueFamily)
		if err != nil {
			r.destroyPools()
			return nil, err
		}
		r.pools[qt] = pool
	}

	fence, err := device.CreateFence()
	if err != nil {
		r.destroyPools()
		return nil, err
	}
	r.fence = fence

	return r, nil
}

func (r *DeviceRecorder) queueFor(qt QueueType) *Queue {
	if qt < 0 || qt >= numQueueTypes {
		return r.queues[QueueGraphics]
	}
	return r.queues[qt]
}

func (r *DeviceRecorder) familyIndex(qt QueueType) uint32 {
	return uint32(r.queueFor(qt).QueueFamily.Index)
}

// BeginPlan resets per-cycle state and captures the plan's physical backing.
func (r *DeviceRecorder) BeginPlan(plan *ExecutionPlan, phys map[int]*PhysicalResource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plan = plan
	r.phys = phys
	r.cbs = make(map[int]*CommandBuffer, len(plan.Steps))
	r.releases = make(map[int][]*CommandBuffer)
	return nil
}

func (r *DeviceRecorder) BeginPass(step *PlanStep) error {
	r.mu.Lock()
	cb, err := r.pools[r.poolIndex(step.Queue)].AllocateBuffer()
	if err == nil {
		r.cbs[step.Pass] = cb
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return cb.BeginOneTime()
}

func (r *DeviceRecorder) passCommands(pass int) *CommandBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cbs[pass]
}

func (r *DeviceRecorder) poolIndex(qt QueueType) QueueType {
	if qt < 0 || qt >= numQueueTypes {
		return QueueGraphics
	}
	return qt
}

// Barrier records one SyncPoint. Same-queue sync points become a single
// pipeline barrier at the head of the consuming pass's command buffer. A
// queue transfer whose source and destination resolve to the same vulkan
// family degrades to that same plain barrier.
func (r *DeviceRecorder) Barrier(sp *SyncPoint) error {
	r.mu.Lock()
	cb := r.cbs[sp.DstPass]
	p := r.phys[sp.Resource.index]
	r.mu.Unlock()

	if cb == nil {
		return fmt.Errorf("sync point for pass %d arrived before its command buffer", sp.DstPass)
	}

	srcFam := uint32(vk.QueueFamilyIgnored)
	dstFam := uint32(vk.QueueFamilyIgnored)
	transfer := false
	if sp.IsQueueTransfer() && !sp.IsEntry() {
		sf := r.familyIndex(sp.SrcQueue)
		df := r.familyIndex(sp.DstQueue)
		if sf != df {
			srcFam, dstFam = sf, df
			transfer = true
		}
	}

	if p == nil {
		cb.CmdGlobalBarrier(sp)
		return nil
	}

	if transfer {
		if err := r.recordRelease(sp, p, srcFam, dstFam); err != nil {
			return err
		}
	}

	if p.Image != vk.NullImage {
		cb.CmdImageBarrier(sp, p.Image, srcFam, dstFam, false)
	} else {
		cb.CmdBufferBarrier(sp, p.Buffer, p.Size, srcFam, dstFam, false)
	}
	return nil
}

// recordRelease records the release half of an ownership transfer into a
// dedicated command buffer on the source queue. Submit places it directly
// after the producing pass's buffer.
func (r *DeviceRecorder) recordRelease(sp *SyncPoint, p *PhysicalResource, srcFam, dstFam uint32) error {
	r.mu.Lock()
	cb, err := r.pools[r.poolIndex(sp.SrcQueue)].AllocateBuffer()
	if err == nil {
		r.releases[sp.SrcPass] = append(r.releases[sp.SrcPass], cb)
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if err := cb.BeginOneTime(); err != nil {
		return err
	}
	if p.Image != vk.NullImage {
		cb.CmdImageBarrier(sp, p.Image, srcFam, dstFam, true)
	} else {
		cb.CmdBufferBarrier(sp, p.Buffer, p.Size, srcFam, dstFam, true)
	}
	return cb.End()
}

func (r *DeviceRecorder) EndPass(step *PlanStep) error {
	r.mu.Lock()
	cb := r.cbs[step.Pass]
	r.mu.Unlock()
	if cb == nil {
		return fmt.Errorf("pass %d ended without a command buffer", step.Pass)
	}
	return cb.End()
}

// Submit submits the recorded command buffers in plan order, batching
// contiguous same-queue runs and chaining consecutive batches of different
// queues with semaphores. The final batch signals the recorder's fence;
// call Wait before reusing the recorder or freeing the cycle's resources.
func (r *DeviceRecorder) Submit(plan *ExecutionPlan) error {
	type batch struct {
		q   *Queue
		cbs []*CommandBuffer
	}

	var batches []*batch
	for i := range plan.Steps {
		step := &plan.Steps[i]
		q := r.queueFor(step.Queue)

		run := []*CommandBuffer{r.cbs[step.Pass]}
		run = append(run, r.releases[step.Pass]...)

		if n := len(batches); n > 0 && batches[n-1].q == q {
			batches[n-1].cbs = append(batches[n-1].cbs, run...)
			continue
		}
		batches = append(batches, &batch{q: q, cbs: run})
	}

	var prev *Semaphore
	for i, b := range batches {
		var waits, signals []*Semaphore
		if prev != nil {
			waits = []*Semaphore{prev}
		}
		prev = nil

		if i == 0 {
			waits = append(waits, r.frameWaits...)
		}

		if i+1 < len(batches) {
			sem, err := r.Device.CreateSemaphore()
			if err != nil {
				return err
			}
			r.sems = append(r.sems, sem)
			signals = []*Semaphore{sem}
			prev = sem
		}

		var fence *Fence
		if i == len(batches)-1 {
			fence = r.fence
			signals = append(signals, r.frameSignals...)
		}

		if err := b.q.Submit(b.cbs, waits, signals, fence); err != nil {
			return err
		}
	}
	r.frameWaits = nil
	r.frameSignals = nil
	return nil
}

// Wait blocks until the last Submit's work completes, then releases the
// cycle's command buffers and semaphores.
func (r *DeviceRecorder) Wait(ts time.Duration) error {
	if err := r.fence.Wait(ts); err != nil {
		return err
	}
	if err := r.fence.Reset(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[*CommandPool]bool)
	for qt := QueueType(0); qt < numQueueTypes; qt++ {
		pool := r.pools[qt]
		if pool == nil || seen[pool] {
			continue
		}
		seen[pool] = true
		if err := pool.Reset(); err != nil {
			return err
		}
	}

	for _, s := range r.sems {
		s.Destroy()
	}
	r.sems = nil
	r.cbs = nil
	r.releases = nil
	r.plan = nil
	r.phys = nil
	return nil
}

func (r *DeviceRecorder) destroyPools() {
	seen := make(map[*CommandPool]bool)
	for qt := QueueType(0); qt < numQueueTypes; qt++ {
		pool := r.pools[qt]
		if pool == nil || seen[pool] {
			continue
		}
		seen[pool] = true
		pool.Destroy()
		r.pools[qt] = nil
	}
}

func (r *DeviceRecorder) Destroy() {
	for _, s := range r.sems {
		s.Destroy()
	}
	r.sems = nil
	if r.fence != nil {
		r.fence.Destroy()
		r.fence = nil
	}
	r.destroyPools()
}

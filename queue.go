package vulcany

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

type Queue struct {
	Device      *Device
	QueueFamily *QueueFamily
	VKQueue     vk.Queue
}

func (q *Queue) WaitIdle() error {
	return vk.Error(vk.QueueWaitIdle(q.VKQueue))
}

func (q *Queue) SubmitWaitIdle(buffers ...*CommandBuffer) error {
	var submitInfo = vk.SubmitInfo{}
	submitInfo.SType = vk.StructureTypeSubmitInfo
	submitInfo.CommandBufferCount = uint32(len(buffers))

	b := make([]vk.CommandBuffer, len(buffers))
	for i := range buffers {
		b[i] = buffers[i].VKCommandBuffer
	}

	submitInfo.PCommandBuffers = b

	err := vk.Error(vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{submitInfo}, nil))
	if err != nil {
		return err
	}

	vk.QueueWaitIdle(q.VKQueue)

	return nil
}

func (q *Queue) SubmitWithFence(fence *Fence, buffers ...*CommandBuffer) error {
	return q.Submit(buffers, nil, nil, fence)
}

// Submit submits a batch of command buffers in order, waiting on and
// signalling the given semaphores. The executor uses the semaphores to
// order submissions across queues when a plan contains queue ownership
// transfers; within one queue, batch order alone is sufficient.
func (q *Queue) Submit(buffers []*CommandBuffer, waits []*Semaphore, signals []*Semaphore, fence *Fence) error {
	var submitInfo = vk.SubmitInfo{}
	submitInfo.SType = vk.StructureTypeSubmitInfo
	submitInfo.CommandBufferCount = uint32(len(buffers))

	b := make([]vk.CommandBuffer, len(buffers))
	for i := range buffers {
		b[i] = buffers[i].VKCommandBuffer
	}
	submitInfo.PCommandBuffers = b

	if len(waits) > 0 {
		ws := make([]vk.Semaphore, len(waits))
		masks := make([]vk.PipelineStageFlags, len(waits))
		for i := range waits {
			ws[i] = waits[i].VKSemaphore
			masks[i] = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		}
		submitInfo.WaitSemaphoreCount = uint32(len(waits))
		submitInfo.PWaitSemaphores = ws
		submitInfo.PWaitDstStageMask = masks
	}

	if len(signals) > 0 {
		ss := make([]vk.Semaphore, len(signals))
		for i := range signals {
			ss[i] = signals[i].VKSemaphore
		}
		submitInfo.SignalSemaphoreCount = uint32(len(signals))
		submitInfo.PSignalSemaphores = ss
	}

	var vkFence vk.Fence
	if fence != nil {
		vkFence = fence.VKFence
	}

	return vk.Error(vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{submitInfo}, vkFence))
}

func (q *Queue) String() string {
	return fmt.Sprintf("{Device: %s QueueFamily: %s}", q.Device.String(), q.QueueFamily.String())
}

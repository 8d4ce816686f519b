package vulcany

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// CommandBuffer describes a sequence of commands that will be executed upon
// being sent to a device queue. The graph records derived barriers through
// the typed helpers below; pass callbacks may also drop to the native
// vulkan command APIs for anything not wrapped here.
type CommandBuffer struct {
	VKCommandBuffer vk.CommandBuffer
}

// ResetAndRelease will reset this commandbuffer and release the associated resources
func (c *CommandBuffer) ResetAndRelease() error {
	return vk.Error(vk.ResetCommandBuffer(c.VKCommandBuffer, vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit)))
}

// Reset this command buffer
func (c *CommandBuffer) Reset() error {
	return vk.Error(vk.ResetCommandBuffer(c.VKCommandBuffer, 0))
}

// VK is a utility function for accessing the native vulkan command buffer
func (c *CommandBuffer) VK() vk.CommandBuffer {
	return c.VKCommandBuffer
}

// Begin capturing work for this command buffer
func (c *CommandBuffer) Begin() error {
	var beginInfo = vk.CommandBufferBeginInfo{}
	beginInfo.SType = vk.StructureTypeCommandBufferBeginInfo
	beginInfo.Flags = 0
	return vk.Error(vk.BeginCommandBuffer(c.VKCommandBuffer, &beginInfo))
}

// BeginOneTime begins capturing work for this command buffer, with the
// stipulation that it will only be submitted once. Graph command buffers
// are always one-time: a plan is recorded, submitted and discarded with its
// cycle.
func (c *CommandBuffer) BeginOneTime() error {
	var beginInfo = vk.CommandBufferBeginInfo{}
	beginInfo.SType = vk.StructureTypeCommandBufferBeginInfo
	beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	return vk.Error(vk.BeginCommandBuffer(c.VKCommandBuffer, &beginInfo))
}

// End describing work for this command buffer
func (c *CommandBuffer) End() error {
	return vk.Error(vk.EndCommandBuffer(c.VKCommandBuffer))
}

// CmdImageBarrier records an image memory barrier for a derived SyncPoint.
// srcFamily and dstFamily are the resolved queue family indices; pass
// vk.QueueFamilyIgnored for both when the sync point stays on one queue.
// For an ownership transfer the release half drops the destination access
// mask and the acquire half drops the source access mask, matching what the
// specification requires of the two sides of the pair.
func (c *CommandBuffer) CmdImageBarrier(sp *SyncPoint, img vk.Image, srcFamily, dstFamily uint32, release bool) {
	var barrier = vk.ImageMemoryBarrier{}
	barrier.SType = vk.StructureTypeImageMemoryBarrier
	barrier.OldLayout = sp.OldLayout
	barrier.NewLayout = sp.NewLayout
	barrier.SrcQueueFamilyIndex = srcFamily
	barrier.DstQueueFamilyIndex = dstFamily
	barrier.Image = img
	barrier.SubresourceRange.AspectMask = vk.ImageAspectFlags(vk.ImageAspectColorBit)
	barrier.SubresourceRange.BaseMipLevel = 0
	barrier.SubresourceRange.LevelCount = 1
	barrier.SubresourceRange.BaseArrayLayer = 0
	barrier.SubresourceRange.LayerCount = 1
	barrier.SrcAccessMask = sp.SrcAccess
	barrier.DstAccessMask = sp.DstAccess

	srcStages := sp.SrcStages
	dstStages := sp.DstStages
	if srcFamily != dstFamily {
		if release {
			barrier.DstAccessMask = 0
			dstStages = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
		} else {
			barrier.SrcAccessMask = 0
			srcStages = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		}
	}

	vk.CmdPipelineBarrier(c.VKCommandBuffer, srcStages, dstStages, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// CmdBufferBarrier records a buffer memory barrier for a derived SyncPoint,
// covering the whole buffer. Sub-range tracking is deliberately not done;
// the graph reasons about whole resources.
func (c *CommandBuffer) CmdBufferBarrier(sp *SyncPoint, buf vk.Buffer, size uint64, srcFamily, dstFamily uint32, release bool) {
	var barrier = vk.BufferMemoryBarrier{}
	barrier.SType = vk.StructureTypeBufferMemoryBarrier
	barrier.SrcQueueFamilyIndex = srcFamily
	barrier.DstQueueFamilyIndex = dstFamily
	barrier.Buffer = buf
	barrier.Offset = 0
	barrier.Size = vk.DeviceSize(size)
	barrier.SrcAccessMask = sp.SrcAccess
	barrier.DstAccessMask = sp.DstAccess

	srcStages := sp.SrcStages
	dstStages := sp.DstStages
	if srcFamily != dstFamily {
		if release {
			barrier.DstAccessMask = 0
			dstStages = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
		} else {
			barrier.SrcAccessMask = 0
			srcStages = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		}
	}

	vk.CmdPipelineBarrier(c.VKCommandBuffer, srcStages, dstStages, 0, 0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)
}

// CmdGlobalBarrier records a plain memory barrier with the SyncPoint's
// masks, for sync points with no physical resource attached.
func (c *CommandBuffer) CmdGlobalBarrier(sp *SyncPoint) {
	var barrier = vk.MemoryBarrier{}
	barrier.SType = vk.StructureTypeMemoryBarrier
	barrier.SrcAccessMask = sp.SrcAccess
	barrier.DstAccessMask = sp.DstAccess

	vk.CmdPipelineBarrier(c.VKCommandBuffer, sp.SrcStages, sp.DstStages, 0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
}

// CmdCopyBuffer copies a region between two buffers.
func (c *CommandBuffer) CmdCopyBuffer(src, dst vk.Buffer, size uint64) {
	vk.CmdCopyBuffer(c.VKCommandBuffer, src, dst, 1, []vk.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: vk.DeviceSize(size)},
	})
}

// CmdCopyImageToBuffer copies the full color plane of a tightly packed 2d
// image into a buffer at the given offset. The image must be in the transfer
// source layout.
func (c *CommandBuffer) CmdCopyImageToBuffer(img vk.Image, layout vk.ImageLayout, buf vk.Buffer, bufOffset uint64, width, height int) {
	region := vk.BufferImageCopy{
		BufferOffset: vk.DeviceSize(bufOffset),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{
			Width:  uint32(width),
			Height: uint32(height),
			Depth:  1,
		},
	}

	vk.CmdCopyImageToBuffer(c.VKCommandBuffer, img, layout, buf, 1, []vk.BufferImageCopy{region})
}

// CmdClearColorImage clears an image to a solid color. The image must be in
// the transfer destination layout, which a TransferDst access declares.
func (c *CommandBuffer) CmdClearColorImage(img vk.Image, layout vk.ImageLayout, r, g, b, a float32) {
	clear := vk.ClearColorValue{}
	*(*[4]float32)(unsafe.Pointer(&clear)) = [4]float32{r, g, b, a}

	vk.CmdClearColorImage(c.VKCommandBuffer, img, layout, &clear, 1, []vk.ImageSubresourceRange{
		{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	})
}

func (c *CommandBuffer) CmdDispatch(x, y, z int) {
	vk.CmdDispatch(c.VKCommandBuffer, uint32(x), uint32(y), uint32(z))
}

func (c *CommandBuffer) CmdBindComputePipeline(p vk.Pipeline) {
	vk.CmdBindPipeline(c.VKCommandBuffer, vk.PipelineBindPointCompute, p)
}

func (c *CommandBuffer) CmdPushConstants(layout vk.PipelineLayout, stages vk.ShaderStageFlags, data []byte) {
	vk.CmdPushConstants(c.VKCommandBuffer, layout, stages, 0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (c *CommandBuffer) CmdBindComputeDescriptorSets(layout vk.PipelineLayout, sets ...*DescriptorSet) {
	ds := make([]vk.DescriptorSet, len(sets))
	for i := range sets {
		ds[i] = sets[i].VKDescriptorSet
	}
	vk.CmdBindDescriptorSets(c.VKCommandBuffer, vk.PipelineBindPointCompute, layout, 0, uint32(len(ds)), ds, 0, nil)
}

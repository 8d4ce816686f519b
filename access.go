package vulcany

import (
	vk "github.com/vulkan-go/vulkan"
)

// Access declares how a pass touches one resource: the access mode, the
// pipeline stages doing the touching, the memory access mask those stages
// use, and for images the layout the pass needs the image in.
type Access struct {
	Resource ResourceID
	Mode     AccessMode
	Stages   vk.PipelineStageFlags
	Mask     vk.AccessFlags
	Layout   vk.ImageLayout
}

// The functions below are a convenience layer over Access. They fill in the
// stage, mask and layout combinations that cover the common cases, and do
// nothing the caller could not write out by hand.

// ColorWrite declares an image as a color attachment written by the pass.
func ColorWrite(id ResourceID) Access {
	return Access{
		Resource: id,
		Mode:     Write,
		Stages:   vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		Mask:     vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		Layout:   vk.ImageLayoutColorAttachmentOptimal,
	}
}

// DepthWrite declares an image as a depth attachment written by the pass.
func DepthWrite(id ResourceID) Access {
	return Access{
		Resource: id,
		Mode:     ReadWrite,
		Stages:   vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
		Mask:     vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
		Layout:   vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
}

// SampledRead declares an image sampled by shaders at the given stages.
func SampledRead(id ResourceID, stages vk.PipelineStageFlags) Access {
	return Access{
		Resource: id,
		Mode:     Read,
		Stages:   stages,
		Mask:     vk.AccessFlags(vk.AccessShaderReadBit),
		Layout:   vk.ImageLayoutShaderReadOnlyOptimal,
	}
}

// StorageImageWrite declares an image written as a storage image from a
// compute shader.
func StorageImageWrite(id ResourceID) Access {
	return Access{
		Resource: id,
		Mode:     Write,
		Stages:   vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		Mask:     vk.AccessFlags(vk.AccessShaderWriteBit),
		Layout:   vk.ImageLayoutGeneral,
	}
}

// StorageRead declares a buffer read from a compute shader.
func StorageRead(id ResourceID) Access {
	return Access{
		Resource: id,
		Mode:     Read,
		Stages:   vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		Mask:     vk.AccessFlags(vk.AccessShaderReadBit),
	}
}

// StorageWrite declares a buffer written from a compute shader.
func StorageWrite(id ResourceID) Access {
	return Access{
		Resource: id,
		Mode:     Write,
		Stages:   vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		Mask:     vk.AccessFlags(vk.AccessShaderWriteBit),
	}
}

// StorageReadWrite declares a buffer both read and written from a compute
// shader.
func StorageReadWrite(id ResourceID) Access {
	return Access{
		Resource: id,
		Mode:     ReadWrite,
		Stages:   vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		Mask:     vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
	}
}

// TransferSrc declares a resource as the source of a transfer operation.
func TransferSrc(id ResourceID) Access {
	return Access{
		Resource: id,
		Mode:     Read,
		Stages:   vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		Mask:     vk.AccessFlags(vk.AccessTransferReadBit),
		Layout:   vk.ImageLayoutTransferSrcOptimal,
	}
}

// TransferDst declares a resource as the destination of a transfer
// operation.
func TransferDst(id ResourceID) Access {
	return Access{
		Resource: id,
		Mode:     Write,
		Stages:   vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		Mask:     vk.AccessFlags(vk.AccessTransferWriteBit),
		Layout:   vk.ImageLayoutTransferDstOptimal,
	}
}

// Present declares an image read by the presentation engine. A pass with
// this access typically records nothing; it exists so the graph transitions
// the image to the present layout before the cycle hands it off.
func Present(id ResourceID) Access {
	return Access{
		Resource: id,
		Mode:     Read,
		Stages:   vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		Layout:   vk.ImageLayoutPresentSrc,
	}
}

// VertexRead declares a buffer read as a vertex or index source.
func VertexRead(id ResourceID) Access {
	return Access{
		Resource: id,
		Mode:     Read,
		Stages:   vk.PipelineStageFlags(vk.PipelineStageVertexInputBit),
		Mask:     vk.AccessFlags(vk.AccessVertexAttributeReadBit | vk.AccessIndexReadBit),
	}
}

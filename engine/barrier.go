package engine

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// barrierMasks are the synchronization scopes of one image layout transition.
type barrierMasks struct {
	srcStage  vk.PipelineStageFlagBits
	dstStage  vk.PipelineStageFlagBits
	srcAccess vk.AccessFlagBits
	dstAccess vk.AccessFlagBits
}

// transitionMasks returns the stages and accesses to synchronize for the
// layout transitions the frame needs. Anything else is an error.
func transitionMasks(from, to vk.ImageLayout) (barrierMasks, error) {
	switch {
	case from == vk.ImageLayoutUndefined && to == vk.ImageLayoutGeneral:
		// The draw image may still be read by a blit of an earlier frame.
		return barrierMasks{
			srcStage:  vk.PipelineStageTransferBit,
			dstStage:  vk.PipelineStageComputeShaderBit,
			dstAccess: vk.AccessShaderWriteBit,
		}, nil

	case from == vk.ImageLayoutGeneral && to == vk.ImageLayoutTransferSrcOptimal:
		return barrierMasks{
			srcStage:  vk.PipelineStageComputeShaderBit,
			dstStage:  vk.PipelineStageTransferBit,
			srcAccess: vk.AccessShaderWriteBit,
			dstAccess: vk.AccessTransferReadBit,
		}, nil

	case from == vk.ImageLayoutTransferSrcOptimal && to == vk.ImageLayoutGeneral:
		return barrierMasks{
			srcStage:  vk.PipelineStageTransferBit,
			dstStage:  vk.PipelineStageComputeShaderBit,
			srcAccess: vk.AccessTransferReadBit,
			dstAccess: vk.AccessShaderWriteBit,
		}, nil

	case from == vk.ImageLayoutUndefined && to == vk.ImageLayoutTransferDstOptimal:
		return barrierMasks{
			srcStage:  vk.PipelineStageTopOfPipeBit,
			dstStage:  vk.PipelineStageTransferBit,
			dstAccess: vk.AccessTransferWriteBit,
		}, nil

	case from == vk.ImageLayoutTransferDstOptimal && to == vk.ImageLayoutPresentSrc:
		return barrierMasks{
			srcStage:  vk.PipelineStageTransferBit,
			dstStage:  vk.PipelineStageBottomOfPipeBit,
			srcAccess: vk.AccessTransferWriteBit,
		}, nil
	}

	return barrierMasks{}, errors.Newf("unsupported layout transition %d -> %d", from, to)
}

// recordTransition records a pipeline barrier moving a color image from one
// layout to another.
func recordTransition(cmd vk.CommandBuffer, image vk.Image, from, to vk.ImageLayout, masks barrierMasks) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange:    colorSubresourceRange(),
		SrcAccessMask:       vk.AccessFlags(masks.srcAccess),
		DstAccessMask:       vk.AccessFlags(masks.dstAccess),
	}

	vk.CmdPipelineBarrier(
		cmd,
		vk.PipelineStageFlags(masks.srcStage),
		vk.PipelineStageFlags(masks.dstStage),
		0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{barrier},
	)
}

func colorSubresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

// trackedLayout remembers the layout an image was last transitioned to so
// transitions never guess their old layout.
type trackedLayout struct {
	current vk.ImageLayout
}

// next validates a transition to the given layout and commits it. It
// returns the barrier the transition needs.
func (l *trackedLayout) next(to vk.ImageLayout) (from vk.ImageLayout, masks barrierMasks, err error) {
	from = l.current
	masks, err = transitionMasks(from, to)
	if err != nil {
		return from, masks, err
	}
	l.current = to
	return from, masks, nil
}

func (l *trackedLayout) transition(cmd vk.CommandBuffer, image vk.Image, to vk.ImageLayout) error {
	from, masks, err := l.next(to)
	if err != nil {
		return err
	}
	recordTransition(cmd, image, from, to, masks)
	return nil
}

// discard forgets the contents. The next transition starts from Undefined.
func (l *trackedLayout) discard() {
	l.current = vk.ImageLayoutUndefined
}

// blitRegion covers the whole of src and the whole of dst, scaling between
// them when the extents differ.
func blitRegion(src, dst vk.Extent2D) vk.ImageBlit {
	layers := vk.ImageSubresourceLayers{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		MipLevel:       0,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}

	return vk.ImageBlit{
		SrcSubresource: layers,
		SrcOffsets: [2]vk.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: int32(src.Width), Y: int32(src.Height), Z: 1},
		},
		DstSubresource: layers,
		DstOffsets: [2]vk.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: int32(dst.Width), Y: int32(dst.Height), Z: 1},
		},
	}
}

// recordBlit copies src, which must be in TransferSrc layout, onto dst in
// TransferDst layout with linear filtering.
func recordBlit(cmd vk.CommandBuffer, src, dst vk.Image, srcExtent, dstExtent vk.Extent2D) {
	vk.CmdBlitImage(
		cmd,
		src, vk.ImageLayoutTransferSrcOptimal,
		dst, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{blitRegion(srcExtent, dstExtent)},
		vk.FilterLinear,
	)
}

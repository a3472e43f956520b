package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// CreateImage creates a single-mip 2D image with memory bound to it.
func (vc *VulkanContext) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, gpu.DeviceMemory, error) {
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1, // TODO: Support configurable depth.
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        vk.Format(info.Format),
		Tiling:        vk.ImageTiling(info.Tiling),
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}

	var image vk.Image
	if err := checkResult(vk.CreateImage(vc.Device.LogicalDevice, &imageInfo, vc.Allocator, &image), "vkCreateImage"); err != nil {
		return 0, 0, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(vc.Device.LogicalDevice, image, &requirements)

	allocation, err := vc.allocate(requirements, info.Properties)
	if err != nil {
		vk.DestroyImage(vc.Device.LogicalDevice, image, vc.Allocator)
		return 0, 0, errors.Wrapf(err, "image %dx%d", info.Extent.Width, info.Extent.Height)
	}

	if err := checkResult(vk.BindImageMemory(vc.Device.LogicalDevice, image, allocation.handle, 0), "vkBindImageMemory"); err != nil {
		vk.FreeMemory(vc.Device.LogicalDevice, allocation.handle, vc.Allocator)
		vk.DestroyImage(vc.Device.LogicalDevice, image, vc.Allocator)
		return 0, 0, err
	}

	return gpu.Image(vc.handles.put(image)), gpu.DeviceMemory(vc.handles.put(allocation)), nil
}

func (vc *VulkanContext) DestroyImage(img gpu.Image, mem gpu.DeviceMemory) {
	if image := lookup[vk.Image](vc.handles, uint64(img)); image != nil {
		vk.DestroyImage(vc.Device.LogicalDevice, image, vc.Allocator)
		vc.handles.drop(uint64(img))
	}
	vc.freeMemory(mem)
}

func (vc *VulkanContext) CreateImageView(img gpu.Image, format gpu.Format, aspect gpu.ImageAspectFlags) (gpu.ImageView, error) {
	image, err := mustLookup[vk.Image](vc.handles, uint64(img), "image")
	if err != nil {
		return 0, err
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var view vk.ImageView
	if err := checkResult(vk.CreateImageView(vc.Device.LogicalDevice, &viewInfo, vc.Allocator, &view), "vkCreateImageView"); err != nil {
		return 0, err
	}
	return gpu.ImageView(vc.handles.put(view)), nil
}

func (vc *VulkanContext) DestroyImageView(v gpu.ImageView) {
	if view := lookup[vk.ImageView](vc.handles, uint64(v)); view != nil {
		vk.DestroyImageView(vc.Device.LogicalDevice, view, vc.Allocator)
		vc.handles.drop(uint64(v))
	}
}

// CreateSampler creates a repeating sampler. Anisotropy is enabled when
// info asks for more than one sample and clamped to the device limit.
func (vc *VulkanContext) CreateSampler(info gpu.SamplerCreateInfo) (gpu.Sampler, error) {
	maxAnisotropy := info.MaxAnisotropy
	if limit := vc.Limits().MaxSamplerAnisotropy; maxAnisotropy > limit {
		maxAnisotropy = limit
	}

	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.Filter(info.MagFilter),
		MinFilter:               vk.Filter(info.MinFilter),
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        boolToVk(maxAnisotropy > 1),
		MaxAnisotropy:           maxAnisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MipLodBias:              0,
		MinLod:                  0,
		MaxLod:                  0,
	}

	var sampler vk.Sampler
	if err := checkResult(vk.CreateSampler(vc.Device.LogicalDevice, &samplerInfo, vc.Allocator, &sampler), "vkCreateSampler"); err != nil {
		return 0, err
	}
	return gpu.Sampler(vc.handles.put(sampler)), nil
}

func (vc *VulkanContext) DestroySampler(s gpu.Sampler) {
	if sampler := lookup[vk.Sampler](vc.handles, uint64(s)); sampler != nil {
		vk.DestroySampler(vc.Device.LogicalDevice, sampler, vc.Allocator)
		vc.handles.drop(uint64(s))
	}
}

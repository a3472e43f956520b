package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

func (vc *VulkanContext) CreateDescriptorSetLayout(bindings []gpu.LayoutBinding) (gpu.DescriptorSetLayout, error) {
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		layoutBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}

	var layout vk.DescriptorSetLayout
	if err := checkResult(vk.CreateDescriptorSetLayout(vc.Device.LogicalDevice, &layoutInfo, vc.Allocator, &layout), "vkCreateDescriptorSetLayout"); err != nil {
		return 0, err
	}
	return gpu.DescriptorSetLayout(vc.handles.put(layout)), nil
}

func (vc *VulkanContext) DestroyDescriptorSetLayout(l gpu.DescriptorSetLayout) {
	if layout := lookup[vk.DescriptorSetLayout](vc.handles, uint64(l)); layout != nil {
		vk.DestroyDescriptorSetLayout(vc.Device.LogicalDevice, layout, vc.Allocator)
		vc.handles.drop(uint64(l))
	}
}

// descriptorPool is the table entry behind a gpu.DescriptorPool. It keeps
// the ids of the sets allocated from it so they can be released with it.
type descriptorPool struct {
	handle vk.DescriptorPool
	sets   map[gpu.DescriptorSet]struct{}
}

func (vc *VulkanContext) CreateDescriptorPool(info gpu.DescriptorPoolCreateInfo) (gpu.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, len(info.Sizes))
	for i, s := range info.Sizes {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(info.Flags),
		MaxSets:       info.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}

	var pool vk.DescriptorPool
	if err := checkResult(vk.CreateDescriptorPool(vc.Device.LogicalDevice, &poolInfo, vc.Allocator, &pool), "vkCreateDescriptorPool"); err != nil {
		return 0, err
	}
	return gpu.DescriptorPool(vc.handles.put(&descriptorPool{handle: pool, sets: map[gpu.DescriptorSet]struct{}{}})), nil
}

func (vc *VulkanContext) DestroyDescriptorPool(p gpu.DescriptorPool) {
	pool := lookup[*descriptorPool](vc.handles, uint64(p))
	if pool == nil {
		return
	}
	vc.releaseSets(pool)
	vk.DestroyDescriptorPool(vc.Device.LogicalDevice, pool.handle, vc.Allocator)
	vc.handles.drop(uint64(p))
}

func (vc *VulkanContext) releaseSets(pool *descriptorPool) {
	for set := range pool.sets {
		vc.handles.drop(uint64(set))
	}
	pool.sets = map[gpu.DescriptorSet]struct{}{}
}

func (vc *VulkanContext) AllocateDescriptorSet(p gpu.DescriptorPool, l gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	pool, err := mustLookup[*descriptorPool](vc.handles, uint64(p), "descriptor pool")
	if err != nil {
		return 0, err
	}
	layout, err := mustLookup[vk.DescriptorSetLayout](vc.handles, uint64(l), "descriptor set layout")
	if err != nil {
		return 0, err
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool.handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}

	var set vk.DescriptorSet
	err = vc.locks.SafeCall(DescriptorManagement, func() error {
		// Pool exhaustion is an expected outcome the caller handles.
		res := vk.AllocateDescriptorSets(vc.Device.LogicalDevice, &allocInfo, &set)
		if res == vk.ErrorOutOfPoolMemory || res == vk.ErrorFragmentedPool {
			return gpu.Result(res)
		}
		return checkResult(res, "vkAllocateDescriptorSets")
	})
	if err != nil {
		return 0, err
	}

	id := gpu.DescriptorSet(vc.handles.put(set))
	pool.sets[id] = struct{}{}
	return id, nil
}

func (vc *VulkanContext) FreeDescriptorSets(p gpu.DescriptorPool, sets []gpu.DescriptorSet) error {
	pool, err := mustLookup[*descriptorPool](vc.handles, uint64(p), "descriptor pool")
	if err != nil {
		return err
	}

	handles := make([]vk.DescriptorSet, 0, len(sets))
	for _, s := range sets {
		set, err := mustLookup[vk.DescriptorSet](vc.handles, uint64(s), "descriptor set")
		if err != nil {
			return err
		}
		handles = append(handles, set)
	}

	err = vc.locks.SafeCall(DescriptorManagement, func() error {
		return checkResult(vk.FreeDescriptorSets(vc.Device.LogicalDevice, pool.handle, uint32(len(handles)), handles), "vkFreeDescriptorSets")
	})
	if err != nil {
		return err
	}
	for _, s := range sets {
		delete(pool.sets, s)
		vc.handles.drop(uint64(s))
	}
	return nil
}

func (vc *VulkanContext) ResetDescriptorPool(p gpu.DescriptorPool) error {
	pool, err := mustLookup[*descriptorPool](vc.handles, uint64(p), "descriptor pool")
	if err != nil {
		return err
	}
	err = vc.locks.SafeCall(DescriptorManagement, func() error {
		return checkResult(vk.ResetDescriptorPool(vc.Device.LogicalDevice, pool.handle, 0), "vkResetDescriptorPool")
	})
	if err != nil {
		return err
	}
	vc.releaseSets(pool)
	return nil
}

func (vc *VulkanContext) UpdateDescriptorSets(writes []gpu.DescriptorWrite) {
	descriptorWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          lookup[vk.DescriptorSet](vc.handles, uint64(w.Set)),
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorType(w.Type),
			DescriptorCount: 1,
		}
		switch {
		case w.BufferInfo != nil:
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: lookup[vk.Buffer](vc.handles, uint64(w.BufferInfo.Buffer)),
				Offset: vk.DeviceSize(w.BufferInfo.Offset),
				Range:  vk.DeviceSize(w.BufferInfo.Range),
			}}
		case w.ImageInfo != nil:
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     lookup[vk.Sampler](vc.handles, uint64(w.ImageInfo.Sampler)),
				ImageView:   lookup[vk.ImageView](vc.handles, uint64(w.ImageInfo.View)),
				ImageLayout: vk.ImageLayout(w.ImageInfo.Layout),
			}}
		}
		descriptorWrites = append(descriptorWrites, write)
	}

	vc.locks.SafeDo(DescriptorManagement, func() {
		vk.UpdateDescriptorSets(vc.Device.LogicalDevice, uint32(len(descriptorWrites)), descriptorWrites, 0, nil)
	})
}

package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// memoryAllocation is the table entry behind a gpu.DeviceMemory.
type memoryAllocation struct {
	handle vk.DeviceMemory
	size   uint64
	mapped bool
}

func (vc *VulkanContext) allocate(requirements vk.MemoryRequirements, props gpu.MemoryPropertyFlags) (*memoryAllocation, error) {
	requirements.Deref()

	memoryIndex, err := vc.FindMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlags(props))
	if err != nil {
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryIndex,
	}

	var memory vk.DeviceMemory
	if err := checkResult(vk.AllocateMemory(vc.Device.LogicalDevice, &allocInfo, vc.Allocator, &memory), "vkAllocateMemory"); err != nil {
		return nil, err
	}
	return &memoryAllocation{handle: memory, size: uint64(requirements.Size)}, nil
}

func (vc *VulkanContext) CreateBuffer(size uint64, usage gpu.BufferUsageFlags, props gpu.MemoryPropertyFlags) (gpu.Buffer, gpu.DeviceMemory, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if err := checkResult(vk.CreateBuffer(vc.Device.LogicalDevice, &bufferInfo, vc.Allocator, &buffer), "vkCreateBuffer"); err != nil {
		return 0, 0, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(vc.Device.LogicalDevice, buffer, &requirements)

	allocation, err := vc.allocate(requirements, props)
	if err != nil {
		vk.DestroyBuffer(vc.Device.LogicalDevice, buffer, vc.Allocator)
		return 0, 0, errors.Wrapf(err, "buffer of %d bytes", size)
	}

	if err := checkResult(vk.BindBufferMemory(vc.Device.LogicalDevice, buffer, allocation.handle, 0), "vkBindBufferMemory"); err != nil {
		vk.FreeMemory(vc.Device.LogicalDevice, allocation.handle, vc.Allocator)
		vk.DestroyBuffer(vc.Device.LogicalDevice, buffer, vc.Allocator)
		return 0, 0, err
	}

	return gpu.Buffer(vc.handles.put(buffer)), gpu.DeviceMemory(vc.handles.put(allocation)), nil
}

func (vc *VulkanContext) DestroyBuffer(buf gpu.Buffer, mem gpu.DeviceMemory) {
	if buffer := lookup[vk.Buffer](vc.handles, uint64(buf)); buffer != nil {
		vk.DestroyBuffer(vc.Device.LogicalDevice, buffer, vc.Allocator)
		vc.handles.drop(uint64(buf))
	}
	vc.freeMemory(mem)
}

func (vc *VulkanContext) freeMemory(mem gpu.DeviceMemory) {
	if allocation := lookup[*memoryAllocation](vc.handles, uint64(mem)); allocation != nil {
		if allocation.mapped {
			vk.UnmapMemory(vc.Device.LogicalDevice, allocation.handle)
		}
		vk.FreeMemory(vc.Device.LogicalDevice, allocation.handle, vc.Allocator)
		vc.handles.drop(uint64(mem))
	}
}

func (vc *VulkanContext) MapMemory(mem gpu.DeviceMemory, offset, size uint64) ([]byte, error) {
	allocation, err := mustLookup[*memoryAllocation](vc.handles, uint64(mem), "memory")
	if err != nil {
		return nil, err
	}
	if size == gpu.WholeSize {
		size = allocation.size - offset
	}

	var data unsafe.Pointer
	err = vc.locks.SafeCall(MemoryManagement, func() error {
		return checkResult(vk.MapMemory(vc.Device.LogicalDevice, allocation.handle, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &data), "vkMapMemory")
	})
	if err != nil {
		return nil, err
	}
	allocation.mapped = true
	return unsafe.Slice((*byte)(data), size), nil
}

func (vc *VulkanContext) UnmapMemory(mem gpu.DeviceMemory) {
	if allocation := lookup[*memoryAllocation](vc.handles, uint64(mem)); allocation != nil && allocation.mapped {
		vk.UnmapMemory(vc.Device.LogicalDevice, allocation.handle)
		allocation.mapped = false
	}
}

func (vc *VulkanContext) memoryRange(mem gpu.DeviceMemory, offset, size uint64) ([]vk.MappedMemoryRange, error) {
	allocation, err := mustLookup[*memoryAllocation](vc.handles, uint64(mem), "memory")
	if err != nil {
		return nil, err
	}
	return []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: allocation.handle,
		Offset: vk.DeviceSize(offset),
		Size:   vk.DeviceSize(size),
	}}, nil
}

func (vc *VulkanContext) FlushMemory(mem gpu.DeviceMemory, offset, size uint64) error {
	ranges, err := vc.memoryRange(mem, offset, size)
	if err != nil {
		return err
	}
	return checkResult(vk.FlushMappedMemoryRanges(vc.Device.LogicalDevice, 1, ranges), "vkFlushMappedMemoryRanges")
}

func (vc *VulkanContext) InvalidateMemory(mem gpu.DeviceMemory, offset, size uint64) error {
	ranges, err := vc.memoryRange(mem, offset, size)
	if err != nil {
		return err
	}
	return checkResult(vk.InvalidateMappedMemoryRanges(vc.Device.LogicalDevice, 1, ranges), "vkInvalidateMappedMemoryRanges")
}

// Package buffer allocates GPU buffers holding a run of equally sized,
// aligned instances, typically one uniform block per frame in flight.
package buffer

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/math"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// Buffer is a device buffer divided into InstanceCount slots of
// AlignmentSize bytes each.
type Buffer struct {
	device gpu.BufferAllocator

	handle gpu.Buffer
	memory gpu.DeviceMemory
	mapped []byte

	bufferSize       uint64
	instanceCount    uint32
	instanceSize     uint64
	alignmentSize    uint64
	usageFlags       gpu.BufferUsageFlags
	memoryProperties gpu.MemoryPropertyFlags
}

// Alignment returns the smallest multiple of minOffsetAlignment that can
// hold instanceSize bytes. An alignment of 0 or 1 returns instanceSize.
func Alignment(instanceSize, minOffsetAlignment uint64) uint64 {
	return math.AlignUp(instanceSize, minOffsetAlignment)
}

// limitsSource is implemented by devices that report their limits.
type limitsSource interface {
	Limits() gpu.Limits
}

// New creates a buffer of instanceCount slots. The allocation fails when the
// device has no memory type matching memoryProperties. Slots of host-visible,
// non-coherent memory are also aligned to the device's non-coherent atom
// size so FlushIndex and InvalidateIndex cover whole atoms.
func New(
	device gpu.BufferAllocator,
	instanceSize uint64,
	instanceCount uint32,
	usageFlags gpu.BufferUsageFlags,
	memoryProperties gpu.MemoryPropertyFlags,
	minOffsetAlignment uint64,
) (*Buffer, error) {
	core.Assert(instanceSize > 0, "buffer: instance size must be positive")
	core.Assert(instanceCount > 0, "buffer: instance count must be positive")

	alignment := minOffsetAlignment
	nonCoherent := memoryProperties&gpu.MemoryPropertyHostVisible != 0 &&
		memoryProperties&gpu.MemoryPropertyHostCoherent == 0
	if l, ok := device.(limitsSource); ok && nonCoherent {
		alignment = math.LCM(alignment, l.Limits().NonCoherentAtomSize)
	}

	b := &Buffer{
		device:           device,
		instanceCount:    instanceCount,
		instanceSize:     instanceSize,
		alignmentSize:    Alignment(instanceSize, alignment),
		usageFlags:       usageFlags,
		memoryProperties: memoryProperties,
	}
	b.bufferSize = b.alignmentSize * uint64(instanceCount)

	handle, memory, err := device.CreateBuffer(b.bufferSize, usageFlags, memoryProperties)
	if err != nil {
		err = errors.Wrapf(err, "failed to create buffer of %d bytes", b.bufferSize)
		core.LogError("%s", err)
		return nil, err
	}
	b.handle = handle
	b.memory = memory
	return b, nil
}

// Map maps the whole allocation for host access.
func (b *Buffer) Map() error {
	return b.MapRange(gpu.WholeSize, 0)
}

// MapRange maps size bytes starting at offset. gpu.WholeSize maps the
// remainder of the buffer.
func (b *Buffer) MapRange(size, offset uint64) error {
	core.Assert(b.handle != 0 && b.memory != 0, "buffer: map called before create")
	core.Assert(b.mapped == nil, "buffer: already mapped")
	data, err := b.device.MapMemory(b.memory, offset, size)
	if err != nil {
		return errors.Wrap(err, "failed to map buffer memory")
	}
	b.mapped = data
	return nil
}

// Unmap releases the host mapping. It is a no-op on unmapped buffers.
func (b *Buffer) Unmap() {
	if b.mapped != nil {
		b.device.UnmapMemory(b.memory)
		b.mapped = nil
	}
}

// WriteToBuffer copies data to the start of the mapped region.
func (b *Buffer) WriteToBuffer(data []byte) {
	b.WriteAt(data, gpu.WholeSize, 0)
}

// WriteAt copies size bytes of data to offset within the mapped region.
// gpu.WholeSize copies all of data.
func (b *Buffer) WriteAt(data []byte, size, offset uint64) {
	core.Assert(b.mapped != nil, "buffer: cannot copy to unmapped buffer")
	if size == gpu.WholeSize {
		size = uint64(len(data))
	}
	core.Assertf(size <= uint64(len(data)), "buffer: write of %d bytes from %d byte source", size, len(data))
	core.Assertf(offset+size <= uint64(len(b.mapped)), "buffer: write of %d bytes at %d overruns %d byte mapping", size, offset, len(b.mapped))
	copy(b.mapped[offset:offset+size], data[:size])
}

// Flush makes host writes in the range visible to the device.
func (b *Buffer) Flush(size, offset uint64) error {
	return b.device.FlushMemory(b.memory, offset, size)
}

// Invalidate makes device writes in the range visible to the host.
func (b *Buffer) Invalidate(size, offset uint64) error {
	return b.device.InvalidateMemory(b.memory, offset, size)
}

// DescriptorInfo describes size bytes at offset for a descriptor write.
func (b *Buffer) DescriptorInfo(size, offset uint64) gpu.DescriptorBufferInfo {
	return gpu.DescriptorBufferInfo{
		Buffer: b.handle,
		Offset: offset,
		Range:  size,
	}
}

func (b *Buffer) indexOffset(index uint32) uint64 {
	core.Assertf(index < b.instanceCount, "buffer: index %d out of range (count=%d)", index, b.instanceCount)
	return uint64(index) * b.alignmentSize
}

// WriteToIndex copies one instance worth of data into slot index.
func (b *Buffer) WriteToIndex(data []byte, index uint32) {
	b.WriteAt(data, b.instanceSize, b.indexOffset(index))
}

func (b *Buffer) FlushIndex(index uint32) error {
	return b.Flush(b.alignmentSize, b.indexOffset(index))
}

// DescriptorInfoForIndex describes slot index. The range is the logical
// instance size, not the padded one.
func (b *Buffer) DescriptorInfoForIndex(index uint32) gpu.DescriptorBufferInfo {
	return b.DescriptorInfo(b.instanceSize, b.indexOffset(index))
}

func (b *Buffer) InvalidateIndex(index uint32) error {
	return b.Invalidate(b.alignmentSize, b.indexOffset(index))
}

// Destroy unmaps and frees the buffer.
func (b *Buffer) Destroy() {
	if b.handle == 0 {
		return
	}
	b.Unmap()
	b.device.DestroyBuffer(b.handle, b.memory)
	b.handle = 0
	b.memory = 0
}

func (b *Buffer) Handle() gpu.Buffer                           { return b.handle }
func (b *Buffer) Mapped() []byte                               { return b.mapped }
func (b *Buffer) InstanceCount() uint32                        { return b.instanceCount }
func (b *Buffer) InstanceSize() uint64                         { return b.instanceSize }
func (b *Buffer) AlignmentSize() uint64                        { return b.alignmentSize }
func (b *Buffer) BufferSize() uint64                           { return b.bufferSize }
func (b *Buffer) UsageFlags() gpu.BufferUsageFlags             { return b.usageFlags }
func (b *Buffer) MemoryPropertyFlags() gpu.MemoryPropertyFlags { return b.memoryProperties }

// Bytes views a plain value as its in-memory bytes. T must not contain
// pointers, slices or strings.
func Bytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

// SliceBytes views a slice of plain values as bytes.
func SliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), uintptr(len(s))*unsafe.Sizeof(zero))
}

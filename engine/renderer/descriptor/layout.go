// Package descriptor builds descriptor set layouts and pools, and writes
// buffer and image references into descriptor sets.
package descriptor

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

/**
 * @brief An immutable description of the bindings of a descriptor set,
 * together with the device layout built from it.
 */
type SetLayout struct {
	device   gpu.DescriptorAllocator
	handle   gpu.DescriptorSetLayout
	bindings map[uint32]gpu.LayoutBinding
}

/**
 * @brief Accumulates bindings until Build is called. A builder can only
 * be built once.
 */
type SetLayoutBuilder struct {
	device   gpu.DescriptorAllocator
	bindings map[uint32]gpu.LayoutBinding
	built    bool
}

func NewSetLayoutBuilder(device gpu.DescriptorAllocator) *SetLayoutBuilder {
	return &SetLayoutBuilder{
		device:   device,
		bindings: make(map[uint32]gpu.LayoutBinding),
	}
}

/**
 * @brief Declares a binding slot.
 * @param binding The binding index, unique within the layout.
 * @param kind The descriptor type stored in the slot.
 * @param stages The shader stages that read the slot.
 * @param count The number of array elements. Zero is treated as one.
 * @returns ErrDuplicateBinding if the index is already declared.
 */
func (b *SetLayoutBuilder) AddBinding(binding uint32, kind gpu.DescriptorType, stages gpu.ShaderStageFlags, count uint32) error {
	if b.built {
		return core.ErrBuilderFrozen
	}
	if _, ok := b.bindings[binding]; ok {
		return errors.Wrapf(core.ErrDuplicateBinding, "binding %d", binding)
	}
	if count == 0 {
		count = 1
	}
	b.bindings[binding] = gpu.LayoutBinding{
		Binding: binding,
		Type:    kind,
		Stages:  stages,
		Count:   count,
	}
	return nil
}

// Build creates the device layout. The builder is frozen afterwards.
func (b *SetLayoutBuilder) Build() (*SetLayout, error) {
	if b.built {
		return nil, core.ErrBuilderFrozen
	}
	list := make([]gpu.LayoutBinding, 0, len(b.bindings))
	for _, lb := range b.bindings {
		list = append(list, lb)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Binding < list[j].Binding })

	handle, err := b.device.CreateDescriptorSetLayout(list)
	if err != nil {
		err = errors.Wrap(err, "failed to create descriptor set layout")
		core.LogError("%s", err)
		return nil, err
	}
	b.built = true
	return &SetLayout{
		device:   b.device,
		handle:   handle,
		bindings: b.bindings,
	}, nil
}

func (l *SetLayout) Handle() gpu.DescriptorSetLayout {
	return l.handle
}

// Binding returns the declaration of slot binding.
func (l *SetLayout) Binding(binding uint32) (gpu.LayoutBinding, bool) {
	lb, ok := l.bindings[binding]
	return lb, ok
}

func (l *SetLayout) Destroy() {
	if l.handle != 0 {
		l.device.DestroyDescriptorSetLayout(l.handle)
		l.handle = 0
	}
}

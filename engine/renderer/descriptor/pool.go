package descriptor

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

const defaultMaxSets = 1000

/**
 * @brief A fixed capacity pool from which descriptor sets are allocated.
 */
type Pool struct {
	device gpu.DescriptorAllocator
	handle gpu.DescriptorPool
	info   gpu.DescriptorPoolCreateInfo
}

type PoolBuilder struct {
	device gpu.DescriptorAllocator
	info   gpu.DescriptorPoolCreateInfo
	built  bool
}

func NewPoolBuilder(device gpu.DescriptorAllocator) *PoolBuilder {
	return &PoolBuilder{
		device: device,
		info:   gpu.DescriptorPoolCreateInfo{MaxSets: defaultMaxSets},
	}
}

// AddPoolSize reserves count descriptors of kind.
func (b *PoolBuilder) AddPoolSize(kind gpu.DescriptorType, count uint32) *PoolBuilder {
	b.info.Sizes = append(b.info.Sizes, gpu.PoolSize{Type: kind, Count: count})
	return b
}

func (b *PoolBuilder) SetPoolFlags(flags gpu.DescriptorPoolCreateFlags) *PoolBuilder {
	b.info.Flags = flags
	return b
}

func (b *PoolBuilder) SetMaxSets(count uint32) *PoolBuilder {
	b.info.MaxSets = count
	return b
}

// Build allocates the pool at exactly the declared capacity.
func (b *PoolBuilder) Build() (*Pool, error) {
	if b.built {
		return nil, core.ErrBuilderFrozen
	}
	handle, err := b.device.CreateDescriptorPool(b.info)
	if err != nil {
		err = errors.Wrap(err, "failed to create descriptor pool")
		core.LogError("%s", err)
		return nil, err
	}
	b.built = true
	return &Pool{
		device: b.device,
		handle: handle,
		info:   b.info,
	}, nil
}

/**
 * @brief Allocates one set for layout.
 * @returns ErrPoolExhausted (wrapping the device result) when the pool
 * cannot hold another set of this layout. The caller may retry on a new pool.
 */
func (p *Pool) Allocate(layout *SetLayout) (gpu.DescriptorSet, error) {
	set, err := p.device.AllocateDescriptorSet(p.handle, layout.Handle())
	if err != nil {
		if errors.Is(err, gpu.ErrorOutOfPoolMemory) || errors.Is(err, gpu.ErrorFragmentedPool) {
			return 0, errors.Mark(errors.Wrapf(err, "pool %d", p.handle), core.ErrPoolExhausted)
		}
		return 0, errors.Wrap(err, "failed to allocate descriptor set")
	}
	return set, nil
}

// Free returns sets to the pool. The pool must have been built with
// gpu.DescriptorPoolCreateFreeDescriptorSet.
func (p *Pool) Free(sets ...gpu.DescriptorSet) error {
	if len(sets) == 0 {
		return nil
	}
	return p.device.FreeDescriptorSets(p.handle, sets)
}

// Reset returns every set allocated from the pool.
func (p *Pool) Reset() error {
	return p.device.ResetDescriptorPool(p.handle)
}

func (p *Pool) Handle() gpu.DescriptorPool {
	return p.handle
}

func (p *Pool) MaxSets() uint32 {
	return p.info.MaxSets
}

func (p *Pool) Destroy() {
	if p.handle != 0 {
		p.device.DestroyDescriptorPool(p.handle)
		p.handle = 0
	}
}

package gputest

import (
	"fmt"

	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.LayoutBinding) (gpu.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[uint32]bool)
	for _, b := range bindings {
		if seen[b.Binding] {
			return 0, fmt.Errorf("binding %d declared twice", b.Binding)
		}
		seen[b.Binding] = true
	}
	l := gpu.DescriptorSetLayout(d.alloc(KindSetLayout))
	d.layouts[l] = append([]gpu.LayoutBinding(nil), bindings...)
	return l, nil
}

func (d *Device) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.layouts, layout)
	d.release(uint64(layout), KindSetLayout)
}

func (d *Device) CreateDescriptorPool(info gpu.DescriptorPoolCreateInfo) (gpu.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.MaxSets == 0 {
		return 0, fmt.Errorf("descriptor pool with zero max sets")
	}
	p := gpu.DescriptorPool(d.alloc(KindPool))
	d.pools[p] = &poolState{
		info: info,
		sets: make(map[gpu.DescriptorSet]gpu.DescriptorSetLayout),
		used: make(map[gpu.DescriptorType]uint32),
	}
	return p, nil
}

func (d *Device) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pools[pool]; ok {
		d.dropSets(p)
		delete(d.pools, pool)
	}
	d.release(uint64(pool), KindPool)
}

func (d *Device) dropSets(p *poolState) {
	for s := range p.sets {
		delete(d.setPool, s)
		d.release(uint64(s), KindSetInstance)
	}
	p.sets = make(map[gpu.DescriptorSet]gpu.DescriptorSetLayout)
	p.used = make(map[gpu.DescriptorType]uint32)
}

func capacity(info gpu.DescriptorPoolCreateInfo, t gpu.DescriptorType) uint32 {
	var n uint32
	for _, s := range info.Sizes {
		if s.Type == t {
			n += s.Count
		}
	}
	return n
}

// AllocateDescriptorSet enforces both the set count and the per type
// descriptor budget of the pool.
func (d *Device) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[pool]
	if !ok {
		return 0, fmt.Errorf("allocate from unknown pool %d", pool)
	}
	bindings, ok := d.layouts[layout]
	if !ok {
		return 0, fmt.Errorf("allocate with unknown layout %d", layout)
	}
	if uint32(len(p.sets)) >= p.info.MaxSets {
		return 0, gpu.ErrorOutOfPoolMemory
	}
	need := make(map[gpu.DescriptorType]uint32)
	for _, b := range bindings {
		need[b.Type] += b.Count
	}
	for t, n := range need {
		if p.used[t]+n > capacity(p.info, t) {
			return 0, gpu.ErrorOutOfPoolMemory
		}
	}
	for t, n := range need {
		p.used[t] += n
	}
	s := gpu.DescriptorSet(d.alloc(KindSetInstance))
	p.sets[s] = layout
	d.setPool[s] = pool
	return s, nil
}

func (d *Device) FreeDescriptorSets(pool gpu.DescriptorPool, sets []gpu.DescriptorSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[pool]
	if !ok {
		return fmt.Errorf("free into unknown pool %d", pool)
	}
	if p.info.Flags&gpu.DescriptorPoolCreateFreeDescriptorSet == 0 {
		return fmt.Errorf("pool %d was not created with the free descriptor set flag", pool)
	}
	for _, s := range sets {
		layout, ok := p.sets[s]
		if !ok {
			d.violate("set %d freed into pool %d that does not own it", s, pool)
			continue
		}
		for _, b := range d.layouts[layout] {
			p.used[b.Type] -= b.Count
		}
		delete(p.sets, s)
		delete(d.setPool, s)
		d.release(uint64(s), KindSetInstance)
	}
	return nil
}

func (d *Device) ResetDescriptorPool(pool gpu.DescriptorPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[pool]
	if !ok {
		return fmt.Errorf("reset of unknown pool %d", pool)
	}
	d.dropSets(p)
	return nil
}

func (d *Device) UpdateDescriptorSets(writes []gpu.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range writes {
		if _, ok := d.setPool[w.Set]; !ok {
			d.violate("write into unknown set %d", w.Set)
		}
		if (w.BufferInfo == nil) == (w.ImageInfo == nil) {
			d.violate("write to binding %d must carry exactly one resource", w.Binding)
		}
		d.Writes = append(d.Writes, w)
	}
}

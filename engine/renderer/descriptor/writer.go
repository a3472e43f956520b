package descriptor

import (
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

/**
 * @brief Collects resource references for the bindings of one layout and
 * writes them into a set in a single batch.
 */
type Writer struct {
	layout *SetLayout
	pool   *Pool
	writes []gpu.DescriptorWrite
}

func NewWriter(layout *SetLayout, pool *Pool) *Writer {
	return &Writer{layout: layout, pool: pool}
}

func (w *Writer) checkBinding(binding uint32) gpu.LayoutBinding {
	lb, ok := w.layout.Binding(binding)
	core.Assertf(ok, "descriptor: layout does not contain binding %d", binding)
	core.Assertf(lb.Count == 1, "descriptor: binding %d expects %d descriptors, single writes only", binding, lb.Count)
	return lb
}

// WriteBuffer points binding at a buffer range.
func (w *Writer) WriteBuffer(binding uint32, info gpu.DescriptorBufferInfo) *Writer {
	lb := w.checkBinding(binding)
	core.Assertf(!lb.Type.IsImage(), "descriptor: binding %d holds images, not buffers", binding)
	w.writes = append(w.writes, gpu.DescriptorWrite{
		Binding:    binding,
		Type:       lb.Type,
		BufferInfo: &info,
	})
	return w
}

// WriteImage points binding at an image view and/or sampler.
func (w *Writer) WriteImage(binding uint32, info gpu.DescriptorImageInfo) *Writer {
	lb := w.checkBinding(binding)
	core.Assertf(lb.Type.IsImage(), "descriptor: binding %d holds buffers, not images", binding)
	w.writes = append(w.writes, gpu.DescriptorWrite{
		Binding:   binding,
		Type:      lb.Type,
		ImageInfo: &info,
	})
	return w
}

// Build allocates a new set from the pool and writes the collected
// references into it. Pool exhaustion is returned as core.ErrPoolExhausted.
func (w *Writer) Build() (gpu.DescriptorSet, error) {
	set, err := w.pool.Allocate(w.layout)
	if err != nil {
		return 0, err
	}
	w.Overwrite(set)
	return set, nil
}

// Overwrite writes the collected references into an existing set.
func (w *Writer) Overwrite(set gpu.DescriptorSet) {
	writes := make([]gpu.DescriptorWrite, len(w.writes))
	for i, wr := range w.writes {
		wr.Set = set
		writes[i] = wr
	}
	w.pool.device.UpdateDescriptorSets(writes)
}

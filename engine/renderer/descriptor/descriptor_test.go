package descriptor

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu/gputest"
)

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	fn()
}

func uboSamplerLayout(t *testing.T, dev gpu.DescriptorAllocator) *SetLayout {
	t.Helper()
	b := NewSetLayoutBuilder(dev)
	if err := b.AddBinding(0, gpu.DescriptorTypeUniformBuffer, gpu.ShaderStageVertex, 1); err != nil {
		t.Fatal(err)
	}
	if err := b.AddBinding(1, gpu.DescriptorTypeCombinedImageSampler, gpu.ShaderStageFragment, 1); err != nil {
		t.Fatal(err)
	}
	l, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestSetLayoutBuilder(t *testing.T) {
	dev := gputest.NewDevice()
	b := NewSetLayoutBuilder(dev)
	if err := b.AddBinding(0, gpu.DescriptorTypeUniformBuffer, gpu.ShaderStageVertex, 1); err != nil {
		t.Fatal(err)
	}
	err := b.AddBinding(0, gpu.DescriptorTypeCombinedImageSampler, gpu.ShaderStageFragment, 1)
	if !errors.Is(err, core.ErrDuplicateBinding) {
		t.Fatalf("AddBinding duplicate:\nhave %v\nwant %v", err, core.ErrDuplicateBinding)
	}
	l, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	lb, ok := l.Binding(0)
	if !ok || lb.Type != gpu.DescriptorTypeUniformBuffer {
		t.Fatalf("Binding(0):\nhave %+v\nwant uniform buffer", lb)
	}
	if err := b.AddBinding(2, gpu.DescriptorTypeSampler, gpu.ShaderStageFragment, 1); !errors.Is(err, core.ErrBuilderFrozen) {
		t.Fatalf("AddBinding after Build:\nhave %v\nwant %v", err, core.ErrBuilderFrozen)
	}
	if _, err := b.Build(); !errors.Is(err, core.ErrBuilderFrozen) {
		t.Fatalf("Build twice:\nhave %v\nwant %v", err, core.ErrBuilderFrozen)
	}
	l.Destroy()
	if n := dev.LiveCount(gputest.KindSetLayout); n != 0 {
		t.Fatalf("Destroy: %d layouts live", n)
	}
}

func TestPoolExhaustion(t *testing.T) {
	dev := gputest.NewDevice()
	layout := uboSamplerLayout(t, dev)
	pool, err := NewPoolBuilder(dev).
		SetMaxSets(2).
		AddPoolSize(gpu.DescriptorTypeUniformBuffer, 2).
		AddPoolSize(gpu.DescriptorTypeCombinedImageSampler, 2).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()

	for i := 0; i < 2; i++ {
		if _, err := pool.Allocate(layout); err != nil {
			t.Fatalf("Allocate #%d: %v", i+1, err)
		}
	}
	_, err = pool.Allocate(layout)
	if !errors.Is(err, core.ErrPoolExhausted) {
		t.Fatalf("Allocate #3:\nhave %v\nwant %v", err, core.ErrPoolExhausted)
	}

	if err := pool.Reset(); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Allocate(layout); err != nil {
		t.Fatalf("Allocate after Reset: %v", err)
	}
}

func TestPoolTypeBudget(t *testing.T) {
	dev := gputest.NewDevice()
	layout := uboSamplerLayout(t, dev)
	pool, err := NewPoolBuilder(dev).
		SetMaxSets(10).
		AddPoolSize(gpu.DescriptorTypeUniformBuffer, 10).
		AddPoolSize(gpu.DescriptorTypeCombinedImageSampler, 1).
		SetPoolFlags(gpu.DescriptorPoolCreateFreeDescriptorSet).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	first, err := pool.Allocate(layout)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Allocate(layout); !errors.Is(err, core.ErrPoolExhausted) {
		t.Fatalf("Allocate beyond sampler budget:\nhave %v\nwant %v", err, core.ErrPoolExhausted)
	}
	if err := pool.Free(first); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Allocate(layout); err != nil {
		t.Fatalf("Allocate after Free: %v", err)
	}
	pool.Destroy()
	if n := dev.LiveCount(gputest.KindSetInstance); n != 0 {
		t.Fatalf("Destroy: %d sets live", n)
	}
}

func TestWriterBuild(t *testing.T) {
	dev := gputest.NewDevice()
	layout := uboSamplerLayout(t, dev)
	pool, err := NewPoolBuilder(dev).
		SetMaxSets(1).
		AddPoolSize(gpu.DescriptorTypeUniformBuffer, 1).
		AddPoolSize(gpu.DescriptorTypeCombinedImageSampler, 1).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	bufInfo := gpu.DescriptorBufferInfo{Buffer: 7, Offset: 256, Range: 64}
	imgInfo := gpu.DescriptorImageInfo{Sampler: 8, View: 9, Layout: gpu.ImageLayoutShaderReadOnly}
	w := NewWriter(layout, pool).
		WriteBuffer(0, bufInfo).
		WriteImage(1, imgInfo)
	set, err := w.Build()
	if err != nil {
		t.Fatal(err)
	}
	if len(dev.Writes) != 2 {
		t.Fatalf("Build: writes\nhave %d\nwant 2", len(dev.Writes))
	}
	ubo, img := dev.Writes[0], dev.Writes[1]
	if ubo.Set != set || ubo.Binding != 0 || ubo.Type != gpu.DescriptorTypeUniformBuffer || *ubo.BufferInfo != bufInfo {
		t.Fatalf("Build: buffer write\nhave %+v", ubo)
	}
	if img.Set != set || img.Binding != 1 || img.Type != gpu.DescriptorTypeCombinedImageSampler || *img.ImageInfo != imgInfo {
		t.Fatalf("Build: image write\nhave %+v", img)
	}

	if _, err := w.Build(); !errors.Is(err, core.ErrPoolExhausted) {
		t.Fatalf("Build on full pool:\nhave %v\nwant %v", err, core.ErrPoolExhausted)
	}

	w.Overwrite(set)
	if len(dev.Writes) != 4 || dev.Writes[3].Set != set {
		t.Fatal("Overwrite: writes not reissued for the existing set")
	}
	if len(dev.Violations) != 0 {
		t.Fatalf("device violations: %v", dev.Violations)
	}
}

func TestWriterContract(t *testing.T) {
	dev := gputest.NewDevice()
	b := NewSetLayoutBuilder(dev)
	_ = b.AddBinding(0, gpu.DescriptorTypeUniformBuffer, gpu.ShaderStageVertex, 1)
	_ = b.AddBinding(1, gpu.DescriptorTypeCombinedImageSampler, gpu.ShaderStageFragment, 4)
	layout, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	pool, err := NewPoolBuilder(dev).AddPoolSize(gpu.DescriptorTypeUniformBuffer, 1).Build()
	if err != nil {
		t.Fatal(err)
	}

	w := NewWriter(layout, pool)
	mustPanic(t, "WriteBuffer missing binding", func() { w.WriteBuffer(5, gpu.DescriptorBufferInfo{}) })
	mustPanic(t, "WriteImage array binding", func() { w.WriteImage(1, gpu.DescriptorImageInfo{}) })
	mustPanic(t, "WriteImage on buffer binding", func() { w.WriteImage(0, gpu.DescriptorImageInfo{}) })
}

package world

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/framepace/engine/config"
	"github.com/spaghettifunk/framepace/engine/renderer/buffer"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/framepace/engine/renderer/shader"
	"github.com/spaghettifunk/framepace/engine/renderer/swapchain"
)

type fakePipelines struct {
	fail      error
	layouts   []gpu.DescriptorSetLayout
	destroyed []gpu.Pipeline
}

func (p *fakePipelines) Build(renderPass gpu.RenderPass, setLayouts []gpu.DescriptorSetLayout) (gpu.Pipeline, gpu.PipelineLayout, error) {
	if p.fail != nil {
		return 0, 0, p.fail
	}
	p.layouts = setLayouts
	return 900, 901, nil
}

func (p *fakePipelines) Destroy(pl gpu.Pipeline) {
	p.destroyed = append(p.destroyed, pl)
}

func checkClean(t *testing.T, dev *gputest.Device) {
	t.Helper()
	if leaks := dev.Leaks(); len(leaks) != 0 {
		t.Fatalf("leaked handles: %v", leaks)
	}
	if len(dev.Violations) != 0 {
		t.Fatalf("violations: %v", dev.Violations)
	}
}

func TestNewSceneDefaults(t *testing.T) {
	dev := gputest.NewDevice()
	pipelines := &fakePipelines{}
	s, err := NewScene(dev, nil, 1, pipelines)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(s.Objects()), len(DefaultObjects()); have != want {
		t.Fatalf("objects: have %d, want %d", have, want)
	}
	for i, obj := range s.Objects() {
		if obj.ID != uint32(i) {
			t.Fatalf("object %d id: have %d, want %d", i, obj.ID, i)
		}
	}
	if len(pipelines.layouts) != 2 || pipelines.layouts[0] != s.globalLayout.Handle() || pipelines.layouts[1] != s.objectLayout.Handle() {
		t.Fatalf("pipeline set layouts: have %v", pipelines.layouts)
	}

	// One global set per frame slot plus one texture set per slot and object.
	wantSets := swapchain.MaxFramesInFlight * (1 + len(s.Objects()))
	if have := dev.LiveCount(gputest.KindSetInstance); have != wantSets {
		t.Fatalf("descriptor sets: have %d, want %d", have, wantSets)
	}
	seen := map[gpu.DescriptorSet]bool{}
	for frame := uint32(0); frame < swapchain.MaxFramesInFlight; frame++ {
		for i := range s.Objects() {
			set := s.ObjectSet(frame, i)
			if seen[set] {
				t.Fatalf("object set (%d, %d) = %d is shared", frame, i, set)
			}
			seen[set] = true
		}
	}

	s.Destroy()
	if len(pipelines.destroyed) != 1 || pipelines.destroyed[0] != 900 {
		t.Fatalf("destroyed pipelines: have %v, want [900]", pipelines.destroyed)
	}
	checkClean(t, dev)
}

func TestNewSceneErrors(t *testing.T) {
	tooMany := make([]config.Object, MaxObjects+1)
	for i := range tooMany {
		tooMany[i] = config.Object{Name: fmt.Sprintf("cube-%d", i), Scale: 1}
	}

	cases := []struct {
		name      string
		objects   []config.Object
		pipelines *fakePipelines
	}{
		{"too many objects", tooMany, &fakePipelines{}},
		{"pipeline failure", nil, &fakePipelines{fail: errors.New("no pipeline")}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dev := gputest.NewDevice()
			if _, err := NewScene(dev, c.objects, 1, c.pipelines); err == nil {
				t.Fatal("NewScene: have nil error, want failure")
			}
			checkClean(t, dev)
		})
	}
}

func TestMissingTextureFallsBack(t *testing.T) {
	dev := gputest.NewDevice()
	objects := []config.Object{
		{Texture: "does/not/exist.png", Scale: 2},
	}
	s, err := NewScene(dev, objects, 1, &fakePipelines{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()

	obj := s.Objects()[0]
	if obj.texture != s.defaultTexture {
		t.Fatal("object must use the default texture")
	}
	if obj.Name == "" {
		t.Fatal("unnamed object must get a generated name")
	}
}

func TestRender(t *testing.T) {
	dev := gputest.NewDevice()
	s, err := NewScene(dev, nil, 1, &fakePipelines{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()
	s.Update(0.25)

	const frame = 1
	cb := &gputest.CommandBuffer{}
	if err := s.Render(cb, frame, gpu.Extent2D{Width: 1600, Height: 900}); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"bind_pipeline 900",
		fmt.Sprintf("bind_sets first=0 [%d]", s.globalSets[frame]),
	}
	for i := range s.Objects() {
		want = append(want,
			fmt.Sprintf("bind_sets first=1 [%d]", s.ObjectSet(frame, i)),
			fmt.Sprintf("draw_indexed 36 instance=%d", i),
		)
	}
	// Buffer bindings belong to the mesh and are checked in resources.
	var calls []string
	for _, call := range cb.Calls() {
		if !strings.HasPrefix(call, "bind_vertex") && !strings.HasPrefix(call, "bind_index") {
			calls = append(calls, call)
		}
	}
	if len(calls) != len(want) {
		t.Fatalf("commands:\nhave %q\nwant %q", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("command %d:\nhave %q\nwant %q", i, calls[i], want[i])
		}
	}

	// Only the frame's own uniform slot is written.
	written := buffer.Bytes(&s.ubo)
	if !bytes.Equal(s.uniforms[frame].Mapped()[:len(written)], written) {
		t.Fatal("uniform buffer of frame 1 does not hold the uniform block")
	}
	if bytes.Equal(s.uniforms[0].Mapped()[:len(written)], written) {
		t.Fatal("uniform buffer of frame 0 must be untouched")
	}
	if len(dev.Flushes) != 1 {
		t.Fatalf("flushes: have %d, want 1", len(dev.Flushes))
	}
	if have, want := s.ubo.Models[2], s.Objects()[2].Model(); have != want {
		t.Fatalf("model matrix 2:\nhave %v\nwant %v", have, want)
	}
}

func TestRenderFollowsExtent(t *testing.T) {
	dev := gputest.NewDevice()
	s, err := NewScene(dev, nil, 1, &fakePipelines{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()

	tests := []struct {
		name   string
		extent gpu.Extent2D
		aspect float32
	}{
		{"widescreen", gpu.Extent2D{Width: 1600, Height: 900}, 1600.0 / 900.0},
		{"after resize", gpu.Extent2D{Width: 600, Height: 800}, 600.0 / 800.0},
		{"minimized keeps previous", gpu.Extent2D{Width: 600, Height: 0}, 600.0 / 800.0},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Render(&gputest.CommandBuffer{}, uint32(i%2), tt.extent); err != nil {
				t.Fatal(err)
			}
			want := vulkanPerspective(mgl32.DegToRad(45), tt.aspect, 0.1, 100).Mul4(s.view)
			if have := s.ubo.ProjectionView; !have.ApproxEqual(want) {
				t.Fatalf("projection view:\nhave %v\nwant %v", have, want)
			}
		})
	}
}

func TestRenderFrameIndexContract(t *testing.T) {
	dev := gputest.NewDevice()
	s, err := NewScene(dev, nil, 1, &fakePipelines{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.HasAssertionFailure(err) {
			t.Fatalf("Render with frame index %d: have %v, want assertion failure", swapchain.MaxFramesInFlight, r)
		}
	}()
	_ = s.Render(&gputest.CommandBuffer{}, swapchain.MaxFramesInFlight, gpu.Extent2D{Width: 800, Height: 600})
}

func TestUpdateWrapsAngle(t *testing.T) {
	dev := gputest.NewDevice()
	s, err := NewScene(dev, []config.Object{{Name: "spinner", Scale: 1, RotationSpeed: math.Pi}}, 1, &fakePipelines{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()

	s.Update(0.5)
	if have := s.Objects()[0].Angle; math.Abs(float64(have)-math.Pi/2) > 1e-5 {
		t.Fatalf("angle: have %v, want %v", have, math.Pi/2)
	}
	s.Update(2)
	if have := s.Objects()[0].Angle; have < 0 || have >= 2*math.Pi {
		t.Fatalf("angle %v not wrapped to [0, 2π)", have)
	}
}

func TestVulkanPerspectiveDepthRange(t *testing.T) {
	const near, far = 0.1, 100
	proj := vulkanPerspective(mgl32.DegToRad(45), 1, near, far)

	cases := []struct {
		z     float32
		depth float32
	}{
		{-near, 0},
		{-far, 1},
	}
	for _, c := range cases {
		clip := proj.Mul4x1(mgl32.Vec4{0, 0, c.z, 1})
		if have := clip.Z() / clip.W(); math.Abs(float64(have-c.depth)) > 1e-5 {
			t.Fatalf("depth at z=%v:\nhave %v\nwant %v", c.z, have, c.depth)
		}
	}

	// Y points down in Vulkan clip space.
	if up := proj.Mul4x1(mgl32.Vec4{0, 1, -1, 1}); up.Y() >= 0 {
		t.Fatalf("up vector must map to negative clip Y, have %v", up.Y())
	}
}

func TestCubeShaderCompiles(t *testing.T) {
	words, err := shader.Compile("cube.wgsl", CubeShaderWGSL)
	if err != nil {
		t.Fatal(err)
	}
	if words[0] != shader.SPIRVMagic {
		t.Fatalf("magic: have %#x, want %#x", words[0], shader.SPIRVMagic)
	}
}

package world

import (
	_ "embed"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/spaghettifunk/framepace/engine/config"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/buffer"
	"github.com/spaghettifunk/framepace/engine/renderer/descriptor"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/swapchain"
	"github.com/spaghettifunk/framepace/engine/resources"
)

// CubeShaderWGSL draws the scene objects. Set 0 holds the global uniform
// block, set 1 the object texture and sampler.
//
//go:embed shaders/cube.wgsl
var CubeShaderWGSL string

// MaxObjects is the length of the model matrix array in the global uniform
// block. It must match the shader.
const MaxObjects = 16

/** @brief The per-frame uniform block, std140 compatible. */
type globalUBO struct {
	ProjectionView mgl32.Mat4
	Models         [MaxObjects]mgl32.Mat4
}

// PipelineBuilder creates the graphics pipeline for the scene's set
// layouts, set 0 global and set 1 per object.
type PipelineBuilder interface {
	Build(renderPass gpu.RenderPass, setLayouts []gpu.DescriptorSetLayout) (gpu.Pipeline, gpu.PipelineLayout, error)
	Destroy(p gpu.Pipeline)
}

// Object is one textured cube. Its id is issued by the scene's registry.
type Object struct {
	ID            uint32
	Name          string
	Position      mgl32.Vec3
	Scale         float32
	RotationSpeed float32
	Angle         float32

	texture *resources.Texture
}

func (o *Object) Model() mgl32.Mat4 {
	return mgl32.Translate3D(o.Position.X(), o.Position.Y(), o.Position.Z()).
		Mul4(mgl32.HomogRotate3DY(o.Angle)).
		Mul4(mgl32.Scale3D(o.Scale, o.Scale, o.Scale))
}

type Scene struct {
	device    gpu.Device
	pipelines PipelineBuilder
	registry  *core.Registry

	objects        []*Object
	mesh           *resources.Mesh
	defaultTexture *resources.Texture
	textures       []*resources.Texture

	uniforms     [swapchain.MaxFramesInFlight]*buffer.Buffer
	globalLayout *descriptor.SetLayout
	objectLayout *descriptor.SetLayout
	pool         *descriptor.Pool
	globalSets   [swapchain.MaxFramesInFlight]gpu.DescriptorSet
	// objectSets holds one set per frame slot and object, at
	// frame*len(objects)+object.
	objectSets []gpu.DescriptorSet

	pipeline       gpu.Pipeline
	pipelineLayout gpu.PipelineLayout

	view   mgl32.Mat4
	aspect float32
	ubo    globalUBO
}

// DefaultObjects is the scene used when the config lists no objects.
func DefaultObjects() []config.Object {
	return []config.Object{
		{Name: "left", Position: [3]float32{-1.5, 0, 0}, Scale: 1, RotationSpeed: 0.5},
		{Name: "center", Position: [3]float32{0, 0, 0}, Scale: 1, RotationSpeed: -0.8},
		{Name: "right", Position: [3]float32{1.5, 0, 0}, Scale: 1, RotationSpeed: 1.2},
	}
}

// NewScene uploads the geometry and textures, and builds the uniform
// buffers, descriptor sets and pipeline for objects.
func NewScene(device gpu.Device, objects []config.Object, renderPass gpu.RenderPass, pipelines PipelineBuilder) (*Scene, error) {
	if len(objects) == 0 {
		objects = DefaultObjects()
	}
	if len(objects) > MaxObjects {
		return nil, errors.Newf("scene has %d objects, at most %d are supported", len(objects), MaxObjects)
	}

	s := &Scene{
		device:    device,
		pipelines: pipelines,
		registry:  core.NewRegistry(MaxObjects),
		view:      mgl32.LookAtV(mgl32.Vec3{0, 2, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}),
		aspect:    1,
	}
	if err := s.init(objects, renderPass); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *Scene) init(objects []config.Object, renderPass gpu.RenderPass) error {
	var err error
	if s.defaultTexture, err = resources.DefaultTexture(s.device); err != nil {
		return err
	}
	vertices, indices := resources.Cube()
	if s.mesh, err = resources.NewMesh(s.device, "cube", vertices, indices); err != nil {
		return err
	}

	for _, oc := range objects {
		name := oc.Name
		if name == "" {
			name = uuid.NewString()
		}
		obj := &Object{
			Name:          name,
			Position:      mgl32.Vec3(oc.Position),
			Scale:         oc.Scale,
			RotationSpeed: oc.RotationSpeed,
			texture:       s.defaultTexture,
		}
		if obj.Scale == 0 {
			obj.Scale = 1
		}
		obj.ID = s.registry.Acquire(obj)
		if oc.Texture != "" {
			tex, err := resources.LoadTexture(s.device, name, oc.Texture)
			if err != nil {
				core.LogWarn("object %s: falling back to the default texture: %s", name, err)
			} else {
				s.textures = append(s.textures, tex)
				obj.texture = tex
			}
		}
		s.objects = append(s.objects, obj)
	}

	if err := s.createDescriptors(); err != nil {
		return err
	}

	layouts := []gpu.DescriptorSetLayout{s.globalLayout.Handle(), s.objectLayout.Handle()}
	if s.pipeline, s.pipelineLayout, err = s.pipelines.Build(renderPass, layouts); err != nil {
		return errors.Wrap(err, "failed to create scene pipeline")
	}
	core.LogInfo("scene ready with %d objects", len(s.objects))
	return nil
}

func (s *Scene) createDescriptors() error {
	limits := s.device.Limits()
	for i := range s.uniforms {
		ub, err := buffer.New(
			s.device,
			uint64(len(buffer.Bytes(&s.ubo))),
			1,
			gpu.BufferUsageUniformBuffer,
			gpu.MemoryPropertyHostVisible|gpu.MemoryPropertyHostCoherent,
			limits.MinUniformBufferOffsetAlignment,
		)
		if err != nil {
			return err
		}
		s.uniforms[i] = ub
		if err := ub.Map(); err != nil {
			return err
		}
	}

	var err error
	globalBuilder := descriptor.NewSetLayoutBuilder(s.device)
	if err := globalBuilder.AddBinding(0, gpu.DescriptorTypeUniformBuffer, gpu.ShaderStageVertex, 1); err != nil {
		return err
	}
	if s.globalLayout, err = globalBuilder.Build(); err != nil {
		return err
	}

	objectBuilder := descriptor.NewSetLayoutBuilder(s.device)
	if err := objectBuilder.AddBinding(0, gpu.DescriptorTypeSampledImage, gpu.ShaderStageFragment, 1); err != nil {
		return err
	}
	if err := objectBuilder.AddBinding(1, gpu.DescriptorTypeSampler, gpu.ShaderStageFragment, 1); err != nil {
		return err
	}
	if s.objectLayout, err = objectBuilder.Build(); err != nil {
		return err
	}

	frames := uint32(swapchain.MaxFramesInFlight)
	count := uint32(len(s.objects))
	s.pool, err = descriptor.NewPoolBuilder(s.device).
		SetMaxSets(frames * (1 + count)).
		AddPoolSize(gpu.DescriptorTypeUniformBuffer, frames).
		AddPoolSize(gpu.DescriptorTypeSampledImage, frames*count).
		AddPoolSize(gpu.DescriptorTypeSampler, frames*count).
		Build()
	if err != nil {
		return err
	}

	for frame := range s.globalSets {
		set, err := descriptor.NewWriter(s.globalLayout, s.pool).
			WriteBuffer(0, s.uniforms[frame].DescriptorInfoForIndex(0)).
			Build()
		if err != nil {
			return errors.Wrapf(err, "global set for frame %d", frame)
		}
		s.globalSets[frame] = set
	}

	s.objectSets = make([]gpu.DescriptorSet, 0, int(frames*count))
	for frame := 0; frame < int(frames); frame++ {
		for _, obj := range s.objects {
			info := obj.texture.ImageInfo()
			set, err := descriptor.NewWriter(s.objectLayout, s.pool).
				WriteImage(0, info).
				WriteImage(1, info).
				Build()
			if err != nil {
				return errors.Wrapf(err, "object set for %s in frame %d", obj.Name, frame)
			}
			s.objectSets = append(s.objectSets, set)
		}
	}
	return nil
}

// ObjectSet returns the texture set of object i for a frame slot.
func (s *Scene) ObjectSet(frame uint32, i int) gpu.DescriptorSet {
	return s.objectSets[int(frame)*len(s.objects)+i]
}

func (s *Scene) Objects() []*Object {
	return s.objects
}

// Update advances every object's rotation by deltaTime seconds.
func (s *Scene) Update(deltaTime float64) {
	for _, obj := range s.objects {
		obj.Angle = float32(math.Mod(float64(obj.Angle)+float64(obj.RotationSpeed)*deltaTime, 2*math.Pi))
	}
}

// Render writes the frame slot's uniform buffer and records one draw per
// object into cb. The swapchain render pass must be active. The projection
// follows extent, the size of the image the frame renders to; a zero
// extent keeps the previous aspect ratio.
func (s *Scene) Render(cb gpu.CommandBuffer, frameIndex uint32, extent gpu.Extent2D) error {
	core.Assertf(frameIndex < swapchain.MaxFramesInFlight, "scene: frame index %d out of range", frameIndex)

	if !extent.IsZero() {
		s.aspect = float32(extent.Width) / float32(extent.Height)
	}

	s.ubo.ProjectionView = vulkanPerspective(mgl32.DegToRad(45), s.aspect, 0.1, 100).Mul4(s.view)
	for i, obj := range s.objects {
		s.ubo.Models[i] = obj.Model()
	}
	ub := s.uniforms[frameIndex]
	ub.WriteToIndex(buffer.Bytes(&s.ubo), 0)
	if err := ub.FlushIndex(0); err != nil {
		return errors.Wrap(err, "failed to flush uniform buffer")
	}

	cb.BindPipeline(s.pipeline)
	cb.BindDescriptorSets(s.pipelineLayout, 0, []gpu.DescriptorSet{s.globalSets[frameIndex]})
	for i := range s.objects {
		cb.BindDescriptorSets(s.pipelineLayout, 1, []gpu.DescriptorSet{s.ObjectSet(frameIndex, i)})
		// The instance index selects the model matrix.
		s.mesh.Draw(cb, 1, uint32(i))
	}
	return nil
}

// vulkanPerspective is a right handed perspective projection with a
// flipped Y axis and a [0, 1] depth range.
func vulkanPerspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	f := float32(1 / math.Tan(float64(fovy)/2))
	fmn := far - near
	return mgl32.Mat4{
		f / aspect, 0, 0, 0,
		0, -f, 0, 0,
		0, 0, -far / fmn, -1,
		0, 0, -(far * near) / fmn, 0,
	}
}

// Destroy releases everything the scene created. The device must be idle.
func (s *Scene) Destroy() {
	if s.pipeline != 0 {
		s.pipelines.Destroy(s.pipeline)
		s.pipeline = 0
		s.pipelineLayout = 0
	}
	if s.pool != nil {
		s.pool.Destroy()
		s.pool = nil
	}
	if s.objectLayout != nil {
		s.objectLayout.Destroy()
		s.objectLayout = nil
	}
	if s.globalLayout != nil {
		s.globalLayout.Destroy()
		s.globalLayout = nil
	}
	for i, ub := range s.uniforms {
		if ub != nil {
			ub.Destroy()
			s.uniforms[i] = nil
		}
	}
	for _, obj := range s.objects {
		if err := s.registry.Release(obj.ID); err != nil {
			core.LogWarn("object %s: %s", obj.Name, err)
		}
	}
	s.objects = nil
	for _, tex := range s.textures {
		tex.Destroy()
	}
	s.textures = nil
	if s.defaultTexture != nil {
		s.defaultTexture.Destroy()
		s.defaultTexture = nil
	}
	if s.mesh != nil {
		s.mesh.Destroy()
		s.mesh = nil
	}
}

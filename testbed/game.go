package testbed

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/framepace/engine"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/shader"
	"github.com/spaghettifunk/framepace/engine/renderer/vulkan"
	"github.com/spaghettifunk/framepace/engine/resources"
	"github.com/spaghettifunk/framepace/testbed/world"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	scene *world.Scene
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")

	spirv, err := shader.Compile("cube.wgsl", world.CubeShaderWGSL)
	if err != nil {
		return err
	}
	pipelines := &vulkanPipelines{context: g.Backend, spirv: spirv}

	scene, err := world.NewScene(g.Backend, g.Config.Objects, g.Renderer.RenderPass(), pipelines)
	if err != nil {
		return errors.Wrap(err, "failed to build testbed scene")
	}
	g.state().scene = scene
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	g.state().scene.Update(deltaTime)
	return nil
}

func (g *TestGame) Render(cb gpu.CommandBuffer, frameIndex uint32, deltaTime float64) error {
	return g.state().scene.Render(cb, frameIndex, g.Renderer.Extent())
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	// The swapchain is rebuilt at the end of the frame; Render picks up
	// the new extent from the renderer.
	core.LogDebug("testbed resized to %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	if s := g.state().scene; s != nil {
		s.Destroy()
		g.state().scene = nil
	}
	core.LogInfo("testbed shut down")
	return nil
}

// vulkanPipelines builds the cube pipeline from the compiled WGSL module.
type vulkanPipelines struct {
	context *vulkan.VulkanContext
	spirv   []uint32
}

func (p *vulkanPipelines) Build(renderPass gpu.RenderPass, setLayouts []gpu.DescriptorSetLayout) (gpu.Pipeline, gpu.PipelineLayout, error) {
	return p.context.NewGraphicsPipeline(vulkan.PipelineConfig{
		RenderPass:         renderPass,
		SPIRV:              p.spirv,
		VertexEntryPoint:   "vs_main",
		FragmentEntryPoint: "fs_main",
		Stride:             resources.VertexStride,
		Attributes: []vulkan.VertexAttribute{
			{Location: 0, Format: gpu.FormatR32G32B32Sfloat, Offset: resources.VertexPositionOffset},
			{Location: 1, Format: gpu.FormatR32G32B32Sfloat, Offset: resources.VertexColorOffset},
			{Location: 2, Format: gpu.FormatR32G32Sfloat, Offset: resources.VertexUVOffset},
		},
		SetLayouts: setLayouts,
		CullMode:   vulkan.FaceCullModeBack,
		DepthTest:  true,
		DepthWrite: true,
	})
}

func (p *vulkanPipelines) Destroy(pipeline gpu.Pipeline) {
	p.context.DestroyPipeline(pipeline)
}

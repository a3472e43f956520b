package gputest

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// CommandBuffer records the commands issued to it as short strings.
type CommandBuffer struct {
	ID uint64

	mu        sync.Mutex
	recording bool
	inPass    bool
	calls     []string
}

var _ gpu.CommandBuffer = (*CommandBuffer)(nil)

func (c *CommandBuffer) record(format string, args ...interface{}) {
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

// Calls returns the commands recorded since the last Reset.
func (c *CommandBuffer) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *CommandBuffer) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func (c *CommandBuffer) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording {
		return fmt.Errorf("command buffer %d already recording", c.ID)
	}
	c.recording = true
	c.calls = c.calls[:0]
	c.record("begin")
	return nil
}

func (c *CommandBuffer) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return fmt.Errorf("command buffer %d is not recording", c.ID)
	}
	if c.inPass {
		return fmt.Errorf("command buffer %d ended inside a render pass", c.ID)
	}
	c.recording = false
	c.record("end")
	return nil
}

func (c *CommandBuffer) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = false
	c.inPass = false
	c.calls = c.calls[:0]
	return nil
}

func (c *CommandBuffer) BeginRenderPass(rp gpu.RenderPass, fb gpu.Framebuffer, area gpu.Rect2D, clears []gpu.ClearValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inPass = true
	c.record("begin_render_pass rp=%d fb=%d %dx%d clears=%d", rp, fb, area.Extent.Width, area.Extent.Height, len(clears))
}

func (c *CommandBuffer) EndRenderPass() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inPass = false
	c.record("end_render_pass")
}

func (c *CommandBuffer) SetViewport(vp gpu.Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("viewport %gx%g", vp.Width, vp.Height)
}

func (c *CommandBuffer) SetScissor(r gpu.Rect2D) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("scissor %dx%d", r.Extent.Width, r.Extent.Height)
}

func (c *CommandBuffer) BindPipeline(p gpu.Pipeline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("bind_pipeline %d", p)
}

func (c *CommandBuffer) BindDescriptorSets(layout gpu.PipelineLayout, firstSet uint32, sets []gpu.DescriptorSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("bind_sets first=%d %v", firstSet, sets)
}

func (c *CommandBuffer) BindVertexBuffers(buffers []gpu.Buffer, offsets []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("bind_vertex %v", buffers)
}

func (c *CommandBuffer) BindIndexBuffer(buf gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("bind_index %d", buf)
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("draw_indexed %d instance=%d", indexCount, firstInstance)
}

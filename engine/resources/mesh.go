package resources

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/buffer"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

/** @brief A vertex as laid out in the vertex buffer. */
type Vertex struct {
	/** @brief Object space position. */
	Position [3]float32
	/** @brief Vertex color, multiplied with the texture sample. */
	Color [3]float32
	/** @brief Texture coordinate. */
	UV [2]float32
}

const (
	VertexStride         = uint32(unsafe.Sizeof(Vertex{}))
	VertexPositionOffset = uint32(unsafe.Offsetof(Vertex{}.Position))
	VertexColorOffset    = uint32(unsafe.Offsetof(Vertex{}.Color))
	VertexUVOffset       = uint32(unsafe.Offsetof(Vertex{}.UV))
)

// Mesh is indexed geometry living in device-local vertex and index buffers.
type Mesh struct {
	Name string

	vertices   *buffer.Buffer
	indices    *buffer.Buffer
	indexCount uint32
}

// NewMesh uploads vertices and indices through host-visible staging buffers.
func NewMesh(device Uploader, name string, vertices []Vertex, indices []uint32) (*Mesh, error) {
	core.Assertf(len(vertices) >= 3, "mesh %s: vertex count must be at least 3, have %d", name, len(vertices))
	core.Assertf(len(indices) > 0 && len(indices)%3 == 0, "mesh %s: index count %d is not a whole number of triangles", name, len(indices))

	m := &Mesh{Name: name, indexCount: uint32(len(indices))}

	var err error
	m.vertices, err = uploadDeviceLocal(device, buffer.SliceBytes(vertices), uint64(VertexStride), uint32(len(vertices)), gpu.BufferUsageVertexBuffer)
	if err != nil {
		return nil, errors.Wrapf(err, "mesh %s: vertex buffer", name)
	}
	m.indices, err = uploadDeviceLocal(device, buffer.SliceBytes(indices), 4, uint32(len(indices)), gpu.BufferUsageIndexBuffer)
	if err != nil {
		m.vertices.Destroy()
		return nil, errors.Wrapf(err, "mesh %s: index buffer", name)
	}
	return m, nil
}

func uploadDeviceLocal(device Uploader, data []byte, instanceSize uint64, count uint32, usage gpu.BufferUsageFlags) (*buffer.Buffer, error) {
	staging, err := buffer.New(device, instanceSize, count, gpu.BufferUsageTransferSrc,
		gpu.MemoryPropertyHostVisible|gpu.MemoryPropertyHostCoherent, 1)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	if err := staging.Map(); err != nil {
		return nil, err
	}
	staging.WriteToBuffer(data)
	staging.Unmap()

	dst, err := buffer.New(device, instanceSize, count, usage|gpu.BufferUsageTransferDst, gpu.MemoryPropertyDeviceLocal, 1)
	if err != nil {
		return nil, err
	}
	if err := device.CopyBuffer(staging.Handle(), dst.Handle(), staging.BufferSize()); err != nil {
		dst.Destroy()
		return nil, err
	}
	return dst, nil
}

// Draw binds the mesh buffers and records an indexed draw of
// instanceCount instances starting at firstInstance.
func (m *Mesh) Draw(cb gpu.CommandBuffer, instanceCount, firstInstance uint32) {
	cb.BindVertexBuffers([]gpu.Buffer{m.vertices.Handle()}, []uint64{0})
	cb.BindIndexBuffer(m.indices.Handle(), 0, gpu.IndexTypeUint32)
	cb.DrawIndexed(m.indexCount, instanceCount, 0, 0, firstInstance)
}

func (m *Mesh) IndexCount() uint32 { return m.indexCount }

func (m *Mesh) Destroy() {
	if m.indices != nil {
		m.indices.Destroy()
		m.indices = nil
	}
	if m.vertices != nil {
		m.vertices.Destroy()
		m.vertices = nil
	}
}

// Cube returns a unit cube centered on the origin, four vertices per face
// so every face carries its own texture coordinates.
func Cube() ([]Vertex, []uint32) {
	type face struct {
		corners [4][3]float32
		color   [3]float32
	}
	faces := []face{
		// +X
		{[4][3]float32{{.5, -.5, .5}, {.5, -.5, -.5}, {.5, .5, -.5}, {.5, .5, .5}}, [3]float32{1, .9, .9}},
		// -X
		{[4][3]float32{{-.5, -.5, -.5}, {-.5, -.5, .5}, {-.5, .5, .5}, {-.5, .5, -.5}}, [3]float32{.9, 1, .9}},
		// +Y
		{[4][3]float32{{-.5, .5, .5}, {.5, .5, .5}, {.5, .5, -.5}, {-.5, .5, -.5}}, [3]float32{.9, .9, 1}},
		// -Y
		{[4][3]float32{{-.5, -.5, -.5}, {.5, -.5, -.5}, {.5, -.5, .5}, {-.5, -.5, .5}}, [3]float32{1, 1, .9}},
		// +Z
		{[4][3]float32{{-.5, -.5, .5}, {.5, -.5, .5}, {.5, .5, .5}, {-.5, .5, .5}}, [3]float32{.9, 1, 1}},
		// -Z
		{[4][3]float32{{.5, -.5, -.5}, {-.5, -.5, -.5}, {-.5, .5, -.5}, {.5, .5, -.5}}, [3]float32{1, .9, 1}},
	}
	uvs := [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	vertices := make([]Vertex, 0, len(faces)*4)
	indices := make([]uint32, 0, len(faces)*6)
	for _, f := range faces {
		base := uint32(len(vertices))
		for i, c := range f.corners {
			vertices = append(vertices, Vertex{Position: c, Color: f.color, UV: uvs[i]})
		}
		indices = append(indices, base, base+1, base+2, base+2, base+3, base)
	}
	return vertices, indices
}

// Quad returns a unit square in the XY plane facing +Z.
func Quad() ([]Vertex, []uint32) {
	white := [3]float32{1, 1, 1}
	vertices := []Vertex{
		{Position: [3]float32{-.5, -.5, 0}, Color: white, UV: [2]float32{0, 1}},
		{Position: [3]float32{.5, -.5, 0}, Color: white, UV: [2]float32{1, 1}},
		{Position: [3]float32{.5, .5, 0}, Color: white, UV: [2]float32{1, 0}},
		{Position: [3]float32{-.5, .5, 0}, Color: white, UV: [2]float32{0, 0}},
	}
	return vertices, []uint32{0, 1, 2, 2, 3, 0}
}

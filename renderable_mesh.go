package grok

import (
	"github.com/pkg/errors"

	"github.com/gekko3d/grok/gpu"
)

var (
	ErrShortVertexData = errors.New("grok: vertex data shorter than vertex count times vertex size")
	ErrShortIndexData  = errors.New("grok: index data shorter than index count times index size")
	ErrInvalidOffset   = errors.New("grok: offset outside of uploaded data")
	ErrMeshNotReady    = errors.New("grok: mesh is not ready")
)

type MeshState uint8

const (
	MeshUninitialized MeshState = iota
	MeshReady
)

func (s MeshState) String() string {
	if s == MeshReady {
		return "ready"
	}
	return "uninitialized"
}

// MeshDescriptor is everything NewRenderableMesh needs. Vertices and Indices
// are only read during construction.
type MeshDescriptor struct {
	Vertices    []float32
	VertexCount int
	// VertexSize is the size of one vertex record in bytes.
	VertexSize int
	// VertexOffset is the first vertex drawn by a non-indexed draw.
	VertexOffset int

	Texture gpu.TextureHandle

	// Indices is raw index data; nil means the mesh draws its vertices in order.
	// Use gpu.IndexBytes to build it from a typed slice.
	Indices   []byte
	IndexType gpu.IndexType
	// IndexCount is the number of indices drawn, starting at IndexOffset.
	IndexCount  int
	IndexOffset int

	Primitive  gpu.Primitive
	Program    gpu.ProgramID
	Attributes []gpu.VertexAttribute

	Label string
}

func (d *MeshDescriptor) indexed() bool {
	return d.Indices != nil && d.IndexCount > 0
}

// validate rejects bad input before anything is allocated on the device.
func (d *MeshDescriptor) validate(dev gpu.Device) error {
	if dev == nil {
		return gpu.ErrNoDevice
	}
	if d.Indices != nil && !d.IndexType.Valid() {
		return errors.Wrapf(gpu.ErrInvalidIndexType, "mesh %q: %v", d.Label, d.IndexType)
	}
	if !d.Primitive.Valid() {
		return errors.Wrapf(gpu.ErrInvalidPrimitive, "mesh %q: %v", d.Label, d.Primitive)
	}
	if d.VertexCount < 0 || d.VertexSize < 0 ||
		(d.VertexSize > 0 && d.VertexCount > len(d.Vertices)*4/d.VertexSize) {
		return errors.Wrapf(ErrShortVertexData, "mesh %q: have %d bytes, need %d x %d",
			d.Label, len(d.Vertices)*4, d.VertexCount, d.VertexSize)
	}
	if d.VertexOffset < 0 || d.VertexOffset > d.VertexCount {
		return errors.Wrapf(ErrInvalidOffset, "mesh %q: vertex offset %d of %d", d.Label, d.VertexOffset, d.VertexCount)
	}
	if d.indexed() {
		if d.IndexOffset < 0 {
			return errors.Wrapf(ErrInvalidOffset, "mesh %q: index offset %d", d.Label, d.IndexOffset)
		}
		// Compared in elements so huge counts cannot wrap around.
		have := len(d.Indices) / d.IndexType.Size()
		if d.IndexOffset > have || d.IndexCount > have-d.IndexOffset {
			return errors.Wrapf(ErrShortIndexData, "mesh %q: have %d indices, need %d after offset %d",
				d.Label, have, d.IndexCount, d.IndexOffset)
		}
	}
	return nil
}

// RenderableMesh owns the device buffers and layout needed to replay one draw
// call. The zero value is an Uninitialized placeholder.
//
// A mesh exclusively owns its handles. Plain Go copies alias them, so exactly
// one copy may be released; use Take to hand ownership over.
type RenderableMesh struct {
	vertexArray         gpu.VertexArray
	vertexBuffer        gpu.Buffer
	vertexBufferOffset  int
	vertexCount         int
	elementBuffer       gpu.Buffer
	elementBufferOffset int
	indexCount          int
	indexType           gpu.IndexType
	drawFunction        gpu.DrawFunction
	primitive           gpu.Primitive
	program             gpu.ProgramID
	texture             gpu.TextureHandle
	state               MeshState
	label               string
}

// NewRenderableMesh allocates and fills the mesh's buffers, registers its
// attributes and leaves no vertex array or buffer bound. On error nothing
// stays allocated.
func NewRenderableMesh(dev gpu.Device, desc MeshDescriptor) (mesh RenderableMesh, err error) {
	if err := desc.validate(dev); err != nil {
		return RenderableMesh{}, err
	}

	mesh = RenderableMesh{
		vertexBufferOffset: desc.VertexOffset,
		vertexCount:        desc.VertexCount,
		indexType:          desc.IndexType,
		drawFunction:       gpu.DrawArrays,
		primitive:          desc.Primitive,
		program:            desc.Program,
		texture:            desc.Texture,
		label:              desc.Label,
	}
	defer func() {
		if err != nil {
			mesh.Release(dev)
		}
	}()

	if err = mesh.allocate(dev); err != nil {
		return mesh, err
	}

	release := gpu.Bind(dev, mesh.vertexArray, mesh.vertexBuffer)
	defer release()

	if err = mesh.uploadVertices(dev, &desc); err != nil {
		return mesh, err
	}
	if err = mesh.uploadIndices(dev, &desc); err != nil {
		return mesh, err
	}
	if err = mesh.bindAttributes(dev, desc.Attributes); err != nil {
		return mesh, err
	}

	mesh.state = MeshReady
	return mesh, nil
}

// MustNewRenderableMesh is NewRenderableMesh for callers that treat any
// construction failure as fatal.
func MustNewRenderableMesh(dev gpu.Device, desc MeshDescriptor) RenderableMesh {
	mesh, err := NewRenderableMesh(dev, desc)
	if err != nil {
		panic(err)
	}
	return mesh
}

func (m *RenderableMesh) allocate(dev gpu.Device) error {
	vao, err := dev.GenVertexArray()
	if err != nil {
		return errors.Wrapf(err, "mesh %q: allocate vertex array", m.label)
	}
	m.vertexArray = vao

	vbo, err := dev.GenBuffer()
	if err != nil {
		return errors.Wrapf(err, "mesh %q: allocate vertex buffer", m.label)
	}
	m.vertexBuffer = vbo
	return nil
}

func (m *RenderableMesh) uploadVertices(dev gpu.Device, desc *MeshDescriptor) error {
	data := gpu.FloatBytes(desc.Vertices)[:desc.VertexCount*desc.VertexSize]
	if err := dev.BufferData(gpu.ArrayBuffer, data, gpu.StaticDraw); err != nil {
		return errors.Wrapf(err, "mesh %q: upload vertices", m.label)
	}
	return nil
}

// uploadIndices attaches an element buffer to the bound vertex array when the
// descriptor carries indices, and picks the draw function accordingly.
func (m *RenderableMesh) uploadIndices(dev gpu.Device, desc *MeshDescriptor) error {
	if !desc.indexed() {
		m.drawFunction = gpu.DrawArrays
		return nil
	}

	ebo, err := dev.GenBuffer()
	if err != nil {
		return errors.Wrapf(err, "mesh %q: allocate element buffer", m.label)
	}
	m.elementBuffer = ebo

	dev.BindBuffer(gpu.ElementArrayBuffer, ebo)
	size := (desc.IndexOffset + desc.IndexCount) * desc.IndexType.Size()
	if err := dev.BufferData(gpu.ElementArrayBuffer, desc.Indices[:size], gpu.StaticDraw); err != nil {
		return errors.Wrapf(err, "mesh %q: upload indices", m.label)
	}

	m.drawFunction = gpu.DrawElements
	m.indexCount = desc.IndexCount
	m.elementBufferOffset = desc.IndexOffset
	return nil
}

func (m *RenderableMesh) bindAttributes(dev gpu.Device, attrs []gpu.VertexAttribute) error {
	for _, attr := range attrs {
		if err := dev.VertexAttribPointer(attr); err != nil {
			return errors.Wrapf(err, "mesh %q: attribute %d", m.label, attr.Index)
		}
	}
	return nil
}

// Take moves ownership out of m: the returned mesh holds m's handles and m is
// reset to Uninitialized.
func (m *RenderableMesh) Take() RenderableMesh {
	moved := *m
	*m = RenderableMesh{}
	return moved
}

// Release deletes every handle the mesh owns and resets it to Uninitialized.
// Releasing an Uninitialized mesh does nothing.
func (m *RenderableMesh) Release(dev gpu.Device) {
	if dev != nil {
		if m.elementBuffer != 0 {
			dev.DeleteBuffer(m.elementBuffer)
		}
		if m.vertexBuffer != 0 {
			dev.DeleteBuffer(m.vertexBuffer)
		}
		if m.vertexArray != 0 {
			dev.DeleteVertexArray(m.vertexArray)
		}
	}
	*m = RenderableMesh{}
}

// Draw replays the mesh's draw call: bind the vertex array, the program and
// the texture, then draw by index or by vertex list.
func (m *RenderableMesh) Draw(dev gpu.Device) error {
	if m.state != MeshReady {
		return errors.Wrapf(ErrMeshNotReady, "mesh %q", m.label)
	}
	release := gpu.Bind(dev, m.vertexArray, 0)
	defer release()

	dev.UseProgram(m.program)
	if m.texture.Valid() {
		dev.BindTexture(m.texture)
	}

	var err error
	if m.drawFunction == gpu.DrawElements {
		err = dev.DrawElements(m.primitive, m.indexCount, m.indexType, m.EBOOffset())
	} else {
		err = dev.DrawArrays(m.primitive, m.vertexBufferOffset, m.vertexCount-m.vertexBufferOffset)
	}
	return errors.Wrapf(err, "mesh %q: draw", m.label)
}

func (m *RenderableMesh) VAO() gpu.VertexArray { return m.vertexArray }
func (m *RenderableMesh) VBO() gpu.Buffer      { return m.vertexBuffer }
func (m *RenderableMesh) EBO() gpu.Buffer      { return m.elementBuffer }
func (m *RenderableMesh) VBOOffset() int       { return m.vertexBufferOffset }
func (m *RenderableMesh) VertexCount() int     { return m.vertexCount }
func (m *RenderableMesh) IndexCount() int      { return m.indexCount }

func (m *RenderableMesh) IndexType() gpu.IndexType { return m.indexType }

// Texture is the one field that may change after construction.
func (m *RenderableMesh) Texture() *gpu.TextureHandle { return &m.texture }

func (m *RenderableMesh) SetTexture(h gpu.TextureHandle) { m.texture = h }

// EBOOffset is the element buffer offset in bytes, the value an indexed draw
// call expects. The stored offset counts indices.
func (m *RenderableMesh) EBOOffset() int {
	return m.elementBufferOffset * m.SizeOfIndexType()
}

func (m *RenderableMesh) SizeOfIndexType() int { return m.indexType.Size() }

func (m *RenderableMesh) DrawFunction() gpu.DrawFunction { return m.drawFunction }
func (m *RenderableMesh) Primitive() gpu.Primitive       { return m.primitive }

// PrimitiveCode is the native GL draw mode for the mesh's primitive.
func (m *RenderableMesh) PrimitiveCode() uint32 { return m.primitive.GLCode() }

func (m *RenderableMesh) ShaderProgram() gpu.ProgramID { return m.program }
func (m *RenderableMesh) State() MeshState             { return m.state }
func (m *RenderableMesh) Label() string                { return m.label }

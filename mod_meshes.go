package grok

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/gekko3d/grok/gpu"
)

type AssetId string

func makeAssetId() AssetId {
	return AssetId(uuid.NewString())
}

// VertexLayout describes one interleaved vertex record.
type VertexLayout struct {
	// Size is the vertex record size in bytes.
	Size       int
	Attributes []gpu.VertexAttribute
}

var (
	// PositionLayout is a bare float3 position at location 0.
	PositionLayout = VertexLayout{
		Size: 12,
		Attributes: []gpu.VertexAttribute{
			{Index: 0, Size: 3, Type: gpu.AttribFloat, Stride: 12, Offset: 0},
		},
	}
	// PositionUVLayout is a float3 position at location 0 followed by a float2
	// texture coordinate at location 1.
	PositionUVLayout = VertexLayout{
		Size: 20,
		Attributes: []gpu.VertexAttribute{
			{Index: 0, Size: 3, Type: gpu.AttribFloat, Stride: 20, Offset: 0},
			{Index: 1, Size: 2, Type: gpu.AttribFloat, Stride: 20, Offset: 12},
		},
	}
)

// MeshAsset is CPU-side mesh data the render module turns into a
// RenderableMesh.
type MeshAsset struct {
	Label      string
	Vertices   []float32
	Layout     VertexLayout
	Indices    []byte
	IndexType  gpu.IndexType
	IndexCount int
	Primitive  gpu.Primitive
	Program    gpu.ProgramID
	Texture    gpu.TextureHandle
}

func (a MeshAsset) VertexCount() int {
	if a.Layout.Size <= 0 {
		return 0
	}
	return len(a.Vertices) * 4 / a.Layout.Size
}

func (a MeshAsset) Descriptor() MeshDescriptor {
	return MeshDescriptor{
		Vertices:    a.Vertices,
		VertexCount: a.VertexCount(),
		VertexSize:  a.Layout.Size,
		Texture:     a.Texture,
		Indices:     a.Indices,
		IndexType:   a.IndexType,
		IndexCount:  a.IndexCount,
		Primitive:   a.Primitive,
		Program:     a.Program,
		Attributes:  a.Layout.Attributes,
		Label:       a.Label,
	}
}

// Transformed returns a copy with every position (the float3 at offset 0 of
// each vertex) multiplied by m.
func (a MeshAsset) Transformed(m mgl32.Mat4) MeshAsset {
	stride := a.Layout.Size / 4
	out := a
	out.Vertices = append([]float32(nil), a.Vertices...)
	if stride < 3 {
		return out
	}
	for i := 0; i+3 <= len(out.Vertices); i += stride {
		p := m.Mul4x1(mgl32.Vec4{out.Vertices[i], out.Vertices[i+1], out.Vertices[i+2], 1})
		out.Vertices[i], out.Vertices[i+1], out.Vertices[i+2] = p.X(), p.Y(), p.Z()
	}
	return out
}

// WithMaterial returns a copy drawn with the given program and texture.
func (a MeshAsset) WithMaterial(program gpu.ProgramID, texture gpu.TextureHandle) MeshAsset {
	a.Program = program
	a.Texture = texture
	return a
}

// MeshRef is the component that asks the render module for a RenderableMesh.
type MeshRef struct {
	Asset AssetId
}

// MeshError marks an entity whose mesh could not be built.
type MeshError struct {
	Err string
}

// MeshLibrary is the resource holding mesh assets by id.
type MeshLibrary struct {
	meshes map[AssetId]MeshAsset
}

func NewMeshLibrary() *MeshLibrary {
	return &MeshLibrary{meshes: make(map[AssetId]MeshAsset)}
}

func (lib *MeshLibrary) AddMesh(asset MeshAsset) AssetId {
	id := makeAssetId()
	lib.meshes[id] = asset
	return id
}

func (lib *MeshLibrary) Mesh(id AssetId) (MeshAsset, bool) {
	asset, ok := lib.meshes[id]
	return asset, ok
}

func (lib *MeshLibrary) RemoveMesh(id AssetId) {
	delete(lib.meshes, id)
}

func (lib *MeshLibrary) Len() int {
	return len(lib.meshes)
}

func appendVertex(dst []float32, p mgl32.Vec3, uv mgl32.Vec2) []float32 {
	return append(dst, p.X(), p.Y(), p.Z(), uv.X(), uv.Y())
}

// QuadMesh is a size x size quad in the XY plane, indexed with 32-bit indices.
func QuadMesh(size float32) MeshAsset {
	h := size / 2
	var v []float32
	v = appendVertex(v, mgl32.Vec3{-h, -h, 0}, mgl32.Vec2{0, 1})
	v = appendVertex(v, mgl32.Vec3{h, -h, 0}, mgl32.Vec2{1, 1})
	v = appendVertex(v, mgl32.Vec3{h, h, 0}, mgl32.Vec2{1, 0})
	v = appendVertex(v, mgl32.Vec3{-h, h, 0}, mgl32.Vec2{0, 0})

	indices := []uint32{0, 1, 2, 2, 3, 0}
	return MeshAsset{
		Label:      "quad",
		Vertices:   v,
		Layout:     PositionUVLayout,
		Indices:    gpu.IndexBytes(indices),
		IndexType:  gpu.IndexTypeOf[uint32](),
		IndexCount: len(indices),
		Primitive:  gpu.PrimitiveTriangles,
	}
}

// CubeMesh is an axis-aligned cube centered at the origin with one UV square
// per face, indexed with 16-bit indices.
func CubeMesh(size float32) MeshAsset {
	h := size / 2
	faces := [6][4]mgl32.Vec3{
		{{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h}},     // +Z
		{{h, -h, -h}, {-h, -h, -h}, {-h, h, -h}, {h, h, -h}}, // -Z
		{{h, -h, h}, {h, -h, -h}, {h, h, -h}, {h, h, h}},     // +X
		{{-h, -h, -h}, {-h, -h, h}, {-h, h, h}, {-h, h, -h}}, // -X
		{{-h, h, h}, {h, h, h}, {h, h, -h}, {-h, h, -h}},     // +Y
		{{-h, -h, -h}, {h, -h, -h}, {h, -h, h}, {-h, -h, h}}, // -Y
	}
	uvs := [4]mgl32.Vec2{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	var v []float32
	var indices []uint16
	for f, face := range faces {
		for i, p := range face {
			v = appendVertex(v, p, uvs[i])
		}
		base := uint16(f * 4)
		indices = append(indices, base, base+1, base+2, base+2, base+3, base)
	}

	return MeshAsset{
		Label:      "cube",
		Vertices:   v,
		Layout:     PositionUVLayout,
		Indices:    gpu.IndexBytes(indices),
		IndexType:  gpu.IndexTypeOf[uint16](),
		IndexCount: len(indices),
		Primitive:  gpu.PrimitiveTriangles,
	}
}

// FanMesh is a flat disc of the given number of segments. The fan is expanded
// into a plain triangle list, so the mesh is drawn without indices.
func FanMesh(radius float32, segments int) MeshAsset {
	if segments < 3 {
		segments = 3
	}
	center := mgl32.Vec3{}
	rim := func(i int) (mgl32.Vec3, mgl32.Vec2) {
		a := 2 * math.Pi * float64(i) / float64(segments)
		x, y := float32(math.Cos(a)), float32(math.Sin(a))
		return mgl32.Vec3{x * radius, y * radius, 0}, mgl32.Vec2{0.5 + x/2, 0.5 - y/2}
	}

	v := make([]float32, 0, segments*3*5)
	for i := 0; i < segments; i++ {
		p0, uv0 := rim(i)
		p1, uv1 := rim(i + 1)
		v = appendVertex(v, center, mgl32.Vec2{0.5, 0.5})
		v = appendVertex(v, p0, uv0)
		v = appendVertex(v, p1, uv1)
	}

	return MeshAsset{
		Label:     "fan",
		Vertices:  v,
		Layout:    PositionUVLayout,
		Primitive: gpu.PrimitiveTriangles,
	}
}

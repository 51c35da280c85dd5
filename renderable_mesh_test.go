package grok

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/grok/gpu"
	"github.com/gekko3d/grok/gpu/gputest"
)

var positionOnly = []gpu.VertexAttribute{
	{Index: 0, Size: 3, Type: gpu.AttribFloat, Stride: 12, Offset: 0},
}

var quadPositions = []float32{
	-1, -1, 0,
	1, -1, 0,
	1, 1, 0,
	-1, 1, 0,
}

func quadDescriptor() MeshDescriptor {
	return MeshDescriptor{
		Vertices:    quadPositions,
		VertexCount: 4,
		VertexSize:  12,
		Indices:     gpu.IndexBytes([]uint32{0, 1, 2, 2, 3, 0}),
		IndexType:   gpu.IndexUnsignedInt,
		IndexCount:  6,
		Primitive:   gpu.PrimitiveTriangles,
		Program:     7,
		Texture:     gpu.TextureHandle{ID: 3},
		Attributes:  positionOnly,
		Label:       "quad",
	}
}

func TestRenderableMesh_IndexedQuad(t *testing.T) {
	dev := gputest.New()

	mesh, err := NewRenderableMesh(dev, quadDescriptor())
	require.NoError(t, err)

	assert.Equal(t, MeshReady, mesh.State())
	assert.Equal(t, gpu.DrawElements, mesh.DrawFunction())
	assert.Equal(t, 6, mesh.IndexCount())
	assert.Equal(t, 0, mesh.EBOOffset())
	assert.Equal(t, 4, mesh.SizeOfIndexType())
	assert.Equal(t, 4, mesh.VertexCount())
	assert.Equal(t, 0, mesh.VBOOffset())
	assert.Equal(t, gpu.IndexUnsignedInt, mesh.IndexType())
	assert.Equal(t, gpu.PrimitiveTriangles, mesh.Primitive())
	assert.Equal(t, uint32(0x0004), mesh.PrimitiveCode())
	assert.Equal(t, gpu.ProgramID(7), mesh.ShaderProgram())
	assert.Equal(t, gpu.TextureHandle{ID: 3}, *mesh.Texture())

	assert.NotZero(t, mesh.VAO())
	assert.NotZero(t, mesh.VBO())
	assert.NotZero(t, mesh.EBO())
	assert.Equal(t, mesh.EBO(), dev.ElementBuffer(mesh.VAO()))
	assert.Len(t, dev.Data(mesh.VBO()), 48)
	assert.Len(t, dev.Data(mesh.EBO()), 24)

	attrs := dev.Attributes(mesh.VAO())
	require.Len(t, attrs, 1)
	assert.Equal(t, positionOnly[0], attrs[0].VertexAttribute)
	assert.Equal(t, mesh.VBO(), attrs[0].Buffer)

	assert.True(t, gpu.Unbound(dev))
	assert.Empty(t, dev.InvalidOps())
}

func TestRenderableMesh_NonIndexed(t *testing.T) {
	dev := gputest.New()
	desc := quadDescriptor()
	desc.Indices = nil
	desc.IndexCount = 0
	desc.Primitive = gpu.PrimitiveTriangleStrip

	mesh, err := NewRenderableMesh(dev, desc)
	require.NoError(t, err)

	assert.Equal(t, gpu.DrawArrays, mesh.DrawFunction())
	assert.Zero(t, mesh.EBO())
	assert.Zero(t, mesh.IndexCount())
	assert.Equal(t, 1, dev.LiveBuffers(), "no element buffer allocated")
	assert.True(t, gpu.Unbound(dev))
}

func TestRenderableMesh_DrawFunctionNeedsPositiveIndexCount(t *testing.T) {
	dev := gputest.New()
	desc := quadDescriptor()
	desc.IndexCount = 0

	mesh, err := NewRenderableMesh(dev, desc)
	require.NoError(t, err)
	assert.Equal(t, gpu.DrawArrays, mesh.DrawFunction())
	assert.Zero(t, mesh.EBO())
}

func TestRenderableMesh_SizeOfIndexType(t *testing.T) {
	cases := []struct {
		indices []byte
		typ     gpu.IndexType
		size    int
	}{
		{gpu.IndexBytes([]uint8{0, 1, 2}), gpu.IndexUnsignedByte, 1},
		{gpu.IndexBytes([]uint16{0, 1, 2}), gpu.IndexUnsignedShort, 2},
		{gpu.IndexBytes([]uint32{0, 1, 2}), gpu.IndexUnsignedInt, 4},
	}
	for _, tc := range cases {
		t.Run(tc.typ.String(), func(t *testing.T) {
			desc := quadDescriptor()
			desc.Indices = tc.indices
			desc.IndexType = tc.typ
			desc.IndexCount = 3

			mesh, err := NewRenderableMesh(gputest.New(), desc)
			require.NoError(t, err)
			assert.Equal(t, tc.size, mesh.SizeOfIndexType())
			assert.NotEqual(t, gpu.InvalidIndexSize, mesh.SizeOfIndexType())
		})
	}
}

func TestRenderableMesh_InvalidIndexTypeFailsBeforeAllocation(t *testing.T) {
	for _, bad := range []gpu.IndexType{0, 4, 200} {
		dev := gputest.New()
		desc := quadDescriptor()
		desc.IndexType = bad

		mesh, err := NewRenderableMesh(dev, desc)
		require.Error(t, err)
		assert.True(t, errors.Is(err, gpu.ErrInvalidIndexType))
		assert.Equal(t, MeshUninitialized, mesh.State())
		assert.Empty(t, dev.Calls(), "no device call on rejected input")
	}
}

func TestRenderableMesh_InvalidIndexTypeIgnoredWithoutIndices(t *testing.T) {
	desc := quadDescriptor()
	desc.Indices = nil
	desc.IndexCount = 0
	desc.IndexType = 0

	_, err := NewRenderableMesh(gputest.New(), desc)
	assert.NoError(t, err)
}

func TestRenderableMesh_MustNewPanicsOnInvalidIndexType(t *testing.T) {
	desc := quadDescriptor()
	desc.IndexType = 9
	assert.Panics(t, func() { MustNewRenderableMesh(gputest.New(), desc) })
}

func TestRenderableMesh_RejectsBadInput(t *testing.T) {
	cases := map[string]struct {
		edit func(*MeshDescriptor)
		want error
	}{
		"short vertices":  {func(d *MeshDescriptor) { d.VertexCount = 5 }, ErrShortVertexData},
		"short indices":   {func(d *MeshDescriptor) { d.IndexCount = 7 }, ErrShortIndexData},
		"bad primitive":   {func(d *MeshDescriptor) { d.Primitive = 0 }, gpu.ErrInvalidPrimitive},
		"vertex offset":   {func(d *MeshDescriptor) { d.VertexOffset = 5 }, ErrInvalidOffset},
		"negative offset": {func(d *MeshDescriptor) { d.IndexOffset = -1 }, ErrInvalidOffset},
		"vertex count overflow": {func(d *MeshDescriptor) {
			d.VertexCount = math.MaxInt/2 + 1
			d.VertexSize = 2
		}, ErrShortVertexData},
		"index offset overflow": {func(d *MeshDescriptor) { d.IndexOffset = math.MaxInt / 2 }, ErrShortIndexData},
		"index count overflow":  {func(d *MeshDescriptor) { d.IndexCount = math.MaxInt / 2 }, ErrShortIndexData},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			dev := gputest.New()
			desc := quadDescriptor()
			tc.edit(&desc)

			_, err := NewRenderableMesh(dev, desc)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Zero(t, dev.Allocations())
		})
	}

	_, err := NewRenderableMesh(nil, quadDescriptor())
	assert.True(t, errors.Is(err, gpu.ErrNoDevice))
}

func TestRenderableMesh_EBOOffsetIsInBytes(t *testing.T) {
	desc := quadDescriptor()
	desc.Indices = gpu.IndexBytes([]uint16{0, 1, 2, 2, 3, 0})
	desc.IndexType = gpu.IndexUnsignedShort
	desc.IndexOffset = 3
	desc.IndexCount = 3

	mesh, err := NewRenderableMesh(gputest.New(), desc)
	require.NoError(t, err)
	assert.Equal(t, 6, mesh.EBOOffset())

	for _, tc := range []struct {
		typ     gpu.IndexType
		indices []byte
	}{
		{gpu.IndexUnsignedByte, gpu.IndexBytes([]uint8{0, 1, 2, 2, 3, 0})},
		{gpu.IndexUnsignedInt, gpu.IndexBytes([]uint32{0, 1, 2, 2, 3, 0})},
	} {
		desc.IndexType = tc.typ
		desc.Indices = tc.indices
		mesh, err := NewRenderableMesh(gputest.New(), desc)
		require.NoError(t, err)
		assert.Equal(t, 3*tc.typ.Size(), mesh.EBOOffset(), tc.typ.String())
	}
}

func TestRenderableMesh_ConstructionDoesNotDisturbEarlierMesh(t *testing.T) {
	dev := gputest.New()
	first, err := NewRenderableMesh(dev, quadDescriptor())
	require.NoError(t, err)
	before := dev.Attributes(first.VAO())

	uvLayout := []gpu.VertexAttribute{
		{Index: 0, Size: 3, Type: gpu.AttribFloat, Stride: 20, Offset: 0},
		{Index: 1, Size: 2, Type: gpu.AttribFloat, Stride: 20, Offset: 12},
	}
	second, err := NewRenderableMesh(dev, MeshDescriptor{
		Vertices:    make([]float32, 15),
		VertexCount: 3,
		VertexSize:  20,
		Primitive:   gpu.PrimitiveTriangles,
		Attributes:  uvLayout,
	})
	require.NoError(t, err)

	// binding another array after construction must not leak into the first
	dev.BindVertexArray(second.VAO())
	dev.BindBuffer(gpu.ElementArrayBuffer, 0)
	dev.BindVertexArray(0)

	assert.Equal(t, before, dev.Attributes(first.VAO()))
	assert.Equal(t, first.EBO(), dev.ElementBuffer(first.VAO()))
	assert.Len(t, dev.Attributes(second.VAO()), 2)
	assert.Empty(t, dev.InvalidOps())
}

func TestRenderableMesh_TakeMovesOwnership(t *testing.T) {
	dev := gputest.New()
	src, err := NewRenderableMesh(dev, quadDescriptor())
	require.NoError(t, err)
	orig := src

	dst := src.Take()
	assert.Equal(t, orig, dst, "handles move byte for byte")
	assert.True(t, dev.IsLiveBuffer(dst.VBO()))
	assert.True(t, dev.IsLiveBuffer(dst.EBO()))
	assert.Equal(t, RenderableMesh{}, src)
	assert.Equal(t, MeshUninitialized, src.State())

	src.Release(dev)
	assert.Equal(t, 0, dev.CallCount(gputest.OpDeleteBuffer), "moved-from mesh owns nothing")

	dst.Release(dev)
	assert.False(t, dev.IsLiveBuffer(orig.VBO()))
	assert.False(t, dev.IsLiveBuffer(orig.EBO()))
	assert.Equal(t, 0, dev.LiveBuffers())
	assert.Equal(t, 0, dev.LiveVertexArrays())
	assert.Equal(t, 0, dev.DoubleFrees())
}

func TestRenderableMesh_ReleaseIsIdempotent(t *testing.T) {
	dev := gputest.New()
	mesh, err := NewRenderableMesh(dev, quadDescriptor())
	require.NoError(t, err)

	mesh.Release(dev)
	mesh.Release(dev)

	assert.Equal(t, 2, dev.CallCount(gputest.OpDeleteBuffer))
	assert.Equal(t, 1, dev.CallCount(gputest.OpDeleteVertexArray))
	assert.Equal(t, 0, dev.DoubleFrees())
	assert.Equal(t, MeshUninitialized, mesh.State())
}

func TestRenderableMesh_DeviceFailureCleansUp(t *testing.T) {
	boom := errors.New("device lost")
	for _, op := range []gputest.Op{
		gputest.OpGenBuffer,
		gputest.OpBufferData,
		gputest.OpVertexAttribPointer,
	} {
		t.Run(string(op), func(t *testing.T) {
			dev := gputest.New()
			dev.FailNext(op, boom)

			mesh, err := NewRenderableMesh(dev, quadDescriptor())
			require.Error(t, err)
			assert.True(t, errors.Is(err, boom))
			assert.Contains(t, err.Error(), `mesh "quad"`)
			assert.Equal(t, MeshUninitialized, mesh.State())
			assert.Equal(t, 0, dev.LiveBuffers())
			assert.Equal(t, 0, dev.LiveVertexArrays())
			assert.True(t, gpu.Unbound(dev))
		})
	}
}

func TestRenderableMesh_DrawIndexed(t *testing.T) {
	dev := gputest.New()
	desc := quadDescriptor()
	desc.Indices = gpu.IndexBytes([]uint16{0, 1, 2, 2, 3, 0})
	desc.IndexType = gpu.IndexUnsignedShort
	desc.IndexOffset = 3
	desc.IndexCount = 3
	mesh, err := NewRenderableMesh(dev, desc)
	require.NoError(t, err)

	require.NoError(t, mesh.Draw(dev))

	draws := dev.Draws()
	require.Len(t, draws, 1)
	assert.Equal(t, gputest.Draw{
		Function:    gpu.DrawElements,
		Primitive:   gpu.PrimitiveTriangles,
		Count:       3,
		IndexType:   gpu.IndexUnsignedShort,
		ByteOffset:  6,
		VertexArray: mesh.VAO(),
		Program:     7,
		Texture:     gpu.TextureHandle{ID: 3},
	}, draws[0])
	assert.True(t, gpu.Unbound(dev))
}

func TestRenderableMesh_DrawArrays(t *testing.T) {
	dev := gputest.New()
	desc := quadDescriptor()
	desc.Indices = nil
	desc.VertexOffset = 1
	mesh, err := NewRenderableMesh(dev, desc)
	require.NoError(t, err)

	require.NoError(t, mesh.Draw(dev))

	draws := dev.Draws()
	require.Len(t, draws, 1)
	assert.Equal(t, gpu.DrawArrays, draws[0].Function)
	assert.Equal(t, 1, draws[0].First)
	assert.Equal(t, 3, draws[0].Count)
}

func TestRenderableMesh_DrawUninitialized(t *testing.T) {
	var mesh RenderableMesh
	err := mesh.Draw(gputest.New())
	assert.True(t, errors.Is(err, ErrMeshNotReady))
}

func TestRenderableMesh_TextureIsMutable(t *testing.T) {
	dev := gputest.New()
	mesh, err := NewRenderableMesh(dev, quadDescriptor())
	require.NoError(t, err)

	mesh.Texture().ID = 11
	assert.Equal(t, uint32(11), mesh.Texture().ID)

	mesh.SetTexture(gpu.TextureHandle{ID: 12, Unit: 1})
	require.NoError(t, mesh.Draw(dev))
	assert.Equal(t, gpu.TextureHandle{ID: 12, Unit: 1}, dev.Draws()[0].Texture)
}

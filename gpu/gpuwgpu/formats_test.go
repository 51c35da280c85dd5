package gpuwgpu

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/grok/gpu"
)

func TestTopology(t *testing.T) {
	cases := map[gpu.Primitive]wgpu.PrimitiveTopology{
		gpu.PrimitivePoints:        wgpu.PrimitiveTopologyPointList,
		gpu.PrimitiveLines:         wgpu.PrimitiveTopologyLineList,
		gpu.PrimitiveLineStrip:     wgpu.PrimitiveTopologyLineStrip,
		gpu.PrimitiveTriangles:     wgpu.PrimitiveTopologyTriangleList,
		gpu.PrimitiveTriangleStrip: wgpu.PrimitiveTopologyTriangleStrip,
	}
	for p, want := range cases {
		got, err := topology(p)
		require.NoError(t, err, p.String())
		assert.Equal(t, want, got, p.String())
	}

	_, err := topology(0)
	assert.True(t, errors.Is(err, gpu.ErrInvalidPrimitive))
}

func TestIndexFormat(t *testing.T) {
	f, err := indexFormat(gpu.IndexUnsignedByte)
	require.NoError(t, err)
	assert.Equal(t, wgpu.IndexFormatUint16, f, "byte indices are widened")

	f, err = indexFormat(gpu.IndexUnsignedShort)
	require.NoError(t, err)
	assert.Equal(t, wgpu.IndexFormatUint16, f)

	f, err = indexFormat(gpu.IndexUnsignedInt)
	require.NoError(t, err)
	assert.Equal(t, wgpu.IndexFormatUint32, f)

	_, err = indexFormat(gpu.IndexType(9))
	assert.True(t, errors.Is(err, gpu.ErrInvalidIndexType))
}

func TestVertexFormat(t *testing.T) {
	f, err := vertexFormat(gpu.VertexAttribute{Size: 3, Type: gpu.AttribFloat})
	require.NoError(t, err)
	assert.Equal(t, wgpu.VertexFormatFloat32x3, f)

	// normalization does not apply to 32-bit components
	f, err = vertexFormat(gpu.VertexAttribute{Size: 2, Type: gpu.AttribFloat, Normalized: true})
	require.NoError(t, err)
	assert.Equal(t, wgpu.VertexFormatFloat32x2, f)

	f, err = vertexFormat(gpu.VertexAttribute{Size: 4, Type: gpu.AttribUnsignedByte, Normalized: true})
	require.NoError(t, err)
	assert.Equal(t, wgpu.VertexFormatUnorm8x4, f)

	_, err = vertexFormat(gpu.VertexAttribute{Size: 3, Type: gpu.AttribUnsignedByte})
	assert.True(t, errors.Is(err, gpu.ErrUnsupported))

	_, err = vertexFormat(gpu.VertexAttribute{Size: 3})
	assert.True(t, errors.Is(err, gpu.ErrInvalidAttribType))
}

func TestVertexSlots_GroupsByBufferAndStride(t *testing.T) {
	sources := []attributeSource{
		{attr: gpu.VertexAttribute{Index: 0, Size: 3, Type: gpu.AttribFloat, Stride: 20, Offset: 0}, buffer: 1},
		{attr: gpu.VertexAttribute{Index: 1, Size: 2, Type: gpu.AttribFloat, Stride: 20, Offset: 12}, buffer: 1},
		{attr: gpu.VertexAttribute{Index: 2, Size: 4, Type: gpu.AttribFloat}, buffer: 2},
	}

	slots, err := vertexSlots(sources)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	assert.Equal(t, gpu.Buffer(1), slots[0].buffer)
	assert.Equal(t, uint64(20), slots[0].layout.ArrayStride)
	assert.Len(t, slots[0].layout.Attributes, 2)
	assert.Equal(t, uint64(12), slots[0].layout.Attributes[1].Offset)

	assert.Equal(t, gpu.Buffer(2), slots[1].buffer)
	assert.Equal(t, uint64(16), slots[1].layout.ArrayStride, "zero stride means tightly packed")
}

func TestLayoutSignature_IgnoresAttributeOrder(t *testing.T) {
	a := []attributeSource{
		{attr: gpu.VertexAttribute{Index: 0, Size: 3, Type: gpu.AttribFloat, Stride: 20}, buffer: 1},
		{attr: gpu.VertexAttribute{Index: 1, Size: 2, Type: gpu.AttribFloat, Stride: 20, Offset: 12}, buffer: 1},
	}
	b := []attributeSource{a[1], a[0]}

	sa, err := vertexSlots(a)
	require.NoError(t, err)
	sb, err := vertexSlots(b)
	require.NoError(t, err)
	assert.Equal(t, layoutSignature(sa), layoutSignature(sb))
}

func TestWidenIndices(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 1, 0, 255, 0}, widenIndices([]byte{0, 1, 255}))
	assert.Empty(t, widenIndices(nil))
}

func TestPadTo4(t *testing.T) {
	assert.Len(t, padTo4(nil), 4)
	assert.Len(t, padTo4([]byte{1, 2, 3, 4}), 4)
	padded := padTo4([]byte{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 0, 0}, padded)
}

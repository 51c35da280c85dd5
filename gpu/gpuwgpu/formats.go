package gpuwgpu

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/gekko3d/grok/gpu"
)

func topology(p gpu.Primitive) (wgpu.PrimitiveTopology, error) {
	switch p {
	case gpu.PrimitivePoints:
		return wgpu.PrimitiveTopologyPointList, nil
	case gpu.PrimitiveLines:
		return wgpu.PrimitiveTopologyLineList, nil
	case gpu.PrimitiveLineStrip:
		return wgpu.PrimitiveTopologyLineStrip, nil
	case gpu.PrimitiveTriangles:
		return wgpu.PrimitiveTopologyTriangleList, nil
	case gpu.PrimitiveTriangleStrip:
		return wgpu.PrimitiveTopologyTriangleStrip, nil
	}
	return 0, errors.Wrapf(gpu.ErrInvalidPrimitive, "%v", p)
}

func isStrip(p gpu.Primitive) bool {
	return p == gpu.PrimitiveLineStrip || p == gpu.PrimitiveTriangleStrip
}

// indexFormat maps an index type to the format the index buffer is read with.
// Byte indices are widened to 16 bits on upload, WebGPU has no 8-bit format.
func indexFormat(t gpu.IndexType) (wgpu.IndexFormat, error) {
	switch t {
	case gpu.IndexUnsignedByte, gpu.IndexUnsignedShort:
		return wgpu.IndexFormatUint16, nil
	case gpu.IndexUnsignedInt:
		return wgpu.IndexFormatUint32, nil
	}
	return wgpu.IndexFormatUndefined, errors.Wrapf(gpu.ErrInvalidIndexType, "%v", t)
}

type formatKey struct {
	typ        gpu.AttribType
	size       int32
	normalized bool
}

var vertexFormats = map[formatKey]wgpu.VertexFormat{
	{gpu.AttribFloat, 1, false}: wgpu.VertexFormatFloat32,
	{gpu.AttribFloat, 2, false}: wgpu.VertexFormatFloat32x2,
	{gpu.AttribFloat, 3, false}: wgpu.VertexFormatFloat32x3,
	{gpu.AttribFloat, 4, false}: wgpu.VertexFormatFloat32x4,

	{gpu.AttribInt, 1, false}: wgpu.VertexFormatSint32,
	{gpu.AttribInt, 2, false}: wgpu.VertexFormatSint32x2,
	{gpu.AttribInt, 3, false}: wgpu.VertexFormatSint32x3,
	{gpu.AttribInt, 4, false}: wgpu.VertexFormatSint32x4,

	{gpu.AttribUnsignedInt, 1, false}: wgpu.VertexFormatUint32,
	{gpu.AttribUnsignedInt, 2, false}: wgpu.VertexFormatUint32x2,
	{gpu.AttribUnsignedInt, 3, false}: wgpu.VertexFormatUint32x3,
	{gpu.AttribUnsignedInt, 4, false}: wgpu.VertexFormatUint32x4,

	{gpu.AttribByte, 2, false}: wgpu.VertexFormatSint8x2,
	{gpu.AttribByte, 4, false}: wgpu.VertexFormatSint8x4,
	{gpu.AttribByte, 2, true}:  wgpu.VertexFormatSnorm8x2,
	{gpu.AttribByte, 4, true}:  wgpu.VertexFormatSnorm8x4,

	{gpu.AttribUnsignedByte, 2, false}: wgpu.VertexFormatUint8x2,
	{gpu.AttribUnsignedByte, 4, false}: wgpu.VertexFormatUint8x4,
	{gpu.AttribUnsignedByte, 2, true}:  wgpu.VertexFormatUnorm8x2,
	{gpu.AttribUnsignedByte, 4, true}:  wgpu.VertexFormatUnorm8x4,

	{gpu.AttribShort, 2, false}: wgpu.VertexFormatSint16x2,
	{gpu.AttribShort, 4, false}: wgpu.VertexFormatSint16x4,
	{gpu.AttribShort, 2, true}:  wgpu.VertexFormatSnorm16x2,
	{gpu.AttribShort, 4, true}:  wgpu.VertexFormatSnorm16x4,

	{gpu.AttribUnsignedShort, 2, false}: wgpu.VertexFormatUint16x2,
	{gpu.AttribUnsignedShort, 4, false}: wgpu.VertexFormatUint16x4,
	{gpu.AttribUnsignedShort, 2, true}:  wgpu.VertexFormatUnorm16x2,
	{gpu.AttribUnsignedShort, 4, true}:  wgpu.VertexFormatUnorm16x4,
}

func vertexFormat(attr gpu.VertexAttribute) (wgpu.VertexFormat, error) {
	if !attr.Type.Valid() {
		return 0, errors.Wrapf(gpu.ErrInvalidAttribType, "attribute %d", attr.Index)
	}
	key := formatKey{typ: attr.Type, size: attr.Size}
	// normalization is meaningless for 32-bit types
	if attr.Type.Size() < 4 {
		key.normalized = attr.Normalized
	}
	f, ok := vertexFormats[key]
	if !ok {
		return 0, errors.Wrapf(gpu.ErrUnsupported, "attribute %d: %d x type %d (normalized=%t)",
			attr.Index, attr.Size, attr.Type, attr.Normalized)
	}
	return f, nil
}

// attributeSource is a registered attribute and the buffer it reads from.
type attributeSource struct {
	attr   gpu.VertexAttribute
	buffer gpu.Buffer
}

// vertexSlot is one wgpu vertex buffer binding built from the attributes that
// share a source buffer and stride.
type vertexSlot struct {
	buffer gpu.Buffer
	layout wgpu.VertexBufferLayout
}

// vertexSlots groups attributes into vertex buffer layouts. A zero stride is
// resolved to the attribute's own size, the way GL treats tightly packed data.
func vertexSlots(sources []attributeSource) ([]vertexSlot, error) {
	type slotKey struct {
		buffer gpu.Buffer
		stride uint64
	}
	index := make(map[slotKey]int)
	var slots []vertexSlot

	for _, src := range sources {
		format, err := vertexFormat(src.attr)
		if err != nil {
			return nil, err
		}
		stride := uint64(src.attr.Stride)
		if stride == 0 {
			stride = uint64(src.attr.ByteSize())
		}
		key := slotKey{buffer: src.buffer, stride: stride}
		i, ok := index[key]
		if !ok {
			i = len(slots)
			index[key] = i
			slots = append(slots, vertexSlot{
				buffer: src.buffer,
				layout: wgpu.VertexBufferLayout{
					ArrayStride: stride,
					StepMode:    wgpu.VertexStepModeVertex,
				},
			})
		}
		slots[i].layout.Attributes = append(slots[i].layout.Attributes, wgpu.VertexAttribute{
			Format:         format,
			Offset:         uint64(src.attr.Offset),
			ShaderLocation: src.attr.Index,
		})
	}
	return slots, nil
}

// layoutSignature identifies a set of vertex slots for pipeline caching.
func layoutSignature(slots []vertexSlot) string {
	var sb strings.Builder
	for _, s := range slots {
		fmt.Fprintf(&sb, "[%d", s.layout.ArrayStride)
		attrs := append([]wgpu.VertexAttribute(nil), s.layout.Attributes...)
		sort.Slice(attrs, func(i, j int) bool { return attrs[i].ShaderLocation < attrs[j].ShaderLocation })
		for _, a := range attrs {
			fmt.Fprintf(&sb, " %d:%d@%d", a.ShaderLocation, a.Format, a.Offset)
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

// widenIndices converts 8-bit indices to little-endian 16-bit indices.
func widenIndices(data []byte) []byte {
	out := make([]byte, len(data)*2)
	for i, v := range data {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// padTo4 returns data extended with zeros to a multiple of four bytes, the
// size granularity buffers are created with.
func padTo4(data []byte) []byte {
	n := (len(data) + 3) &^ 3
	if n == 0 {
		n = 4
	}
	if n == len(data) {
		return data
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}

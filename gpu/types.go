package gpu

import "fmt"

// VertexArray is a device handle for a vertex array descriptor. Zero is "none".
type VertexArray uint32

// Buffer is a device handle for a buffer object. Zero is "none".
type Buffer uint32

// ProgramID identifies a linked shader program. The mesh only stores it.
type ProgramID uint32

// TextureHandle is a non-owning reference to a texture living elsewhere.
type TextureHandle struct {
	ID   uint32
	Unit uint32
}

func (h TextureHandle) Valid() bool { return h.ID != 0 }

// InvalidIndexSize is returned by IndexType.Size for tags outside the closed set.
const InvalidIndexSize = -1

// InvalidCode is returned by the GL translation functions for unknown tags.
const InvalidCode uint32 = 0xFFFFFFFF

type IndexType uint8

const (
	IndexUnsignedByte IndexType = iota + 1
	IndexUnsignedShort
	IndexUnsignedInt
)

func (t IndexType) Valid() bool {
	return t == IndexUnsignedByte || t == IndexUnsignedShort || t == IndexUnsignedInt
}

// Size is the width of a single index in bytes.
func (t IndexType) Size() int {
	switch t {
	case IndexUnsignedInt:
		return 4
	case IndexUnsignedByte:
		return 1
	case IndexUnsignedShort:
		return 2
	}
	// unreachable for valid tags
	return InvalidIndexSize
}

func (t IndexType) GLCode() uint32 {
	switch t {
	case IndexUnsignedByte:
		return 0x1401 // GL_UNSIGNED_BYTE
	case IndexUnsignedShort:
		return 0x1403 // GL_UNSIGNED_SHORT
	case IndexUnsignedInt:
		return 0x1405 // GL_UNSIGNED_INT
	}
	return InvalidCode
}

func (t IndexType) String() string {
	switch t {
	case IndexUnsignedByte:
		return "uint8"
	case IndexUnsignedShort:
		return "uint16"
	case IndexUnsignedInt:
		return "uint32"
	}
	return fmt.Sprintf("IndexType(%d)", uint8(t))
}

// Primitive selects how consecutive vertices assemble into shapes.
type Primitive uint8

const (
	PrimitivePoints Primitive = iota + 1
	PrimitiveLines
	PrimitiveLineStrip
	PrimitiveTriangles
	PrimitiveTriangleStrip
)

func (p Primitive) Valid() bool {
	return p >= PrimitivePoints && p <= PrimitiveTriangleStrip
}

// GLCode translates the primitive to the OpenGL draw mode constant.
func (p Primitive) GLCode() uint32 {
	switch p {
	case PrimitivePoints:
		return 0x0000 // GL_POINTS
	case PrimitiveLines:
		return 0x0001 // GL_LINES
	case PrimitiveLineStrip:
		return 0x0003 // GL_LINE_STRIP
	case PrimitiveTriangles:
		return 0x0004 // GL_TRIANGLES
	case PrimitiveTriangleStrip:
		return 0x0005 // GL_TRIANGLE_STRIP
	}
	return InvalidCode
}

func (p Primitive) String() string {
	switch p {
	case PrimitivePoints:
		return "points"
	case PrimitiveLines:
		return "lines"
	case PrimitiveLineStrip:
		return "line-strip"
	case PrimitiveTriangles:
		return "triangles"
	case PrimitiveTriangleStrip:
		return "triangle-strip"
	}
	return fmt.Sprintf("Primitive(%d)", uint8(p))
}

// DrawFunction selects between a raw vertex list and an indexed draw.
type DrawFunction uint8

const (
	DrawArrays DrawFunction = iota
	DrawElements
)

func (f DrawFunction) String() string {
	if f == DrawElements {
		return "elements"
	}
	return "arrays"
}

// AttribType is the numeric type of a single vertex attribute component.
type AttribType uint8

const (
	AttribFloat AttribType = iota + 1
	AttribInt
	AttribUnsignedInt
	AttribByte
	AttribUnsignedByte
	AttribShort
	AttribUnsignedShort
)

func (t AttribType) Valid() bool {
	return t >= AttribFloat && t <= AttribUnsignedShort
}

func (t AttribType) Size() int {
	switch t {
	case AttribFloat, AttribInt, AttribUnsignedInt:
		return 4
	case AttribShort, AttribUnsignedShort:
		return 2
	case AttribByte, AttribUnsignedByte:
		return 1
	}
	return 0
}

func (t AttribType) GLCode() uint32 {
	switch t {
	case AttribByte:
		return 0x1400
	case AttribUnsignedByte:
		return 0x1401
	case AttribShort:
		return 0x1402
	case AttribUnsignedShort:
		return 0x1403
	case AttribInt:
		return 0x1404
	case AttribUnsignedInt:
		return 0x1405
	case AttribFloat:
		return 0x1406
	}
	return InvalidCode
}

type BufferTarget uint8

const (
	ArrayBuffer BufferTarget = iota + 1
	ElementArrayBuffer
)

func (t BufferTarget) GLCode() uint32 {
	switch t {
	case ArrayBuffer:
		return 0x8892 // GL_ARRAY_BUFFER
	case ElementArrayBuffer:
		return 0x8893 // GL_ELEMENT_ARRAY_BUFFER
	}
	return InvalidCode
}

func (t BufferTarget) String() string {
	switch t {
	case ArrayBuffer:
		return "array"
	case ElementArrayBuffer:
		return "element-array"
	}
	return fmt.Sprintf("BufferTarget(%d)", uint8(t))
}

type BufferUsage uint8

const (
	StaticDraw BufferUsage = iota
	DynamicDraw
)

func (u BufferUsage) GLCode() uint32 {
	if u == DynamicDraw {
		return 0x88E8 // GL_DYNAMIC_DRAW
	}
	return 0x88E4 // GL_STATIC_DRAW
}

// VertexAttribute describes one field of a vertex record.
// Offset and Stride are in bytes; Size is the component count (1..4).
type VertexAttribute struct {
	Index      uint32
	Size       int32
	Type       AttribType
	Normalized bool
	Stride     int32
	Offset     int
}

// ByteSize is the number of bytes one attribute value occupies.
func (a VertexAttribute) ByteSize() int {
	return int(a.Size) * a.Type.Size()
}

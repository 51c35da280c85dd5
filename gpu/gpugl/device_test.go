package gpugl

import (
	"testing"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/stretchr/testify/assert"

	"github.com/gekko3d/grok/gpu"
)

func TestRegistered(t *testing.T) {
	assert.Contains(t, gpu.Backends(), "gl")
}

func TestGLCodesMatchBindings(t *testing.T) {
	primitives := map[gpu.Primitive]uint32{
		gpu.PrimitivePoints:        gl.POINTS,
		gpu.PrimitiveLines:         gl.LINES,
		gpu.PrimitiveLineStrip:     gl.LINE_STRIP,
		gpu.PrimitiveTriangles:     gl.TRIANGLES,
		gpu.PrimitiveTriangleStrip: gl.TRIANGLE_STRIP,
	}
	for p, code := range primitives {
		assert.Equal(t, code, p.GLCode(), p.String())
	}

	indexTypes := map[gpu.IndexType]uint32{
		gpu.IndexUnsignedByte:  gl.UNSIGNED_BYTE,
		gpu.IndexUnsignedShort: gl.UNSIGNED_SHORT,
		gpu.IndexUnsignedInt:   gl.UNSIGNED_INT,
	}
	for it, code := range indexTypes {
		assert.Equal(t, code, it.GLCode(), it.String())
	}

	attribTypes := map[gpu.AttribType]uint32{
		gpu.AttribFloat:         gl.FLOAT,
		gpu.AttribInt:           gl.INT,
		gpu.AttribUnsignedInt:   gl.UNSIGNED_INT,
		gpu.AttribByte:          gl.BYTE,
		gpu.AttribUnsignedByte:  gl.UNSIGNED_BYTE,
		gpu.AttribShort:         gl.SHORT,
		gpu.AttribUnsignedShort: gl.UNSIGNED_SHORT,
	}
	for at, code := range attribTypes {
		assert.Equal(t, code, at.GLCode())
	}

	assert.Equal(t, uint32(gl.ARRAY_BUFFER), gpu.ArrayBuffer.GLCode())
	assert.Equal(t, uint32(gl.ELEMENT_ARRAY_BUFFER), gpu.ElementArrayBuffer.GLCode())
	assert.Equal(t, uint32(gl.STATIC_DRAW), gpu.StaticDraw.GLCode())
	assert.Equal(t, uint32(gl.DYNAMIC_DRAW), gpu.DynamicDraw.GLCode())
}

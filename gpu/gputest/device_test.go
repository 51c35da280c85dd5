package gputest

import (
	"image"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/grok/gpu"
)

func TestDevice_RegisteredAsRecording(t *testing.T) {
	dev, err := gpu.Open("recording", gpu.Options{})
	require.NoError(t, err)
	assert.IsType(t, &Device{}, dev)
}

func TestDevice_ElementBufferIsVertexArrayState(t *testing.T) {
	dev := New()
	a, _ := dev.GenVertexArray()
	b, _ := dev.GenVertexArray()
	ebo, _ := dev.GenBuffer()

	dev.BindVertexArray(a)
	dev.BindBuffer(gpu.ElementArrayBuffer, ebo)
	assert.Equal(t, ebo, dev.BoundBuffer(gpu.ElementArrayBuffer))

	dev.BindVertexArray(b)
	assert.Equal(t, gpu.Buffer(0), dev.BoundBuffer(gpu.ElementArrayBuffer))

	dev.BindVertexArray(0)
	assert.Equal(t, gpu.Buffer(0), dev.BoundBuffer(gpu.ElementArrayBuffer))
	assert.Equal(t, ebo, dev.ElementBuffer(a))
}

func TestDevice_ElementBindWithoutArrayIsInvalid(t *testing.T) {
	dev := New()
	ebo, _ := dev.GenBuffer()
	dev.BindBuffer(gpu.ElementArrayBuffer, ebo)
	assert.Len(t, dev.InvalidOps(), 1)
}

func TestDevice_BufferDataGoesToBoundBuffer(t *testing.T) {
	dev := New()
	vbo, _ := dev.GenBuffer()

	err := dev.BufferData(gpu.ArrayBuffer, []byte{1, 2, 3}, gpu.StaticDraw)
	assert.True(t, errors.Is(err, gpu.ErrNoBuffer))

	dev.BindBuffer(gpu.ArrayBuffer, vbo)
	require.NoError(t, dev.BufferData(gpu.ArrayBuffer, []byte{1, 2, 3}, gpu.StaticDraw))
	assert.Equal(t, []byte{1, 2, 3}, dev.Data(vbo))
}

func TestDevice_AttributesRecordSourceBuffer(t *testing.T) {
	dev := New()
	vao, _ := dev.GenVertexArray()
	vbo, _ := dev.GenBuffer()

	attr := gpu.VertexAttribute{Index: 1, Size: 2, Type: gpu.AttribFloat, Stride: 8}
	assert.True(t, errors.Is(dev.VertexAttribPointer(attr), gpu.ErrNoVertexArray))

	dev.BindVertexArray(vao)
	assert.True(t, errors.Is(dev.VertexAttribPointer(attr), gpu.ErrNoBuffer))

	dev.BindBuffer(gpu.ArrayBuffer, vbo)
	require.NoError(t, dev.VertexAttribPointer(attr))

	attrs := dev.Attributes(vao)
	require.Len(t, attrs, 1)
	assert.Equal(t, attr, attrs[0].VertexAttribute)
	assert.Equal(t, vbo, attrs[0].Buffer)
}

func TestDevice_DoubleFree(t *testing.T) {
	dev := New()
	vao, _ := dev.GenVertexArray()
	vbo, _ := dev.GenBuffer()

	dev.DeleteVertexArray(vao)
	dev.DeleteBuffer(vbo)
	assert.Equal(t, 0, dev.DoubleFrees())

	dev.DeleteVertexArray(vao)
	dev.DeleteBuffer(vbo)
	assert.Equal(t, 2, dev.DoubleFrees())

	// deleting zero is a no-op, never a double free
	dev.DeleteBuffer(0)
	assert.Equal(t, 2, dev.DoubleFrees())
}

func TestDevice_FailNext(t *testing.T) {
	dev := New()
	boom := errors.New("out of memory")
	dev.FailNext(OpGenBuffer, boom)

	_, err := dev.GenBuffer()
	assert.Equal(t, boom, err)
	assert.Equal(t, 0, dev.LiveBuffers())

	_, err = dev.GenBuffer()
	assert.NoError(t, err)
	assert.Equal(t, 1, dev.LiveBuffers())
	assert.Equal(t, 2, dev.Allocations())
}

func TestDevice_DrawsRecordState(t *testing.T) {
	dev := New()
	vao, _ := dev.GenVertexArray()
	ebo, _ := dev.GenBuffer()
	prog, err := dev.CompileProgram(gpu.ShaderSource{Label: "p"})
	require.NoError(t, err)
	tex, err := dev.UploadTexture(image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.NoError(t, err)

	assert.True(t, errors.Is(dev.DrawArrays(gpu.PrimitiveTriangles, 0, 3), gpu.ErrNoVertexArray))

	dev.BindVertexArray(vao)
	dev.UseProgram(prog)
	dev.BindTexture(tex)
	assert.True(t, errors.Is(dev.DrawElements(gpu.PrimitiveTriangles, 3, gpu.IndexUnsignedShort, 0), gpu.ErrNoElementBuffer))

	dev.BindBuffer(gpu.ElementArrayBuffer, ebo)
	require.NoError(t, dev.DrawElements(gpu.PrimitiveTriangles, 3, gpu.IndexUnsignedShort, 6))
	require.NoError(t, dev.DrawArrays(gpu.PrimitiveLines, 2, 4))

	draws := dev.Draws()
	require.Len(t, draws, 2)
	assert.Equal(t, Draw{
		Function:    gpu.DrawElements,
		Primitive:   gpu.PrimitiveTriangles,
		Count:       3,
		IndexType:   gpu.IndexUnsignedShort,
		ByteOffset:  6,
		VertexArray: vao,
		Program:     prog,
		Texture:     tex,
	}, draws[0])
	assert.Equal(t, gpu.DrawArrays, draws[1].Function)
	assert.Equal(t, 2, draws[1].First)
}

func TestDevice_Frames(t *testing.T) {
	dev := New()
	require.NoError(t, dev.BeginFrame([4]float32{0, 0, 0, 1}))
	require.NoError(t, dev.EndFrame())
	require.NoError(t, dev.EndFrame())

	assert.Equal(t, 2, dev.Frames())
	assert.Equal(t, []string{"EndFrame without BeginFrame"}, dev.InvalidOps())
}

func TestDevice_CompileProgramValidatesWGSL(t *testing.T) {
	dev := New()

	_, err := dev.CompileProgram(gpu.ShaderSource{Label: "broken", WGSL: "fn main( {"})
	assert.True(t, errors.Is(err, gpu.ErrInvalidShader), "got %v", err)
	assert.ErrorContains(t, err, `"broken"`)

	prog, err := dev.CompileProgram(gpu.ShaderSource{Label: "solid", WGSL: `
@vertex
fn vs_main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
	return vec4<f32>(position, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
	return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`})
	require.NoError(t, err)
	assert.NotZero(t, prog)
}

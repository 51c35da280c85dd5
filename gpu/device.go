// Package gpu defines the device contract renderable meshes are built against.
//
// The contract mirrors the classic bind-to-edit model: one vertex array and
// one buffer per target are "current" at any time and every upload or
// attribute registration applies to whatever is current. That state is global
// to the device, so callers must leave it unbound when they are done (see Bind).
//
// Implementations live in sub-packages and register themselves by name:
//
//	import _ "github.com/gekko3d/grok/gpu/gpugl"
//
//	dev, err := gpu.Open("gl", gpu.Options{})
//
// A Device is not safe for concurrent use. All calls must come from the
// goroutine that owns the underlying context.
package gpu

import "image"

type Device interface {
	GenVertexArray() (VertexArray, error)
	GenBuffer() (Buffer, error)

	BindVertexArray(VertexArray)
	BindBuffer(BufferTarget, Buffer)

	// BufferData replaces the contents of the buffer bound to target.
	BufferData(target BufferTarget, data []byte, usage BufferUsage) error
	// VertexAttribPointer enables the attribute on the bound vertex array and
	// sources it from the buffer bound to ArrayBuffer.
	VertexAttribPointer(VertexAttribute) error

	DeleteVertexArray(VertexArray)
	DeleteBuffer(Buffer)

	UseProgram(ProgramID)
	BindTexture(TextureHandle)

	DrawArrays(p Primitive, first, count int) error
	// DrawElements draws count indices starting byteOffset bytes into the
	// element buffer attached to the bound vertex array.
	DrawElements(p Primitive, count int, t IndexType, byteOffset int) error

	BoundVertexArray() VertexArray
	BoundBuffer(BufferTarget) Buffer
}

// ShaderSource carries the program text for every backend; each backend reads
// the fields it understands.
type ShaderSource struct {
	Label          string
	VertexGLSL     string
	FragmentGLSL   string
	WGSL           string
	VertexEntry    string
	FragmentEntry  string
	SamplesTexture bool
}

// ProgramCompiler is implemented by devices that can build shader programs.
type ProgramCompiler interface {
	CompileProgram(ShaderSource) (ProgramID, error)
}

// TextureUploader is implemented by devices that can create 2D textures.
type TextureUploader interface {
	UploadTexture(img *image.RGBA) (TextureHandle, error)
}

// Framer is implemented by devices that need explicit frame boundaries.
type Framer interface {
	BeginFrame(clear [4]float32) error
	EndFrame() error
}

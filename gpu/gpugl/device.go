// Package gpugl implements gpu.Device on OpenGL 4.1 core.
//
// Opening the "gl" backend loads the GL function pointers, so a context must
// already be current on the calling thread. Every call afterwards must come
// from that same thread.
package gpugl

import (
	"image"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/pkg/errors"

	"github.com/gekko3d/grok/gpu"
)

func init() {
	gpu.Register("gl", Open)
}

type Device struct {
	opts gpu.Options
}

// Open loads GL and returns a device bound to the current context.
func Open(opts gpu.Options) (gpu.Device, error) {
	if err := gl.Init(); err != nil {
		return nil, errors.Wrap(err, "gpugl: init")
	}
	return &Device{opts: opts}, nil
}

// Version reports the driver version string.
func (d *Device) Version() string {
	return gl.GoStr(gl.GetString(gl.VERSION))
}

func checkError(op string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return errors.Errorf("gpugl: %s failed: GL error 0x%04x", op, code)
	}
	return nil
}

func (d *Device) GenVertexArray() (gpu.VertexArray, error) {
	var id uint32
	gl.GenVertexArrays(1, &id)
	if err := checkError("GenVertexArrays"); err != nil {
		return 0, err
	}
	return gpu.VertexArray(id), nil
}

func (d *Device) GenBuffer() (gpu.Buffer, error) {
	var id uint32
	gl.GenBuffers(1, &id)
	if err := checkError("GenBuffers"); err != nil {
		return 0, err
	}
	return gpu.Buffer(id), nil
}

func (d *Device) BindVertexArray(vao gpu.VertexArray) {
	gl.BindVertexArray(uint32(vao))
}

func (d *Device) BindBuffer(target gpu.BufferTarget, b gpu.Buffer) {
	gl.BindBuffer(target.GLCode(), uint32(b))
}

func (d *Device) BufferData(target gpu.BufferTarget, data []byte, usage gpu.BufferUsage) error {
	if len(data) == 0 {
		gl.BufferData(target.GLCode(), 0, nil, usage.GLCode())
	} else {
		gl.BufferData(target.GLCode(), len(data), gl.Ptr(data), usage.GLCode())
	}
	return checkError("BufferData")
}

func (d *Device) VertexAttribPointer(attr gpu.VertexAttribute) error {
	if !attr.Type.Valid() {
		return errors.Wrapf(gpu.ErrInvalidAttribType, "attribute %d", attr.Index)
	}
	gl.EnableVertexAttribArray(attr.Index)
	gl.VertexAttribPointerWithOffset(attr.Index, attr.Size, attr.Type.GLCode(), attr.Normalized, attr.Stride, uintptr(attr.Offset))
	return checkError("VertexAttribPointer")
}

func (d *Device) DeleteVertexArray(vao gpu.VertexArray) {
	id := uint32(vao)
	gl.DeleteVertexArrays(1, &id)
}

func (d *Device) DeleteBuffer(b gpu.Buffer) {
	id := uint32(b)
	gl.DeleteBuffers(1, &id)
}

func (d *Device) UseProgram(p gpu.ProgramID) {
	gl.UseProgram(uint32(p))
}

func (d *Device) BindTexture(h gpu.TextureHandle) {
	gl.ActiveTexture(gl.TEXTURE0 + h.Unit)
	gl.BindTexture(gl.TEXTURE_2D, h.ID)
}

func (d *Device) DrawArrays(p gpu.Primitive, first, count int) error {
	if !p.Valid() {
		return gpu.ErrInvalidPrimitive
	}
	gl.DrawArrays(p.GLCode(), int32(first), int32(count))
	return checkError("DrawArrays")
}

func (d *Device) DrawElements(p gpu.Primitive, count int, t gpu.IndexType, byteOffset int) error {
	if !p.Valid() {
		return gpu.ErrInvalidPrimitive
	}
	if !t.Valid() {
		return gpu.ErrInvalidIndexType
	}
	gl.DrawElementsWithOffset(p.GLCode(), int32(count), t.GLCode(), uintptr(byteOffset))
	return checkError("DrawElements")
}

func (d *Device) BoundVertexArray() gpu.VertexArray {
	var id int32
	gl.GetIntegerv(gl.VERTEX_ARRAY_BINDING, &id)
	return gpu.VertexArray(id)
}

func (d *Device) BoundBuffer(target gpu.BufferTarget) gpu.Buffer {
	var pname uint32
	switch target {
	case gpu.ArrayBuffer:
		pname = gl.ARRAY_BUFFER_BINDING
	case gpu.ElementArrayBuffer:
		pname = gl.ELEMENT_ARRAY_BUFFER_BINDING
	default:
		return 0
	}
	var id int32
	gl.GetIntegerv(pname, &id)
	return gpu.Buffer(id)
}

func (d *Device) CompileProgram(src gpu.ShaderSource) (gpu.ProgramID, error) {
	if src.VertexGLSL == "" || src.FragmentGLSL == "" {
		return 0, errors.Wrapf(gpu.ErrUnsupported, "program %q has no GLSL source", src.Label)
	}
	vs, err := compileShader(gl.VERTEX_SHADER, src.VertexGLSL)
	if err != nil {
		return 0, errors.Wrapf(err, "program %q: vertex shader", src.Label)
	}
	defer gl.DeleteShader(vs)

	fs, err := compileShader(gl.FRAGMENT_SHADER, src.FragmentGLSL)
	if err != nil {
		return 0, errors.Wrapf(err, "program %q: fragment shader", src.Label)
	}
	defer gl.DeleteShader(fs)

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)
		return 0, errors.Errorf("gpugl: link program %q: %s", src.Label, strings.TrimRight(log, "\x00"))
	}
	return gpu.ProgramID(program), nil
}

func compileShader(shaderType uint32, source string) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, errors.Errorf("gpugl: compile error: %s", strings.TrimRight(log, "\x00"))
	}
	return shader, nil
}

func (d *Device) UploadTexture(img *image.RGBA) (gpu.TextureHandle, error) {
	size := img.Bounds().Size()
	if size.X <= 0 || size.Y <= 0 {
		return gpu.TextureHandle{}, errors.New("gpugl: empty texture image")
	}

	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(img.Stride/4))
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(size.X), int32(size.Y), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if err := checkError("TexImage2D"); err != nil {
		gl.DeleteTextures(1, &tex)
		return gpu.TextureHandle{}, err
	}
	return gpu.TextureHandle{ID: tex}, nil
}

func (d *Device) BeginFrame(clear [4]float32) error {
	if d.opts.FramebufferSize != nil {
		w, h := d.opts.FramebufferSize()
		gl.Viewport(0, 0, int32(w), int32(h))
	}
	gl.ClearColor(clear[0], clear[1], clear[2], clear[3])
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	return checkError("Clear")
}

func (d *Device) EndFrame() error {
	if d.opts.Present != nil {
		d.opts.Present()
	}
	return nil
}

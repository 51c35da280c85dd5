// Package gputest provides a recording gpu.Device for tests.
//
// The device keeps the same bind-to-edit state machine a GL driver does: the
// element buffer binding belongs to the current vertex array, uploads go to
// whatever is bound, attributes are recorded on the current vertex array.
// Misuse that a driver would flag is collected in InvalidOps instead of being
// silently ignored.
package gputest

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/gekko3d/grok/gpu"
)

type Op string

const (
	OpGenVertexArray      Op = "GenVertexArray"
	OpGenBuffer           Op = "GenBuffer"
	OpBindVertexArray     Op = "BindVertexArray"
	OpBindBuffer          Op = "BindBuffer"
	OpBufferData          Op = "BufferData"
	OpVertexAttribPointer Op = "VertexAttribPointer"
	OpDeleteVertexArray   Op = "DeleteVertexArray"
	OpDeleteBuffer        Op = "DeleteBuffer"
	OpUseProgram          Op = "UseProgram"
	OpBindTexture         Op = "BindTexture"
	OpDrawArrays          Op = "DrawArrays"
	OpDrawElements        Op = "DrawElements"
	OpCompileProgram      Op = "CompileProgram"
	OpUploadTexture       Op = "UploadTexture"
	OpBeginFrame          Op = "BeginFrame"
	OpEndFrame            Op = "EndFrame"
)

type Call struct {
	Op   Op
	Args []any
}

// AttributeBinding is a registered attribute plus the buffer it reads from.
type AttributeBinding struct {
	gpu.VertexAttribute
	Buffer gpu.Buffer
}

// Draw is one recorded draw call together with the state it was issued under.
type Draw struct {
	Function    gpu.DrawFunction
	Primitive   gpu.Primitive
	First       int
	Count       int
	IndexType   gpu.IndexType
	ByteOffset  int
	VertexArray gpu.VertexArray
	Program     gpu.ProgramID
	Texture     gpu.TextureHandle
}

type vertexArray struct {
	attributes    map[uint32]AttributeBinding
	elementBuffer gpu.Buffer
}

type buffer struct {
	data  []byte
	usage gpu.BufferUsage
}

type Device struct {
	mu sync.Mutex

	nextID       uint32
	vertexArrays map[gpu.VertexArray]*vertexArray
	buffers      map[gpu.Buffer]*buffer
	released     map[uint32]bool

	boundArray  gpu.VertexArray
	boundBuffer gpu.Buffer
	program     gpu.ProgramID
	texture     gpu.TextureHandle
	inFrame     bool

	calls       []Call
	draws       []Draw
	invalidOps  []string
	doubleFrees int
	frames      int
	failures    map[Op]error
}

func init() {
	gpu.Register("recording", func(gpu.Options) (gpu.Device, error) {
		return New(), nil
	})
}

func New() *Device {
	return &Device{
		vertexArrays: make(map[gpu.VertexArray]*vertexArray),
		buffers:      make(map[gpu.Buffer]*buffer),
		released:     make(map[uint32]bool),
		failures:     make(map[Op]error),
	}
}

// FailNext makes the next call of op return err.
func (d *Device) FailNext(op Op, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = err
}

func (d *Device) record(op Op, args ...any) error {
	d.calls = append(d.calls, Call{Op: op, Args: args})
	if err, ok := d.failures[op]; ok {
		delete(d.failures, op)
		return err
	}
	return nil
}

func (d *Device) invalid(format string, args ...any) {
	d.invalidOps = append(d.invalidOps, fmt.Sprintf(format, args...))
}

func (d *Device) GenVertexArray() (gpu.VertexArray, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(OpGenVertexArray); err != nil {
		return 0, err
	}
	d.nextID++
	id := gpu.VertexArray(d.nextID)
	d.vertexArrays[id] = &vertexArray{attributes: make(map[uint32]AttributeBinding)}
	return id, nil
}

func (d *Device) GenBuffer() (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(OpGenBuffer); err != nil {
		return 0, err
	}
	d.nextID++
	id := gpu.Buffer(d.nextID)
	d.buffers[id] = &buffer{}
	return id, nil
}

func (d *Device) BindVertexArray(vao gpu.VertexArray) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.record(OpBindVertexArray, vao)
	if _, ok := d.vertexArrays[vao]; vao != 0 && !ok {
		d.invalid("bind of unknown vertex array %d", vao)
		return
	}
	d.boundArray = vao
}

func (d *Device) BindBuffer(target gpu.BufferTarget, b gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.record(OpBindBuffer, target, b)
	if _, ok := d.buffers[b]; b != 0 && !ok {
		d.invalid("bind of unknown buffer %d", b)
		return
	}
	switch target {
	case gpu.ArrayBuffer:
		d.boundBuffer = b
	case gpu.ElementArrayBuffer:
		vao, ok := d.vertexArrays[d.boundArray]
		if !ok {
			d.invalid("element buffer %d bound without a vertex array", b)
			return
		}
		vao.elementBuffer = b
	default:
		d.invalid("bind to unknown target %v", target)
	}
}

func (d *Device) boundTo(target gpu.BufferTarget) gpu.Buffer {
	switch target {
	case gpu.ArrayBuffer:
		return d.boundBuffer
	case gpu.ElementArrayBuffer:
		if vao, ok := d.vertexArrays[d.boundArray]; ok {
			return vao.elementBuffer
		}
	}
	return 0
}

func (d *Device) BufferData(target gpu.BufferTarget, data []byte, usage gpu.BufferUsage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(OpBufferData, target, len(data), usage); err != nil {
		return err
	}
	id := d.boundTo(target)
	buf, ok := d.buffers[id]
	if !ok {
		return errors.Wrapf(gpu.ErrNoBuffer, "target %v", target)
	}
	buf.data = append([]byte(nil), data...)
	buf.usage = usage
	return nil
}

func (d *Device) VertexAttribPointer(attr gpu.VertexAttribute) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(OpVertexAttribPointer, attr); err != nil {
		return err
	}
	vao, ok := d.vertexArrays[d.boundArray]
	if !ok {
		return gpu.ErrNoVertexArray
	}
	if d.boundBuffer == 0 {
		return errors.Wrapf(gpu.ErrNoBuffer, "attribute %d", attr.Index)
	}
	vao.attributes[attr.Index] = AttributeBinding{VertexAttribute: attr, Buffer: d.boundBuffer}
	return nil
}

func (d *Device) DeleteVertexArray(vao gpu.VertexArray) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.record(OpDeleteVertexArray, vao)
	if vao == 0 {
		return
	}
	if _, ok := d.vertexArrays[vao]; !ok {
		if d.released[uint32(vao)] {
			d.doubleFrees++
		}
		return
	}
	delete(d.vertexArrays, vao)
	d.released[uint32(vao)] = true
	if d.boundArray == vao {
		d.boundArray = 0
	}
}

func (d *Device) DeleteBuffer(b gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.record(OpDeleteBuffer, b)
	if b == 0 {
		return
	}
	if _, ok := d.buffers[b]; !ok {
		if d.released[uint32(b)] {
			d.doubleFrees++
		}
		return
	}
	delete(d.buffers, b)
	d.released[uint32(b)] = true
	if d.boundBuffer == b {
		d.boundBuffer = 0
	}
	for _, vao := range d.vertexArrays {
		if vao.elementBuffer == b {
			vao.elementBuffer = 0
		}
	}
}

func (d *Device) UseProgram(p gpu.ProgramID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpUseProgram, p)
	d.program = p
}

func (d *Device) BindTexture(h gpu.TextureHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpBindTexture, h)
	d.texture = h
}

func (d *Device) DrawArrays(p gpu.Primitive, first, count int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(OpDrawArrays, p, first, count); err != nil {
		return err
	}
	if d.boundArray == 0 {
		return gpu.ErrNoVertexArray
	}
	d.draws = append(d.draws, Draw{
		Function:    gpu.DrawArrays,
		Primitive:   p,
		First:       first,
		Count:       count,
		VertexArray: d.boundArray,
		Program:     d.program,
		Texture:     d.texture,
	})
	return nil
}

func (d *Device) DrawElements(p gpu.Primitive, count int, t gpu.IndexType, byteOffset int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(OpDrawElements, p, count, t, byteOffset); err != nil {
		return err
	}
	vao, ok := d.vertexArrays[d.boundArray]
	if !ok {
		return gpu.ErrNoVertexArray
	}
	if vao.elementBuffer == 0 {
		return gpu.ErrNoElementBuffer
	}
	d.draws = append(d.draws, Draw{
		Function:    gpu.DrawElements,
		Primitive:   p,
		Count:       count,
		IndexType:   t,
		ByteOffset:  byteOffset,
		VertexArray: d.boundArray,
		Program:     d.program,
		Texture:     d.texture,
	})
	return nil
}

func (d *Device) BoundVertexArray() gpu.VertexArray {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.boundArray
}

func (d *Device) BoundBuffer(target gpu.BufferTarget) gpu.Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.boundTo(target)
}

func (d *Device) CompileProgram(src gpu.ShaderSource) (gpu.ProgramID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(OpCompileProgram, src.Label); err != nil {
		return 0, err
	}
	if src.WGSL != "" {
		if err := gpu.ValidateWGSL(src.Label, src.WGSL); err != nil {
			return 0, err
		}
	}
	d.nextID++
	return gpu.ProgramID(d.nextID), nil
}

func (d *Device) UploadTexture(img *image.RGBA) (gpu.TextureHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(OpUploadTexture, img.Bounds()); err != nil {
		return gpu.TextureHandle{}, err
	}
	d.nextID++
	return gpu.TextureHandle{ID: d.nextID}, nil
}

func (d *Device) BeginFrame(clear [4]float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(OpBeginFrame, clear); err != nil {
		return err
	}
	if d.inFrame {
		d.invalid("BeginFrame inside an open frame")
	}
	d.inFrame = true
	return nil
}

func (d *Device) EndFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(OpEndFrame); err != nil {
		return err
	}
	if !d.inFrame {
		d.invalid("EndFrame without BeginFrame")
	}
	d.inFrame = false
	d.frames++
	return nil
}

// Inspection helpers.

func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

func (d *Device) CallCount(op Op) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, c := range d.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Allocations counts every GenVertexArray and GenBuffer call, failed or not.
func (d *Device) Allocations() int {
	return d.CallCount(OpGenVertexArray) + d.CallCount(OpGenBuffer)
}

func (d *Device) LiveVertexArrays() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.vertexArrays)
}

func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// Version identifies the recording device the way a driver version string does.
func (d *Device) Version() string {
	return "recording"
}

func (d *Device) IsLiveBuffer(b gpu.Buffer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.buffers[b]
	return ok
}

func (d *Device) IsLiveVertexArray(vao gpu.VertexArray) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.vertexArrays[vao]
	return ok
}

// Data returns a copy of the bytes last uploaded to b.
func (d *Device) Data(b gpu.Buffer) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf, ok := d.buffers[b]; ok {
		return append([]byte(nil), buf.data...)
	}
	return nil
}

// Attributes returns the attribute table of vao ordered by attribute index.
func (d *Device) Attributes(vao gpu.VertexArray) []AttributeBinding {
	d.mu.Lock()
	defer d.mu.Unlock()

	arr, ok := d.vertexArrays[vao]
	if !ok {
		return nil
	}
	res := make([]AttributeBinding, 0, len(arr.attributes))
	for _, a := range arr.attributes {
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Index < res[j].Index })
	return res
}

func (d *Device) ElementBuffer(vao gpu.VertexArray) gpu.Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if arr, ok := d.vertexArrays[vao]; ok {
		return arr.elementBuffer
	}
	return 0
}

func (d *Device) Draws() []Draw {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Draw(nil), d.draws...)
}

func (d *Device) DoubleFrees() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doubleFrees
}

func (d *Device) InvalidOps() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.invalidOps...)
}

func (d *Device) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

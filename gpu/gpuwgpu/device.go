// Package gpuwgpu implements gpu.Device on WebGPU.
//
// WebGPU has no bind-to-edit state, so the device keeps it on the CPU side:
// vertex arrays are records of attribute layout and attached buffers, and the
// current bindings only decide which record an upload or attribute lands in.
// Draws are recorded into the render pass opened by BeginFrame. Render
// pipelines are built lazily per program, vertex layout and topology.
package gpuwgpu

import (
	"image"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"

	"github.com/gekko3d/grok/gpu"
)

func init() {
	gpu.Register("wgpu", Open)
}

type vertexArray struct {
	attributes    map[uint32]attributeSource
	elementBuffer gpu.Buffer
}

type buffer struct {
	target gpu.BufferTarget
	gpu    *wgpu.Buffer
	// shadow keeps element data around so byte indices can be widened at draw
	shadow  []byte
	widened *wgpu.Buffer
}

func (b *buffer) release() {
	if b.gpu != nil {
		b.gpu.Release()
		b.gpu = nil
	}
	if b.widened != nil {
		b.widened.Release()
		b.widened = nil
	}
}

type program struct {
	module         *wgpu.ShaderModule
	vertexEntry    string
	fragmentEntry  string
	samplesTexture bool
}

type pipelineKey struct {
	program  gpu.ProgramID
	layout   string
	topology gpu.Primitive
	strip    wgpu.IndexFormat
}

type bindGroupKey struct {
	pipeline *wgpu.RenderPipeline
	texture  uint32
}

type frame struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
	encoder *wgpu.CommandEncoder
	pass    *wgpu.RenderPassEncoder
}

type Device struct {
	opts gpu.Options

	surface *wgpu.Surface
	adapter *wgpu.Adapter
	device  *wgpu.Device
	queue   *wgpu.Queue
	config  *wgpu.SurfaceConfiguration
	sampler *wgpu.Sampler

	nextID       uint32
	vertexArrays map[gpu.VertexArray]*vertexArray
	buffers      map[gpu.Buffer]*buffer
	programs     map[gpu.ProgramID]*program
	textures     map[uint32]*wgpu.TextureView
	pipelines    map[pipelineKey]*wgpu.RenderPipeline
	bindGroups   map[bindGroupKey]*wgpu.BindGroup

	boundArray  gpu.VertexArray
	boundBuffer gpu.Buffer
	program     gpu.ProgramID
	texture     gpu.TextureHandle

	frame *frame
}

type releaser interface {
	Release()
}

// releaseStack releases what Open created so far, newest first, when a later
// step fails.
type releaseStack []releaser

func (s *releaseStack) push(r releaser) {
	*s = append(*s, r)
}

func (s *releaseStack) release() {
	for i := len(*s) - 1; i >= 0; i-- {
		(*s)[i].Release()
	}
	*s = nil
}

// Open creates a device rendering into opts.Window, which must be a *glfw.Window
// created without a client API.
func Open(opts gpu.Options) (gpu.Device, error) {
	win, ok := opts.Window.(*glfw.Window)
	if !ok || win == nil {
		return nil, errors.Wrap(gpu.ErrUnsupported, "gpuwgpu: a *glfw.Window is required")
	}

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	var undo releaseStack
	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(win))
	undo.push(surface)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		undo.release()
		return nil, errors.Wrap(err, "gpuwgpu: request adapter")
	}
	undo.push(adapter)
	label := opts.Label
	if label == "" {
		label = "grok device"
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: label})
	if err != nil {
		undo.release()
		return nil, errors.Wrap(err, "gpuwgpu: request device")
	}
	undo.push(device)

	width, height := win.GetFramebufferSize()
	if opts.FramebufferSize != nil {
		width, height = opts.FramebufferSize()
	}
	caps := surface.GetCapabilities(adapter)
	if len(caps.Formats) == 0 || len(caps.AlphaModes) == 0 {
		undo.release()
		return nil, errors.Wrap(gpu.ErrUnsupported, "gpuwgpu: surface reports no formats")
	}
	config := &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, device, config)

	sampler, err := device.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeLinear,
		MagFilter:     wgpu.FilterModeLinear,
		MaxAnisotropy: 1,
	})
	if err != nil {
		undo.release()
		return nil, errors.Wrap(err, "gpuwgpu: create sampler")
	}

	return &Device{
		opts:         opts,
		surface:      surface,
		adapter:      adapter,
		device:       device,
		queue:        device.GetQueue(),
		config:       config,
		sampler:      sampler,
		vertexArrays: make(map[gpu.VertexArray]*vertexArray),
		buffers:      make(map[gpu.Buffer]*buffer),
		programs:     make(map[gpu.ProgramID]*program),
		textures:     make(map[uint32]*wgpu.TextureView),
		pipelines:    make(map[pipelineKey]*wgpu.RenderPipeline),
		bindGroups:   make(map[bindGroupKey]*wgpu.BindGroup),
	}, nil
}

func (d *Device) newID() uint32 {
	d.nextID++
	return d.nextID
}

func (d *Device) GenVertexArray() (gpu.VertexArray, error) {
	id := gpu.VertexArray(d.newID())
	d.vertexArrays[id] = &vertexArray{attributes: make(map[uint32]attributeSource)}
	return id, nil
}

func (d *Device) GenBuffer() (gpu.Buffer, error) {
	id := gpu.Buffer(d.newID())
	d.buffers[id] = &buffer{}
	return id, nil
}

func (d *Device) BindVertexArray(vao gpu.VertexArray) {
	d.boundArray = vao
}

func (d *Device) BindBuffer(target gpu.BufferTarget, b gpu.Buffer) {
	switch target {
	case gpu.ArrayBuffer:
		d.boundBuffer = b
	case gpu.ElementArrayBuffer:
		if vao, ok := d.vertexArrays[d.boundArray]; ok {
			vao.elementBuffer = b
		}
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
	id := d.boundTo(target)
	buf, ok := d.buffers[id]
	if !ok {
		return errors.Wrapf(gpu.ErrNoBuffer, "target %v", target)
	}

	var bufUsage wgpu.BufferUsage
	switch target {
	case gpu.ArrayBuffer:
		bufUsage = wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst
	case gpu.ElementArrayBuffer:
		bufUsage = wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst
	default:
		return errors.Errorf("gpuwgpu: unknown buffer target %v", target)
	}

	created, err := d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    target.String() + " buffer",
		Contents: padTo4(data),
		Usage:    bufUsage,
	})
	if err != nil {
		return errors.Wrap(err, "gpuwgpu: create buffer")
	}

	buf.release()
	buf.target = target
	buf.gpu = created
	buf.shadow = nil
	if target == gpu.ElementArrayBuffer {
		buf.shadow = append([]byte(nil), data...)
	}
	return nil
}

func (d *Device) VertexAttribPointer(attr gpu.VertexAttribute) error {
	vao, ok := d.vertexArrays[d.boundArray]
	if !ok {
		return gpu.ErrNoVertexArray
	}
	if d.boundBuffer == 0 {
		return errors.Wrapf(gpu.ErrNoBuffer, "attribute %d", attr.Index)
	}
	if _, err := vertexFormat(attr); err != nil {
		return err
	}
	vao.attributes[attr.Index] = attributeSource{attr: attr, buffer: d.boundBuffer}
	return nil
}

func (d *Device) DeleteVertexArray(vao gpu.VertexArray) {
	delete(d.vertexArrays, vao)
	if d.boundArray == vao {
		d.boundArray = 0
	}
}

func (d *Device) DeleteBuffer(b gpu.Buffer) {
	buf, ok := d.buffers[b]
	if !ok {
		return
	}
	buf.release()
	delete(d.buffers, b)
	if d.boundBuffer == b {
		d.boundBuffer = 0
	}
}

func (d *Device) UseProgram(p gpu.ProgramID) {
	d.program = p
}

func (d *Device) BindTexture(h gpu.TextureHandle) {
	d.texture = h
}

func (d *Device) BoundVertexArray() gpu.VertexArray {
	return d.boundArray
}

func (d *Device) BoundBuffer(target gpu.BufferTarget) gpu.Buffer {
	return d.boundTo(target)
}

// prepareDraw sets the pipeline, bind group and vertex buffers for the bound
// vertex array and returns it.
func (d *Device) prepareDraw(p gpu.Primitive, strip wgpu.IndexFormat) (*vertexArray, error) {
	if d.frame == nil {
		return nil, gpu.ErrNoFrame
	}
	vao, ok := d.vertexArrays[d.boundArray]
	if !ok {
		return nil, gpu.ErrNoVertexArray
	}

	sources := make([]attributeSource, 0, len(vao.attributes))
	for _, src := range vao.attributes {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].attr.Index < sources[j].attr.Index })
	slots, err := vertexSlots(sources)
	if err != nil {
		return nil, err
	}

	pipeline, err := d.pipeline(p, strip, slots)
	if err != nil {
		return nil, err
	}

	pass := d.frame.pass
	pass.SetPipeline(pipeline)
	if prog, ok := d.programs[d.program]; ok && prog.samplesTexture {
		bg, err := d.textureBindGroup(pipeline)
		if err != nil {
			return nil, err
		}
		pass.SetBindGroup(0, bg, nil)
	}
	for i, slot := range slots {
		buf, ok := d.buffers[slot.buffer]
		if !ok || buf.gpu == nil {
			return nil, errors.Wrapf(gpu.ErrNoBuffer, "vertex slot %d", i)
		}
		pass.SetVertexBuffer(uint32(i), buf.gpu, 0, wgpu.WholeSize)
	}
	return vao, nil
}

func (d *Device) DrawArrays(p gpu.Primitive, first, count int) error {
	if _, err := d.prepareDraw(p, wgpu.IndexFormatUndefined); err != nil {
		return err
	}
	d.frame.pass.Draw(uint32(count), 1, uint32(first), 0)
	return nil
}

func (d *Device) DrawElements(p gpu.Primitive, count int, t gpu.IndexType, byteOffset int) error {
	format, err := indexFormat(t)
	if err != nil {
		return err
	}
	strip := wgpu.IndexFormatUndefined
	if isStrip(p) {
		strip = format
	}
	vao, err := d.prepareDraw(p, strip)
	if err != nil {
		return err
	}
	buf, ok := d.buffers[vao.elementBuffer]
	if !ok || buf.gpu == nil {
		return gpu.ErrNoElementBuffer
	}

	indexBuf := buf.gpu
	if t == gpu.IndexUnsignedByte {
		if buf.widened == nil {
			buf.widened, err = d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
				Label:    "widened index buffer",
				Contents: padTo4(widenIndices(buf.shadow)),
				Usage:    wgpu.BufferUsageIndex,
			})
			if err != nil {
				return errors.Wrap(err, "gpuwgpu: widen indices")
			}
		}
		indexBuf = buf.widened
	}

	pass := d.frame.pass
	pass.SetIndexBuffer(indexBuf, format, 0, wgpu.WholeSize)
	pass.DrawIndexed(uint32(count), 1, uint32(byteOffset/t.Size()), 0, 0)
	return nil
}

func (d *Device) pipeline(p gpu.Primitive, strip wgpu.IndexFormat, slots []vertexSlot) (*wgpu.RenderPipeline, error) {
	key := pipelineKey{program: d.program, layout: layoutSignature(slots), topology: p, strip: strip}
	if pl, ok := d.pipelines[key]; ok {
		return pl, nil
	}

	prog, ok := d.programs[d.program]
	if !ok {
		return nil, errors.Errorf("gpuwgpu: program %d is not compiled", d.program)
	}
	topo, err := topology(p)
	if err != nil {
		return nil, err
	}

	layouts := make([]wgpu.VertexBufferLayout, len(slots))
	for i, s := range slots {
		layouts[i] = s.layout
	}

	pl, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "mesh pipeline",
		Vertex: wgpu.VertexState{
			Module:     prog.module,
			EntryPoint: prog.vertexEntry,
			Buffers:    layouts,
		},
		Fragment: &wgpu.FragmentState{
			Module:     prog.module,
			EntryPoint: prog.fragmentEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    d.config.Format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:         topo,
			StripIndexFormat: strip,
			FrontFace:        wgpu.FrontFaceCCW,
			CullMode:         wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "gpuwgpu: create render pipeline")
	}
	d.pipelines[key] = pl
	return pl, nil
}

func (d *Device) textureBindGroup(pipeline *wgpu.RenderPipeline) (*wgpu.BindGroup, error) {
	key := bindGroupKey{pipeline: pipeline, texture: d.texture.ID}
	if bg, ok := d.bindGroups[key]; ok {
		return bg, nil
	}
	view, ok := d.textures[d.texture.ID]
	if !ok {
		return nil, errors.Errorf("gpuwgpu: texture %d is not uploaded", d.texture.ID)
	}

	layout := pipeline.GetBindGroupLayout(0)
	defer layout.Release()

	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: view},
			{Binding: 1, Sampler: d.sampler},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "gpuwgpu: create bind group")
	}
	d.bindGroups[key] = bg
	return bg, nil
}

func (d *Device) CompileProgram(src gpu.ShaderSource) (gpu.ProgramID, error) {
	if src.WGSL == "" {
		return 0, errors.Wrapf(gpu.ErrUnsupported, "program %q has no WGSL source", src.Label)
	}
	if err := gpu.ValidateWGSL(src.Label, src.WGSL); err != nil {
		return 0, err
	}
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          src.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src.WGSL},
	})
	if err != nil {
		return 0, errors.Wrapf(err, "gpuwgpu: program %q", src.Label)
	}

	prog := &program{
		module:         module,
		vertexEntry:    src.VertexEntry,
		fragmentEntry:  src.FragmentEntry,
		samplesTexture: src.SamplesTexture,
	}
	if prog.vertexEntry == "" {
		prog.vertexEntry = "vs_main"
	}
	if prog.fragmentEntry == "" {
		prog.fragmentEntry = "fs_main"
	}

	id := gpu.ProgramID(d.newID())
	d.programs[id] = prog
	return id, nil
}

func (d *Device) UploadTexture(img *image.RGBA) (gpu.TextureHandle, error) {
	size := img.Bounds().Size()
	if size.X <= 0 || size.Y <= 0 {
		return gpu.TextureHandle{}, errors.New("gpuwgpu: empty texture image")
	}

	extent := wgpu.Extent3D{
		Width:              uint32(size.X),
		Height:             uint32(size.Y),
		DepthOrArrayLayers: 1,
	}
	texture, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return gpu.TextureHandle{}, errors.Wrap(err, "gpuwgpu: create texture")
	}
	defer texture.Release()

	view, err := texture.CreateView(nil)
	if err != nil {
		return gpu.TextureHandle{}, errors.Wrap(err, "gpuwgpu: create texture view")
	}

	err = d.queue.WriteTexture(
		texture.AsImageCopy(),
		img.Pix,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(img.Stride),
			RowsPerImage: uint32(size.Y),
		},
		&extent,
	)
	if err != nil {
		view.Release()
		return gpu.TextureHandle{}, errors.Wrap(err, "gpuwgpu: write texture")
	}

	id := d.newID()
	d.textures[id] = view
	return gpu.TextureHandle{ID: id}, nil
}

func (d *Device) resize() {
	if d.opts.FramebufferSize == nil {
		return
	}
	w, h := d.opts.FramebufferSize()
	if w <= 0 || h <= 0 {
		return
	}
	if uint32(w) == d.config.Width && uint32(h) == d.config.Height {
		return
	}
	d.config.Width = uint32(w)
	d.config.Height = uint32(h)
	d.surface.Configure(d.adapter, d.device, d.config)
}

func (d *Device) BeginFrame(clear [4]float32) error {
	if d.frame != nil {
		return errors.New("gpuwgpu: frame already open")
	}
	d.resize()

	texture, err := d.surface.GetCurrentTexture()
	if err != nil {
		return errors.Wrap(err, "gpuwgpu: acquire surface texture")
	}
	view, err := texture.CreateView(nil)
	if err != nil {
		texture.Release()
		return errors.Wrap(err, "gpuwgpu: create surface view")
	}
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		texture.Release()
		return errors.Wrap(err, "gpuwgpu: create command encoder")
	}

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    view,
			LoadOp:  wgpu.LoadOpClear,
			StoreOp: wgpu.StoreOpStore,
			ClearValue: wgpu.Color{
				R: float64(clear[0]),
				G: float64(clear[1]),
				B: float64(clear[2]),
				A: float64(clear[3]),
			},
		}},
	})
	d.frame = &frame{texture: texture, view: view, encoder: encoder, pass: pass}
	return nil
}

func (d *Device) EndFrame() error {
	f := d.frame
	if f == nil {
		return gpu.ErrNoFrame
	}
	d.frame = nil
	defer f.texture.Release()
	defer f.view.Release()

	if err := f.pass.End(); err != nil {
		return errors.Wrap(err, "gpuwgpu: end render pass")
	}
	cmd, err := f.encoder.Finish(nil)
	if err != nil {
		return errors.Wrap(err, "gpuwgpu: finish encoder")
	}
	d.queue.Submit(cmd)
	d.surface.Present()
	if d.opts.Present != nil {
		d.opts.Present()
	}
	return nil
}

// Close releases every object the device still holds.
func (d *Device) Close() error {
	for _, bg := range d.bindGroups {
		bg.Release()
	}
	for _, pl := range d.pipelines {
		pl.Release()
	}
	for _, p := range d.programs {
		p.module.Release()
	}
	for _, v := range d.textures {
		v.Release()
	}
	for _, b := range d.buffers {
		b.release()
	}
	d.bindGroups = nil
	d.pipelines = nil
	d.programs = nil
	d.textures = nil
	d.buffers = nil
	d.vertexArrays = nil

	d.sampler.Release()
	d.queue.Release()
	d.device.Release()
	d.adapter.Release()
	d.surface.Release()
	return nil
}

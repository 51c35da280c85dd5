package grok

import (
	"image"
	"io"
	"slices"

	"github.com/pkg/errors"

	"github.com/gekko3d/grok/gpu"
)

// RenderModule opens a device on the named backend and installs the systems
// that build, draw and release RenderableMesh components.
//
// Backends register themselves on import; a program using the module must
// import at least one, e.g. github.com/gekko3d/grok/gpu/gpugl.
type RenderModule struct {
	Backend string
	Clear   [4]float32
	Label   string
}

type RenderStats struct {
	Frames     int `json:"frames"`
	Draws      int `json:"draws"` // draws issued in the last frame
	DrawErrors int `json:"draw_errors"`
	Built      int `json:"built"`
	Failed     int `json:"failed"`
	Released   int `json:"released"`
}

// RenderDevice is the resource wrapping the opened device. It keeps the owning
// copy of every mesh it built; the ECS component is an alias used for drawing.
type RenderDevice struct {
	Device  gpu.Device
	Backend string
	Clear   [4]float32
	Stats   RenderStats

	meshes map[EntityId]RenderableMesh
}

func NewRenderDevice(dev gpu.Device, backend string) *RenderDevice {
	return &RenderDevice{
		Device:  dev,
		Backend: backend,
		meshes:  make(map[EntityId]RenderableMesh),
	}
}

// OwnedMeshes is the number of meshes whose buffers are still live.
func (rd *RenderDevice) OwnedMeshes() int {
	return len(rd.meshes)
}

// CompileProgram builds a shader program when the device supports it.
func (rd *RenderDevice) CompileProgram(src gpu.ShaderSource) (gpu.ProgramID, error) {
	pc, ok := rd.Device.(gpu.ProgramCompiler)
	if !ok {
		return 0, errors.Wrapf(gpu.ErrUnsupported, "%s: compile program", rd.Backend)
	}
	return pc.CompileProgram(src)
}

// UploadTexture converts img to RGBA and uploads it when the device supports it.
func (rd *RenderDevice) UploadTexture(img image.Image) (gpu.TextureHandle, error) {
	tu, ok := rd.Device.(gpu.TextureUploader)
	if !ok {
		return gpu.TextureHandle{}, errors.Wrapf(gpu.ErrUnsupported, "%s: upload texture", rd.Backend)
	}
	return tu.UploadTexture(ImageToRGBA(img))
}

// Close releases every owned mesh and closes the device if it can be closed.
func (rd *RenderDevice) Close() error {
	for eid, mesh := range rd.meshes {
		mesh.Release(rd.Device)
		delete(rd.meshes, eid)
	}
	if c, ok := rd.Device.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (m RenderModule) Install(app *App, cmd *Commands) {
	backend := m.Backend
	if backend == "" {
		backend = "gl"
	}
	ensureSingleRenderer(app, "mesh")

	if GetResource[MeshLibrary](cmd) == nil {
		app.addResources(NewMeshLibrary())
	}

	opts := gpu.Options{Label: m.Label}
	if ws := GetResource[WindowState](cmd); ws != nil {
		opts = ws.deviceOptions(opts)
	}
	dev, err := gpu.Open(backend, opts)
	if err != nil {
		app.Logger().Errorf("render: %v (available: %v)", err, gpu.Backends())
		panic(err)
	}
	if v, ok := dev.(interface{ Version() string }); ok {
		app.Logger().Infof("render: opened %s device (%s)", backend, v.Version())
	} else {
		app.Logger().Infof("render: opened %s device", backend)
	}

	rd := NewRenderDevice(dev, backend)
	rd.Clear = m.Clear
	app.addResources(rd)
	app.AtExit(func() {
		if err := rd.Close(); err != nil {
			app.Logger().Warnf("render: close device: %v", err)
		}
	})

	app.UseSystem(System(meshBuildSystem).InStage(PreRender))
	app.UseSystem(System(meshRenderSystem).InStage(Render))
	app.UseSystem(System(meshReleaseSystem).InStage(PostRender))
}

// meshBuildSystem turns every MeshRef without a mesh into a RenderableMesh.
// Failures are logged once and the entity is tagged with MeshError.
func meshBuildSystem(cmd *Commands, rd *RenderDevice, lib *MeshLibrary) {
	log := cmd.Logger()
	MakeQuery3[MeshRef, RenderableMesh, MeshError](cmd).Map(
		func(eid EntityId, ref *MeshRef, mesh *RenderableMesh, failed *MeshError) bool {
			if mesh != nil || failed != nil {
				return true
			}

			asset, ok := lib.Mesh(ref.Asset)
			if !ok {
				log.Errorf("render: entity %d: unknown mesh asset %s", eid, ref.Asset)
				cmd.AddComponents(eid, MeshError{Err: "unknown mesh asset " + string(ref.Asset)})
				rd.Stats.Failed++
				return true
			}

			built, err := NewRenderableMesh(rd.Device, asset.Descriptor())
			if err != nil {
				log.Errorf("render: entity %d: %v", eid, err)
				cmd.AddComponents(eid, MeshError{Err: err.Error()})
				rd.Stats.Failed++
				return true
			}

			if old, ok := rd.meshes[eid]; ok {
				old.Release(rd.Device)
			}
			rd.meshes[eid] = built
			cmd.AddComponents(eid, built)
			rd.Stats.Built++
			log.Debugf("render: entity %d: built %q (%v, %d vertices, %d indices)",
				eid, built.Label(), built.DrawFunction(), built.VertexCount(), built.IndexCount())
			return true
		},
		RenderableMesh{}, MeshError{},
	)
}

// meshRenderSystem draws every ready mesh once, in entity order.
func meshRenderSystem(cmd *Commands, rd *RenderDevice) {
	log := cmd.Logger()

	type entry struct {
		eid  EntityId
		mesh *RenderableMesh
	}
	var visible []entry
	MakeQuery1[RenderableMesh](cmd).Map(func(eid EntityId, mesh *RenderableMesh) bool {
		if mesh.State() == MeshReady {
			visible = append(visible, entry{eid, mesh})
		}
		return true
	})
	slices.SortFunc(visible, func(a, b entry) int { return int(a.eid) - int(b.eid) })

	framer, _ := rd.Device.(gpu.Framer)
	if framer != nil {
		if err := framer.BeginFrame(rd.Clear); err != nil {
			log.Warnf("render: begin frame: %v", err)
			return
		}
	}

	draws := 0
	for _, e := range visible {
		if err := e.mesh.Draw(rd.Device); err != nil {
			log.Errorf("render: entity %d: %v", e.eid, err)
			rd.Stats.DrawErrors++
			continue
		}
		draws++
	}

	if framer != nil {
		if err := framer.EndFrame(); err != nil {
			log.Warnf("render: end frame: %v", err)
		}
	}
	rd.Stats.Draws = draws
	rd.Stats.Frames++
}

// meshReleaseSystem frees the buffers of meshes whose entity was removed or
// whose RenderableMesh component no longer matches the owned one.
func meshReleaseSystem(cmd *Commands, rd *RenderDevice) {
	q := MakeQuery1[RenderableMesh](cmd)
	for eid, owned := range rd.meshes {
		if cur := q.Get(eid); cur != nil && cur.VAO() == owned.VAO() {
			continue
		}
		cmd.Logger().Debugf("render: entity %d: releasing %q", eid, owned.Label())
		owned.Release(rd.Device)
		delete(rd.meshes, eid)
		rd.Stats.Released++
	}
}

// Command meshdemo opens a window and draws a quad, a fan and a cube through
// RenderableMesh on the configured backend. Space swaps textures, Tab spawns
// a fan that disappears after two seconds, Escape quits.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/grok"
	"github.com/gekko3d/grok/gpu"
	_ "github.com/gekko3d/grok/gpu/gpugl"
	_ "github.com/gekko3d/grok/gpu/gpuwgpu"
)

const vertexGLSL = `#version 410 core
layout(location = 0) in vec3 position;
layout(location = 1) in vec2 uv;
out vec2 fragUV;
void main() {
	fragUV = uv;
	gl_Position = vec4(position, 1.0);
}
`

const fragmentGLSL = `#version 410 core
in vec2 fragUV;
uniform sampler2D tex;
out vec4 color;
void main() {
	color = texture(tex, fragUV);
}
`

const shaderWGSL = `
@group(0) @binding(0) var tex: texture_2d<f32>;
@group(0) @binding(1) var samp: sampler;

struct VertexOut {
	@builtin(position) position: vec4<f32>,
	@location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(@location(0) position: vec3<f32>, @location(1) uv: vec2<f32>) -> VertexOut {
	var out: VertexOut;
	out.position = vec4<f32>(position, 1.0);
	out.uv = uv;
	return out;
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
	return textureSample(tex, samp, in.uv);
}
`

// demoState holds what the keyboard systems need: Space cycles the texture of
// every drawn mesh and Tab spawns a short-lived fan.
type demoState struct {
	textures []gpu.TextureHandle
	current  int
	spark    grok.AssetId
}

func textureCycleSystem(cmd *grok.Commands, input *grok.Input, demo *demoState) {
	if !input.JustPressed[grok.KeySpace] || len(demo.textures) < 2 {
		return
	}
	demo.current = (demo.current + 1) % len(demo.textures)
	next := demo.textures[demo.current]
	grok.MakeQuery1[grok.RenderableMesh](cmd).Map(func(_ grok.EntityId, mesh *grok.RenderableMesh) bool {
		*mesh.Texture() = next
		return true
	})
}

func sparkSystem(cmd *grok.Commands, input *grok.Input, demo *demoState) {
	if input.JustPressed[grok.KeyTab] {
		cmd.AddEntity(grok.MeshRef{Asset: demo.spark}, grok.Lifetime{TimeLeft: 2 * time.Second})
	}
}

type sceneModule struct{}

func (sceneModule) Install(app *grok.App, cmd *grok.Commands) {
	rd := grok.GetResource[grok.RenderDevice](cmd)
	lib := grok.GetResource[grok.MeshLibrary](cmd)
	log := cmd.Logger()

	program, err := rd.CompileProgram(gpu.ShaderSource{
		Label:          "textured",
		VertexGLSL:     vertexGLSL,
		FragmentGLSL:   fragmentGLSL,
		WGSL:           shaderWGSL,
		SamplesTexture: true,
	})
	if err != nil {
		log.Errorf("meshdemo: %v", err)
		panic(err)
	}

	checker, err := rd.UploadTexture(grok.Checkerboard(256, 8,
		color.RGBA{R: 230, G: 230, B: 230, A: 255},
		color.RGBA{R: 40, G: 90, B: 160, A: 255}))
	if err != nil {
		log.Errorf("meshdemo: %v", err)
		panic(err)
	}
	label, err := rd.UploadTexture(grok.ScaleToRGBA(grok.TextImage("grok",
		color.RGBA{R: 255, G: 255, B: 255, A: 255},
		color.RGBA{R: 160, G: 40, B: 60, A: 255}, 4), 128, 128))
	if err != nil {
		log.Errorf("meshdemo: %v", err)
		panic(err)
	}

	assets := []grok.MeshAsset{
		grok.QuadMesh(0.6).Transformed(mgl32.Translate3D(-0.55, 0.4, 0)),
		grok.FanMesh(0.3, 24).Transformed(mgl32.Translate3D(0.55, 0.4, 0)),
		grok.CubeMesh(0.5).Transformed(
			mgl32.Translate3D(0, -0.4, 0).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(30))).Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(20)))),
	}
	for _, asset := range assets {
		id := lib.AddMesh(asset.WithMaterial(program, checker))
		cmd.AddEntity(grok.MeshRef{Asset: id})
	}

	spark := lib.AddMesh(grok.FanMesh(0.15, 6).
		Transformed(mgl32.Translate3D(0.6, -0.5, 0)).
		WithMaterial(program, label))

	cmd.AddResources(&demoState{textures: []gpu.TextureHandle{checker, label}, spark: spark})
	app.UseSystem(grok.System(textureCycleSystem).InStage(grok.Update))
	app.UseSystem(grok.System(sparkSystem).InStage(grok.Update))
}

func main() {
	configPath := flag.String("config", grok.ConfigFilename, "path to the YAML or TOML config")
	backend := flag.String("backend", "", "override renderer.backend (gl, wgpu)")
	flag.Parse()

	cfg, err := grok.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Renderer.Backend = *backend
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	builder := grok.NewAppBuilder().
		UseModule(cfg.Modules()...).
		UseModule(grok.TimeModule{}, grok.LifecycleModule{}, grok.InputModule{ExitOnEscape: true})
	if cfg.Debug.Watch {
		builder.UseModule(grok.ConfigWatchModule{Path: *configPath, Initial: cfg})
	}
	builder.UseModule(sceneModule{}).
		Build().
		Run()
}

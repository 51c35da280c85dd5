package grok

import (
	"reflect"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"

	"github.com/gekko3d/grok/gpu"
)

// WindowState is the shared GLFW window resource.
type WindowState struct {
	windowGlfw   *glfw.Window
	WindowWidth  int
	WindowHeight int
	windowTitle  string
	// API is the backend the window's context was created for ("gl" or "wgpu").
	API string
}

func (ws *WindowState) Window() *glfw.Window { return ws.windowGlfw }
func (ws *WindowState) Title() string        { return ws.windowTitle }

// deviceOptions fills the window parts of opts for gpu.Open. A GL context is
// presented by swapping buffers; a WebGPU surface presents itself.
func (ws *WindowState) deviceOptions(opts gpu.Options) gpu.Options {
	if ws.windowGlfw == nil {
		return opts
	}
	opts.Window = ws.windowGlfw
	opts.FramebufferSize = ws.windowGlfw.GetFramebufferSize
	if ws.API == "gl" {
		opts.Present = ws.windowGlfw.SwapBuffers
	}
	if opts.Label == "" {
		opts.Label = ws.windowTitle
	}
	return opts
}

func (ws *WindowState) destroy() {
	if ws.windowGlfw != nil {
		ws.windowGlfw.Destroy()
		ws.windowGlfw = nil
	}
	glfw.Terminate()
}

// PlatformWindowModule ensures a single shared GLFW window (WindowState) is created
// and made available as a resource for the renderer.
// Install is idempotent: if a WindowState resource already exists, it is reused.
type PlatformWindowModule struct {
	Width  int
	Height int
	Title  string
	API    string
}

// NewPlatformWindow creates a module that provides a shared WindowState resource.
// If Width/Height are zero, sensible defaults are used.
func NewPlatformWindow(width, height int, title, api string) *PlatformWindowModule {
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}
	if title == "" {
		title = "Grok"
	}
	if api == "" {
		api = "gl"
	}
	return &PlatformWindowModule{
		Width:  width,
		Height: height,
		Title:  title,
		API:    api,
	}
}

func (m PlatformWindowModule) Install(app *App, cmd *Commands) {
	if app.hasResource(reflect.TypeFor[WindowState]()) {
		return
	}

	ws, err := createWindowState(m.Width, m.Height, m.Title, m.API)
	if err != nil {
		app.Logger().Errorf("window: %v", err)
		panic(err)
	}
	app.Logger().Infof("window: %dx%d %q (%s)", ws.WindowWidth, ws.WindowHeight, ws.windowTitle, ws.API)
	app.addResources(ws)
	app.AtExit(ws.destroy)
	app.UseSystem(System(windowEventsSystem).InStage(Prelude))
}

func createWindowState(windowWidth, windowHeight int, windowTitle, api string) (*WindowState, error) {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "glfw init")
	}

	switch api {
	case "gl":
		glfw.WindowHint(glfw.ContextVersionMajor, 4)
		glfw.WindowHint(glfw.ContextVersionMinor, 1)
		glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
		glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	case "wgpu":
		glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	default:
		glfw.Terminate()
		return nil, errors.Errorf("no window support for backend %q", api)
	}
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(windowWidth, windowHeight, windowTitle, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "create window")
	}
	if api == "gl" {
		win.MakeContextCurrent()
		glfw.SwapInterval(1)
	}

	return &WindowState{
		windowGlfw:   win,
		WindowWidth:  windowWidth,
		WindowHeight: windowHeight,
		windowTitle:  windowTitle,
		API:          api,
	}, nil
}

func windowEventsSystem(cmd *Commands, ws *WindowState) {
	glfw.PollEvents()
	if ws.windowGlfw.ShouldClose() {
		cmd.Exit()
		return
	}
	ws.WindowWidth, ws.WindowHeight = ws.windowGlfw.GetFramebufferSize()
}

package grok

import (
	"github.com/go-gl/glfw/v3.3/glfw"
)

type Key int

const (
	KeySpace Key = iota
	KeyEnter
	KeyEscape
	KeyTab
	KeyBackspace
	KeyRight
	KeyLeft
	KeyDown
	KeyUp
	KeyR
	KeyT
	keyCount
)

var keyToGlfw = map[Key]glfw.Key{
	KeySpace:     glfw.KeySpace,
	KeyEnter:     glfw.KeyEnter,
	KeyEscape:    glfw.KeyEscape,
	KeyTab:       glfw.KeyTab,
	KeyBackspace: glfw.KeyBackspace,
	KeyRight:     glfw.KeyRight,
	KeyLeft:      glfw.KeyLeft,
	KeyDown:      glfw.KeyDown,
	KeyUp:        glfw.KeyUp,
	KeyR:         glfw.KeyR,
	KeyT:         glfw.KeyT,
}

// Input holds per-step key state. JustPressed and JustReleased are true for
// one step only.
type Input struct {
	Pressed      [keyCount]bool
	JustPressed  [keyCount]bool
	JustReleased [keyCount]bool
}

func (input *Input) update(key Key, down bool) {
	input.JustPressed[key] = down && !input.Pressed[key]
	input.JustReleased[key] = !down && input.Pressed[key]
	input.Pressed[key] = down
}

// InputModule polls the window keyboard in PreUpdate. With ExitOnEscape the
// App stops when Escape is pressed. Without a WindowState only the empty
// Input resource is installed.
type InputModule struct {
	ExitOnEscape bool
}

func (mod InputModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Input{})
	if GetResource[WindowState](cmd) == nil {
		app.Logger().Warnf("input: no window, keyboard is not polled")
		return
	}
	app.UseSystem(System(inputSystem).InStage(PreUpdate))
	if mod.ExitOnEscape {
		app.UseSystem(System(exitOnEscapeSystem).InStage(PreUpdate))
	}
}

func inputSystem(s *WindowState, input *Input) {
	for key, glfwKey := range keyToGlfw {
		input.update(key, s.windowGlfw.GetKey(glfwKey) == glfw.Press)
	}
}

func exitOnEscapeSystem(cmd *Commands, input *Input) {
	if input.JustPressed[KeyEscape] {
		cmd.Exit()
	}
}

package grok

import (
	"fmt"
	"reflect"
)

// RendererTag marks that a renderer has been installed into the App.
// Only one renderer may own the device at a time.
type RendererTag struct {
	Name string
}

// ensureSingleRenderer records name as the installed renderer. Installing a
// second, different renderer is a programming error and panics.
func ensureSingleRenderer(app *App, name string) {
	if app == nil {
		panic("ensureSingleRenderer: app is nil")
	}
	res, ok := app.resources[reflect.TypeFor[RendererTag]()]
	if !ok {
		app.addResources(&RendererTag{Name: name})
		return
	}
	if tag := res.(*RendererTag); tag.Name != name {
		app.Logger().Errorf("multiple renderers installed: %s and %s", tag.Name, name)
		panic(fmt.Sprintf("multiple renderers installed: %s and %s", tag.Name, name))
	}
}

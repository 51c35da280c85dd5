package gpu

import "sync"

// Bind makes vao current and, when vbo is non-zero, binds vbo as the array
// buffer. The returned release func restores the unbound state and is safe to
// call more than once, so it can be deferred and also called early.
//
// The element buffer is not touched on release: it is vertex array state, and
// unbinding it while the array is still current would detach it.
func Bind(dev Device, vao VertexArray, vbo Buffer) (release func()) {
	dev.BindVertexArray(vao)
	if vbo != 0 {
		dev.BindBuffer(ArrayBuffer, vbo)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			dev.BindBuffer(ArrayBuffer, 0)
			dev.BindVertexArray(0)
		})
	}
}

// Unbound reports whether dev has no vertex array and no array or element
// buffer current.
func Unbound(dev Device) bool {
	return dev.BoundVertexArray() == 0 &&
		dev.BoundBuffer(ArrayBuffer) == 0 &&
		dev.BoundBuffer(ElementArrayBuffer) == 0
}

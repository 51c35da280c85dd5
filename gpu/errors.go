package gpu

import "github.com/pkg/errors"

var (
	ErrNoDevice          = errors.New("gpu: no device")
	ErrInvalidIndexType  = errors.New("gpu: invalid index element type")
	ErrInvalidPrimitive  = errors.New("gpu: invalid primitive topology")
	ErrInvalidAttribType = errors.New("gpu: invalid vertex attribute type")
	ErrNoVertexArray     = errors.New("gpu: no vertex array bound")
	ErrNoBuffer          = errors.New("gpu: no buffer bound to target")
	ErrNoElementBuffer   = errors.New("gpu: vertex array has no element buffer")
	ErrNoFrame           = errors.New("gpu: draw outside of a frame")
	ErrUnsupported       = errors.New("gpu: not supported by backend")
	ErrUnknownBackend    = errors.New("gpu: unknown backend")
	ErrInvalidShader     = errors.New("gpu: invalid shader source")
)

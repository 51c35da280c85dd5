package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/grok/gpu"
	"github.com/gekko3d/grok/gpu/gputest"
)

func TestBind_ReleaseUnbinds(t *testing.T) {
	dev := gputest.New()
	vao, err := dev.GenVertexArray()
	require.NoError(t, err)
	vbo, err := dev.GenBuffer()
	require.NoError(t, err)

	release := gpu.Bind(dev, vao, vbo)
	assert.Equal(t, vao, dev.BoundVertexArray())
	assert.Equal(t, vbo, dev.BoundBuffer(gpu.ArrayBuffer))

	release()
	assert.True(t, gpu.Unbound(dev))
}

func TestBind_ReleaseKeepsElementBufferOnArray(t *testing.T) {
	dev := gputest.New()
	vao, _ := dev.GenVertexArray()
	ebo, _ := dev.GenBuffer()

	release := gpu.Bind(dev, vao, 0)
	dev.BindBuffer(gpu.ElementArrayBuffer, ebo)
	release()

	assert.True(t, gpu.Unbound(dev))
	assert.Equal(t, ebo, dev.ElementBuffer(vao))
	assert.Empty(t, dev.InvalidOps())
}

func TestBind_ReleaseIsIdempotent(t *testing.T) {
	dev := gputest.New()
	vao, _ := dev.GenVertexArray()

	release := gpu.Bind(dev, vao, 0)
	release()
	release()

	assert.Equal(t, 1, dev.CallCount(gputest.OpBindBuffer))
	assert.Equal(t, 2, dev.CallCount(gputest.OpBindVertexArray))
}

func TestBind_ZeroBufferIsNotBound(t *testing.T) {
	dev := gputest.New()
	vao, _ := dev.GenVertexArray()

	release := gpu.Bind(dev, vao, 0)
	defer release()

	// only the release call touches the array buffer
	assert.Equal(t, 0, dev.CallCount(gputest.OpBindBuffer))
}

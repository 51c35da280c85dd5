package gpuwgpu

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/gekko3d/grok/gpu"
)

type recordRelease struct {
	name string
	log  *[]string
}

func (r recordRelease) Release() { *r.log = append(*r.log, r.name) }

func TestReleaseStack_NewestFirst(t *testing.T) {
	var released []string
	var undo releaseStack
	undo.push(recordRelease{"surface", &released})
	undo.push(recordRelease{"adapter", &released})
	undo.push(recordRelease{"device", &released})

	undo.release()
	assert.Equal(t, []string{"device", "adapter", "surface"}, released)

	undo.release()
	assert.Len(t, released, 3, "a second release is a no-op")
}

func TestOpen_RequiresWindow(t *testing.T) {
	_, err := Open(gpu.Options{})
	assert.True(t, errors.Is(err, gpu.ErrUnsupported), "got %v", err)
}

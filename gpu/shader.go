package gpu

import (
	"github.com/gogpu/naga"
	"github.com/pkg/errors"
)

// ValidateWGSL runs src through the naga front end and SPIR-V back end so a
// broken shader is reported with the program label before any device call.
func ValidateWGSL(label, src string) error {
	if _, err := naga.Compile(src); err != nil {
		return errors.Wrapf(ErrInvalidShader, "program %q: %v", label, err)
	}
	return nil
}

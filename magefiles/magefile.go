//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Default = Test

type Build mg.Namespace

// Compiles every package, including both GPU backends.
func (Build) All() error {
	return sh.RunV("go", "build", "./...")
}

// Builds the demo binary into bin/.
func (Build) Demo() error {
	return sh.RunV("go", "build", "-o", "bin/meshdemo", "./cmd/meshdemo")
}

// Runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

type Run mg.Namespace

// Opens the demo window on the OpenGL backend.
func (Run) GL() error {
	return runDemo("gl")
}

// Opens the demo window on the WebGPU backend.
func (Run) WGPU() error {
	return runDemo("wgpu")
}

func runDemo(backend string) error {
	mg.Deps(Build.Demo)
	fmt.Printf("Running meshdemo on %s...\n", backend)
	return sh.RunV("bin/meshdemo", "-backend", backend)
}

// Runs go mod tidy.
func Tidy() error {
	return sh.Run("go", "mod", "tidy")
}

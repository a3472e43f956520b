//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Packages that do not need a window or a Vulkan loader.
var unitPackages = []string{
	"./engine/config/...",
	"./engine/containers/...",
	"./engine/core/...",
	"./engine/math/...",
	"./engine/renderer/buffer/...",
	"./engine/renderer/descriptor/...",
	"./engine/renderer/shader/...",
	"./engine/renderer/swapchain/...",
	"./engine/resources/...",
	"./testbed/world/...",
	"./engine/renderer",
}

// Runs the unit tests.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs(append([]string{"test", "-count=1"}, unitPackages...)...), withStream())
	return err
}

// Runs the unit tests with the race detector.
func (Test) Race() error {
	mg.Deps(Test.Unit)
	_, err := executeCmd("go", withArgs(append([]string{"test", "-race", "-count=1"}, unitPackages...)...), withStream())
	return err
}

// Runs the vulkan handle table test, which needs cgo and the Vulkan headers.
func (Test) Backend() error {
	_, err := executeCmd("go", withArgs("test", "-count=1", "./engine/renderer/vulkan/..."), withStream())
	return err
}

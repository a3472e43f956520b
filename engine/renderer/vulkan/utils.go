package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// VulkanResultIsSuccess reports whether result lets the caller use the
// output of the call. Suboptimal counts as success.
func VulkanResultIsSuccess(result vk.Result) bool {
	return gpu.Result(result).IsSuccess()
}

// checkResult logs a failed call and returns an error that wraps the
// matching gpu.Result, so callers can test for it with errors.Is.
func checkResult(result vk.Result, op string) error {
	if VulkanResultIsSuccess(result) {
		return nil
	}
	err := errors.Wrapf(gpu.Result(result), "%s failed", op)
	core.LogError("%s", err)
	return err
}

var end = "\x00"
var endChar byte = '\x00'

// VulkanSafeString null-terminates s for the C side.
func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

func boolToVk(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

package vulkan

import (
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestLockPool(t *testing.T) {
	pool := NewVulkanLockPool()

	want := errors.New("vkFake failed")
	if have := pool.SafeCall(DescriptorManagement, func() error { return want }); have != want {
		t.Fatalf("SafeCall:\nhave %v\nwant %v", have, want)
	}
	if have := pool.SafeQueueCall(0, func() error { return want }); have != want {
		t.Fatalf("SafeQueueCall:\nhave %v\nwant %v", have, want)
	}

	// Calls in the same group or queue family never overlap.
	var wg sync.WaitGroup
	var inGroup, inQueue, maxGroup, maxQueue int
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			pool.SafeDo(DescriptorManagement, func() {
				inGroup++
				maxGroup = max(maxGroup, inGroup)
				inGroup--
			})
		}()
		go func() {
			defer wg.Done()
			pool.SafeQueueDo(1, func() {
				inQueue++
				maxQueue = max(maxQueue, inQueue)
				inQueue--
			})
		}()
	}
	wg.Wait()
	if maxGroup != 1 || maxQueue != 1 {
		t.Fatalf("concurrent calls:\nhave group %d queue %d\nwant 1 and 1", maxGroup, maxQueue)
	}
}

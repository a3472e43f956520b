package containers

import (
	"testing"

	"github.com/cockroachdb/errors"
)

func TestRingQueue(t *testing.T) {
	q := NewRingQueue[int](3)
	if _, err := q.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("RingQueue.Dequeue:\nhave %v\nwant %v", err, ErrQueueEmpty)
	}
	for i := 1; i <= 3; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("RingQueue.Enqueue:\nhave %v\nwant %v", err, ErrQueueFull)
	}
	if v, _ := q.Peek(); v != 1 {
		t.Fatalf("RingQueue.Peek:\nhave %d\nwant 1", v)
	}
	q.Push(4)
	var have []int
	q.Each(func(v int) { have = append(have, v) })
	if len(have) != 3 || have[0] != 2 || have[2] != 4 {
		t.Fatalf("RingQueue.Push:\nhave %v\nwant [2 3 4]", have)
	}
	if v, _ := q.Dequeue(); v != 2 || q.Len() != 2 {
		t.Fatalf("RingQueue.Dequeue:\nhave %d (len %d)\nwant 2 (len 2)", v, q.Len())
	}
}

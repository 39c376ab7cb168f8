package queue

import (
	"container/heap"
	"time"

	"github.com/sendloop/courier/id"
)

// delayedItem is a heap entry for a job waiting out a delay.
type delayedItem struct {
	jobID id.JobID
	due   time.Time
}

// delayedHeap is a min-heap of delayed jobs keyed by eligible time.
// A single timer armed for the head of the heap replaces per-job
// timers, so thousands of delayed jobs cost one timer.
type delayedHeap []delayedItem

var _ heap.Interface = (*delayedHeap)(nil)

func (h delayedHeap) Len() int { return len(h) }

func (h delayedHeap) Less(i, k int) bool { return h[i].due.Before(h[k].due) }

func (h delayedHeap) Swap(i, k int) { h[i], h[k] = h[k], h[i] }

func (h *delayedHeap) Push(x any) { *h = append(*h, x.(delayedItem)) }

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// peek returns the earliest-due item without removing it. The heap
// must be non-empty.
func (h delayedHeap) peek() delayedItem { return h[0] }

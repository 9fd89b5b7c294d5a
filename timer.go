// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"container/heap"
	"time"
)

// timer is a deadline-keyed callback fired from Poll.
type timer struct {
	when  time.Time
	seq   uint64
	index int
	fire  func()
}

// timerHeap orders timers by deadline, then by registration order.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// timers is the client's timer wheel.
type timers struct {
	h   timerHeap
	seq uint64
}

func (ts *timers) at(when time.Time, fire func()) *timer {
	ts.seq++
	t := &timer{when: when, seq: ts.seq, fire: fire}
	heap.Push(&ts.h, t)
	return t
}

func (ts *timers) stop(t *timer) {
	if t == nil || t.index < 0 {
		return
	}
	heap.Remove(&ts.h, t.index)
}

// expire fires every timer due at now and returns how many fired.
func (ts *timers) expire(now time.Time) int {
	n := 0
	for len(ts.h) > 0 && !ts.h[0].when.After(now) {
		t := heap.Pop(&ts.h).(*timer)
		t.fire()
		n++
	}
	return n
}

func (ts *timers) next() (time.Time, bool) {
	if len(ts.h) == 0 {
		return time.Time{}, false
	}
	return ts.h[0].when, true
}

func (ts *timers) reset() {
	for _, t := range ts.h {
		t.index = -1
	}
	ts.h = nil
}

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"slices"
	"time"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// NoTimeout makes Wait and QueueNext suspend until the awaited request
// finishes. Request timers still bound the wait.
const NoTimeout time.Duration = -1

// WaitStatus is the outcome of a Wait.
type WaitStatus uint8

const (
	// WaitReady means the request finished and its response is available.
	WaitReady WaitStatus = iota
	// WaitTimeout means the wait's own timeout elapsed first.
	WaitTimeout
	// WaitUnknown means the id does not name a waitable request of the
	// current epoch.
	WaitUnknown
)

func (s WaitStatus) String() string {
	switch s {
	case WaitReady:
		return "ready"
	case WaitTimeout:
		return "timeout"
	}
	return "unknown"
}

// Wait is the effect operation for awaiting one request.
// Perform(Wait{ID: id, Timeout: d}) suspends until the request finishes
// or d elapses. A zero Timeout never suspends; NoTimeout never times out.
type Wait struct {
	kont.Phantom[WaitStatus]
	ID      RequestID
	Timeout time.Duration
}

// DispatchRPC resolves Wait immediately when it can. Otherwise it
// registers r and returns iox.ErrWouldBlock.
func (w Wait) DispatchRPC(c *Client, r resumable) (kont.Resumed, error) {
	if o, ok := c.outcomes[w.ID]; ok && !o.taken {
		return WaitReady, nil
	}
	s := c.slots.lookup(c.epoch, w.ID)
	// Consumed without an outcome: ignored, or its response was taken.
	if s == nil || s.ignored || s.status == slotConsumed || s.status == slotUnused {
		return WaitUnknown, nil
	}
	if w.Timeout == 0 {
		return WaitTimeout, nil
	}
	wt := &waiter{r: r}
	if w.Timeout > 0 {
		wt.timer = c.timers.at(c.now().Add(w.Timeout), func() {
			if !wt.done {
				wt.done = true
				c.dropWaiter(w.ID, wt)
				c.wake(wt.r, WaitTimeout)
			}
		})
	}
	c.waiters[w.ID] = append(c.waiters[w.ID], wt)
	return nil, iox.ErrWouldBlock
}

// QueueNext is the effect operation for draining a wait-queue.
// Perform(QueueNext{Queue: q, Timeout: d}) yields the next finished
// request id of q, or a value <= 0 once q is exhausted or d elapses.
type QueueNext struct {
	kont.Phantom[RequestID]
	Queue   QueueID
	Timeout time.Duration
}

// DispatchRPC pops a finished id when one is ready. Otherwise it parks r
// on the queue and returns iox.ErrWouldBlock.
func (n QueueNext) DispatchRPC(c *Client, r resumable) (kont.Resumed, error) {
	q := c.queues[n.Queue]
	if q == nil {
		return RequestID(0), nil
	}
	if id, ok := q.pop(); ok {
		return id, nil
	}
	if len(q.pending) == 0 || n.Timeout == 0 {
		return RequestID(0), nil
	}
	if q.waiter != nil && !q.waiter.done && q.waiter.r.parked() {
		c.log.Warn().Int("queue", int(n.Queue)).Msg("wait queue already awaited")
		return RequestID(0), nil
	}
	wt := &waiter{r: r}
	if n.Timeout > 0 {
		wt.timer = c.timers.at(c.now().Add(n.Timeout), func() {
			if !wt.done {
				wt.done = true
				if q.waiter == wt {
					q.waiter = nil
				}
				c.wake(wt.r, RequestID(0))
			}
		})
	}
	q.waiter = wt
	return nil, iox.ErrWouldBlock
}

// awaitSlot suspends a request's owner until its slot is answered or
// errored. It registers exactly one owner per slot.
type awaitSlot struct {
	kont.Phantom[struct{}]
	ID RequestID
}

func (a awaitSlot) DispatchRPC(c *Client, r resumable) (kont.Resumed, error) {
	s := c.slots.lookup(c.epoch, a.ID)
	if s == nil {
		panic("tlrpc: request slot vanished before its owner ran")
	}
	if s.status.terminal() {
		return struct{}{}, nil
	}
	if s.owner != nil && s.owner != r {
		panic("tlrpc: request slot already owned")
	}
	s.owner = r
	return nil, iox.ErrWouldBlock
}

// waiter is a single-shot registration of a parked resumable.
type waiter struct {
	r     resumable
	done  bool
	timer *timer
}

// dropWaiter unregisters a timed-out waiter of id.
func (c *Client) dropWaiter(id RequestID, wt *waiter) {
	ws := slices.DeleteFunc(c.waiters[id], func(x *waiter) bool { return x == wt })
	if len(ws) == 0 {
		delete(c.waiters, id)
		return
	}
	c.waiters[id] = ws
}

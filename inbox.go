// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// inboxCapacity bounds completions buffered between a reader goroutine
// and the client loop.
const inboxCapacity = 256

// Inbox carries completions from exactly one producer goroutine to the
// client loop over a bounded lock-free SPSC queue.
type Inbox struct {
	q    lfq.SPSC[Completion]
	slot Completion
}

// NewInbox returns an empty Inbox.
func NewInbox() *Inbox {
	in := &Inbox{}
	in.q.Init(inboxCapacity)
	return in
}

// TryPush enqueues c. Non-blocking: returns iox.ErrWouldBlock when full.
func (in *Inbox) TryPush(c Completion) error {
	in.slot = c
	return in.q.Enqueue(&in.slot)
}

// Push enqueues c, backing off while the consumer catches up.
// Producer side only.
func (in *Inbox) Push(c Completion) {
	var bo iox.Backoff
	for {
		err := in.TryPush(c)
		if err == nil {
			return
		}
		if !iox.IsWouldBlock(err) {
			panic("tlrpc: inbox enqueue: " + err.Error())
		}
		bo.Wait()
	}
}

// Drain delivers every queued completion to d. Consumer side only.
func (in *Inbox) Drain(d Deliverer) int {
	n := 0
	for {
		c, err := in.q.Dequeue()
		if err != nil {
			return n
		}
		c.deliver(d)
		n++
	}
}

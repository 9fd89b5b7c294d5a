// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"context"
	"time"

	"code.hybscloud.com/kont"
)

// QueueID names a wait-queue of the current epoch. Values <= 0 are never
// assigned.
type QueueID int

// waitQueue batches outstanding requests and yields them in completion
// order. Yielding is destructive: an id is never returned twice.
type waitQueue struct {
	members map[RequestID]struct{}
	pending map[RequestID]struct{}
	ready   []RequestID
	waiter  *waiter
}

func (q *waitQueue) pop() (RequestID, bool) {
	if len(q.ready) == 0 {
		return 0, false
	}
	id := q.ready[0]
	q.ready = q.ready[1:]
	return id, true
}

// complete moves id to the ready list and hands it to a parked drainer.
func (q *waitQueue) complete(c *Client, id RequestID) {
	if _, ok := q.pending[id]; !ok {
		return
	}
	delete(q.pending, id)
	q.ready = append(q.ready, id)
	w := q.waiter
	if w == nil || w.done {
		return
	}
	q.waiter = nil
	if !w.r.parked() {
		return
	}
	w.done = true
	c.timers.stop(w.timer)
	next, _ := q.pop()
	c.wake(w.r, next)
}

// QueueCreate builds a wait-queue over ids. Zero ids make an empty queue.
func (c *Client) QueueCreate(ids ...RequestID) QueueID {
	c.nextQueue++
	qid := c.nextQueue
	c.queues[qid] = &waitQueue{
		members: make(map[RequestID]struct{}, len(ids)),
		pending: make(map[RequestID]struct{}, len(ids)),
	}
	c.QueuePush(qid, ids...)
	return qid
}

// QueuePush adds ids to q. Ids that are not waitable requests of the
// current epoch, or already in q, are skipped. Requests that finished
// already become ready immediately, in argument order. It reports false
// for an unknown queue.
func (c *Client) QueuePush(qid QueueID, ids ...RequestID) bool {
	q := c.queues[qid]
	if q == nil {
		return false
	}
	for _, id := range ids {
		if _, dup := q.members[id]; dup {
			continue
		}
		if o, ok := c.outcomes[id]; ok {
			if o.taken {
				continue
			}
			q.members[id] = struct{}{}
			q.ready = append(q.ready, id)
			continue
		}
		s := c.slots.lookup(c.epoch, id)
		if s == nil || s.ignored || s.status == slotUnused || s.status == slotConsumed {
			continue
		}
		q.members[id] = struct{}{}
		q.pending[id] = struct{}{}
		c.queuesOf[id] = append(c.queuesOf[id], qid)
	}
	return true
}

// QueueEmpty reports whether q has nothing left to yield.
func (c *Client) QueueEmpty(qid QueueID) bool {
	q := c.queues[qid]
	return q == nil || len(q.ready) == 0 && len(q.pending) == 0
}

// QueueClose forgets q. A parked drainer is resumed with 0.
func (c *Client) QueueClose(qid QueueID) {
	q := c.queues[qid]
	if q == nil {
		return
	}
	delete(c.queues, qid)
	if w := q.waiter; w != nil && !w.done {
		w.done = true
		c.timers.stop(w.timer)
		c.wake(w.r, RequestID(0))
		c.runReady()
	}
}

// QueueNext yields the next finished id of q, suspending up to timeout.
func (c *Client) QueueNext(qid QueueID, timeout time.Duration) kont.Eff[RequestID] {
	return kont.Perform(QueueNext{Queue: qid, Timeout: timeout})
}

// QueueNextSync is QueueNext that polls the client on the calling
// goroutine instead of suspending.
func (c *Client) QueueNextSync(ctx context.Context, qid QueueID, timeout time.Duration) (RequestID, error) {
	return Run(ctx, c, c.QueueNext(qid, timeout))
}

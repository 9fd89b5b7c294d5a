// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"fmt"
	"time"
)

// RequestID identifies one sent request within an epoch. Values <= 0
// denote failure.
type RequestID int64

type slotStatus uint8

const (
	slotUnused slotStatus = iota
	slotPendingNoTimer
	slotPendingWithTimer
	slotAnswered
	slotErrored
	slotConsumed
)

func (s slotStatus) String() string {
	switch s {
	case slotUnused:
		return "unused"
	case slotPendingNoTimer:
		return "pending"
	case slotPendingWithTimer:
		return "pending+timer"
	case slotAnswered:
		return "answered"
	case slotErrored:
		return "errored"
	case slotConsumed:
		return "consumed"
	}
	return fmt.Sprintf("slotStatus(%d)", uint8(s))
}

func (s slotStatus) pending() bool {
	return s == slotPendingNoTimer || s == slotPendingWithTimer
}

func (s slotStatus) terminal() bool {
	return s >= slotAnswered
}

// slot is the completion state of one request.
// Transitions: Pending* -> Answered|Errored -> Consumed.
type slot struct {
	status  slotStatus
	answer  []byte
	code    int32
	message string
	timer   *timer
	timeout time.Duration
	owner   resumable
	ignored bool

	port     int
	actorID  int64
	function string
	size     int
	begin    time.Time
}

// slotTable maps the request ids of one epoch onto a growable array.
// slots[0] holds id base. Ids in [first, base) were compacted away after
// finishing and resolve to the shared retired slot.
type slotTable struct {
	epoch           uint64
	first           RequestID
	base            RequestID
	next            RequestID
	firstUnfinished RequestID
	slots           []slot
	retired         slot
}

// allocated reports whether the table belongs to epoch.
func (t *slotTable) allocated(epoch uint64) bool {
	return t.slots != nil && t.epoch == epoch
}

// add registers id as the next request of epoch. The first id of an epoch
// discards any previous table. Ids must arrive in increasing order
// without gaps.
func (t *slotTable) add(epoch uint64, id RequestID, initial int) (*slot, error) {
	if id <= 0 {
		return nil, fmt.Errorf("tlrpc: request id %d out of range", id)
	}
	if !t.allocated(epoch) {
		if initial <= 0 {
			initial = DefaultInitialSlots
		}
		*t = slotTable{
			epoch:           epoch,
			first:           id,
			base:            id,
			next:            id,
			firstUnfinished: id,
			slots:           make([]slot, initial),
			retired:         slot{status: slotConsumed},
		}
	}
	if id != t.next {
		return nil, fmt.Errorf("tlrpc: request id %d out of order, want %d", id, t.next)
	}
	if int(id-t.base) >= len(t.slots) {
		t.grow()
	}
	t.next++
	s := &t.slots[id-t.base]
	*s = slot{}
	return s, nil
}

// grow makes room for one more id: it drops the finished prefix when
// more than half of the table is finished, and doubles otherwise.
func (t *slotTable) grow() {
	n := len(t.slots)
	if t.firstUnfinished > t.base+RequestID(n/2) {
		drop := int(t.firstUnfinished - t.base)
		copy(t.slots, t.slots[drop:])
		clear(t.slots[n-drop:])
		t.base = t.firstUnfinished
		return
	}
	slots := make([]slot, 2*n)
	copy(slots, t.slots)
	t.slots = slots
}

// lookup returns the slot for id, or nil for ids outside the epoch.
func (t *slotTable) lookup(epoch uint64, id RequestID) *slot {
	if !t.allocated(epoch) || id < t.first || id >= t.next {
		return nil
	}
	if id < t.base {
		return &t.retired
	}
	return &t.slots[id-t.base]
}

// advance moves firstUnfinished past consumed slots.
func (t *slotTable) advance() {
	for t.firstUnfinished < t.next && t.slots[t.firstUnfinished-t.base].status == slotConsumed {
		t.firstUnfinished++
	}
}

// size is the number of array slots currently allocated.
func (t *slotTable) size() int {
	return len(t.slots)
}

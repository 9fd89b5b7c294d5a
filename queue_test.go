// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc_test

import (
	"testing"
	"time"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/tlrpc"
)

// drain collects every id q yields until it reports exhaustion.
func drain(c *tlrpc.Client, q tlrpc.QueueID, timeout time.Duration) kont.Eff[[]tlrpc.RequestID] {
	return tlrpc.Loop([]tlrpc.RequestID(nil), func(acc []tlrpc.RequestID) kont.Eff[kont.Either[[]tlrpc.RequestID, []tlrpc.RequestID]] {
		return kont.Bind(c.QueueNext(q, timeout), func(id tlrpc.RequestID) kont.Eff[kont.Either[[]tlrpc.RequestID, []tlrpc.RequestID]] {
			if id <= 0 {
				return kont.Pure(kont.Right[[]tlrpc.RequestID, []tlrpc.RequestID](acc))
			}
			return kont.Pure(kont.Left[[]tlrpc.RequestID, []tlrpc.RequestID](append(acc, id)))
		})
	})
}

func TestQueueCompletionOrder(t *testing.T) {
	h := newHarness(t)
	a, b, c := h.sendInt(1), h.sendInt(2), h.sendInt(3)
	q := h.c.QueueCreate(a, b, c)
	f := tlrpc.Start(h.c, drain(h.c, q, tlrpc.NoTimeout))
	for _, id := range []tlrpc.RequestID{c, a, b} {
		h.mem.Answer(id, ints(0))
		h.c.Poll()
	}
	got, ok := f.Result()
	if !ok {
		t.Fatal("drain not done")
	}
	want := []tlrpc.RequestID{c, a, b}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if !h.c.QueueEmpty(q) {
		t.Fatal("queue not empty after drain")
	}
}

func TestQueueFinishedIDsReadyInPushOrder(t *testing.T) {
	h := newHarness(t)
	a, b := h.sendInt(1), h.sendInt(2)
	h.mem.Answer(b, ints(0))
	h.mem.Answer(a, ints(0))
	h.c.Poll()
	q := h.c.QueueCreate(b, a, b, -1, 999)
	got, err := tlrpc.Run(testContext(t), h.c, drain(h.c, q, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != b || got[1] != a {
		t.Fatalf("got %v, want [%d %d]", got, b, a)
	}
	// Yielding is destructive.
	if id, _ := h.c.QueueNextSync(testContext(t), q, 0); id > 0 {
		t.Fatalf("queue yielded %d twice", id)
	}
}

func TestQueuePushSkipsUnwaitable(t *testing.T) {
	h := newHarness(t)
	a := h.sendInt(1)
	h.mem.Answer(a, ints(0))
	h.c.Poll()
	if _, err := h.c.GetSync(testContext(t), a, 0); err != nil {
		t.Fatal(err)
	}
	q := h.c.QueueCreate()
	if !h.c.QueueEmpty(q) {
		t.Fatal("new queue not empty")
	}
	h.c.QueuePush(q, a, 0, 77)
	if !h.c.QueueEmpty(q) {
		t.Fatal("taken or unknown ids were queued")
	}
	if h.c.QueuePush(tlrpc.QueueID(999), a) {
		t.Fatal("push to unknown queue succeeded")
	}
}

func TestQueueNextTimeout(t *testing.T) {
	h := newHarness(t)
	a := h.sendInt(1)
	q := h.c.QueueCreate(a)
	f := tlrpc.Start(h.c, h.c.QueueNext(q, 100*time.Millisecond))
	h.clock.Advance(100 * time.Millisecond)
	h.c.Poll()
	if id, ok := f.Result(); !ok || id > 0 {
		t.Fatalf("got %d %v, want timeout", id, ok)
	}
	// The id stays queued and is yielded once it finishes.
	h.mem.Answer(a, ints(0))
	h.c.Poll()
	if id, _ := h.c.QueueNextSync(testContext(t), q, 0); id != a {
		t.Fatalf("got %d, want %d", id, a)
	}
}

func TestQueueCloseWakesDrainer(t *testing.T) {
	h := newHarness(t)
	a := h.sendInt(1)
	q := h.c.QueueCreate(a)
	f := tlrpc.Start(h.c, h.c.QueueNext(q, tlrpc.NoTimeout))
	h.c.QueueClose(q)
	if id, ok := f.Result(); !ok || id != 0 {
		t.Fatalf("got %d %v", id, ok)
	}
	if !h.c.QueueEmpty(q) {
		t.Fatal("closed queue not empty")
	}
}

func TestQueueGlobalTimeoutYieldsID(t *testing.T) {
	h := newHarness(t)
	a := h.sendInt(1)
	q := h.c.QueueCreate(a)
	f := tlrpc.Start(h.c, h.c.QueueNext(q, tlrpc.NoTimeout))
	h.expire()
	if id, ok := f.Result(); !ok || id != a {
		t.Fatalf("got %d %v, want %d", id, ok, a)
	}
	r, _ := h.c.GetSync(testContext(t), a, 0)
	if r.Err == nil || r.Err.Code != tlrpc.ErrorQueryTimeout {
		t.Fatalf("response %+v", r)
	}
}

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"code.hybscloud.com/tlrpc"
)

func TestConnectRejectsBadAddress(t *testing.T) {
	h := newHarness(t)
	for _, tc := range []struct {
		host string
		port int
	}{{"", 80}, {"mem", 0}, {"mem", 70000}} {
		conn, err := h.c.Connect(context.Background(), tc.host, tc.port, tlrpc.ConnectOptions{})
		if !errors.Is(err, tlrpc.ErrInvalidConnection) || conn.Valid() {
			t.Fatalf("%q:%d: got %v valid=%v", tc.host, tc.port, err, conn.Valid())
		}
	}
	h.mem.Refuse("down")
	conn, err := h.c.Connect(context.Background(), "down", 80, tlrpc.ConnectOptions{})
	if err == nil || conn.Valid() {
		t.Fatalf("refused host: got %v valid=%v", err, conn.Valid())
	}
}

func TestConnectDefaults(t *testing.T) {
	h := newHarness(t)
	conn, err := h.c.Connect(context.Background(), "mem", 1, tlrpc.ConnectOptions{Timeout: 48 * time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	cfg := tlrpc.DefaultConfig()
	if conn.Timeout != cfg.DefaultTimeout || conn.ConnectTimeout != cfg.ConnectTimeout ||
		conn.ReconnectTimeout != cfg.ReconnectTimeout {
		t.Fatalf("timeouts %v %v %v", conn.Timeout, conn.ConnectTimeout, conn.ReconnectTimeout)
	}
}

// TestSendInvalidConnection checks that a send on an invalid connection
// fails without touching the transport or the request table.
func TestSendInvalidConnection(t *testing.T) {
	h := newHarness(t)
	b := h.c.Buffer()
	b.StoreInt(1)
	if id := h.c.Send(tlrpc.Connection{}, time.Second); id > 0 {
		t.Fatalf("got id %d", id)
	}
	if id := h.c.SendNoFlush(tlrpc.Connection{}, time.Second); id > 0 {
		t.Fatalf("no flush: got id %d", id)
	}
	if len(h.mem.Sent()) != 0 {
		t.Fatalf("transport saw %d frames", len(h.mem.Sent()))
	}
	if st := h.c.Status(); st.Slots != 0 || st.InFlight != 0 {
		t.Fatalf("request table touched: %+v", st)
	}
}

func TestSendTransportFailure(t *testing.T) {
	h := newHarness(t)
	h.mem.FailSends(1)
	b := h.c.Buffer()
	b.Clean(false)
	b.StoreInt(1)
	if id := h.c.Send(h.conn, 0); id != 0 {
		t.Fatalf("got id %d, want 0", id)
	}
	if st := h.c.Status(); st.Slots != 0 {
		t.Fatalf("request table touched: %+v", st)
	}
}

func TestSendGetAnswer(t *testing.T) {
	h := newHarness(t)
	h.mem.SetHandler(echo)
	id := h.sendInt(42)
	r, err := h.c.GetSync(testContext(t), id, tlrpc.NoTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if r.Err != nil || !bytes.Equal(r.Data, ints(42)) {
		t.Fatalf("response %+v", r)
	}
	again, _ := h.c.GetSync(testContext(t), id, tlrpc.NoTimeout)
	if again.Err == nil || again.Err.Code != tlrpc.ErrorWrongQueryID || again.Err.Message != "Result already was gotten" {
		t.Fatalf("second get: %+v", again.Err)
	}
}

func TestConcurrentGetsTakeOnce(t *testing.T) {
	h := newHarness(t)
	id := h.sendInt(1)
	first := tlrpc.Start(h.c, h.c.Get(id, tlrpc.NoTimeout))
	second := tlrpc.Start(h.c, h.c.Get(id, tlrpc.NoTimeout))
	if first.Done() || second.Done() {
		t.Fatal("get finished before the answer")
	}
	h.mem.Answer(id, ints(42))
	h.c.Poll()

	r1, ok1 := first.Result()
	r2, ok2 := second.Result()
	if !ok1 || !ok2 {
		t.Fatalf("done %v %v", ok1, ok2)
	}
	if r1.Err != nil || !bytes.Equal(r1.Data, ints(42)) {
		t.Fatalf("first get %+v", r1)
	}
	if r2.Err == nil || r2.Err.Code != tlrpc.ErrorWrongQueryID || r2.Err.Message != "Result already was gotten" {
		t.Fatalf("second get %+v", r2)
	}
	if r2.Data != nil {
		t.Fatalf("second get carries data %v", r2.Data)
	}
}

func TestGetRemoteError(t *testing.T) {
	h := newHarness(t)
	id := h.sendInt(1)
	h.mem.Fail(id, tlrpc.ErrorUnknownFunctionID, "unknown")
	r, err := h.c.GetSync(testContext(t), id, tlrpc.NoTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if r.Err == nil || r.Err.Code != tlrpc.ErrorUnknownFunctionID || r.Err.Message != "unknown" {
		t.Fatalf("response %+v", r)
	}
}

func TestGetUnknownID(t *testing.T) {
	h := newHarness(t)
	for _, id := range []tlrpc.RequestID{-1, 0, 12345} {
		r, err := h.c.GetSync(testContext(t), id, tlrpc.NoTimeout)
		if err != nil {
			t.Fatal(err)
		}
		if r.Err == nil || r.Err.Code != tlrpc.ErrorWrongQueryID {
			t.Fatalf("id %d: %+v", id, r)
		}
	}
}

func TestRequestTimesOut(t *testing.T) {
	h := newHarness(t)
	id := h.sendInt(1)
	f := tlrpc.Start(h.c, h.c.Get(id, tlrpc.NoTimeout))
	if f.Done() {
		t.Fatal("Get finished before any answer")
	}
	if d, ok := h.c.NextDeadline(); !ok || d != h.clock.Now().Add(time.Second) {
		t.Fatalf("deadline %v %v", d, ok)
	}
	h.clock.Advance(999 * time.Millisecond)
	h.c.Poll()
	if f.Done() {
		t.Fatal("timed out early")
	}
	h.clock.Advance(time.Millisecond)
	h.c.Poll()
	r, ok := f.Result()
	if !ok {
		t.Fatal("Get still parked after the timeout")
	}
	if r.Err == nil || r.Err.Code != tlrpc.ErrorQueryTimeout {
		t.Fatalf("response %+v", r)
	}
}

func TestWaitOwnTimeout(t *testing.T) {
	h := newHarness(t)
	id := h.sendInt(1)

	st, err := tlrpc.Run(testContext(t), h.c, h.c.Wait(id, 0))
	if err != nil || st != tlrpc.WaitTimeout {
		t.Fatalf("zero wait: %v %v", st, err)
	}

	f := tlrpc.Start(h.c, h.c.Wait(id, 100*time.Millisecond))
	h.clock.Advance(100 * time.Millisecond)
	h.c.Poll()
	if st, ok := f.Result(); !ok || st != tlrpc.WaitTimeout {
		t.Fatalf("timed wait: %v %v", st, ok)
	}

	// The request itself is still live.
	h.mem.Answer(id, ints(3))
	h.c.Poll()
	st, err = tlrpc.Run(testContext(t), h.c, h.c.Wait(id, 0))
	if err != nil || st != tlrpc.WaitReady {
		t.Fatalf("after answer: %v %v", st, err)
	}
}

// TestTimerAttachesOnFlush checks that SendNoFlush defers the timer to
// the next Flush.
func TestTimerAttachesOnFlush(t *testing.T) {
	h := newHarness(t)
	b := h.c.Buffer()
	b.Clean(false)
	b.StoreInt(1)
	id := h.c.SendNoFlush(h.conn, 0)
	if id <= 0 {
		t.Fatal("send failed")
	}
	if _, ok := h.c.NextDeadline(); ok {
		t.Fatal("timer armed before flush")
	}
	if h.mem.Sent()[0].Flushed {
		t.Fatal("frame flushed before Flush")
	}
	h.clock.Advance(time.Hour)
	if err := h.c.Flush(); err != nil {
		t.Fatal(err)
	}
	d, ok := h.c.NextDeadline()
	if !ok || d != h.clock.Now().Add(time.Second) {
		t.Fatalf("deadline %v %v", d, ok)
	}
	if err := h.c.Flush(); err != nil {
		t.Fatal(err)
	}
	if d2, _ := h.c.NextDeadline(); d2 != d {
		t.Fatal("second flush re-armed the timer")
	}
}

// TestAbandonedRequestLateAnswer checks that an answer arriving for a
// request nobody awaits, after it already timed out, is dropped.
func TestAbandonedRequestLateAnswer(t *testing.T) {
	h := newHarness(t)
	id := h.sendInt(1)
	h.expire()
	if st := h.c.Status(); st.InFlight != 0 {
		t.Fatalf("in flight after timeout: %+v", st)
	}
	h.mem.Answer(id, ints(2))
	h.mem.Fail(id, -1, "late")
	if n := h.c.Poll(); n != 2 {
		t.Fatalf("polled %d completions", n)
	}
	r, err := h.c.GetSync(testContext(t), id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if r.Err == nil || r.Err.Code != tlrpc.ErrorQueryTimeout {
		t.Fatalf("late answer replaced the timeout: %+v", r)
	}
}

func TestAbandonedRequestAnswered(t *testing.T) {
	h := newHarness(t)
	id := h.sendInt(1)
	h.mem.Answer(id, ints(2))
	h.c.Poll()
	if st := h.c.Status(); st.InFlight != 0 || st.FirstUnfinished != 0 {
		t.Fatalf("status %+v", st)
	}
	// A second delivery for a consumed slot is dropped too.
	h.mem.Answer(id, ints(3))
	h.c.Poll()
	r, _ := h.c.GetSync(testContext(t), id, 0)
	if !bytes.Equal(r.Data, ints(2)) {
		t.Fatalf("data %x", r.Data)
	}
}

func TestBeginEpochDropsRequests(t *testing.T) {
	h := newHarness(t)
	id := h.sendInt(1)
	epoch := h.c.Epoch()
	h.c.BeginEpoch()
	if h.c.Epoch() != epoch+1 {
		t.Fatalf("epoch %d", h.c.Epoch())
	}
	h.mem.Answer(id, ints(2))
	h.c.Poll()
	r, _ := h.c.GetSync(testContext(t), id, 0)
	if r.Err == nil || r.Err.Code != tlrpc.ErrorWrongQueryID {
		t.Fatalf("old epoch id resolved: %+v", r)
	}
	if _, ok := h.c.NextDeadline(); ok {
		t.Fatal("old epoch timer survived")
	}
	next := h.sendInt(3)
	if next != id+1 {
		t.Fatalf("id %d, want %d", next, id+1)
	}
}

func TestManyRequestsOutOfOrder(t *testing.T) {
	h := newHarness(t, tlrpc.WithConfig(func() tlrpc.Config {
		cfg := tlrpc.DefaultConfig()
		cfg.InitialSlots = 4
		return cfg
	}()))
	const n = 50
	ids := make([]tlrpc.RequestID, n)
	for i := range ids {
		ids[i] = h.sendInt(int32(i))
	}
	for i := n - 1; i >= 0; i-- {
		h.mem.Answer(ids[i], ints(int32(i)))
	}
	h.c.Poll()
	for i, id := range ids {
		r, err := h.c.GetSync(testContext(t), id, 0)
		if err != nil || r.Err != nil || !bytes.Equal(r.Data, ints(int32(i))) {
			t.Fatalf("request %d: %+v %v", i, r, err)
		}
	}
	if st := h.c.Status(); st.InFlight != 0 {
		t.Fatalf("status %+v", st)
	}
}

func TestStatusReportsOldestRequest(t *testing.T) {
	h := newHarness(t)
	first := h.sendInt(1)
	h.clock.Advance(200 * time.Millisecond)
	second := h.sendInt(2)
	st := h.c.Status()
	if st.FirstUnfinished != first || st.InFlight != 2 || st.Port != 11209 || st.Since != 200*time.Millisecond {
		t.Fatalf("status %+v", st)
	}
	h.mem.Answer(first, ints(1))
	h.c.Poll()
	if st := h.c.Status(); st.FirstUnfinished != second || st.InFlight != 1 {
		t.Fatalf("status after answer %+v", st)
	}
}

func TestRunHonorsContext(t *testing.T) {
	h := newHarness(t)
	id := h.sendInt(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tlrpc.Run(ctx, h.c, h.c.Get(id, tlrpc.NoTimeout)); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	// The request outlives the cancelled wait.
	h.mem.Answer(id, ints(5))
	h.c.Poll()
	r, _ := h.c.GetSync(testContext(t), id, 0)
	if !bytes.Equal(r.Data, ints(5)) {
		t.Fatalf("response %+v", r)
	}
}

func TestInboxDeliversFromGoroutine(t *testing.T) {
	skipRace(t)
	h := newHarness(t)
	id := h.sendInt(1)
	go h.mem.Inbox().Push(tlrpc.Completion{ID: id, Answer: ints(8)})
	r, err := h.c.GetSync(testContext(t), id, tlrpc.NoTimeout)
	if err != nil || !bytes.Equal(r.Data, ints(8)) {
		t.Fatalf("response %+v %v", r, err)
	}
}

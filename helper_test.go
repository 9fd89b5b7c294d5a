// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.hybscloud.com/tlrpc"
)

// fakeClock is a manually advanced clock for deterministic timeouts.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// echoRegistry registers "test.echo", which stores obj["value"] as an int
// and fetches one int back, and "test.pair", which fetches two ints.
func echoRegistry() *tlrpc.Registry {
	r := tlrpc.NewRegistry()
	r.Register("test.echo", func(b *tlrpc.Buffer, obj tlrpc.Object) (tlrpc.Fetcher, error) {
		v, ok := obj["value"].(int)
		if !ok {
			return nil, errors.New("value must be an int")
		}
		b.StoreInt(int32(v))
		return func(b *tlrpc.Buffer) (any, error) {
			n, err := b.FetchInt()
			return int(n), err
		}, nil
	})
	r.Register("test.pair", func(b *tlrpc.Buffer, obj tlrpc.Object) (tlrpc.Fetcher, error) {
		b.StoreInt(0)
		return func(b *tlrpc.Buffer) (any, error) {
			x, err := b.FetchInt()
			if err != nil {
				return nil, err
			}
			y, err := b.FetchInt()
			return [2]int32{x, y}, err
		}, nil
	})
	return r
}

// echo answers every request with its own payload.
func echo(req tlrpc.MemRequest) (tlrpc.Completion, bool) {
	return tlrpc.Completion{Answer: append([]byte(nil), req.Payload()...)}, true
}

// harness is a client over a MemTransport with a fake clock.
type harness struct {
	t     testing.TB
	mem   *tlrpc.MemTransport
	clock *fakeClock
	c     *tlrpc.Client
	conn  tlrpc.Connection
}

func newHarness(t testing.TB, opts ...tlrpc.Option) *harness {
	t.Helper()
	h := &harness{t: t, mem: tlrpc.NewMemTransport(), clock: newFakeClock()}
	opts = append([]tlrpc.Option{tlrpc.WithClock(h.clock.Now), tlrpc.WithRegistry(echoRegistry())}, opts...)
	h.c = tlrpc.New(h.mem, opts...)
	conn, err := h.c.Connect(context.Background(), "mem", 11209, tlrpc.ConnectOptions{Timeout: time.Second})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	h.conn = conn
	return h
}

// sendInt sends a raw request carrying v and returns its id.
func (h *harness) sendInt(v int32) tlrpc.RequestID {
	h.t.Helper()
	b := h.c.Buffer()
	b.Clean(false)
	b.StoreInt(v)
	id := h.c.Send(h.conn, 0)
	if id <= 0 {
		h.t.Fatalf("send %d: got id %d", v, id)
	}
	return id
}

// expire advances the clock past every request timeout and polls.
func (h *harness) expire() {
	h.clock.Advance(2 * time.Second)
	h.c.Poll()
}

// ints encodes vs as an answer payload.
func ints(vs ...int32) []byte {
	b := tlrpc.NewBuffer()
	for _, v := range vs {
		b.StoreInt(v)
	}
	return b.Contents()
}

func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

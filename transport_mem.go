// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"context"
	"fmt"
	"time"
)

// MemRequest is a frame accepted by a MemTransport.
type MemRequest struct {
	ID      RequestID
	Handle  Handle
	Host    string
	Port    int
	Frame   []byte
	Timeout time.Duration
	Flushed bool
}

// Payload returns the request body without packet header and CRC32.
func (r MemRequest) Payload() []byte {
	return framePayload(r.Frame)
}

// MemHandler answers a flushed request. Returning false leaves the
// request unanswered.
type MemHandler func(req MemRequest) (Completion, bool)

type memEndpoint struct {
	host string
	port int
}

// MemTransport is an in-process Transport. Frames are recorded on Send;
// on Flush each one is offered to the handler, and completions are
// delivered on the next Poll. Except for its Inbox, it must be used from
// the client's goroutine.
type MemTransport struct {
	nextID    RequestID
	seq       int32
	endpoints map[Handle]memEndpoint
	refused   map[string]bool
	failSends int
	handler   MemHandler
	sent      []MemRequest
	unflushed int
	flushes   int
	queued    []Completion
	inbox     *Inbox
	closed    bool
}

// NewMemTransport returns a MemTransport whose first request id is 1.
func NewMemTransport() *MemTransport {
	return &MemTransport{
		endpoints: make(map[Handle]memEndpoint),
		refused:   make(map[string]bool),
		inbox:     NewInbox(),
	}
}

// SetStartID makes the next successful Send return id.
func (t *MemTransport) SetStartID(id RequestID) {
	t.nextID = id - 1
}

// SetHandler installs h to answer flushed requests.
func (t *MemTransport) SetHandler(h MemHandler) {
	t.handler = h
}

// Refuse makes Connect fail for host.
func (t *MemTransport) Refuse(host string) {
	t.refused[host] = true
}

// FailSends makes the next n sends fail.
func (t *MemTransport) FailSends(n int) {
	t.failSends = n
}

// Connect registers an endpoint.
func (t *MemTransport) Connect(_ context.Context, host string, port int, _ ConnectOptions) (Handle, error) {
	if t.closed {
		return 0, ErrClosed
	}
	if t.refused[host] {
		return 0, fmt.Errorf("tlrpc: connect %s:%d: refused", host, port)
	}
	h := Handle(len(t.endpoints) + 1)
	t.endpoints[h] = memEndpoint{host: host, port: port}
	return h, nil
}

// Send records frame and returns the next request id.
func (t *MemTransport) Send(h Handle, frame []byte, timeout time.Duration) RequestID {
	ep, ok := t.endpoints[h]
	if !ok || t.closed {
		return 0
	}
	if t.failSends > 0 {
		t.failSends--
		return 0
	}
	t.nextID++
	t.seq++
	sealFrame(frame, t.seq, MagicInvokeReq, t.nextID)
	t.sent = append(t.sent, MemRequest{
		ID:      t.nextID,
		Handle:  h,
		Host:    ep.host,
		Port:    ep.port,
		Frame:   frame,
		Timeout: timeout,
	})
	return t.nextID
}

// Flush marks recorded frames as written and offers them to the handler.
func (t *MemTransport) Flush() error {
	if t.closed {
		return ErrClosed
	}
	t.flushes++
	for ; t.unflushed < len(t.sent); t.unflushed++ {
		t.sent[t.unflushed].Flushed = true
		if t.handler == nil {
			continue
		}
		if c, ok := t.handler(t.sent[t.unflushed]); ok {
			c.ID = t.sent[t.unflushed].ID
			t.queued = append(t.queued, c)
		}
	}
	return nil
}

// Poll delivers queued completions, then those pushed to the Inbox.
func (t *MemTransport) Poll(d Deliverer) int {
	queued := t.queued
	t.queued = nil
	for _, c := range queued {
		c.deliver(d)
	}
	return len(queued) + t.inbox.Drain(d)
}

// Close rejects further use.
func (t *MemTransport) Close() error {
	t.closed = true
	return nil
}

// Answer queues an answer for id.
func (t *MemTransport) Answer(id RequestID, data []byte) {
	t.queued = append(t.queued, Completion{ID: id, Answer: data})
}

// Fail queues an error for id.
func (t *MemTransport) Fail(id RequestID, code int32, message string) {
	t.queued = append(t.queued, Completion{ID: id, Failed: true, Code: code, Message: message})
}

// Inbox is the completion queue for one responder goroutine.
func (t *MemTransport) Inbox() *Inbox {
	return t.inbox
}

// Sent returns the recorded requests.
func (t *MemTransport) Sent() []MemRequest {
	return t.sent
}

// Flushes returns how many times Flush ran.
func (t *MemTransport) Flushes() int {
	return t.flushes
}

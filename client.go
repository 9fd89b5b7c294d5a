// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"time"

	"code.hybscloud.com/kont"
	"github.com/rs/zerolog"
)

const timeoutMessage = "Timeout in RPC runtime"

// Option configures a Client.
type Option func(*Client)

// WithConfig applies cfg's tunables.
func WithConfig(cfg Config) Option {
	return func(c *Client) { c.cfg = cfg }
}

// WithLogger sets the client logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithClock replaces time.Now for deadlines.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRegistry sets the TL function registry used by Query.
func WithRegistry(r *Registry) Option {
	return func(c *Client) { c.registry = r }
}

// WithObserver reports every finished request to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// Response is the outcome of one request: answer bytes or an error.
type Response struct {
	ID   RequestID
	Data []byte
	Err  *Error
}

type outcome struct {
	resp  Response
	taken bool
}

type wakeup struct {
	r resumable
	v kont.Resumed
}

// Client is the per-execution RPC context. It owns the codec buffer, the
// request slot table, resumables, wait-queues and pending TL queries,
// all driven from one goroutine.
type Client struct {
	serial    Serial
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
	transport Transport
	registry  *Registry
	observer  Observer

	buf       *Buffer
	epoch     uint64
	slots     slotTable
	needTimer []RequestID
	timers    timers
	outcomes  map[RequestID]*outcome
	waiters   map[RequestID][]*waiter
	queues    map[QueueID]*waitQueue
	queuesOf  map[RequestID][]QueueID
	nextQueue QueueID
	pending   PendingQueries

	ready   []wakeup
	running bool
	journal *Journal
}

// New returns a Client sending through t, in its first epoch.
func New(t Transport, opts ...Option) *Client {
	c := &Client{
		serial:    nextSerial(),
		cfg:       DefaultConfig(),
		log:       zerolog.Nop(),
		now:       time.Now,
		transport: t,
		buf:       NewBuffer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	c.log = c.log.With().Uint32("client", c.serial).Logger()
	c.buf.SetPackThreshold(c.cfg.PackThreshold)
	c.BeginEpoch()
	return c
}

// Open builds a Client from cfg: its logger comes from cfg.Log and, when
// cfg.JournalPath is set, finished requests are journaled there. opts
// apply after cfg.
func Open(t Transport, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lg := NewLogger(cfg.Log)
	base := []Option{WithConfig(cfg), WithLogger(lg)}
	var j *Journal
	if cfg.JournalPath != "" {
		var err error
		if j, err = OpenJournal(cfg.JournalPath, WithJournalLogger(lg)); err != nil {
			return nil, err
		}
		base = append(base, WithObserver(j))
	}
	c := New(t, append(base, opts...)...)
	c.journal = j
	return c, nil
}

// Close closes the transport and the journal opened by Open.
func (c *Client) Close() error {
	err := c.transport.Close()
	if c.journal != nil {
		if jerr := c.journal.Close(); err == nil {
			err = jerr
		}
	}
	return err
}

// Serial returns the client's serial number.
func (c *Client) Serial() Serial {
	return c.serial
}

// Buffer returns the client's codec buffer.
func (c *Client) Buffer() *Buffer {
	return c.buf
}

// Registry returns the TL function registry.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Epoch returns the current execution epoch.
func (c *Client) Epoch() uint64 {
	return c.epoch
}

// BeginEpoch ends the current execution and starts a new one. Requests,
// outcomes, queues, timers and pending queries of the old epoch are
// dropped; their ids are never looked up again.
func (c *Client) BeginEpoch() {
	for _, ws := range c.waiters {
		for _, w := range ws {
			w.done = true
		}
	}
	c.epoch++
	c.slots = slotTable{}
	c.needTimer = nil
	c.timers.reset()
	c.outcomes = make(map[RequestID]*outcome)
	c.waiters = make(map[RequestID][]*waiter)
	c.queues = make(map[QueueID]*waitQueue)
	c.queuesOf = make(map[RequestID][]QueueID)
	c.nextQueue = 0
	c.pending.Reset(c.epoch)
	c.ready = nil
	c.buf.Clean(false)
	c.buf.resetInput()
}

// wake queues r to resume with v.
func (c *Client) wake(r resumable, v kont.Resumed) {
	c.ready = append(c.ready, wakeup{r: r, v: v})
}

// runReady resumes woken resumables one at a time until none is left.
func (c *Client) runReady() int {
	if c.running {
		return 0
	}
	c.running = true
	defer func() { c.running = false }()
	n := 0
	for len(c.ready) > 0 {
		w := c.ready[0]
		c.ready[0] = wakeup{}
		c.ready = c.ready[1:]
		w.r.resume(w.v)
		n++
	}
	return n
}

// Poll delivers transport completions, fires due timers and runs woken
// resumables. It returns the number of events handled and never blocks.
func (c *Client) Poll() int {
	n := c.transport.Poll(c)
	n += c.timers.expire(c.now())
	n += c.runReady()
	return n
}

// NextDeadline returns the earliest armed timer, for event loops that
// sleep between polls.
func (c *Client) NextDeadline() (time.Time, bool) {
	return c.timers.next()
}

// Send finishes the buffer as a request on conn, flushes, and returns its
// id, or 0 on failure.
func (c *Client) Send(conn Connection, timeout time.Duration) RequestID {
	id := c.send(conn, timeout, false, "")
	if id <= 0 {
		return 0
	}
	c.Flush()
	return id
}

// SendNoFlush is Send without the flush. Timers attach on the next Flush.
func (c *Client) SendNoFlush(conn Connection, timeout time.Duration) RequestID {
	id := c.send(conn, timeout, false, "")
	if id <= 0 {
		return 0
	}
	return id
}

// send hands the buffered request to the transport and registers the
// resumable owning its slot. An invalid conn fails before touching the
// request table.
func (c *Client) send(conn Connection, timeout time.Duration, ignoreAnswer bool, function string) RequestID {
	if !conn.Valid() {
		c.log.Warn().Msg("wrong rpc connection specified")
		return -1
	}
	timeout = clampTimeout(timeout, conn.Timeout)
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}

	frame := c.buf.frame(conn.DefaultActorID)
	id := c.transport.Send(conn.handle, frame, timeout)
	if id <= 0 {
		c.log.Warn().Str("host", conn.Host).Int("port", conn.Port).Msg("rpc send failed")
		return -1
	}
	s, err := c.slots.add(c.epoch, id, c.cfg.InitialSlots)
	if err != nil {
		c.log.Error().Err(err).Msg("rpc send")
		return -1
	}
	s.status = slotPendingNoTimer
	s.timeout = timeout
	s.port = conn.Port
	s.actorID = conn.DefaultActorID
	s.function = function
	s.size = len(frame)
	s.begin = c.now()
	s.ignored = ignoreAnswer

	spawn(c, c.requestBody(id), func(r Response) { c.finish(id, r) })
	if ignoreAnswer {
		c.expire(id)
		return id
	}
	c.needTimer = append(c.needTimer, id)
	return id
}

// requestBody is the resumable owning id's terminal transition.
func (c *Client) requestBody(id RequestID) kont.Eff[Response] {
	return kont.Bind(kont.Perform(awaitSlot{ID: id}), func(struct{}) kont.Eff[Response] {
		return kont.Pure(c.consume(id))
	})
}

// consume takes the payload of a terminal slot and marks it Consumed.
func (c *Client) consume(id RequestID) Response {
	s := c.slots.lookup(c.epoch, id)
	r := Response{ID: id}
	switch s.status {
	case slotAnswered:
		r.Data = s.answer
	case slotErrored:
		r.Err = &Error{Message: s.message, Code: s.code}
	default:
		panic("tlrpc: request resumed without answer or error")
	}
	s.status = slotConsumed
	s.answer, s.message, s.owner = nil, "", nil
	c.slots.advance()
	return r
}

// finish records a request's response and wakes whoever waits on it.
func (c *Client) finish(id RequestID, r Response) {
	s := c.slots.lookup(c.epoch, id)
	if c.observer != nil && s != nil {
		c.observer.Observe(Record{
			Epoch:    c.epoch,
			ID:       id,
			Function: s.function,
			Port:     s.port,
			ActorID:  s.actorID,
			Size:     s.size,
			Begin:    s.begin,
			Latency:  c.now().Sub(s.begin),
			Response: r,
		})
	}
	if s != nil && s.ignored {
		return
	}
	c.outcomes[id] = &outcome{resp: r}
	for _, w := range c.waiters[id] {
		if !w.done {
			w.done = true
			c.timers.stop(w.timer)
			c.wake(w.r, WaitReady)
		}
	}
	delete(c.waiters, id)
	for _, qid := range c.queuesOf[id] {
		if q := c.queues[qid]; q != nil {
			q.complete(c, id)
		}
	}
	delete(c.queuesOf, id)
}

// Flush drains deferred transport writes and attaches a timer to every
// request sent since the previous Flush that is still pending.
func (c *Client) Flush() error {
	err := c.transport.Flush()
	if err != nil {
		c.log.Warn().Err(err).Msg("rpc flush")
	}
	now := c.now()
	for _, id := range c.needTimer {
		s := c.slots.lookup(c.epoch, id)
		if s == nil || s.status != slotPendingNoTimer {
			continue
		}
		id := id
		s.timer = c.timers.at(now.Add(s.timeout), func() { c.expire(id) })
		s.status = slotPendingWithTimer
	}
	c.needTimer = c.needTimer[:0]
	return err
}

// DeliverAnswer stores an answer for id and wakes its owner. Answers for
// unknown, stale or already finished requests are dropped.
func (c *Client) DeliverAnswer(id RequestID, data []byte) {
	c.deliver(id, slotAnswered, data, 0, "")
}

// DeliverError stores an error for id and wakes its owner. Errors for
// unknown, stale or already finished requests are dropped.
func (c *Client) DeliverError(id RequestID, code int32, message string) {
	c.deliver(id, slotErrored, nil, code, message)
}

func (c *Client) expire(id RequestID) {
	c.deliver(id, slotErrored, nil, ErrorQueryTimeout, timeoutMessage)
}

func (c *Client) deliver(id RequestID, status slotStatus, data []byte, code int32, message string) {
	s := c.slots.lookup(c.epoch, id)
	if s == nil || !s.status.pending() {
		c.log.Debug().Int64("id", int64(id)).Stringer("status", status).Msg("late rpc completion dropped")
		return
	}
	c.timers.stop(s.timer)
	s.timer = nil
	s.status = status
	s.answer, s.code, s.message = data, code, message
	if s.owner != nil {
		c.wake(s.owner, struct{}{})
	}
	c.runReady()
}

// Status describes the oldest unfinished request of the epoch.
type Status struct {
	Epoch           uint64
	FirstUnfinished RequestID
	Port            int
	ActorID         int64
	Since           time.Duration
	InFlight        int
	Slots           int
}

// Status reports progress of the current epoch.
func (c *Client) Status() Status {
	st := Status{Epoch: c.epoch}
	if !c.slots.allocated(c.epoch) {
		return st
	}
	st.Slots = c.slots.size()
	for id := c.slots.firstUnfinished; id < c.slots.next; id++ {
		if c.slots.lookup(c.epoch, id).status != slotConsumed {
			st.InFlight++
		}
	}
	if c.slots.firstUnfinished < c.slots.next {
		s := c.slots.lookup(c.epoch, c.slots.firstUnfinished)
		st.FirstUnfinished = c.slots.firstUnfinished
		st.Port = s.port
		st.ActorID = s.actorID
		st.Since = c.now().Sub(s.begin)
	}
	return st
}

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mdlayher/vsock"
	"github.com/rs/zerolog"
)

const (
	minPacketSize = packetHeaderSize + 4
	maxPacketSize = 1 << 26

	// vsockPrefix selects AF_VSOCK for hosts written as "vsock:<cid>".
	vsockPrefix = "vsock:"
)

var (
	errBadPacketLength = errors.New("tlrpc: bad packet length")
	errBadPacketCRC    = errors.New("tlrpc: packet crc mismatch")
)

// Packet is one framed message on a stream connection:
// [length][seq][type][requestID] body [crc32].
type Packet struct {
	Seq  int32
	Type uint32
	ID   RequestID
	Body []byte
}

// ReadPacket reads and verifies one packet.
func ReadPacket(r io.Reader) (Packet, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Packet{}, err
	}
	n := int(binary.LittleEndian.Uint32(hdr[:]))
	if n < minPacketSize || n > maxPacketSize || n%4 != 0 {
		return Packet{}, errBadPacketLength
	}
	buf := make([]byte, n)
	copy(buf, hdr[:])
	if _, err := io.ReadFull(r, buf[4:]); err != nil {
		return Packet{}, err
	}
	if crc32.ChecksumIEEE(buf[:n-4]) != binary.LittleEndian.Uint32(buf[n-4:]) {
		return Packet{}, errBadPacketCRC
	}
	return Packet{
		Seq:  int32(binary.LittleEndian.Uint32(buf[4:])),
		Type: binary.LittleEndian.Uint32(buf[8:]),
		ID:   RequestID(binary.LittleEndian.Uint64(buf[12:])),
		Body: buf[packetHeaderSize : n-4],
	}, nil
}

// WritePacket frames p and writes it to w.
func WritePacket(w io.Writer, p Packet) error {
	if len(p.Body)%4 != 0 {
		return ErrUnalignedRaw
	}
	frame := make([]byte, packetHeaderSize+len(p.Body)+4)
	copy(frame[packetHeaderSize:], p.Body)
	sealFrame(frame, p.Seq, p.Type, p.ID)
	_, err := w.Write(frame)
	return err
}

// ErrorBody encodes the body of a TL_RPC_REQ_ERROR packet.
func ErrorBody(code int32, message string) []byte {
	var b Buffer
	b.StoreInt(code)
	b.StoreString(message)
	return b.out
}

// completion converts a received packet into a Completion.
func (p Packet) completion() (Completion, bool) {
	switch p.Type {
	case MagicReqResult:
		return Completion{ID: p.ID, Answer: p.Body}, true
	case MagicReqError:
		b := Buffer{in: cursor{data: p.Body}}
		code, err := b.FetchInt()
		if err != nil {
			return Completion{ID: p.ID, Failed: true, Code: ErrorHeader, Message: "malformed error packet"}, true
		}
		msg, err := b.FetchString()
		if err != nil {
			return Completion{ID: p.ID, Failed: true, Code: ErrorHeader, Message: "malformed error packet"}, true
		}
		return Completion{ID: p.ID, Failed: true, Code: code, Message: msg}, true
	}
	return Completion{}, false
}

// Dialer opens a stream connection.
type Dialer func(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error)

// Dial connects over TCP, or over AF_VSOCK for "vsock:<cid>" hosts.
func Dial(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error) {
	if cid, ok := strings.CutPrefix(host, vsockPrefix); ok {
		id, err := strconv.ParseUint(cid, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("tlrpc: bad vsock cid %q: %w", cid, err)
		}
		return vsock.Dial(uint32(id), uint32(port), nil)
	}
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}

// StreamTransport frames requests over stream connections, one reader
// goroutine per connection. Writes are deferred until Flush. Everything
// except the reader goroutines runs on the client's goroutine.
type StreamTransport struct {
	log    zerolog.Logger
	dial   Dialer
	now    func() time.Time
	nextID RequestID
	conns  map[Handle]*streamConn
	wg     sync.WaitGroup
}

// StreamOption configures a StreamTransport.
type StreamOption func(*StreamTransport)

// WithDialer replaces Dial.
func WithDialer(d Dialer) StreamOption {
	return func(t *StreamTransport) { t.dial = d }
}

// WithStreamLogger sets the transport logger.
func WithStreamLogger(l zerolog.Logger) StreamOption {
	return func(t *StreamTransport) { t.log = l }
}

// NewStreamTransport returns a StreamTransport with no connections.
func NewStreamTransport(opts ...StreamOption) *StreamTransport {
	t := &StreamTransport{
		log:   zerolog.Nop(),
		dial:  Dial,
		now:   time.Now,
		conns: make(map[Handle]*streamConn),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type streamConn struct {
	t     *StreamTransport
	host  string
	port  int
	opts  ConnectOptions
	seq   int32
	inbox *Inbox
	outq  [][]byte

	// Owned by the client goroutine.
	conn    net.Conn
	w       *bufio.Writer
	done    chan struct{}
	retryAt time.Time

	mu       sync.Mutex
	broken   bool
	inflight map[RequestID]struct{}
}

// Connect dials host:port and starts its reader.
func (t *StreamTransport) Connect(ctx context.Context, host string, port int, opts ConnectOptions) (Handle, error) {
	sc := &streamConn{
		t:        t,
		host:     host,
		port:     port,
		opts:     opts,
		inbox:    NewInbox(),
		inflight: make(map[RequestID]struct{}),
	}
	if err := sc.open(ctx); err != nil {
		return 0, err
	}
	h := Handle(len(t.conns) + 1)
	t.conns[h] = sc
	return h, nil
}

func (sc *streamConn) open(ctx context.Context) error {
	if sc.done != nil {
		// single producer: the previous reader must be gone first
		<-sc.done
	}
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := sc.t.dial(ctx, sc.host, sc.port, sc.opts.ConnectTimeout)
	if err != nil {
		sc.retryAt = sc.t.now().Add(sc.opts.ReconnectTimeout)
		return err
	}
	sc.conn = conn
	sc.w = bufio.NewWriter(conn)
	sc.done = make(chan struct{})
	sc.mu.Lock()
	sc.broken = false
	sc.mu.Unlock()
	sc.t.wg.Add(1)
	go sc.serve(conn, sc.done)
	return nil
}

func (sc *streamConn) isBroken() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.broken
}

// serve reads packets until the connection fails, then fails every
// request still in flight on it.
func (sc *streamConn) serve(conn net.Conn, done chan struct{}) {
	defer sc.t.wg.Done()
	defer close(done)
	r := bufio.NewReader(conn)
	var err error
	for err == nil {
		err = sc.recv(r)
	}
	sc.closeWithError(conn, err)
}

func (sc *streamConn) recv(r io.Reader) error {
	p, err := ReadPacket(r)
	if err != nil {
		return err
	}
	c, ok := p.completion()
	if !ok {
		sc.t.log.Debug().Uint32("type", p.Type).Msg("unexpected packet type dropped")
		return nil
	}
	sc.mu.Lock()
	_, live := sc.inflight[c.ID]
	delete(sc.inflight, c.ID)
	sc.mu.Unlock()
	if !live {
		sc.t.log.Debug().Int64("id", int64(c.ID)).Msg("received answer for request which has no sender")
		return nil
	}
	sc.inbox.Push(c)
	return nil
}

func (sc *streamConn) closeWithError(conn net.Conn, err error) {
	conn.Close()
	sc.mu.Lock()
	sc.broken = true
	failed := sc.inflight
	sc.inflight = make(map[RequestID]struct{})
	sc.mu.Unlock()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		sc.t.log.Warn().Err(err).Str("host", sc.host).Int("port", sc.port).Msg("rpc connection lost")
	}
	for id := range failed {
		sc.inbox.Push(Completion{ID: id, Failed: true, Code: ErrorNoConnections, Message: "Connection lost"})
	}
}

// Send queues frame on h and returns its request id. A broken
// connection is redialed once its reconnect timeout has passed.
func (t *StreamTransport) Send(h Handle, frame []byte, _ time.Duration) RequestID {
	sc := t.conns[h]
	if sc == nil {
		return 0
	}
	if sc.isBroken() {
		if t.now().Before(sc.retryAt) {
			return 0
		}
		if err := sc.open(context.Background()); err != nil {
			t.log.Warn().Err(err).Str("host", sc.host).Int("port", sc.port).Msg("rpc reconnect failed")
			return 0
		}
	}
	t.nextID++
	sc.seq++
	sealFrame(frame, sc.seq, MagicInvokeReq, t.nextID)
	sc.mu.Lock()
	sc.inflight[t.nextID] = struct{}{}
	sc.mu.Unlock()
	sc.outq = append(sc.outq, frame)
	return t.nextID
}

// Flush writes every queued frame.
func (t *StreamTransport) Flush() error {
	var errs []error
	for _, sc := range t.conns {
		if err := sc.flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (sc *streamConn) flush() error {
	if len(sc.outq) == 0 {
		return nil
	}
	outq := sc.outq
	sc.outq = nil
	if sc.opts.Timeout > 0 {
		sc.conn.SetWriteDeadline(sc.t.now().Add(sc.opts.Timeout))
	}
	for _, frame := range outq {
		if _, err := sc.w.Write(frame); err != nil {
			return sc.fail(err)
		}
	}
	if err := sc.w.Flush(); err != nil {
		return sc.fail(err)
	}
	return nil
}

// fail closes the connection after a write error. The reader then fails
// the requests in flight.
func (sc *streamConn) fail(err error) error {
	sc.conn.Close()
	sc.retryAt = sc.t.now().Add(sc.opts.ReconnectTimeout)
	return fmt.Errorf("tlrpc: write %s:%d: %w", sc.host, sc.port, err)
}

// Poll drains the completions of every connection.
func (t *StreamTransport) Poll(d Deliverer) int {
	n := 0
	for _, sc := range t.conns {
		n += sc.inbox.Drain(d)
	}
	return n
}

// Close closes every connection and waits for the readers to exit.
func (t *StreamTransport) Close() error {
	for _, sc := range t.conns {
		if sc.conn != nil {
			sc.conn.Close()
		}
	}
	t.wg.Wait()
	return nil
}

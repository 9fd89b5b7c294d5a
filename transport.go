// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"time"
)

// Handle is a transport-owned endpoint identifier.
type Handle uint32

// Deliverer receives request outcomes from a transport. Both methods run
// on the client's goroutine, inside Transport.Poll.
type Deliverer interface {
	DeliverAnswer(id RequestID, data []byte)
	DeliverError(id RequestID, code int32, message string)
}

// Transport is the I/O collaborator owning sockets and readiness.
//
// Send takes ownership of frame, which starts with a packetHeaderSize
// placeholder and ends with a CRC32 placeholder, and returns a request
// id. Ids increase by one per successful Send over the transport's
// lifetime; a value <= 0 reports failure. Writes may be deferred until
// Flush. Poll hands every completion received so far to d and returns how
// many it delivered; it never blocks.
type Transport interface {
	Connect(ctx context.Context, host string, port int, opts ConnectOptions) (Handle, error)
	Send(h Handle, frame []byte, timeout time.Duration) RequestID
	Flush() error
	Poll(d Deliverer) int
	Close() error
}

// Completion is one outcome queued by a transport for delivery.
type Completion struct {
	ID      RequestID
	Answer  []byte
	Failed  bool
	Code    int32
	Message string
}

// deliver hands the completion to d.
func (c Completion) deliver(d Deliverer) {
	if c.Failed {
		d.DeliverError(c.ID, c.Code, c.Message)
		return
	}
	d.DeliverAnswer(c.ID, c.Answer)
}

// sealFrame fills the packet header and trailing CRC32 of a frame:
// [length][seq][type][requestID] body [crc32].
func sealFrame(frame []byte, seq int32, typ uint32, id RequestID) {
	binary.LittleEndian.PutUint32(frame[0:], uint32(len(frame)))
	binary.LittleEndian.PutUint32(frame[4:], uint32(seq))
	binary.LittleEndian.PutUint32(frame[8:], typ)
	binary.LittleEndian.PutUint64(frame[12:], uint64(id))
	n := len(frame) - 4
	binary.LittleEndian.PutUint32(frame[n:], crc32.ChecksumIEEE(frame[:n]))
}

// framePayload returns the request body of a sealed or unsealed frame.
func framePayload(frame []byte) []byte {
	if len(frame) < packetHeaderSize+4 {
		return nil
	}
	return frame[packetHeaderSize : len(frame)-4]
}

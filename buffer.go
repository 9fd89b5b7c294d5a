// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import "encoding/binary"

// Clean resets the output region and writes the header placeholders:
// destination actor, actor id, length, sequence, type and request id.
// The type word is -1 for an error answer and 0 otherwise.
func (b *Buffer) Clean(isError bool) {
	b.out = b.out[:0]
	b.StoreInt(-1)
	b.StoreLong(-1)
	b.StoreInt(-1)
	b.StoreInt(-1)
	if isError {
		b.StoreInt(-1)
	} else {
		b.StoreInt(0)
	}
	b.StoreLong(-1)
	b.packFrom = -1
	b.finished = false
}

// StoreHeader appends an actor-addressing record. A non-zero flags value
// selects the flagged form. Stored first after Clean, it is what send
// inspects to decide whether the reserved prefix carries a default actor.
func (b *Buffer) StoreHeader(clusterID int64, flags int32) {
	if flags != 0 {
		b.StoreUint32(MagicDestActorFlags)
		b.StoreLong(clusterID)
		b.StoreInt(flags)
		return
	}
	b.StoreUint32(MagicDestActor)
	b.StoreLong(clusterID)
}

// StoreError primes the buffer with an error answer and finishes it.
func (b *Buffer) StoreError(code int32, message string) ([]byte, bool) {
	b.Clean(true)
	b.StoreInt(code)
	b.StoreString(message)
	return b.finish(true)
}

// Len returns the output size, header included.
func (b *Buffer) Len() int {
	return len(b.out)
}

// Contents returns a copy of the output after the header.
func (b *Buffer) Contents() []byte {
	if len(b.out) <= headerSize {
		return []byte{}
	}
	return append([]byte(nil), b.out[headerSize:]...)
}

// GetClean returns Contents and resets the buffer.
func (b *Buffer) GetClean() []byte {
	p := b.Contents()
	b.Clean(false)
	return p
}

// Finish packs the payload with the configured threshold, appends the
// CRC32 placeholder and freezes the buffer. It returns the answer frame
// without the reserved prefix; a second call reports false.
func (b *Buffer) Finish() ([]byte, bool) {
	return b.finish(false)
}

func (b *Buffer) finish(isError bool) ([]byte, bool) {
	if b.finished {
		return nil, false
	}
	if !isError {
		b.packFrom = headerSize
		b.FinishPack(b.threshold)
	}
	b.StoreInt(-1)
	b.finished = true
	return append([]byte(nil), b.out[reservedSize:]...), true
}

// frame appends the CRC32 placeholder and returns a transport-owned copy
// of the request: a packetHeaderSize placeholder the transport fills,
// the payload, and the CRC32 word. When defaultActor is non-zero and the
// payload does not already start with an actor record, the twelve bytes
// before the payload are rewritten to TL_RPC_DEST_ACTOR{defaultActor}
// and the copy starts at offset zero.
func (b *Buffer) frame(defaultActor int64) []byte {
	b.StoreInt(-1)
	from := reservedSize
	if defaultActor != 0 && len(b.out) >= headerSize+4 {
		first := binary.LittleEndian.Uint32(b.out[headerSize:])
		if first != MagicDestActor && first != MagicDestActorFlags {
			binary.LittleEndian.PutUint32(b.out[headerSize-reservedSize:], MagicDestActor)
			binary.LittleEndian.PutUint64(b.out[headerSize-8:], uint64(defaultActor))
			from = 0
		}
	}
	return append([]byte(nil), b.out[from:]...)
}

// payloadLen is the request size as estimated for write batching.
func (b *Buffer) payloadLen() int {
	return len(b.out)
}

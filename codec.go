// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"encoding/binary"
	"math"
	"strconv"
)

// Wire magics.
const (
	MagicDestActor      uint32 = 0x7568aabd
	MagicDestActorFlags uint32 = 0xf0a5acf7
	MagicReqError       uint32 = 0x7ae432f5
	MagicReqResult      uint32 = 0x63aeda4e
	MagicInvokeReq      uint32 = 0x2374df3d
	MagicGzipPacked     uint32 = 0x3072cfa1
)

const (
	// headerSize is the reserved prefix written by Clean:
	// destActor(4) actorID(8) length(4) seq(4) type(4) requestID(8).
	headerSize = 32
	// reservedSize is the part of the header the transport does not receive
	// unless an actor address is placed there.
	reservedSize = 12
	// packetHeaderSize is the transport header a frame starts with:
	// length(4) seq(4) type(4) requestID(8).
	packetHeaderSize = headerSize - reservedSize

	shortStringMax = 254
	longStringMax  = 1 << 24
)

// cursor is a read position over a separately-owned snapshot.
type cursor struct {
	data []byte
	pos  int
}

func (c cursor) remaining() int {
	return len(c.data) - c.pos
}

// Buffer is the per-execution codec context: an output region with a
// reserved header, and an independent input cursor with exactly one
// saved backup.
//
// A Buffer is single-owner. Only one resumable runs at a time, so it is
// never locked.
type Buffer struct {
	out       []byte
	packFrom  int
	threshold int
	finished  bool

	in        cursor
	inActive  bool
	backup    cursor
	hasBackup bool
}

// NewBuffer returns a Buffer primed by Clean(false).
func NewBuffer() *Buffer {
	b := &Buffer{out: make([]byte, 0, 256)}
	b.Clean(false)
	return b
}

// StoreInt appends a 32-bit word.
func (b *Buffer) StoreInt(v int32) {
	b.out = binary.LittleEndian.AppendUint32(b.out, uint32(v))
}

// StoreUint32 appends an unsigned 32-bit word.
func (b *Buffer) StoreUint32(v uint32) {
	b.out = binary.LittleEndian.AppendUint32(b.out, v)
}

// StoreLong appends a 64-bit value as two words.
func (b *Buffer) StoreLong(v int64) {
	b.out = binary.LittleEndian.AppendUint64(b.out, uint64(v))
}

// StoreUint64 appends an unsigned 64-bit value as two words.
func (b *Buffer) StoreUint64(v uint64) {
	b.out = binary.LittleEndian.AppendUint64(b.out, v)
}

// StoreDouble appends an IEEE-754 double as two words.
func (b *Buffer) StoreDouble(v float64) {
	b.out = binary.LittleEndian.AppendUint64(b.out, math.Float64bits(v))
}

// StoreLongText parses s as a signed decimal and appends it.
func (b *Buffer) StoreLongText(s string) { b.StoreLong(ParseDecimal[int64](s)) }

// StoreUint32Text parses s as an unsigned decimal and appends it.
func (b *Buffer) StoreUint32Text(s string) { b.StoreUint32(ParseUnsigned[uint32](s)) }

// StoreUint64Text parses s as an unsigned decimal and appends it.
func (b *Buffer) StoreUint64Text(s string) { b.StoreUint64(ParseUnsigned[uint64](s)) }

// StoreUint32Hex parses s as hexadecimal and appends it.
func (b *Buffer) StoreUint32Hex(s string) { b.StoreUint32(ParseHex[uint32](s)) }

// StoreUint64Hex parses s as hexadecimal and appends it.
func (b *Buffer) StoreUint64Hex(s string) { b.StoreUint64(ParseHex[uint64](s)) }

// StoreString appends a length-prefixed, 4-byte aligned string.
// It panics with ErrStringTooLong for strings of 2^24 bytes or more.
func (b *Buffer) StoreString(s string) {
	n := len(s)
	hdr := 1
	switch {
	case n < shortStringMax:
		b.out = append(b.out, byte(n))
	case n < longStringMax:
		b.out = append(b.out, shortStringMax, byte(n), byte(n>>8), byte(n>>16))
		hdr = 4
	default:
		panic(ErrStringTooLong)
	}
	b.out = append(b.out, s...)
	b.pad(hdr + n)
}

// StoreBytes is StoreString for a byte slice.
func (b *Buffer) StoreBytes(p []byte) {
	b.StoreString(string(p))
}

func (b *Buffer) pad(n int) {
	for ; n%4 != 0; n++ {
		b.out = append(b.out, 0)
	}
}

// StoreRaw appends pre-encoded words. It reports false, storing nothing,
// unless len(p) is a multiple of 4.
func (b *Buffer) StoreRaw(p []byte) bool {
	if len(p)%4 != 0 {
		return false
	}
	b.out = append(b.out, p...)
	return true
}

// StoreRawVectorInt appends vs without a length prefix.
func (b *Buffer) StoreRawVectorInt(vs []int32) {
	for _, v := range vs {
		b.StoreInt(v)
	}
}

// StoreRawVectorDouble appends vs without a length prefix.
func (b *Buffer) StoreRawVectorDouble(vs []float64) {
	for _, v := range vs {
		b.StoreDouble(v)
	}
}

// StoreMany stores args according to pattern, one character per argument:
// s string, l long, d or i int, f double.
func (b *Buffer) StoreMany(pattern string, args ...any) error {
	if len(pattern) == 0 || len(pattern) != len(args) {
		return ErrStoreManyPattern
	}
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case 's':
			b.StoreString(toText(args[i]))
		case 'l':
			b.StoreLong(toInt64(args[i]))
		case 'd', 'i':
			b.StoreInt(int32(toInt64(args[i])))
		case 'f':
			b.StoreDouble(toFloat64(args[i]))
		default:
			return ErrStoreManyPattern
		}
	}
	return nil
}

func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return ""
	}
	return ""
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float64:
		return int64(x)
	case string:
		return ParseDecimal[int64](x)
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

func toFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	}
	return float64(toInt64(v))
}

// check fails with ErrNotEnoughData unless n bytes remain.
func (b *Buffer) check(n int) error {
	if n < 0 || b.in.remaining() < n {
		return ErrNotEnoughData
	}
	return nil
}

// LookupInt reads the next word without advancing.
func (b *Buffer) LookupInt() (int32, error) {
	if err := b.check(4); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b.in.data[b.in.pos:])), nil
}

// FetchInt reads a 32-bit word.
func (b *Buffer) FetchInt() (int32, error) {
	v, err := b.FetchUint32()
	return int32(v), err
}

// FetchUint32 reads an unsigned 32-bit word.
func (b *Buffer) FetchUint32() (uint32, error) {
	if err := b.check(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(b.in.data[b.in.pos:])
	b.in.pos += 4
	return v, nil
}

// FetchLong reads a 64-bit value.
func (b *Buffer) FetchLong() (int64, error) {
	v, err := b.FetchUint64()
	return int64(v), err
}

// FetchUint64 reads an unsigned 64-bit value.
func (b *Buffer) FetchUint64() (uint64, error) {
	if err := b.check(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(b.in.data[b.in.pos:])
	b.in.pos += 8
	return v, nil
}

// FetchDouble reads an IEEE-754 double.
func (b *Buffer) FetchDouble() (float64, error) {
	v, err := b.FetchUint64()
	return math.Float64frombits(v), err
}

// FetchUint32Hex reads a word and renders it as 8 lowercase hex digits.
func (b *Buffer) FetchUint32Hex() (string, error) {
	v, err := b.FetchUint32()
	if err != nil {
		return "", err
	}
	return formatHex(uint64(v), 8), nil
}

// FetchUint64Hex reads two words and renders them as 16 lowercase hex digits.
func (b *Buffer) FetchUint64Hex() (string, error) {
	v, err := b.FetchUint64()
	if err != nil {
		return "", err
	}
	return formatHex(v, 16), nil
}

// FetchUint32Text reads a word and renders it in decimal.
func (b *Buffer) FetchUint32Text() (string, error) {
	v, err := b.FetchUint32()
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(uint64(v), 10), nil
}

// FetchUint64Text reads two words and renders them in decimal.
func (b *Buffer) FetchUint64Text() (string, error) {
	v, err := b.FetchUint64()
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(v, 10), nil
}

// FetchBytes reads a length-prefixed string. The result aliases the
// input snapshot.
func (b *Buffer) FetchBytes() ([]byte, error) {
	if err := b.check(4); err != nil {
		return nil, err
	}
	p := b.in.data[b.in.pos:]
	n, hdr := int(p[0]), 1
	switch {
	case n < shortStringMax:
	case n == shortStringMax:
		n = int(p[1]) | int(p[2])<<8 | int(p[3])<<16
		hdr = 4
	default:
		return nil, ErrBadStringHeader
	}
	total := (hdr + n + 3) &^ 3
	if err := b.check(total); err != nil {
		return nil, err
	}
	s := p[hdr : hdr+n : hdr+n]
	b.in.pos += total
	return s, nil
}

// FetchString reads a length-prefixed string.
func (b *Buffer) FetchString() (string, error) {
	p, err := b.FetchBytes()
	return string(p), err
}

// FetchRawVectorInt reads n words without a length prefix.
func (b *Buffer) FetchRawVectorInt(n int) ([]int32, error) {
	if err := b.check(4 * n); err != nil {
		return nil, err
	}
	vs := make([]int32, n)
	for i := range vs {
		vs[i], _ = b.FetchInt()
	}
	return vs, nil
}

// FetchRawVectorDouble reads n doubles without a length prefix.
func (b *Buffer) FetchRawVectorDouble(n int) ([]float64, error) {
	if err := b.check(8 * n); err != nil {
		return nil, err
	}
	vs := make([]float64, n)
	for i := range vs {
		vs[i], _ = b.FetchDouble()
	}
	return vs, nil
}

// FetchEnd succeeds only when the cursor sits exactly at the end of the
// input snapshot.
func (b *Buffer) FetchEnd() error {
	if b.in.remaining() != 0 {
		return ErrTooMuchData
	}
	return nil
}

// FetchEOF reports whether the input is exhausted.
func (b *Buffer) FetchEOF() bool {
	return b.in.remaining() == 0
}

// Pos returns the input cursor offset in bytes.
func (b *Buffer) Pos() int {
	return b.in.pos
}

// SetPos moves the input cursor. Offsets outside the snapshot or not
// word aligned are rejected.
func (b *Buffer) SetPos(pos int) bool {
	if pos < 0 || pos > len(b.in.data) || pos%4 != 0 {
		return false
	}
	b.in.pos = pos
	return true
}

// Remaining returns the unread input bytes. The result aliases the snapshot.
func (b *Buffer) Remaining() []byte {
	return b.in.data[b.in.pos:]
}

// Parse installs data as the input snapshot. The current input, if any,
// is kept in the single backup slot until RestorePrevious. Parsing while
// the backup slot is occupied fails with ErrNestedParse and changes
// nothing.
func (b *Buffer) Parse(data []byte) error {
	if len(data)%4 != 0 {
		return ErrUnalignedResult
	}
	if b.inActive {
		if b.hasBackup {
			return ErrNestedParse
		}
		b.backup, b.hasBackup = b.in, true
	}
	b.in = cursor{data: data}
	b.inActive = true
	return nil
}

// RestorePrevious reinstates the input saved by the last Parse, or
// clears the input when nothing was saved.
func (b *Buffer) RestorePrevious() {
	if b.hasBackup {
		b.in, b.backup, b.hasBackup = b.backup, cursor{}, false
		return
	}
	b.in, b.inActive = cursor{}, false
}

func (b *Buffer) resetInput() {
	b.in, b.inActive = cursor{}, false
	b.backup, b.hasBackup = cursor{}, false
}

// Parsing reports how many input levels are live: 0, 1 or 2.
func (b *Buffer) Parsing() int {
	switch {
	case b.hasBackup:
		return 2
	case b.inActive:
		return 1
	}
	return 0
}

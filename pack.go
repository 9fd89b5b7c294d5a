// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/gzip"
)

const packLevel = 6

// SetPackThreshold sets the size at which Finish compresses an answer.
// Zero or negative disables packing.
func (b *Buffer) SetPackThreshold(n int) {
	b.threshold = n
}

// StartPack marks the current output offset as the start of a span to
// compress on FinishPack.
func (b *Buffer) StartPack() {
	b.packFrom = len(b.out)
}

// FinishPack compresses the span since StartPack when its size is at
// least threshold (and threshold is positive). The span is replaced by
// [GZIP_PACKED][string blob] only if that frame is strictly smaller than
// the span. It reports whether the span was replaced. The mark is cleared
// either way.
func (b *Buffer) FinishPack(threshold int) bool {
	from := b.packFrom
	b.packFrom = -1
	if from < 0 || threshold <= 0 || from > len(b.out) {
		return false
	}
	span := b.out[from:]
	if len(span) < threshold {
		return false
	}
	blob, err := gzipBytes(span)
	if err != nil || len(blob) >= longStringMax || len(blob)+8 >= len(span) {
		return false
	}
	b.out = b.out[:from]
	b.StoreUint32(MagicGzipPacked)
	b.StoreBytes(blob)
	return true
}

func gzipBytes(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, packLevel)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(p); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unpack expands a GZIP_PACKED frame. Data without the marker is
// returned unchanged.
func unpack(data []byte) ([]byte, error) {
	if len(data) < 4 || binary.LittleEndian.Uint32(data) != MagicGzipPacked {
		return data, nil
	}
	var b Buffer
	b.in = cursor{data: data, pos: 4}
	blob, err := b.FetchBytes()
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, AsError(err, ErrorHeader)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, AsError(err, ErrorHeader)
	}
	if len(out)%4 != 0 {
		return nil, ErrUnalignedResult
	}
	// Bytes after the packed frame are part of the answer too.
	return append(out, b.Remaining()...), nil
}

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc_test

import (
	"context"
	"strings"
	"testing"

	"code.hybscloud.com/tlrpc"
)

// BenchmarkStoreFetch measures one int, long and string through a buffer.
func BenchmarkStoreFetch(b *testing.B) {
	b.ReportAllocs()
	buf := tlrpc.NewBuffer()
	s := strings.Repeat("k", 40)
	for b.Loop() {
		buf.Clean(false)
		buf.StoreInt(7)
		buf.StoreLong(1 << 40)
		buf.StoreString(s)
		buf.Parse(buf.Contents())
		buf.FetchInt()
		buf.FetchLong()
		buf.FetchString()
		buf.RestorePrevious()
	}
}

// BenchmarkSendGet measures a raw request answered in process.
func BenchmarkSendGet(b *testing.B) {
	skipRace(b)
	b.ReportAllocs()
	h := newHarness(b)
	h.mem.SetHandler(echo)
	ctx := context.Background()
	for b.Loop() {
		id := h.sendInt(1)
		if _, err := h.c.GetSync(ctx, id, tlrpc.NoTimeout); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkQueryResult measures a batch of 16 TL queries.
func BenchmarkQueryResult(b *testing.B) {
	skipRace(b)
	b.ReportAllocs()
	h := newHarness(b)
	h.mem.SetHandler(echo)
	objs := make([]tlrpc.Object, 16)
	for i := range objs {
		objs[i] = echoObj(i)
	}
	ctx := context.Background()
	for b.Loop() {
		ids := h.c.Query(h.conn, objs, 0, false)
		if _, err := h.c.QueryResultSync(ctx, ids); err != nil {
			b.Fatal(err)
		}
	}
}

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWaitTimeoutDropsWaiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(NewMemTransport(), WithClock(func() time.Time { return now }))
	conn, err := c.Connect(context.Background(), "mem", 11209, ConnectOptions{Timeout: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	c.Buffer().Clean(false)
	c.Buffer().StoreInt(1)
	id := c.Send(conn, 0)
	if id <= 0 {
		t.Fatalf("send: %d", id)
	}

	long := Start(c, c.Wait(id, NoTimeout))
	for i := 0; i < 3; i++ {
		f := Start(c, c.Wait(id, time.Millisecond))
		if n := len(c.waiters[id]); n != 2 {
			t.Fatalf("round %d: %d waiters", i, n)
		}
		now = now.Add(2 * time.Millisecond)
		c.Poll()
		if st, ok := f.Result(); !ok || st != WaitTimeout {
			t.Fatalf("round %d: %v %v", i, st, ok)
		}
		if n := len(c.waiters[id]); n != 1 {
			t.Fatalf("round %d: %d waiters after timeout", i, n)
		}
	}
	if long.Done() {
		t.Fatal("untimed wait finished")
	}
}

func TestJournalLogsFailedCommit(t *testing.T) {
	var out bytes.Buffer
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"), WithJournalLogger(zerolog.New(&out)))
	if err != nil {
		t.Fatal(err)
	}
	j.bdb.Close()
	for i := 1; i <= journalBatch; i++ {
		j.Observe(Record{Epoch: 1, ID: RequestID(i)})
	}
	if !strings.Contains(out.String(), "journal commit failed") {
		t.Fatalf("log output %q", out.String())
	}
	if len(j.batch) != journalBatch {
		t.Fatalf("batch %d after failed commit", len(j.batch))
	}
}

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

// Record describes one finished request.
type Record struct {
	Epoch    uint64
	ID       RequestID
	Function string
	Port     int
	ActorID  int64
	Size     int
	Begin    time.Time
	Latency  time.Duration
	Response Response
}

// Observer is notified of every finished request, on the client's
// goroutine.
type Observer interface {
	Observe(r Record)
}

// Entry is a journaled request as stored on disk.
type Entry struct {
	Epoch    uint64        `msgpack:"e"`
	ID       int64         `msgpack:"i"`
	Function string        `msgpack:"f,omitempty"`
	Port     int           `msgpack:"p"`
	ActorID  int64         `msgpack:"a,omitempty"`
	Size     int           `msgpack:"s"`
	Begin    time.Time     `msgpack:"t"`
	Latency  time.Duration `msgpack:"l"`
	Code     int32         `msgpack:"c,omitempty"`
	Message  string        `msgpack:"m,omitempty"`
	Answer   int           `msgpack:"n"`
	Digest   uint64        `msgpack:"d"`
}

// Failed reports whether the request ended with an error.
func (e Entry) Failed() bool {
	return e.Code != 0 || e.Message != ""
}

var journalBucket = []byte("requests")

// journalBatch is the number of records buffered before a commit.
const journalBatch = 64

// Journal is an Observer persisting finished requests to a bbolt file.
// Records are buffered and committed in batches.
type Journal struct {
	bdb   *bbolt.DB
	log   zerolog.Logger
	batch []Entry
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithJournalLogger sets the logger that reports failed commits.
func WithJournalLogger(l zerolog.Logger) JournalOption {
	return func(j *Journal) { j.log = l }
}

// OpenJournal opens or creates the journal at path.
func OpenJournal(path string, opts ...JournalOption) (*Journal, error) {
	bdb, err := bbolt.Open(path, 0666, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("tlrpc journal: %w", err)
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(journalBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("tlrpc journal: %w", err)
	}
	j := &Journal{bdb: bdb, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Observe buffers r, committing when the batch is full. A failed commit
// keeps the batch for the next one.
func (j *Journal) Observe(r Record) {
	e := Entry{
		Epoch:    r.Epoch,
		ID:       int64(r.ID),
		Function: r.Function,
		Port:     r.Port,
		ActorID:  r.ActorID,
		Size:     r.Size,
		Begin:    r.Begin,
		Latency:  r.Latency,
		Answer:   len(r.Response.Data),
		Digest:   xxhash.Sum64(r.Response.Data),
	}
	if r.Response.Err != nil {
		e.Code, e.Message = r.Response.Err.Code, r.Response.Err.Message
	}
	j.batch = append(j.batch, e)
	if len(j.batch) >= journalBatch {
		if err := j.Commit(); err != nil {
			j.log.Warn().Err(err).Int("records", len(j.batch)).Msg("journal commit failed")
		}
	}
}

// Commit writes buffered records in one transaction.
func (j *Journal) Commit() error {
	if len(j.batch) == 0 {
		return nil
	}
	err := j.bdb.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(journalBucket)
		for i := range j.batch {
			v, err := msgpack.Marshal(&j.batch[i])
			if err != nil {
				return err
			}
			if err := b.Put(journalKey(j.batch[i].Epoch, j.batch[i].ID), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tlrpc journal: %w", err)
	}
	j.batch = j.batch[:0]
	return nil
}

// Entries returns the committed records of epoch in request id order.
func (j *Journal) Entries(epoch uint64) ([]Entry, error) {
	var out []Entry
	prefix := binary.BigEndian.AppendUint64(nil, epoch)
	err := j.bdb.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(journalBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e Entry
			if err := msgpack.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode journal entry %x: %w", k, err)
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Close commits pending records and closes the file.
func (j *Journal) Close() error {
	err := j.Commit()
	if cerr := j.bdb.Close(); err == nil {
		err = cerr
	}
	return err
}

// journalKey orders entries by epoch, then by request id.
func journalKey(epoch uint64, id int64) []byte {
	k := make([]byte, 0, 16)
	k = binary.BigEndian.AppendUint64(k, epoch)
	return binary.BigEndian.AppendUint64(k, uint64(id))
}

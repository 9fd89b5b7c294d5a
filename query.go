// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"context"
	"fmt"
	"time"

	"code.hybscloud.com/kont"
)

// flushOverflow is the estimated volume of unflushed requests after
// which a batch query flushes early.
const flushOverflow = 1 << 15

// Wait suspends until request id finishes or timeout elapses.
func (c *Client) Wait(id RequestID, timeout time.Duration) kont.Eff[WaitStatus] {
	return kont.Perform(Wait{ID: id, Timeout: timeout})
}

// Get waits for id and takes its response. A response is taken at most
// once; later calls report "Result already was gotten". A TL query
// fetched this way drops its pending decoder.
func (c *Client) Get(id RequestID, timeout time.Duration) kont.Eff[Response] {
	c.pending.Withdraw(id)
	return kont.Bind(c.Wait(id, timeout), func(st WaitStatus) kont.Eff[Response] {
		return kont.Pure(c.take(id, st))
	})
}

// GetSync is Get that polls the client on the calling goroutine.
func (c *Client) GetSync(ctx context.Context, id RequestID, timeout time.Duration) (Response, error) {
	return Run(ctx, c, c.Get(id, timeout))
}

// GetAndParse waits for id, takes its answer and installs it as the
// codec input. The previous input is kept for RestorePrevious.
// The result is nil on success.
func (c *Client) GetAndParse(id RequestID, timeout time.Duration) kont.Eff[*Error] {
	return kont.Bind(c.Get(id, timeout), func(r Response) kont.Eff[*Error] {
		return kont.Pure(c.parseResponse(r))
	})
}

func (c *Client) take(id RequestID, st WaitStatus) Response {
	switch st {
	case WaitTimeout:
		return Response{ID: id, Err: newError(ErrorQueryTimeout, "Wait timeout for request %d", id)}
	case WaitUnknown:
		if o, ok := c.outcomes[id]; ok && o.taken {
			c.log.Warn().Int64("id", int64(id)).Msg("result already was gotten")
			return Response{ID: id, Err: newError(ErrorWrongQueryID, "Result already was gotten")}
		}
		return Response{ID: id, Err: newError(ErrorWrongQueryID, "Not a rpc request")}
	}
	o := c.outcomes[id]
	if o == nil || o.taken {
		// Another program woken for the same id took it first.
		c.log.Warn().Int64("id", int64(id)).Msg("result already was gotten")
		return Response{ID: id, Err: newError(ErrorWrongQueryID, "Result already was gotten")}
	}
	o.taken = true
	r := o.resp
	o.resp = Response{}
	return r
}

func (c *Client) parseResponse(r Response) *Error {
	if r.Err != nil {
		return r.Err
	}
	if len(r.Data)%4 != 0 {
		return ErrUnalignedResult
	}
	data, err := unpack(r.Data)
	if err != nil {
		return AsError(err, ErrorHeader)
	}
	if err := c.buf.Parse(data); err != nil {
		return AsError(err, ErrorInternal)
	}
	return nil
}

// QueryOne stores obj as a named TL function call, sends it on conn and
// flushes. It returns the query id, or 0 when storing or sending failed.
func (c *Client) QueryOne(conn Connection, obj Object, timeout time.Duration) RequestID {
	return c.query(conn, obj, timeout, false, nil, true)
}

// Query sends every object on conn and flushes once at the end, or
// earlier when unflushed requests exceed 32 KiB. Ids are returned in
// input order: 0 marks a failed object and -1 an ignored answer.
func (c *Client) Query(conn Connection, objs []Object, timeout time.Duration, ignoreAnswer bool) []RequestID {
	ids := make([]RequestID, len(objs))
	bytesSent := 0
	for i, obj := range objs {
		ids[i] = c.query(conn, obj, timeout, ignoreAnswer, &bytesSent, false)
	}
	if bytesSent > 0 {
		c.Flush()
	}
	return ids
}

func (c *Client) query(conn Connection, obj Object, timeout time.Duration, ignoreAnswer bool, bytesSent *int, flush bool) RequestID {
	c.buf.Clean(false)
	fetch, err := c.storeFunction(obj)
	if err != nil {
		c.log.Warn().Err(err).Msg("rpc tl query")
		return 0
	}
	if bytesSent != nil {
		c.flushOverflow(bytesSent)
	}
	id := c.send(conn, timeout, ignoreAnswer, obj.Name())
	if id <= 0 {
		return 0
	}
	if flush {
		c.Flush()
	}
	if ignoreAnswer {
		return -1
	}
	c.pending.Save(id, obj.Name(), fetch)
	return id
}

// flushOverflow accumulates the estimated request volume and flushes
// once it passes flushOverflow, keeping the current request unflushed.
func (c *Client) flushOverflow(bytesSent *int) {
	size := c.buf.payloadLen()
	*bytesSent += size
	if *bytesSent >= flushOverflow && *bytesSent > size {
		c.Flush()
		*bytesSent = size
	}
}

func (c *Client) storeFunction(obj Object) (Fetcher, error) {
	if obj == nil {
		return nil, &StoringError{Err: ErrNotTLObject}
	}
	name := obj.Name()
	st, ok := c.registry.Lookup(name)
	if !ok {
		return nil, &StoringError{Function: name, Err: ErrUnknownFunction}
	}
	fetch, err := st(c.buf, obj)
	if err != nil {
		return nil, &StoringError{Function: name, Err: err}
	}
	return fetch, nil
}

// Result is the decoded outcome of one TL query.
type Result struct {
	ID    RequestID
	Value any
	Err   *Error
}

// QueryResultOne waits for query id and decodes its result with the
// decoder saved by Query. Every failure is returned in Result.Err.
func (c *Client) QueryResultOne(id RequestID) kont.Eff[Result] {
	if id <= 0 {
		return kont.Pure(Result{ID: id, Err: newError(ErrorWrongQueryID, "Wrong query_id")})
	}
	if !c.pending.Used() {
		return kont.Pure(Result{ID: id, Err: newError(ErrorInternal, "There was no TL queries in current script run")})
	}
	pq, ok := c.pending.Withdraw(id)
	if !ok {
		return kont.Pure(Result{ID: id, Err: newError(ErrorWrongQueryID, "No pending TL query for query_id %d", id)})
	}
	return kont.Bind(c.GetAndParse(id, NoTimeout), func(perr *Error) kont.Eff[Result] {
		if perr != nil {
			return kont.Pure(Result{ID: id, Err: perr})
		}
		r := c.fetchFunction(pq)
		c.buf.RestorePrevious()
		r.ID = id
		return kont.Pure(r)
	})
}

// fetchFunction decodes the parsed answer. A protocol error frame takes
// precedence over the decoder; decoder failures and panics become
// TL_ERROR_SYNTAX, and unread trailing bytes TL_ERROR_EXTRA_DATA.
func (c *Client) fetchFunction(pq PendingQuery) Result {
	if e, ok := c.fetchRPCError(); ok {
		return Result{Err: e}
	}
	v, err := safeFetch(pq.Fetch, c.buf)
	if err != nil {
		return Result{Err: &Error{Message: errorMessage(err), Code: ErrorSyntax}}
	}
	if !c.buf.FetchEOF() {
		c.log.Warn().Str("function", pq.Function).Int("left", len(c.buf.Remaining())).Msg("not all data fetched")
		return Result{Err: newError(ErrorExtraData, "Not all data fetched")}
	}
	return Result{Value: v}
}

// fetchRPCError decodes a TL_RPC_REQ_ERROR frame at the cursor.
func (c *Client) fetchRPCError() (*Error, bool) {
	magic, err := c.buf.LookupInt()
	if err != nil || uint32(magic) != MagicReqError {
		return nil, false
	}
	if _, err := c.buf.FetchInt(); err != nil {
		return &Error{Message: errorMessage(err), Code: ErrorSyntax}, true
	}
	if _, err := c.buf.FetchLong(); err != nil {
		return &Error{Message: errorMessage(err), Code: ErrorSyntax}, true
	}
	code, err := c.buf.FetchInt()
	if err != nil {
		return &Error{Message: errorMessage(err), Code: ErrorSyntax}, true
	}
	msg, err := c.buf.FetchString()
	if err != nil {
		return &Error{Message: errorMessage(err), Code: ErrorSyntax}, true
	}
	return &Error{Message: msg, Code: code}, true
}

func safeFetch(fetch Fetcher, b *Buffer) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", p)
		}
	}()
	if fetch == nil {
		return nil, ErrNotTLObject
	}
	return fetch(b)
}

func errorMessage(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Message
	}
	return err.Error()
}

// gather is the drain state of QueryResult.
type gather struct {
	queue   QueueID
	results map[RequestID]Result
}

// QueryResult waits for every query id and returns their results in the
// order and length of ids. A single id is fetched directly; many are
// drained through a wait-queue in completion order. Ids with no delivered
// result get a TL_ERROR_WRONG_QUERY_ID error in their position.
func (c *Client) QueryResult(ids []RequestID) kont.Eff[[]Result] {
	if len(ids) == 1 {
		return kont.Map[kont.Resumed, Result, []Result](c.QueryResultOne(ids[0]), func(r Result) []Result {
			return []Result{r}
		})
	}
	return kont.Bind(kont.Pure(struct{}{}), func(struct{}) kont.Eff[[]Result] {
		return c.drainResults(ids)
	})
}

func (c *Client) drainResults(ids []RequestID) kont.Eff[[]Result] {
	start := gather{queue: c.QueueCreate(ids...), results: make(map[RequestID]Result, len(ids))}
	drain := Loop(start, func(g gather) kont.Eff[kont.Either[gather, gather]] {
		return kont.Bind(c.QueueNext(g.queue, NoTimeout), func(id RequestID) kont.Eff[kont.Either[gather, gather]] {
			if id <= 0 {
				return kont.Pure(kont.Right[gather, gather](g))
			}
			return kont.Bind(c.QueryResultOne(id), func(r Result) kont.Eff[kont.Either[gather, gather]] {
				g.results[id] = r
				return kont.Pure(kont.Left[gather, gather](g))
			})
		})
	})
	return kont.Bind(drain, func(g gather) kont.Eff[[]Result] {
		c.QueueClose(g.queue)
		return kont.Pure(arrange(ids, g.results))
	})
}

// arrange maps results back onto the caller's ids.
func arrange(ids []RequestID, got map[RequestID]Result) []Result {
	out := make([]Result, len(ids))
	for i, id := range ids {
		r, ok := got[id]
		switch {
		case ok:
			out[i] = r
		case id <= 0:
			out[i] = Result{ID: id, Err: newError(ErrorWrongQueryID, "Very wrong query_id %d", id)}
		default:
			out[i] = Result{ID: id, Err: newError(ErrorWrongQueryID, "No answer received or duplicate/wrong query_id %d", id)}
		}
	}
	return out
}

// QueryResultSync is QueryResult that polls the client on the calling
// goroutine instead of suspending.
func (c *Client) QueryResultSync(ctx context.Context, ids []RequestID) ([]Result, error) {
	return Run(ctx, c, c.QueryResult(ids))
}

// PendingCount returns the number of TL queries not yet fetched.
func (c *Client) PendingCount() int {
	return c.pending.Count()
}

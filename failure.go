// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"context"
	"time"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Fail aborts the enclosing program with e. It is handled by StartError
// and RunError. kont.CatchError[*Error] can recover it locally around a
// body that performs no RPC effects.
func Fail[A any](e *Error) kont.Eff[A] {
	return kont.ThrowError[*Error, A](e)
}

// Expect is Get that fails the program when the request did not
// produce an answer.
func (c *Client) Expect(id RequestID, timeout time.Duration) kont.Eff[[]byte] {
	return kont.Bind(c.Get(id, timeout), func(r Response) kont.Eff[[]byte] {
		if r.Err != nil {
			return Fail[[]byte](r.Err)
		}
		return kont.Pure(r.Data)
	})
}

// ExpectResult is QueryResultOne that fails the program on error.
func (c *Client) ExpectResult(id RequestID) kont.Eff[any] {
	return kont.Bind(c.QueryResultOne(id), func(r Result) kont.Eff[any] {
		if r.Err != nil {
			return Fail[any](r.Err)
		}
		return kont.Pure(r.Value)
	})
}

// StartError is Start for programs that may Fail. The result is Right on
// completion and Left with the first uncaught error.
func StartError[R any](c *Client, program kont.Eff[R]) *Future[kont.Either[*Error, R]] {
	wrapped := kont.Map[kont.Resumed, R, kont.Either[*Error, R]](program, func(r R) kont.Either[*Error, R] {
		return kont.Right[*Error, R](r)
	})
	t := &task[kont.Either[*Error, R]]{
		c: c,
		abort: func(e *Error) kont.Either[*Error, R] {
			return kont.Left[*Error, R](e)
		},
	}
	spawnTask(t, wrapped)
	c.runReady()
	return &Future[kont.Either[*Error, R]]{t: t}
}

// RunError polls c until program completes or fails, like Run.
func RunError[R any](ctx context.Context, c *Client, program kont.Eff[R]) (kont.Either[*Error, R], error) {
	return wait(ctx, c, StartError(c, program))
}

// wait polls c with adaptive backoff until f is done.
func wait[R any](ctx context.Context, c *Client, f *Future[R]) (R, error) {
	var bo iox.Backoff
	for !f.Done() {
		if err := ctx.Err(); err != nil {
			f.Cancel()
			var zero R
			return zero, err
		}
		if c.Poll() > 0 {
			bo.Reset()
		} else {
			bo.Wait()
		}
	}
	return f.t.result, nil
}

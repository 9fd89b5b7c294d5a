// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"context"

	"code.hybscloud.com/kont"
)

// Future is the handle of a program started with Start.
type Future[R any] struct {
	t *task[R]
}

// Done reports whether the program completed.
func (f *Future[R]) Done() bool {
	return f.t.done
}

// Result returns the program's result once Done.
func (f *Future[R]) Result() (R, bool) {
	return f.t.result, f.t.done
}

// Cancel abandons a parked program. Requests it sent stay live until
// answered, errored or timed out.
func (f *Future[R]) Cancel() {
	f.t.cancel()
}

// Start runs program on c until it first suspends and returns its Future.
// The program advances as c.Poll delivers completions and fires timers.
func Start[R any](c *Client, program kont.Eff[R]) *Future[R] {
	t := spawn(c, program, nil)
	c.runReady()
	return &Future[R]{t: t}
}

// Run is the synchronous variant of Start: it polls c on the calling
// goroutine until program completes, waiting with adaptive backoff
// (iox.Backoff) while nothing progresses. It does not spawn goroutines.
func Run[R any](ctx context.Context, c *Client, program kont.Eff[R]) (R, error) {
	return wait(ctx, c, Start(c, program))
}

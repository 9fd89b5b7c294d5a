// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"code.hybscloud.com/kont"
)

// dispatcher is the structural interface for client operations.
// DispatchRPC is non-blocking: it returns iox.ErrWouldBlock after
// registering r to be woken, and never any other error.
type dispatcher interface {
	DispatchRPC(c *Client, r resumable) (kont.Resumed, error)
}

// resumable is a parked computation the client can wake.
type resumable interface {
	resume(v kont.Resumed)
	parked() bool
}

// task is one cooperative resumable: a program stepped effect by effect
// on the client's goroutine.
type task[R any] struct {
	c      *Client
	susp   *kont.Suspension[R]
	result R
	done   bool
	onDone func(R)
	// abort turns a thrown *Error into the task result. Nil when the
	// program handles no error effects.
	abort func(*Error) R
}

// errorDispatcher is implemented by kont's error operations.
type errorDispatcher interface {
	DispatchError(ctx *kont.ErrorContext[*Error]) (kont.Resumed, bool)
}

// spawn evaluates program until its first suspension that cannot be
// resolved immediately.
func spawn[R any](c *Client, program kont.Eff[R], onDone func(R)) *task[R] {
	return spawnTask(&task[R]{c: c, onDone: onDone}, program)
}

func spawnTask[R any](t *task[R], program kont.Eff[R]) *task[R] {
	result, susp := kont.StepExpr(kont.Reify(program))
	t.advance(result, susp)
	return t
}

// advance dispatches suspended operations until the program completes
// or an operation would block. On iox.ErrWouldBlock the suspension is
// kept unconsumed until the client wakes the task. Dispatch order is
// RPC, then error operations; a throw discards the suspension.
func (t *task[R]) advance(result R, susp *kont.Suspension[R]) {
	for susp != nil {
		switch op := susp.Op().(type) {
		case dispatcher:
			v, err := op.DispatchRPC(t.c, t)
			if err != nil {
				t.susp = susp
				return
			}
			result, susp = susp.Resume(v)
		case errorDispatcher:
			if t.abort == nil {
				panic("tlrpc: error effect outside RunError")
			}
			var ctx kont.ErrorContext[*Error]
			v, _ := op.DispatchError(&ctx)
			if ctx.HasErr {
				susp.Discard()
				result, susp = t.abort(ctx.Err), nil
				continue
			}
			result, susp = susp.Resume(v)
		default:
			panic("tlrpc: unhandled effect in task")
		}
	}
	t.result, t.done = result, true
	if t.onDone != nil {
		t.onDone(result)
	}
}

func (t *task[R]) resume(v kont.Resumed) {
	susp := t.susp
	if susp == nil {
		return
	}
	t.susp = nil
	result, next := susp.Resume(v)
	t.advance(result, next)
}

func (t *task[R]) parked() bool {
	return t.susp != nil
}

// cancel drops a parked suspension. Later wakeups are ignored.
func (t *task[R]) cancel() {
	if t.susp != nil {
		t.susp.Discard()
		t.susp = nil
	}
}

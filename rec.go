// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"code.hybscloud.com/kont"
)

// Loop threads a drain state through step: Left carries the state into
// the next round, Right ends the program with its value. QueryResult uses
// it to pull ids off a wait-queue one QueueNext at a time, so a batch of
// any size is drained by one parked program.
func Loop[S, A any](initial S, step func(S) kont.Eff[kont.Either[S, A]]) kont.Eff[A] {
	return kont.Bind(step(initial), func(round kont.Either[S, A]) kont.Eff[A] {
		if done, ok := round.GetRight(); ok {
			return kont.Pure(done)
		}
		s, _ := round.GetLeft()
		return Loop(s, step)
	})
}

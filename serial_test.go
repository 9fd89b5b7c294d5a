// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc_test

import (
	"testing"

	"code.hybscloud.com/tlrpc"
)

func TestSerialMonotonic(t *testing.T) {
	c1 := tlrpc.New(tlrpc.NewMemTransport())
	c2 := tlrpc.New(tlrpc.NewMemTransport())
	c3 := tlrpc.New(tlrpc.NewMemTransport())

	if c1.Serial() >= c2.Serial() {
		t.Fatalf("serials not increasing: %d >= %d", c1.Serial(), c2.Serial())
	}
	if c2.Serial() >= c3.Serial() {
		t.Fatalf("serials not increasing: %d >= %d", c2.Serial(), c3.Serial())
	}
}

func TestSerialSurvivesEpoch(t *testing.T) {
	h := newHarness(t)
	s := h.c.Serial()
	h.c.BeginEpoch()
	if h.c.Serial() != s {
		t.Fatalf("serial changed across epochs: %d != %d", h.c.Serial(), s)
	}
}

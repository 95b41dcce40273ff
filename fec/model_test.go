package fec

import "testing"

func TestCombinBasic(t *testing.T) {
	cases := []struct {
		n, m int
		want float64
	}{
		{5, 0, 1},
		{5, 5, 1},
		{5, 2, 10},
		{6, 3, 20},
	}
	for _, c := range cases {
		if got := combin(c.n, c.m); got != c.want {
			t.Errorf("combin(%d,%d) = %v, want %v", c.n, c.m, got, c.want)
		}
	}
}

func TestBinomialTailProbBounds(t *testing.T) {
	if p := binomialTailProb(10, 0, 0.5); p != 1.0 {
		t.Errorf("need=0 should always succeed, got %v", p)
	}
	if p := binomialTailProb(5, 6, 0.9); p != 0.0 {
		t.Errorf("need>trials should be impossible, got %v", p)
	}
	// Certain per-packet success: any positive trial count clears any need <= trials.
	if p := binomialTailProb(5, 5, 1.0); p < 0.999 {
		t.Errorf("certain success expected, got %v", p)
	}
}

func TestCalcConditionalDofToSendMonotonic(t *testing.T) {
	// Higher loss should never require fewer additional packets.
	lowLossDof := calcConditionalDofToSend(6, 0, 0, 0.10, 0.99)
	highLossDof := calcConditionalDofToSend(6, 0, 0, 0.40, 0.99)
	if highLossDof < lowLossDof {
		t.Errorf("expected dof to grow with loss rate: low=%d high=%d", lowLossDof, highLossDof)
	}
	// Already having everything needs nothing more.
	if d := calcConditionalDofToSend(6, 6, 0, 0.30, 0.99); d != 0 {
		t.Errorf("expected 0 dof when group already complete, got %d", d)
	}
}

func TestArqCutover(t *testing.T) {
	n := arqCutover(0.5, 0.99)
	if n < 1 {
		t.Fatalf("arqCutover must be at least 1, got %d", n)
	}
	// Each ARQ round multiplies residual failure probability by per, so
	// per^n must have dropped at or below 1-tgtPrecv at the returned n.
	residual := 1.0
	for i := 0; i < n; i++ {
		residual *= 0.5
	}
	if residual > 0.01+1e-9 {
		t.Errorf("arqCutover(%d) leaves residual %v above target", n, residual)
	}
}

package fec

import (
	"math/rand"
	"testing"
)

func TestPerIndexSnapsUp(t *testing.T) {
	if i := perIndex(0.12); perBins[i] < 0.12 {
		t.Errorf("expected snapped-up bin >= 0.12, got %v", perBins[i])
	}
	if i := perIndex(0.50); perBins[i] != 0.50 {
		t.Errorf("exact match should resolve to itself, got %v", perBins[i])
	}
	if i := perIndex(0.99); i != len(perBins)-1 {
		t.Errorf("out-of-range per should clamp to the loosest bin")
	}
}

func TestEpsIndexConservative(t *testing.T) {
	idx := epsIndex(0.999)
	if 1-epsBins[idx] < 0.999-1e-9 {
		t.Errorf("chosen bin %v must guarantee at least the requested target 0.999", 1-epsBins[idx])
	}
}

func TestDofToSendRoundOneCoversK(t *testing.T) {
	dof := DofToSend(5, 0.20, 1, 3, 0.99, 0, 0)
	if dof < 5 {
		t.Errorf("round 1 with nothing received must send at least k=5 dof, got %d", dof)
	}
}

func TestDofToSendZeroWhenGroupComplete(t *testing.T) {
	if d := DofToSend(5, 0.20, 2, 3, 0.99, 5, 0); d != 0 {
		t.Errorf("expected 0 dof once all source packets are received, got %d", d)
	}
}

func TestDofToSendArqDegeneration(t *testing.T) {
	// A very loose target with low loss should trigger ARQ degeneration
	// quickly: dof_to_send should equal the plain remaining-packet count.
	k := 4
	d := DofToSend(k, 0.10, 7, 7, 0.50, 1, 0)
	want := k - 1
	if d != want {
		t.Errorf("expected ARQ degeneration to k-srcRcvd=%d, got %d", want, d)
	}
}

// TestMonteCarloRecoveryMeetsTarget simulates many independent group
// transmissions at a fixed per/tgtPrecv and confirms the fraction that
// fully recover source data by the final round tracks the requested
// target within simulation noise. Runs 2000 trials by default and 200
// under -short.
func TestMonteCarloRecoveryMeetsTarget(t *testing.T) {
	trials := 2000
	if testing.Short() {
		trials = 200
	}
	rng := rand.New(rand.NewSource(1))
	k := 4
	n := 3
	per := 0.20
	tgt := 0.95

	successes := 0
	for trial := 0; trial < trials; trial++ {
		srcRcvd, codedRcvd := 0, 0
		totalSent := 0
		for round := 1; round <= n; round++ {
			dof := DofToSend(k, per, round, n, tgt, srcRcvd, codedRcvd)
			if dof <= 0 {
				continue
			}
			for i := 0; i < dof; i++ {
				totalSent++
				if rng.Float64() >= per { // packet arrives
					if srcRcvd < k {
						srcRcvd++
					} else {
						codedRcvd++
					}
				}
			}
			if srcRcvd+codedRcvd >= k {
				break
			}
		}
		if srcRcvd+codedRcvd >= k {
			successes++
		}
	}
	rate := float64(successes) / float64(trials)
	// The simplified per-round model does not exactly reproduce the
	// state-machine simulation (arrivals are not re-labeled source vs
	// coded optimally), so allow a generous margin rather than asserting
	// a tight bound on a statistical process.
	if rate < tgt-0.25 {
		t.Errorf("observed recovery rate %v far below target %v", rate, tgt)
	}
}

package fec

import "sync"

// MaxGroupSize is the largest number of source packets a single FEC group
// may contain (k in the lookup tables).
const MaxGroupSize = 10

// MaxRounds is the largest round count the midgame/endgame tables are
// indexed by.
const MaxRounds = 7

// perBins are the loss-rate bins the table is indexed by. A measured loss
// rate is snapped UP to the first bin that is >= it, so the table always
// assumes a channel at least as lossy as observed.
var perBins = [...]float64{0.10, 0.15, 0.20, 0.25, 0.30, 0.35, 0.40, 0.45, 0.50}

// epsBins are the target-shortfall bins (epsilon = 1 - target receive
// probability), ascending from tightest to loosest.
var epsBins = [...]float64{
	0.001, 0.002, 0.003, 0.005, 0.0075, 0.010, 0.015, 0.020,
	0.025, 0.030, 0.035, 0.040, 0.045, 0.050,
}

// perIndex snaps a measured loss rate up to the first bin >= per.
func perIndex(per float64) int {
	for i, v := range perBins {
		if v >= per {
			return i
		}
	}
	return len(perBins) - 1
}

// epsIndex picks the largest epsilon bin not exceeding (1 - tgtPrecv), so
// the chosen bin's guaranteed receive probability is never below what was
// asked for. If even the tightest bin can't meet the target, it is used
// anyway as the best available approximation.
func epsIndex(tgtPrecv float64) int {
	required := 1 - tgtPrecv
	idx := 0
	for i := len(epsBins) - 1; i >= 0; i-- {
		if epsBins[i] <= required {
			idx = i
			break
		}
	}
	return idx
}

// dofSlice holds dofToSend[srcRcvd][codedRcvd] for a single (k, per, N,
// eps, game) cell of the table.
type dofSlice [][]int

// tableKey identifies one cached slice.
type tableKey struct {
	k       int
	perIdx  int
	round   int
	n       int
	epsIdx  int
	endgame bool
}

var (
	cacheMu sync.Mutex
	cache   = map[tableKey]dofSlice{}
)

// DofToSend returns how many additional degrees of freedom (packets) a
// group should transmit this round.
//
// k is the group's source-packet count, per the measured loss rate, round
// the 1-based round number within the group's lifetime, n the number of
// rounds the group's target allows before giving up, tgtPrecv the desired
// probability of full recovery, and srcRcvd/codedRcvd the counts already
// known delivered (by prior ACKs or Karn-style inference).
//
// The final round (round == n) uses the endgame table, which targets a
// higher implicit recovery probability since there is no further chance
// to retransmit; earlier rounds use the midgame table. When n is at least
// the number of pure-ARQ rounds that reach tgtPrecv (arqCutover), no table
// is consulted and every round returns k - srcRcvd - codedRcvd.
func DofToSend(k int, per float64, round, n int, tgtPrecv float64, srcRcvd, codedRcvd int) int {
	if k < 1 {
		k = 1
	}
	if k > MaxGroupSize {
		k = MaxGroupSize
	}
	if n < 1 {
		n = 1
	}
	if n > MaxRounds {
		n = MaxRounds
	}
	if round < 1 {
		round = 1
	}
	if round > n {
		round = n
	}

	if tgtPrecv > 0.999 {
		tgtPrecv = 0.999
	}

	pIdx := perIndex(per)
	eIdx := epsIndex(tgtPrecv)
	endgame := round == n

	cutover := arqCutover(perBins[pIdx], tgtPrecv)
	if n >= cutover {
		need := k - srcRcvd - codedRcvd
		if need < 0 {
			need = 0
		}
		return need
	}

	slice := getSlice(tableKey{k: k, perIdx: pIdx, round: round, n: n, epsIdx: eIdx, endgame: endgame})
	if srcRcvd > k {
		srcRcvd = k
	}
	if codedRcvd > k {
		codedRcvd = k
	}
	if srcRcvd < 0 {
		srcRcvd = 0
	}
	if codedRcvd < 0 {
		codedRcvd = 0
	}
	return slice[srcRcvd][codedRcvd]
}

func getSlice(key tableKey) dofSlice {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if s, ok := cache[key]; ok {
		return s
	}
	s := buildSlice(key)
	cache[key] = s
	return s
}

// buildSlice computes dofToSend for every (srcRcvd, codedRcvd) state of a
// single table cell, mirroring the original table generator's per-cell
// independence: no state depends on any other state in the same slice.
func buildSlice(key tableKey) dofSlice {
	per := perBins[key.perIdx]
	tgt := targetForCell(key)

	s := make(dofSlice, key.k+1)
	for src := 0; src <= key.k; src++ {
		s[src] = make([]int, key.k+1)
		for coded := 0; coded <= key.k; coded++ {
			if src+coded >= key.k {
				s[src][coded] = 0
				continue
			}
			s[src][coded] = calcConditionalDofToSend(key.k, src, coded, per, tgt)
		}
	}
	return s
}

// targetForCell raises the endgame table's implicit target above the
// nominal target, since a final round carries no further retransmission
// opportunity and must absorb the full residual risk budget itself.
func targetForCell(key tableKey) float64 {
	tgt := 1 - epsBins[key.epsIdx]
	if key.endgame {
		tgt = 1 - epsBins[key.epsIdx]/2
		if tgt > 0.9999 {
			tgt = 0.9999
		}
	}
	return tgt
}

package fec

import "math"

// binomialTailProb returns P(X >= need) for X ~ Binomial(trials, p), using
// the direct combinatorial sum rather than a stats library: the retrieval
// pack carries no probability/statistics dependency, and the values needed
// here (trials <= maxBlockLength) are small enough that a naive sum is both
// fast and numerically stable.
func binomialTailProb(trials, need int, p float64) float64 {
	if need <= 0 {
		return 1.0
	}
	if need > trials {
		return 0.0
	}
	sum := 0.0
	for x := need; x <= trials; x++ {
		sum += combin(trials, x) * math.Pow(p, float64(x)) * math.Pow(1-p, float64(trials-x))
	}
	return sum
}

// combin computes the unordered combination count "n choose m", matching
// the role of the original aectablegen's combin() helper.
func combin(n, m int) float64 {
	if m < 0 || m > n {
		return 0
	}
	if m > n-m {
		m = n - m
	}
	result := 1.0
	for i := 0; i < m; i++ {
		result *= float64(n-i) / float64(i+1)
	}
	return result
}

// maxBlockLength bounds how many total degrees of freedom (source + coded)
// a single group's round may put on the wire. Mirrors aectablegen's
// max_total_pkts parameter to calculate_conditional_systematic_fec_dof_to_send.
const maxBlockLength = 40

// calcConditionalDofToSend returns the smallest dofToSend such that, given
// srcRcvd source and codedRcvd coded packets already received out of a
// k-source group, transmitting dofToSend additional packets over a
// channel with per-packet loss rate per meets or exceeds tgtPrecv for
// recovering the remaining need = k - srcRcvd - codedRcvd degrees of
// freedom this round. Systematic coding makes any k of (k + coded)
// packets sufficient, so this reduces to a binomial tail bound.
func calcConditionalDofToSend(k, srcRcvd, codedRcvd int, per, tgtPrecv float64) int {
	need := k - srcRcvd - codedRcvd
	if need <= 0 {
		return 0
	}
	for dof := need; dof <= maxBlockLength; dof++ {
		if binomialTailProb(dof, need, 1-per) >= tgtPrecv {
			return dof
		}
	}
	return maxBlockLength - srcRcvd - codedRcvd
}

// arqCutover computes the number of pure-ARQ (one-packet-per-round)
// rounds that would already meet tgtPrecv against loss rate per:
// the smallest n such that per^n <= 1 - tgtPrecv.
func arqCutover(per, tgtPrecv float64) int {
	residual := 1 - tgtPrecv
	if residual <= 0 {
		return 1
	}
	if per <= 0 {
		return 1
	}
	if per >= 1 {
		return maxBlockLength
	}
	n := int(math.Ceil(math.Log(residual) / math.Log(per)))
	if n < 1 {
		n = 1
	}
	return n
}

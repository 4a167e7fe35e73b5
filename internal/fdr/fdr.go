// Package fdr estimates q-values from target-decoy competition.
package fdr

import (
	"math"
	"sort"

	"github.com/524D/mzsearch/internal/search"
)

// Staircase replaces every q-value by the smallest q-value at or below it
// in score order, walking from the worst score to the best. A value equal
// to the running minimum leaves the minimum unchanged.
func Staircase[T any](items []T, get func(T) float64, set func(T, float64)) {
	minimum := math.Inf(1)
	for i := len(items) - 1; i >= 0; i-- {
		q := get(items[i])
		if q > minimum {
			set(items[i], minimum)
		} else if q < minimum {
			minimum = q
		}
	}
}

// qValue is decoys / (decoys + targets), 0 before the first item
func qValue(decoys, targets int) float64 {
	if decoys+targets == 0 {
		return 0
	}
	return float64(decoys) / float64(decoys+targets)
}

// slot maps a notch to its counter, Unassigned and out of range notches
// use the last slot
func slot(notch, numNotches int) int {
	if notch < 0 || notch >= numNotches {
		return numNotches
	}
	return notch
}

// Analyze sets cumulative counts and q-values on psms, which must already
// be ordered by Order. No PSM is added, removed or moved.
func Analyze(psms []*search.PSM, numNotches int) {
	var targets, decoys int
	notchTargets := make([]int, numNotches+1)
	notchDecoys := make([]int, numNotches+1)
	for _, p := range psms {
		n := slot(p.Notch, numNotches)
		if p.Decoy {
			decoys++
			notchDecoys[n]++
		} else {
			targets++
			notchTargets[n]++
		}
		p.CumulativeTarget, p.CumulativeDecoy = targets, decoys
		p.CumulativeTargetNotch, p.CumulativeDecoyNotch = notchTargets[n], notchDecoys[n]
		p.QValue = qValue(decoys, targets)
		p.QValueNotch = qValue(notchDecoys[n], notchTargets[n])
	}

	Staircase(psms,
		func(p *search.PSM) float64 { return p.QValue },
		func(p *search.PSM, q float64) { p.QValue = q })

	minimum := make([]float64, numNotches+1)
	for i := range minimum {
		minimum[i] = math.Inf(1)
	}
	for i := len(psms) - 1; i >= 0; i-- {
		p := psms[i]
		n := slot(p.Notch, numNotches)
		if p.QValueNotch > minimum[n] {
			p.QValueNotch = minimum[n]
		} else if p.QValueNotch < minimum[n] {
			minimum[n] = p.QValueNotch
		}
	}
}

// Order sorts psms by descending score, ties by ascending absolute
// precursor mass error. The sort is stable.
func Order(psms []*search.PSM) {
	sort.SliceStable(psms, func(i, j int) bool {
		if psms[i].Score != psms[j].Score {
			return psms[i].Score > psms[j].Score
		}
		return psms[i].AbsMassError() < psms[j].AbsMassError()
	})
}

type dedupKey struct {
	file string
	scan int
	mass int64
}

// Dedup keeps the first PSM for every file, scan number and peptide mass.
// The input order is preserved.
func Dedup(psms []*search.PSM) []*search.PSM {
	seen := make(map[dedupKey]bool)
	out := make([]*search.PSM, 0, len(psms))
	for _, p := range psms {
		k := dedupKey{p.Scan.FilePath, p.Scan.OneBasedScanNumber, int64(math.Round(p.PeptideMass() * 1e5))}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}

// CountAtOrBelow returns the number of target PSMs with q-value at most q
func CountAtOrBelow(psms []*search.PSM, q float64) int {
	n := 0
	for _, p := range psms {
		if !p.Decoy && p.QValue <= q {
			n++
		}
	}
	return n
}

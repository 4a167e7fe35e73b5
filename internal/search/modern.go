package search

import (
	"context"

	"github.com/524D/mzsearch/internal/index"
	"github.com/524D/mzsearch/internal/massdiff"
	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/spectra"
)

// Modern searches a fragment index: the peaks of a scan select the
// candidates, which are then checked against the precursor mass and scored.
type Modern struct {
	Index *index.Index
	Params
}

// counter accumulates per candidate fragment hits for one scan at a time.
// Every index entry inside the window of a peak is a hit, so a count is
// never below the number of fragments the scorer matches.
type counter struct {
	counts  []int32
	touched []int32
}

func newCounter(n int) *counter {
	return &counter{counts: make([]int32, n)}
}

// peakWindow returns the range of fragment masses whose tolerance window
// holds the peak mass m
func peakWindow(t massdiff.Tolerance, m float64) (float64, float64) {
	if t.Unit == massdiff.PPM && m > 0 {
		if r := t.Value / 1e6; r < 1 {
			return m / (1 + r), m / (1 - r)
		}
	}
	return t.Window(m)
}

func (c *counter) count(x *index.Index, sp spectrum, s Scorer) {
	for _, m := range sp.masses {
		lo, hi := peakWindow(s.Tolerance, m)
		for _, cands := range x.CandidatesFor(lo, hi) {
			for _, id := range cands {
				if c.counts[id] == 0 {
					c.touched = append(c.touched, id)
				}
				c.counts[id]++
			}
		}
	}
}

func (c *counter) reset() {
	for _, id := range c.touched {
		c.counts[id] = 0
	}
	c.touched = c.touched[:0]
}

// passes reports whether a hit count can still reach cutoff. The intensity
// fraction adds at most 1.
func passes(count int32, cutoff float64, weighted bool) bool {
	if weighted {
		return float64(count)+1 >= cutoff
	}
	return float64(count) >= cutoff
}

// Search matches scans against the index
func (e *Modern) Search(ctx context.Context, scans []*spectra.Scan) (*Results, error) {
	res := NewResults(scans, e.Acceptor.NumNotches())
	cnt := newCounter(len(e.Index.Peptides))
	for i, scan := range scans {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !usable(scan) {
			res.Skipped++
			continue
		}
		sp := prepare(scan)
		cnt.count(e.Index, sp, e.Scorer)
		for _, id := range cnt.touched {
			if !passes(cnt.counts[id], e.ScoreCutoff, e.Scorer.IntensityWeighted) {
				continue
			}
			c := e.Index.Peptides[id]
			notch := e.Acceptor.Accepts(scan.PrecursorMass, c.MonoisotopicMass)
			if notch < 0 {
				continue
			}
			score, n := e.Scorer.score(sp, c)
			if score >= e.ScoreCutoff {
				res.Offer(i, notch, c, c.Key(), score, n)
			}
		}
		cnt.reset()
	}
	return res, nil
}

// Semi searches two indexes built from peptides with one enzymatic terminus
// each. Every candidate is truncated at its free end to the lengths whose
// mass the acceptor accepts.
type Semi struct {
	// NIndex holds peptides with a fixed N-terminus and N-terminal ions
	NIndex *index.Index
	// CIndex holds peptides with a fixed C-terminus and C-terminal ions
	CIndex           *index.Index
	MinPeptideLength int
	MaxPeptideLength int
	Params
}

func (e *Semi) lengthOK(l int) bool {
	return l >= 1 && l >= e.MinPeptideLength && (e.MaxPeptideLength == 0 || l <= e.MaxPeptideLength)
}

func (e *Semi) scorerFor(nTerm bool) Scorer {
	s := e.Scorer
	s.ProductTypes = nil
	for _, t := range e.Scorer.ProductTypes {
		if t.IsNTerminal() == nTerm {
			s.ProductTypes = append(s.ProductTypes, t)
		}
	}
	return s
}

// Search matches scans against both indexes
func (e *Semi) Search(ctx context.Context, scans []*spectra.Scan) (*Results, error) {
	res := NewResults(scans, e.Acceptor.NumNotches())
	for _, scan := range scans {
		if !usable(scan) {
			res.Skipped++
		}
	}
	for _, side := range []struct {
		x     *index.Index
		nTerm bool
	}{{e.NIndex, true}, {e.CIndex, false}} {
		if side.x == nil {
			continue
		}
		if err := e.searchSide(ctx, res, side.x, side.nTerm); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (e *Semi) searchSide(ctx context.Context, res *Results, x *index.Index, nTerm bool) error {
	scorer := e.scorerFor(nTerm)
	cnt := newCounter(len(x.Peptides))
	for i, scan := range res.Scans {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if !usable(scan) {
			continue
		}
		sp := prepare(scan)
		cnt.count(x, sp, scorer)
		for _, id := range cnt.touched {
			if !passes(cnt.counts[id], e.ScoreCutoff, scorer.IntensityWeighted) {
				continue
			}
			e.offerTruncations(res, i, sp, scorer, x.Peptides[id], nTerm)
		}
		cnt.reset()
	}
	return nil
}

func (e *Semi) offerTruncations(res *Results, i int, sp spectrum, scorer Scorer,
	c proteomics.CompactPeptide, nTerm bool) {

	obs := res.Scans[i].PrecursorMass
	for k := c.Len(); k >= 1; k-- {
		if !e.lengthOK(k) {
			continue
		}
		var t proteomics.CompactPeptide
		var ok bool
		if nTerm {
			t, ok = c.NTerminalTruncation(k)
		} else {
			t, ok = c.CTerminalTruncation(k)
		}
		if !ok {
			continue
		}
		notch := e.Acceptor.Accepts(obs, t.MonoisotopicMass)
		if notch < 0 {
			continue
		}
		score, n := scorer.score(sp, t)
		if score >= e.ScoreCutoff {
			res.Offer(i, notch, t, t.Key(), score, n)
		}
	}
}

package search

import (
	"context"
	"fmt"

	"github.com/524D/mzsearch/internal/digest"
	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/spectra"
)

// Classic searches without an index: every protein is digested and every
// isoform is scored against the scans whose precursor mass it can explain.
type Classic struct {
	Proteins  []*proteomics.Protein
	Digestion digest.Params
	Mods      digest.ModSet
	Params
}

// Search matches scans, which must be sorted by precursor mass
func (e *Classic) Search(ctx context.Context, scans []*spectra.Scan) (*Results, error) {
	res := NewResults(scans, e.Acceptor.NumNotches())
	sps := make([]spectrum, len(scans))
	for i, s := range scans {
		if usable(s) {
			sps[i] = prepare(s)
		} else {
			res.Skipped++
		}
	}
	terminus := proteomics.TerminusFor(e.Scorer.ProductTypes)
	seen := make(map[proteomics.PeptideKey]bool)

	for _, prot := range e.Proteins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		peps, err := digest.Digest(prot, e.Digestion)
		if err != nil {
			return nil, fmt.Errorf("digest %s: %w", prot.Accession, err)
		}
		for pep := range peps {
			for iso := range digest.Isoforms(pep, e.Mods, e.Digestion) {
				if !iso.Valid() {
					continue
				}
				c := iso.Compact(terminus)
				key := c.Key()
				if seen[key] {
					continue
				}
				seen[key] = true
				e.offerCandidate(res, sps, c, key)
			}
		}
	}
	return res, nil
}

func (e *Classic) offerCandidate(res *Results, sps []spectrum, c proteomics.CompactPeptide,
	key proteomics.PeptideKey) {

	scans := res.Scans
	for _, iv := range e.Acceptor.ObservedIntervals(c.MonoisotopicMass) {
		for i := spectra.FirstAtOrAbove(scans, iv.Min); i < len(scans) && scans[i].PrecursorMass <= iv.Max; i++ {
			if sps[i].masses == nil {
				continue
			}
			// overlapping windows: only the first accepting notch counts
			notch := e.Acceptor.Accepts(scans[i].PrecursorMass, c.MonoisotopicMass)
			if notch != iv.Notch {
				continue
			}
			score, n := e.Scorer.score(sps[i], c)
			if score >= e.ScoreCutoff {
				res.Offer(i, notch, c, key, score, n)
			}
		}
	}
}

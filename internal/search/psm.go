// Package search matches MS2 scans against candidate peptides and keeps the
// best scoring candidates per scan and notch.
package search

import (
	"math"
	"sort"

	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/spectra"
)

// Unassigned is the notch of a PSM no acceptor window claimed
const Unassigned = -1

// Match is one candidate of a PSM. Resolved is filled after searching with
// the concrete peptides that produce the signature.
type Match struct {
	Peptide     proteomics.CompactPeptide
	Key         proteomics.PeptideKey
	MatchedIons int
	Resolved    []*proteomics.ModifiedPeptide
}

// PSM is a peptide-spectrum match. More than one Match means the scan is
// explained equally well by several signatures.
type PSM struct {
	Scan      *spectra.Scan
	Score     float64
	Notch     int
	MassError float64
	Matches   []*Match
	Decoy     bool

	CumulativeTarget      int
	CumulativeDecoy       int
	CumulativeTargetNotch int
	CumulativeDecoyNotch  int
	QValue                float64
	QValueNotch           float64
}

// PeptideMass returns the monoisotopic mass of the first candidate
func (p *PSM) PeptideMass() float64 {
	return p.Matches[0].Peptide.MonoisotopicMass
}

// AbsMassError returns the absolute precursor mass error in dalton
func (p *PSM) AbsMassError() float64 {
	return math.Abs(p.MassError)
}

// Ambiguous reports whether more than one signature explains the scan
func (p *PSM) Ambiguous() bool {
	return len(p.Matches) > 1
}

// Peptides returns every resolved peptide, most probable first
func (p *PSM) Peptides() []*proteomics.ModifiedPeptide {
	var all []*proteomics.ModifiedPeptide
	for _, m := range p.Matches {
		all = append(all, m.Resolved...)
	}
	sortPeptides(all)
	return all
}

// BestPeptide returns the most probable resolved peptide, nil before
// resolution
func (p *PSM) BestPeptide() *proteomics.ModifiedPeptide {
	peps := p.Peptides()
	if len(peps) == 0 {
		return nil
	}
	return peps[0]
}

// FullSequences returns the distinct full sequences of the resolved peptides
func (p *PSM) FullSequences() []string {
	return distinct(p.Peptides(), (*proteomics.ModifiedPeptide).FullSequence)
}

// BaseSequences returns the distinct base sequences of the resolved peptides
func (p *PSM) BaseSequences() []string {
	return distinct(p.Peptides(), func(m *proteomics.ModifiedPeptide) string { return m.BaseSequence() })
}

// Accessions returns the distinct accessions of the resolved peptides
func (p *PSM) Accessions() []string {
	return distinct(p.Peptides(), func(m *proteomics.ModifiedPeptide) string { return m.Protein.Accession })
}

func distinct(peps []*proteomics.ModifiedPeptide, f func(*proteomics.ModifiedPeptide) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range peps {
		s := f(p)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// sortPeptides orders targets before decoys, then by accession and start
func sortPeptides(peps []*proteomics.ModifiedPeptide) {
	sort.SliceStable(peps, func(i, j int) bool {
		a, b := peps[i], peps[j]
		if a.Protein.IsDecoy != b.Protein.IsDecoy {
			return !a.Protein.IsDecoy
		}
		if a.Protein.Accession != b.Protein.Accession {
			return a.Protein.Accession < b.Protein.Accession
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.FullSequence() < b.FullSequence()
	})
}

// massErrorTolerance decides when two precursor errors count as equal
const massErrorTolerance = 1e-9

// Results holds the PSMs of one file, one slot per scan and notch
type Results struct {
	Scans      []*spectra.Scan
	NumNotches int
	Slots      []*PSM
	// Skipped counts scans without peaks or precursor
	Skipped int
}

// NewResults returns empty results for scans
func NewResults(scans []*spectra.Scan, numNotches int) *Results {
	return &Results{
		Scans:      scans,
		NumNotches: numNotches,
		Slots:      make([]*PSM, len(scans)*numNotches),
	}
}

// Offer proposes a scored candidate for scan i in the given notch. A better
// score replaces the slot, an equal score with a smaller absolute mass
// error replaces it, and a full tie adds the candidate to the slot.
func (r *Results) Offer(i, notch int, c proteomics.CompactPeptide, key proteomics.PeptideKey,
	score float64, matchedIons int) {

	scan := r.Scans[i]
	massErr := scan.PrecursorMass - c.MonoisotopicMass
	m := &Match{Peptide: c, Key: key, MatchedIons: matchedIons}
	slot := &r.Slots[i*r.NumNotches+notch]
	p := *slot
	switch {
	case p == nil || score > p.Score:
	case score < p.Score:
		return
	case math.Abs(massErr) < p.AbsMassError()-massErrorTolerance:
	case math.Abs(massErr) > p.AbsMassError()+massErrorTolerance:
		return
	default:
		for _, old := range p.Matches {
			if old.Key == key {
				return
			}
		}
		p.Matches = append(p.Matches, m)
		return
	}
	*slot = &PSM{Scan: scan, Score: score, Notch: notch, MassError: massErr, Matches: []*Match{m}}
}

// Merge offers every match of other, which must cover the same scans
func (r *Results) Merge(other *Results) {
	for n, p := range other.Slots {
		if p == nil {
			continue
		}
		for _, m := range p.Matches {
			r.Offer(n/r.NumNotches, p.Notch, m.Peptide, m.Key, p.Score, m.MatchedIons)
		}
	}
}

// PSMs returns the filled slots in scan order
func (r *Results) PSMs() []*PSM {
	var out []*PSM
	for _, p := range r.Slots {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

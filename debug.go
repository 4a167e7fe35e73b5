// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/524D/mzsearch/internal/pipeline"
	"github.com/524D/mzsearch/internal/search"
)

// debugLogScans prints the PSMs of the scans whose number lies in the
// range r, e.g. 3:6
func debugLogScans(w io.Writer, res *pipeline.Result, r string) error {
	lo, hi, err := parseIntRange(r, 0, math.MaxInt32)
	if err != nil {
		return fmt.Errorf("--%s: %w", debugFlagName, err)
	}
	for _, p := range res.PSMs {
		n := p.Scan.OneBasedScanNumber
		if n < lo || n > hi {
			continue
		}
		debugLogPSM(w, p)
	}
	return nil
}

func debugLogPSM(w io.Writer, p *search.PSM) {
	s := p.Scan
	fmt.Fprintf(w, "Scan:%d file:%s rt:%f precursor mz:%f charge:%d mass:%f peaks:%d\n",
		s.OneBasedScanNumber, s.FilePath, s.RetentionTime, s.PrecursorMz,
		s.PrecursorCharge, s.PrecursorMass, len(s.Peaks))
	kind := "target"
	if p.Decoy {
		kind = "decoy"
	}
	fmt.Fprintf(w, "  score:%f notch:%d massErr:%f(%0.2fppm) q:%f qNotch:%f %s\n",
		p.Score, p.Notch, p.MassError, 1e6*p.MassError/p.PeptideMass(),
		p.QValue, p.QValueNotch, kind)
	for i, m := range p.Matches {
		var seqs []string
		for _, pep := range m.Resolved {
			seqs = append(seqs, fmt.Sprintf("%s[%s %d-%d]", pep.FullSequence(),
				pep.Protein.Accession, pep.Start, pep.End))
		}
		fmt.Fprintf(w, "  %d mass:%f ions:%d %s\n", i, m.Peptide.MonoisotopicMass,
			m.MatchedIons, strings.Join(seqs, " "))
	}
}

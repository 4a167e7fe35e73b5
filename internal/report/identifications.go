package report

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/524D/mzsearch/internal/histogram"
	"github.com/524D/mzsearch/internal/parsimony"
	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/search"
)

// Identification is what label-free quantification needs of a confident
// PSM
type Identification struct {
	File             string
	BaseSequence     string
	FullSequence     string
	MonoisotopicMass float64
	// RetentionTime is in minutes
	RetentionTime float64
	Charge        int
	ProteinGroups []string
}

// Identifications returns the unambiguous target PSMs with a q-value at
// most qThreshold together with the names of the groups their peptides
// belong to
func Identifications(psms []*search.PSM, groups []*parsimony.Group, qThreshold float64) []Identification {
	groupOf := make(map[*proteomics.Protein][]string)
	for _, g := range groups {
		if g.Decoy {
			continue
		}
		for _, p := range g.Proteins {
			groupOf[p] = append(groupOf[p], g.Name())
		}
	}
	var ids []Identification
	for _, p := range psms {
		if p.Decoy || p.QValue > qThreshold {
			continue
		}
		full := p.FullSequences()
		if len(full) != 1 {
			continue
		}
		best := p.BestPeptide()
		seen := make(map[string]bool)
		var names []string
		for _, pep := range p.Peptides() {
			for _, n := range groupOf[pep.Protein] {
				if !seen[n] {
					seen[n] = true
					names = append(names, n)
				}
			}
		}
		sort.Strings(names)
		ids = append(ids, Identification{
			File:             p.Scan.FilePath,
			BaseSequence:     best.BaseSequence(),
			FullSequence:     full[0],
			MonoisotopicMass: best.MonoisotopicMass(),
			RetentionTime:    p.Scan.RetentionTime,
			Charge:           p.Scan.PrecursorCharge,
			ProteinGroups:    names,
		})
	}
	return ids
}

// WriteIdentifications writes the quantification handoff file
func WriteIdentifications(w io.Writer, ids []Identification) error {
	cw := newTSV(w)
	if err := cw.Write([]string{"File Name", "Base Sequence", "Full Sequence",
		"Peptide Monoisotopic Mass", "Scan Retention Time", "Precursor Charge", "Protein Accession"}); err != nil {
		return err
	}
	for _, id := range ids {
		err := cw.Write([]string{
			FileName(id.File),
			id.BaseSequence,
			id.FullSequence,
			ftoa(id.MonoisotopicMass, 5),
			ftoa(id.RetentionTime, 5),
			strconv.Itoa(id.Charge),
			strings.Join(id.ProteinGroups, ";"),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteHistogram writes the mass shift bins
func WriteHistogram(w io.Writer, bins []histogram.Bin) error {
	cw := newTSV(w)
	if err := cw.Write([]string{"MassShift", "Count", "CountDecoy", "CountTarget", "FDR", "MedianLength", "Mine"}); err != nil {
		return err
	}
	for _, b := range bins {
		err := cw.Write([]string{
			ftoa(b.MassShift, 4),
			strconv.Itoa(b.Count),
			strconv.Itoa(b.CountDecoy),
			strconv.Itoa(b.CountTarget),
			ftoa(b.FDR, 3),
			ftoa(b.MedianLength, 3),
			strings.Join(b.Mods, "|"),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

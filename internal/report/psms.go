// Package report writes the tab separated result files of a search and the
// human readable summary.
package report

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/524D/mzsearch/internal/search"
)

// Ambiguous values are joined with this separator
const alternatives = "|"

var psmHeader = []string{
	"File Name",
	"Scan Number",
	"Native ID",
	"Scan Retention Time",
	"Precursor Charge",
	"Precursor MZ",
	"Precursor Mass",
	"Score",
	"Notch",
	"Mass Diff (Da)",
	"Mass Diff (ppm)",
	"Base Sequence",
	"Full Sequence",
	"Peptide Monoisotopic Mass",
	"Protein Accession",
	"Protein Name",
	"Start and End Residues In Protein",
	"Previous Amino Acid",
	"Next Amino Acid",
	"Missed Cleavages",
	"Peptide Description",
	"Matched Ion Count",
	"Decoy/Contaminant/Target",
	"Cumulative Target",
	"Cumulative Decoy",
	"QValue",
	"Cumulative Target Notch",
	"Cumulative Decoy Notch",
	"QValue Notch",
}

func newTSV(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

func ftoa(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}

// FileName returns the base name of a spectra file without extensions,
// used to name the per-file outputs
func FileName(path string) string {
	name := filepath.Base(path)
	for {
		ext := filepath.Ext(name)
		if ext == "" || ext == name {
			return name
		}
		switch strings.ToLower(ext) {
		case ".gz", ".mzml":
			name = strings.TrimSuffix(name, ext)
		default:
			return name
		}
	}
}

func psmRow(p *search.PSM) []string {
	peps := p.Peptides()
	var names, ranges, prev, next, missed, desc []string
	seen := make(map[string]bool)
	for _, pep := range peps {
		names = append(names, pep.Protein.Name)
		ranges = append(ranges, "["+strconv.Itoa(pep.Start)+" to "+strconv.Itoa(pep.End)+"]")
		prev = append(prev, string(pep.PreviousAminoAcid()))
		next = append(next, string(pep.NextAminoAcid()))
		missed = append(missed, strconv.Itoa(pep.MissedCleavages))
		if !seen[pep.Description] {
			seen[pep.Description] = true
			desc = append(desc, pep.Description)
		}
	}
	peptideMass := p.PeptideMass()
	if best := p.BestPeptide(); best != nil {
		peptideMass = best.MonoisotopicMass()
	}
	ppm := 0.0
	if peptideMass > 0 {
		ppm = 1e6 * p.MassError / peptideMass
	}
	ions := 0
	for _, m := range p.Matches {
		ions = max(ions, m.MatchedIons)
	}
	return []string{
		FileName(p.Scan.FilePath),
		strconv.Itoa(p.Scan.OneBasedScanNumber),
		p.Scan.NativeID,
		ftoa(p.Scan.RetentionTime, 5),
		strconv.Itoa(p.Scan.PrecursorCharge),
		ftoa(p.Scan.PrecursorMz, 5),
		ftoa(p.Scan.PrecursorMass, 5),
		ftoa(p.Score, 3),
		notch(p.Notch),
		ftoa(p.MassError, 5),
		ftoa(ppm, 2),
		strings.Join(p.BaseSequences(), alternatives),
		strings.Join(p.FullSequences(), alternatives),
		ftoa(peptideMass, 5),
		strings.Join(p.Accessions(), alternatives),
		strings.Join(distinctStrings(names), alternatives),
		strings.Join(ranges, alternatives),
		strings.Join(prev, alternatives),
		strings.Join(next, alternatives),
		strings.Join(missed, alternatives),
		strings.Join(desc, alternatives),
		strconv.Itoa(ions),
		kind(p.Decoy, contaminant(p)),
		strconv.Itoa(p.CumulativeTarget),
		strconv.Itoa(p.CumulativeDecoy),
		ftoa(p.QValue, 6),
		strconv.Itoa(p.CumulativeTargetNotch),
		strconv.Itoa(p.CumulativeDecoyNotch),
		ftoa(p.QValueNotch, 6),
	}
}

func notch(n int) string {
	if n == search.Unassigned {
		return "-"
	}
	return strconv.Itoa(n)
}

func contaminant(p *search.PSM) bool {
	for _, pep := range p.Peptides() {
		if pep.Protein.IsContaminant {
			return true
		}
	}
	return false
}

// kind returns D, C or T, decoy taking precedence
func kind(decoy, contaminant bool) string {
	switch {
	case decoy:
		return "D"
	case contaminant:
		return "C"
	}
	return "T"
}

func distinctStrings(ss []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// WritePSMs writes one row per PSM in the given order
func WritePSMs(w io.Writer, psms []*search.PSM) error {
	cw := newTSV(w)
	if err := cw.Write(psmHeader); err != nil {
		return err
	}
	for _, p := range psms {
		if err := cw.Write(psmRow(p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// UniquePeptides keeps the first PSM of every full sequence. psms must be
// ordered best first.
func UniquePeptides(psms []*search.PSM) []*search.PSM {
	seen := make(map[string]bool)
	var out []*search.PSM
	for _, p := range psms {
		k := strings.Join(p.FullSequences(), alternatives)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}

// ByFile splits psms by spectra file, keeping their order. files lists the
// file paths in order of first appearance.
func ByFile(psms []*search.PSM) (files []string, byFile map[string][]*search.PSM) {
	byFile = make(map[string][]*search.PSM)
	for _, p := range psms {
		f := p.Scan.FilePath
		if _, ok := byFile[f]; !ok {
			files = append(files, f)
		}
		byFile[f] = append(byFile[f], p)
	}
	return files, byFile
}

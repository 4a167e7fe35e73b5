package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/524D/mzsearch/internal/parsimony"
	"github.com/524D/mzsearch/internal/proteomics"
)

var groupHeader = []string{
	"Protein Accession",
	"Protein Full Name",
	"Number of Proteins in Group",
	"Unique Peptides",
	"Shared Peptides",
	"Number of Peptides",
	"Number of Unique Peptides",
	"Sequence Coverage Fraction",
	"Sequence Coverage",
	"Sequence Coverage with Mods",
	"Modification Info List",
	"Number of PSMs",
	"Protein Decoy/Contaminant/Target",
	"Score",
	"Protein Cumulative Target",
	"Protein Cumulative Decoy",
	"Protein QValue",
}

func fullSequences(peps []*proteomics.ModifiedPeptide) []string {
	seqs := make([]string, len(peps))
	for i, p := range peps {
		seqs[i] = p.FullSequence()
	}
	return distinctStrings(seqs)
}

func groupRow(g *parsimony.Group) []string {
	var names []string
	for _, p := range g.Proteins {
		names = append(names, p.Name)
	}
	unique := fullSequences(g.UniquePeptides)
	isUnique := make(map[string]bool, len(unique))
	for _, s := range unique {
		isUnique[s] = true
	}
	var shared []string
	all := fullSequences(g.Peptides)
	for _, s := range all {
		if !isUnique[s] {
			shared = append(shared, s)
		}
	}
	var fraction, display, withMods, info []string
	for _, c := range g.Coverage {
		fraction = append(fraction, ftoa(c.Fraction, 5))
		display = append(display, c.Display)
		withMods = append(withMods, c.DisplayWithMods)
		info = append(info, c.ModsInfo)
	}
	return []string{
		g.Name(),
		strings.Join(names, alternatives),
		strconv.Itoa(len(g.Proteins)),
		strings.Join(unique, alternatives),
		strings.Join(shared, alternatives),
		strconv.Itoa(len(all)),
		strconv.Itoa(len(unique)),
		strings.Join(fraction, alternatives),
		strings.Join(display, alternatives),
		strings.Join(withMods, alternatives),
		strings.Join(info, alternatives),
		strconv.Itoa(len(g.PSMs)),
		kind(g.Decoy, g.Contaminant),
		ftoa(g.Score, 3),
		strconv.Itoa(g.CumulativeTarget),
		strconv.Itoa(g.CumulativeDecoy),
		ftoa(g.QValue, 6),
	}
}

// WriteProteinGroups writes one row per group. A non empty file adds a
// column naming the spectra file subset groups were scored for.
func WriteProteinGroups(w io.Writer, groups []*parsimony.Group, file string) error {
	cw := newTSV(w)
	header := groupHeader
	if file != "" {
		header = append(append([]string(nil), groupHeader...), "File Name")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, g := range groups {
		row := groupRow(g)
		if file != "" {
			row = append(row, FileName(file))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

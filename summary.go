package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/524D/mzsearch/internal/mzidentml"
)

// defaultScoreFilter accepts the PSM q-value written by mzsearch and the
// usual scores of some common search engines
const defaultScoreFilter = "MS:1002354(:0.01)MS:1002257(0.0:1e-2)MS:1001330(0.0:1e-2)MS:1001159(0.0:1e-2)MS:1002466(0.99:)"

const summaryLongDescription = `Count the identifications in mzIdentML files that pass a score filter.

The score filter has the format
  <CVterm1|scorename1>([<minscore1>]:[<maxscore1>])...
When multiple score names/CV terms are specified, the first one on the list
that matches a score of an identification is used. The default accepts:
  MS:1002354 (PSM-level q-value) up to 0.01, as written by mzsearch
  MS:1002257 (Comet:expectation value)
  MS:1001330 (X!Tandem:expectation value)
  MS:1001159 (SEQUEST:expectation value)
  MS:1002466 (PeptideShaker PSM score)`

// fileCounts are the identification counts of one mzIdentML file
type fileCounts struct {
	file     string
	idents   int
	rankOne  int
	accepted int
	decoys   int
	peptides int
	proteins int
	unscored int
}

func (f fileCounts) row() []string {
	return []string{f.file, strconv.Itoa(f.idents), strconv.Itoa(f.rankOne),
		strconv.Itoa(f.accepted), strconv.Itoa(f.decoys), strconv.Itoa(f.peptides),
		strconv.Itoa(f.proteins)}
}

func (c *cli) newSummaryCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "summary [flags] <mzid file>...",
		Short: "Summarize identifications in mzIdentML files",
		Long:  summaryLongDescription,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filt, err := parseScoreFilter(filter)
			if err != nil {
				return err
			}
			var all []fileCounts
			for _, path := range args {
				fc, err := countIdentifications(path, filt)
				if err != nil {
					return err
				}
				if fc.unscored > 0 {
					c.logger.Warn("identifications without a score of the filter",
						"file", path, "count", fc.unscored)
				}
				all = append(all, fc)
			}
			return writeCounts(cmd.OutOrStdout(), all)
		},
	}
	cmd.Flags().StringVar(&filter, "scorefilter", defaultScoreFilter, "filter for PSM scores to accept")
	return cmd
}

func countIdentifications(path string, filt scoreFilter) (fileCounts, error) {
	fc := fileCounts{file: filepath.Base(path)}
	f, err := os.Open(path)
	if err != nil {
		return fc, err
	}
	defer f.Close()
	m, err := mzidentml.Read(f)
	if err != nil {
		return fc, fmt.Errorf("%s: %w", path, err)
	}

	peptides := make(map[string]bool)
	proteins := make(map[string]bool)
	fc.idents = m.NumIdents()
	for i := 0; i < m.NumIdents(); i++ {
		ident, err := m.Ident(i)
		if err != nil {
			return fc, fmt.Errorf("%s: %w", path, err)
		}
		if ident.Rank != 1 {
			continue
		}
		fc.rankOne++
		if !filt.accept(&ident) {
			if !hasScore(&ident, filt) {
				fc.unscored++
			}
			continue
		}
		if ident.Decoy {
			fc.decoys++
			continue
		}
		fc.accepted++
		peptides[ident.PepID] = true
		for _, a := range ident.Accessions {
			proteins[a] = true
		}
	}
	fc.peptides = len(peptides)
	fc.proteins = len(proteins)
	return fc, nil
}

func hasScore(ident *mzidentml.Identification, filt scoreFilter) bool {
	for name := range filt {
		if _, ok := ident.Score(name); ok {
			return true
		}
	}
	return false
}

func writeCounts(w io.Writer, all []fileCounts) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"File", "Identifications", "Rank 1", "Accepted", "Decoys", "Peptides", "Proteins"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, fc := range all {
		table.Append(fc.row())
	}
	table.Render()
	return nil
}

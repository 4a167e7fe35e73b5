package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Counts are the confident results of one spectra file or of all files
type Counts struct {
	File           string
	Scans          int
	Skipped        int
	PSMs           int
	UniquePeptides int
	ProteinGroups  int
}

// Summary is the content of results.txt
type Summary struct {
	QValueThreshold float64
	Elapsed         time.Duration
	Files           []Counts
	Total           Counts
}

func (c Counts) row() []string {
	return []string{
		c.File,
		strconv.Itoa(c.Scans),
		strconv.Itoa(c.Skipped),
		strconv.Itoa(c.PSMs),
		strconv.Itoa(c.UniquePeptides),
		strconv.Itoa(c.ProteinGroups),
	}
}

// WriteSummary writes the totals followed by a table with one row per file
func WriteSummary(w io.Writer, s Summary) error {
	pct := ftoa(100*s.QValueThreshold, 1) + "%"
	_, err := fmt.Fprintf(w, "Time to run search: %s\n"+
		"All target PSMs within %s FDR: %d\n"+
		"Unique peptides within %s FDR: %d\n"+
		"Protein groups within %s FDR: %d\n\n",
		s.Elapsed.Round(time.Millisecond), pct, s.Total.PSMs, pct, s.Total.UniquePeptides,
		pct, s.Total.ProteinGroups)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"File", "Scans", "Skipped", "PSMs", "Peptides", "Protein groups"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, c := range s.Files {
		table.Append(c.row())
	}
	total := s.Total
	total.File = "Total"
	table.SetFooter(total.row())
	table.Render()
	return nil
}

package proteindb

import (
	"bufio"
	"io"
	"strings"

	"github.com/524D/mzsearch/internal/proteomics"
)

// parseHeader splits a FASTA header into accession and name. UniProt
// headers (sp|P12345|NAME_HUMAN Description) yield the middle field as
// accession, any other header its first word.
func parseHeader(h string) (accession, name string) {
	h = strings.TrimSpace(h)
	first, rest, _ := strings.Cut(h, " ")
	fields := strings.Split(first, "|")
	if len(fields) >= 3 && (fields[0] == "sp" || fields[0] == "tr") {
		return fields[1], strings.TrimSpace(fields[2] + " " + rest)
	}
	return first, strings.TrimSpace(rest)
}

// ReadFASTA reads proteins from FASTA text. path is recorded as the
// database file of every protein.
func ReadFASTA(r io.Reader, path string, opt Options) ([]*proteomics.Protein, Stats, error) {
	var targets []*proteomics.Protein
	var cur *proteomics.Protein
	var seq strings.Builder
	flush := func() {
		if cur == nil {
			return
		}
		cur.Sequence = cleanSequence(seq.String())
		if cur.Sequence != "" {
			targets = append(targets, cur)
		}
		cur = nil
		seq.Reset()
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, ">") {
			flush()
			acc, name := parseHeader(line[1:])
			cur = &proteomics.Protein{
				Accession:     acc,
				Name:          name,
				IsContaminant: opt.Contaminant,
				DatabaseFile:  path,
			}
			continue
		}
		if cur != nil {
			seq.WriteString(line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, Stats{}, err
	}
	flush()

	proteins, st := withDecoys(targets, opt)
	return proteins, st, nil
}

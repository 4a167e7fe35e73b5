// Package proteindb loads protein databases from FASTA and UniProt XML files
// and generates reversed decoy proteins.
package proteindb

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/524D/mzsearch/internal/proteomics"
)

// DecoyPrefix is prepended to the accession of decoy proteins
const DecoyPrefix = "DECOY_"

var (
	// ErrUnknownFormat means the database file extension is not recognised
	ErrUnknownFormat = errors.New("unknown protein database format")
	// ErrEmptyDatabase means a database holds no protein
	ErrEmptyDatabase = errors.New("protein database has no entries")
)

// Options control loading
type Options struct {
	// Decoys adds a reversed decoy after every target protein
	Decoys      bool
	Contaminant bool
	// Mods resolves UniProt modified residue features, nil ignores them
	Mods *proteomics.ModificationDictionary
}

// Stats counts what was loaded from one database
type Stats struct {
	Targets     int
	Decoys      int
	UnknownMods int
}

// Load reads a FASTA (.fasta, .fa, .faa) or UniProt XML (.xml) database,
// optionally gzip compressed (.gz)
func Load(path string, opt Options) ([]*proteomics.Protein, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close()

	name := strings.ToLower(path)
	var r io.Reader = f
	if strings.HasSuffix(name, ".gz") {
		z, err := gzip.NewReader(f)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("%s: %w", path, err)
		}
		defer z.Close()
		r = z
		name = strings.TrimSuffix(name, ".gz")
	}

	var proteins []*proteomics.Protein
	var st Stats
	switch filepath.Ext(name) {
	case ".fasta", ".fa", ".faa":
		proteins, st, err = ReadFASTA(r, path, opt)
	case ".xml":
		proteins, st, err = ReadUniProtXML(r, path, opt)
	default:
		return nil, Stats{}, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return nil, st, fmt.Errorf("%s: %w", path, err)
	}
	if st.Targets == 0 {
		return nil, st, fmt.Errorf("%w: %s", ErrEmptyDatabase, path)
	}
	return proteins, st, nil
}

// withDecoys appends the decoy of every target when requested
func withDecoys(targets []*proteomics.Protein, opt Options) ([]*proteomics.Protein, Stats) {
	st := Stats{Targets: len(targets)}
	if !opt.Decoys {
		return targets, st
	}
	out := make([]*proteomics.Protein, 0, 2*len(targets))
	for _, t := range targets {
		out = append(out, t, Decoy(t))
	}
	st.Decoys = len(targets)
	return out, st
}

// Decoy returns the reversed protein. A leading methionine stays in place,
// modification sites and proteolysis products move with their residues.
func Decoy(p *proteomics.Protein) *proteomics.Protein {
	seq := []byte(p.Sequence)
	l := len(seq)
	keepM := l > 0 && seq[0] == 'M'
	from := 0
	if keepM {
		from = 1
	}
	for i, j := from, l-1; i < j; i, j = i+1, j-1 {
		seq[i], seq[j] = seq[j], seq[i]
	}
	// position maps a 1-based target position to its decoy position
	position := func(pos int) int {
		if keepM {
			if pos == 1 {
				return 1
			}
			return l - pos + 2
		}
		return l - pos + 1
	}

	d := &proteomics.Protein{
		Accession:     DecoyPrefix + p.Accession,
		Name:          p.Name,
		Sequence:      string(seq),
		IsDecoy:       true,
		IsContaminant: p.IsContaminant,
		DatabaseFile:  p.DatabaseFile,
	}
	if len(p.Mods) > 0 {
		d.Mods = make(map[int][]proteomics.Modification, len(p.Mods))
		for pos, mods := range p.Mods {
			d.Mods[position(pos)] = append([]proteomics.Modification(nil), mods...)
		}
	}
	for _, pp := range p.ProteolysisProducts {
		if pp.Begin <= 0 || pp.End <= 0 {
			continue
		}
		begin, end := l-pp.End+1, l-pp.Begin+1
		d.ProteolysisProducts = append(d.ProteolysisProducts, proteomics.ProteolysisProduct{
			Begin: begin, End: end, Type: pp.Type,
		})
	}
	sort.Slice(d.ProteolysisProducts, func(i, j int) bool {
		return d.ProteolysisProducts[i].Begin < d.ProteolysisProducts[j].Begin
	})
	return d
}

// cleanSequence upper cases the residues and drops everything else, such
// as white space and stop codons
func cleanSequence(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			sb.WriteByte(c - 'a' + 'A')
		case c >= 'A' && c <= 'Z':
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

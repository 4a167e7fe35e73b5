package proteindb

import (
	"encoding/xml"
	"io"

	"golang.org/x/net/html/charset"

	"github.com/524D/mzsearch/internal/proteomics"
)

// uniprotAliases maps UniProt modified residue descriptions to dictionary
// keys when the names differ
var uniprotAliases = map[string]string{
	"Phosphoserine":        "Common Biological:Phosphorylation on S",
	"Phosphothreonine":     "Common Biological:Phosphorylation on T",
	"Phosphotyrosine":      "Common Biological:Phosphorylation on Y",
	"N-acetylmethionine":   "Common Biological:Acetylation on X",
	"N-acetylalanine":      "Common Biological:Acetylation on X",
	"N-acetylserine":       "Common Biological:Acetylation on X",
	"N-acetylthreonine":    "Common Biological:Acetylation on X",
	"Methionine sulfoxide": "Common Variable:Oxidation on M",
}

// Proteolysis product feature types of UniProt
var productTypes = map[string]bool{
	"chain":           true,
	"signal peptide":  true,
	"propeptide":      true,
	"peptide":         true,
	"transit peptide": true,
}

type uniprotEntry struct {
	Accession []string `xml:"accession"`
	Name      string   `xml:"name"`
	FullName  string   `xml:"protein>recommendedName>fullName"`
	Feature   []struct {
		Type        string `xml:"type,attr"`
		Description string `xml:"description,attr"`
		Position    struct {
			Position int `xml:"position,attr"`
		} `xml:"location>position"`
		Begin struct {
			Position int `xml:"position,attr"`
		} `xml:"location>begin"`
		End struct {
			Position int `xml:"position,attr"`
		} `xml:"location>end"`
	} `xml:"feature"`
	Sequence string `xml:"sequence"`
}

func lookupUniProtMod(dict *proteomics.ModificationDictionary, description string) (proteomics.Modification, bool) {
	if dict == nil {
		return proteomics.Modification{}, false
	}
	if key, ok := uniprotAliases[description]; ok {
		if m, err := dict.Lookup(key); err == nil {
			return m, true
		}
	}
	if m, err := dict.Lookup(description); err == nil {
		return m, true
	}
	return dict.ByID(description)
}

// ReadUniProtXML reads the entries of a UniProt XML document. Modified
// residue features become protein modifications when opt.Mods knows them,
// chain and peptide features become proteolysis products.
func ReadUniProtXML(r io.Reader, path string, opt Options) ([]*proteomics.Protein, Stats, error) {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel

	var targets []*proteomics.Protein
	unknown := 0
	for {
		t, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, Stats{}, err
		}
		start, ok := t.(xml.StartElement)
		if !ok || start.Name.Local != "entry" {
			continue
		}
		var e uniprotEntry
		if err := d.DecodeElement(&e, &start); err != nil {
			return nil, Stats{}, err
		}
		seq := cleanSequence(e.Sequence)
		if len(e.Accession) == 0 || seq == "" {
			continue
		}
		p := &proteomics.Protein{
			Accession:     e.Accession[0],
			Name:          e.FullName,
			Sequence:      seq,
			IsContaminant: opt.Contaminant,
			DatabaseFile:  path,
		}
		if p.Name == "" {
			p.Name = e.Name
		}
		for _, f := range e.Feature {
			switch {
			case f.Type == "modified residue":
				pos := f.Position.Position
				if pos < 1 || pos > len(seq) {
					continue
				}
				m, ok := lookupUniProtMod(opt.Mods, f.Description)
				if !ok {
					unknown++
					continue
				}
				if p.Mods == nil {
					p.Mods = make(map[int][]proteomics.Modification)
				}
				p.Mods[pos] = append(p.Mods[pos], m)
			case productTypes[f.Type]:
				p.ProteolysisProducts = append(p.ProteolysisProducts, proteomics.ProteolysisProduct{
					Begin: f.Begin.Position, End: f.End.Position, Type: f.Type,
				})
			}
		}
		targets = append(targets, p)
	}

	proteins, st := withDecoys(targets, opt)
	st.UnknownMods = unknown
	return proteins, st, nil
}

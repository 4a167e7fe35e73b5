package index

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/524D/mzsearch/internal/proteomics"
)

// SchemaVersion is bumped whenever the binary layout or the meaning of an
// index changes
const SchemaVersion = 2

// Fingerprint identifies the inputs an index was built from
type Fingerprint [sha256.Size]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ParseFingerprint parses the hex form produced by String
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(f) {
		return f, fmt.Errorf("invalid fingerprint %q", s)
	}
	copy(f[:], b)
	return f, nil
}

type paramsRecord struct {
	SchemaVersion           int      `yaml:"schemaVersion"`
	Protease                string   `yaml:"protease"`
	Specificity             string   `yaml:"specificity"`
	MaxMissedCleavages      int      `yaml:"maxMissedCleavages"`
	InitiatorMethionine     string   `yaml:"initiatorMethionine"`
	MinPeptideLength        int      `yaml:"minPeptideLength"`
	MaxPeptideLength        int      `yaml:"maxPeptideLength"`
	MaxModsForPeptide       int      `yaml:"maxModsForPeptide"`
	MaxModificationIsoforms int      `yaml:"maxModificationIsoforms"`
	FixedMods               []string `yaml:"fixedMods"`
	VariableMods            []string `yaml:"variableMods"`
	LocalizableMods         []string `yaml:"localizableMods"`
	IonTypes                []string `yaml:"ionTypes"`
	Terminus                string   `yaml:"terminus"`
	BinsPerDalton           int      `yaml:"binsPerDalton"`
	Partition               int      `yaml:"partition"`
	TotalPartitions         int      `yaml:"totalPartitions"`
	SearchDecoys            bool     `yaml:"searchDecoys"`
	Databases               []string `yaml:"databases"`
	Proteins                string   `yaml:"proteins"`
}

func modKeys(mods []proteomics.Modification) []string {
	keys := make([]string, len(mods))
	for i, m := range mods {
		keys[i] = fmt.Sprintf("%s@%.6f", m.Key(), m.MonoisotopicMass)
	}
	return keys
}

// proteinDigest hashes accession, decoy flag and sequence of every protein
// in order, so an edited database changes the fingerprint
func proteinDigest(proteins []*proteomics.Protein) string {
	h := sha256.New()
	for _, p := range proteins {
		fmt.Fprintf(h, "%s\t%t\t%s\n", p.Accession, p.IsDecoy, p.Sequence)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Describe returns the canonical text of the parameters together with
// their fingerprint. The text is written next to an index so a human can
// see what it was built from.
func Describe(p Params, proteins []*proteomics.Protein) ([]byte, Fingerprint, error) {
	var localizable []string
	for k, ok := range p.Mods.Localizable {
		if ok {
			localizable = append(localizable, k)
		}
	}
	sort.Strings(localizable)
	ions := make([]string, len(p.ProductTypes))
	for i, t := range p.ProductTypes {
		ions[i] = t.String()
	}
	d := p.Digestion
	rec := paramsRecord{
		SchemaVersion:           SchemaVersion,
		Protease:                d.Protease.Name,
		Specificity:             d.Protease.Specificity.String(),
		MaxMissedCleavages:      d.MaxMissedCleavages,
		InitiatorMethionine:     d.InitiatorMethionine.String(),
		MinPeptideLength:        d.MinPeptideLength,
		MaxPeptideLength:        d.MaxPeptideLength,
		MaxModsForPeptide:       d.MaxModsForPeptide,
		MaxModificationIsoforms: d.MaxModificationIsoforms,
		FixedMods:               modKeys(p.Mods.Fixed),
		VariableMods:            modKeys(p.Mods.Variable),
		LocalizableMods:         localizable,
		IonTypes:                ions,
		Terminus:                p.Terminus().String(),
		BinsPerDalton:           p.bins(),
		Partition:               p.PartitionIndex,
		TotalPartitions:         p.TotalPartitions,
		SearchDecoys:            p.SearchDecoys,
		Databases:               p.DatabaseNames,
		Proteins:                proteinDigest(proteins),
	}
	text, err := yaml.Marshal(rec)
	if err != nil {
		return nil, Fingerprint{}, err
	}
	return text, sha256.Sum256(text), nil
}

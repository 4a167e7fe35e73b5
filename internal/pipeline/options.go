// Package pipeline runs a complete search: it loads the databases, matches
// every spectra file in a bounded pool of workers, merges the PSMs, and
// estimates FDR before inferring and scoring protein groups.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/524D/mzsearch/internal/calib"
	"github.com/524D/mzsearch/internal/digest"
	"github.com/524D/mzsearch/internal/histogram"
	"github.com/524D/mzsearch/internal/indexcache"
	"github.com/524D/mzsearch/internal/massdiff"
	"github.com/524D/mzsearch/internal/mzml"
	"github.com/524D/mzsearch/internal/parsimony"
	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/search"
	"github.com/524D/mzsearch/internal/spectra"
)

// ParamsVersion is the format version of searchParams.json
const ParamsVersion = "1.0"

// SearchType selects the matching engine
type SearchType string

const (
	ClassicSearch SearchType = "classic"
	ModernSearch  SearchType = "modern"
	SemiSearch    SearchType = "semi"
)

var (
	// ErrModificationRoles means a modification is given more than one role
	ErrModificationRoles = errors.New("modification is both fixed and variable or localizable")
	// ErrNoInput means no database or no spectra file was given
	ErrNoInput = errors.New("missing input files")
	// ErrUnknownSearchType means the search type is not one of classic, modern or semi
	ErrUnknownSearchType = errors.New("unknown search type")
	// ErrInvalidOption means a numeric option is out of range
	ErrInvalidOption = errors.New("invalid option")
)

// ConfigError reports an option that makes the search impossible. It is
// returned before any input file is read.
type ConfigError struct {
	Option string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("option %s: %v", e.Option, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configError(option string, err error) error {
	return &ConfigError{Option: option, Err: err}
}

// Options hold everything a search needs. String valued options use the
// names the CLI accepts.
type Options struct {
	// SoftwareVersion is recorded in the mzIdentML output
	SoftwareVersion string

	Databases    []string
	SpectraFiles []string
	// OutputDir receives the result files written by WriteOutputs
	OutputDir string

	SearchType SearchType

	Protease                string
	Specificity             string
	MaxMissedCleavages      int
	InitiatorMethionine     string
	MinPeptideLength        int
	MaxPeptideLength        int
	MaxModsForPeptide       int
	MaxModificationIsoforms int

	// Modification keys "<type>:<id>" of the dictionary
	FixedMods       []string
	VariableMods    []string
	LocalizableMods []string
	// ModificationFile adds definitions to the built-in dictionary
	ModificationFile string

	IonTypes          []string
	ProductTolerance  string
	PrecursorAcceptor string
	IntensityWeighted bool
	ScoreCutoff       float64

	TopNPeaks      int
	MinPeakRatio   float64
	AssumedCharges []int

	Decoys           bool
	TotalPartitions  int
	MaxParallelFiles int

	ModPeptidesAreUnique bool
	NoOneHitWonders      bool
	QValueThreshold      float64

	// Histogram is computed for open and notch searches even when false
	Histogram    bool
	BinTolerance float64

	// CalibrationMethod is empty to skip the precursor error fit
	CalibrationMethod    string
	CalibrationTargetPPM float64

	// IndexDir stores built indexes, empty keeps them in memory
	IndexDir string
	// IndexStore adds a shared object store after IndexDir
	IndexStore *indexcache.MinioConfig `json:"-"`

	Progress func(Event)  `json:"-"`
	Logger   *slog.Logger `json:"-"`
}

// DefaultOptions returns the settings of a standard tryptic search
func DefaultOptions() Options {
	d := digest.DefaultParams()
	f := spectra.DefaultFilter()
	return Options{
		SearchType:              ModernSearch,
		Protease:                d.Protease.Name,
		Specificity:             d.Protease.Specificity.String(),
		MaxMissedCleavages:      d.MaxMissedCleavages,
		InitiatorMethionine:     d.InitiatorMethionine.String(),
		MinPeptideLength:        d.MinPeptideLength,
		MaxPeptideLength:        d.MaxPeptideLength,
		MaxModsForPeptide:       d.MaxModsForPeptide,
		MaxModificationIsoforms: d.MaxModificationIsoforms,
		FixedMods:               []string{"Common Fixed:Carbamidomethyl on C", "Common Fixed:Carbamidomethyl on U"},
		VariableMods:            []string{"Common Variable:Oxidation on M"},
		LocalizableMods:         nil,
		IonTypes:                []string{"b", "y"},
		ProductTolerance:        "0.01da",
		PrecursorAcceptor:       "5ppm",
		IntensityWeighted:       true,
		ScoreCutoff:             search.DefaultScoreCutoff,
		TopNPeaks:               f.TopN,
		MinPeakRatio:            f.MinRatio,
		AssumedCharges:          append([]int(nil), mzml.DefaultAssumedCharges...),
		Decoys:                  true,
		TotalPartitions:         1,
		MaxParallelFiles:        runtime.NumCPU(),
		ModPeptidesAreUnique:    true,
		QValueThreshold:         parsimony.DefaultQValueThreshold,
		BinTolerance:            histogram.DefaultBinTolerance,
		CalibrationMethod:       calib.Poly1.String(),
	}
}

// plan is the checked, typed form of Options
type plan struct {
	dict         *proteomics.ModificationDictionary
	digestion    digest.Params
	mods         digest.ModSet
	productTypes []proteomics.ProductType
	params       search.Params
	scanOptions  mzml.ScanOptions
	parsimony    parsimony.Options
	calibration  calib.Method
	histogram    bool
}

// Validate checks the options without reading any input
func (o Options) Validate() error {
	_, err := o.compile()
	return err
}

func (o Options) compile() (*plan, error) {
	if len(o.Databases) == 0 {
		return nil, configError("databases", ErrNoInput)
	}
	if len(o.SpectraFiles) == 0 {
		return nil, configError("spectra", ErrNoInput)
	}
	switch o.SearchType {
	case ClassicSearch, ModernSearch, SemiSearch:
	default:
		return nil, configError("search-type", fmt.Errorf("%w: %q", ErrUnknownSearchType, o.SearchType))
	}
	if o.TotalPartitions < 1 {
		return nil, configError("partitions", fmt.Errorf("%w: %d partitions", ErrInvalidOption, o.TotalPartitions))
	}
	if o.MaxParallelFiles < 1 {
		return nil, configError("parallel-files", fmt.Errorf("%w: %d parallel files", ErrInvalidOption, o.MaxParallelFiles))
	}

	p := &plan{dict: proteomics.Builtin()}
	if o.ModificationFile != "" {
		f, err := os.Open(o.ModificationFile)
		if err != nil {
			return nil, configError("mod-file", err)
		}
		err = p.dict.ReadModifications(f)
		f.Close()
		if err != nil {
			return nil, configError("mod-file", err)
		}
	}

	protease, err := digest.LookupProtease(o.Protease)
	if err != nil {
		return nil, configError("protease", err)
	}
	if o.Specificity != "" {
		if protease.Specificity, err = digest.ParseCleavageSpecificity(o.Specificity); err != nil {
			return nil, configError("specificity", err)
		}
	}
	im, err := digest.ParseInitiatorMethionine(o.InitiatorMethionine)
	if err != nil {
		return nil, configError("initiator-methionine", err)
	}
	p.digestion = digest.Params{
		Protease:                protease,
		MaxMissedCleavages:      o.MaxMissedCleavages,
		InitiatorMethionine:     im,
		MinPeptideLength:        o.MinPeptideLength,
		MaxPeptideLength:        o.MaxPeptideLength,
		MaxModsForPeptide:       o.MaxModsForPeptide,
		MaxModificationIsoforms: o.MaxModificationIsoforms,
	}
	if err := p.digestion.Validate(); err != nil {
		return nil, configError("digestion", err)
	}

	if p.mods, err = o.modSet(p.dict); err != nil {
		return nil, err
	}

	for _, s := range o.IonTypes {
		t, err := proteomics.ParseProductType(s)
		if err != nil {
			return nil, configError("ions", fmt.Errorf("%w: %v", ErrInvalidOption, err))
		}
		p.productTypes = append(p.productTypes, t)
	}
	if len(p.productTypes) == 0 {
		return nil, configError("ions", fmt.Errorf("%w: no ion types", ErrInvalidOption))
	}
	productTol, err := massdiff.ParseTolerance(o.ProductTolerance)
	if err != nil {
		return nil, configError("product-tolerance", err)
	}
	acceptor, err := massdiff.Parse(o.PrecursorAcceptor)
	if err != nil {
		return nil, configError("precursor", err)
	}
	p.params = search.Params{
		Acceptor: acceptor,
		Scorer: search.Scorer{
			ProductTypes:      p.productTypes,
			Tolerance:         productTol,
			IntensityWeighted: o.IntensityWeighted,
		},
		ScoreCutoff: o.ScoreCutoff,
	}
	_, single := acceptor.(massdiff.SingleTolerance)
	p.histogram = o.Histogram || !single

	if o.TopNPeaks < 0 || o.MinPeakRatio < 0 || o.MinPeakRatio >= 1 {
		return nil, configError("peaks", fmt.Errorf("%w: top %d, ratio %g", ErrInvalidOption, o.TopNPeaks, o.MinPeakRatio))
	}
	p.scanOptions = mzml.ScanOptions{
		Filter:         spectra.FilterParams{TopN: o.TopNPeaks, MinRatio: o.MinPeakRatio},
		AssumedCharges: o.AssumedCharges,
	}

	if o.QValueThreshold <= 0 || o.QValueThreshold >= 1 {
		return nil, configError("q-value", fmt.Errorf("%w: %g", ErrInvalidOption, o.QValueThreshold))
	}
	p.parsimony = parsimony.Options{
		ModPeptidesAreUnique:   o.ModPeptidesAreUnique,
		NoOneHitWonders:        o.NoOneHitWonders,
		MergeIndistinguishable: true,
		QValueThreshold:        o.QValueThreshold,
	}

	if o.CalibrationMethod != "" {
		if p.calibration, err = calib.ParseMethod(o.CalibrationMethod); err != nil {
			return nil, configError("calibration", err)
		}
	}
	return p, nil
}

// modSet resolves the modification keys and checks that no modification
// has more than one role
func (o Options) modSet(dict *proteomics.ModificationDictionary) (digest.ModSet, error) {
	var ms digest.ModSet
	role := make(map[string]string)
	claim := func(option string, keys []string) error {
		for _, k := range keys {
			if r, ok := role[k]; ok && r != option {
				return configError(option, fmt.Errorf("%w: %s is also %s", ErrModificationRoles, k, r))
			}
			role[k] = option
		}
		return nil
	}
	for _, opt := range []struct {
		name string
		keys []string
	}{{"fixed", o.FixedMods}, {"variable", o.VariableMods}, {"localizable", o.LocalizableMods}} {
		if err := claim(opt.name, opt.keys); err != nil {
			return ms, err
		}
	}

	var err error
	if ms.Fixed, err = dict.Resolve(o.FixedMods); err != nil {
		return ms, configError("fixed", err)
	}
	if ms.Variable, err = dict.Resolve(o.VariableMods); err != nil {
		return ms, configError("variable", err)
	}
	if len(o.LocalizableMods) > 0 {
		ms.Localizable = make(map[string]bool)
		for _, k := range o.LocalizableMods {
			if _, err := dict.Lookup(k); err != nil {
				return ms, configError("localizable", err)
			}
			ms.Localizable[k] = true
		}
	}
	return ms, nil
}

// isContaminant tells contaminant databases by their file name
func isContaminant(path string) bool {
	return strings.Contains(strings.ToLower(path), "contaminant")
}

type paramsFile struct {
	FormatVersion string
	Options
}

// WriteParams writes the options as indented JSON with a format version
func WriteParams(w io.Writer, o Options) error {
	e := json.NewEncoder(w)
	e.SetIndent(``, `  `)
	return e.Encode(paramsFile{FormatVersion: ParamsVersion, Options: o})
}

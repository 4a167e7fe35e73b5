// Package digest enumerates the peptides a protease produces from a protein
// and expands them into their modified forms.
package digest

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/524D/mzsearch/internal/proteomics"
)

// InitiatorMethionine controls how a leading methionine is treated
type InitiatorMethionine int

const (
	Variable InitiatorMethionine = iota
	Retain
	Cleave
)

var initiatorNames = []string{"Variable", "Retain", "Cleave"}

func (im InitiatorMethionine) String() string {
	if im < 0 || int(im) >= len(initiatorNames) {
		return fmt.Sprintf("InitiatorMethionine(%d)", int(im))
	}
	return initiatorNames[im]
}

// ParseInitiatorMethionine parses the names produced by String
func ParseInitiatorMethionine(s string) (InitiatorMethionine, error) {
	for i, n := range initiatorNames {
		if strings.EqualFold(strings.TrimSpace(s), n) {
			return InitiatorMethionine(i), nil
		}
	}
	return Variable, fmt.Errorf("%w: %q", ErrUnknownInitiatorMethionine, s)
}

// Default length of the free end for single terminus digestion
const defaultSingleTerminusLength = 50

// Params configures digestion. Zero lengths and caps mean "no constraint".
type Params struct {
	Protease                Protease
	MaxMissedCleavages      int
	InitiatorMethionine     InitiatorMethionine
	MinPeptideLength        int
	MaxPeptideLength        int
	MaxModsForPeptide       int
	MaxModificationIsoforms int
}

// DefaultParams returns tryptic digestion with common defaults
func DefaultParams() Params {
	trypsin, _ := LookupProtease("trypsin")
	return Params{
		Protease:                trypsin,
		MaxMissedCleavages:      2,
		InitiatorMethionine:     Variable,
		MinPeptideLength:        5,
		MaxModsForPeptide:       2,
		MaxModificationIsoforms: 4096,
	}
}

var (
	// ErrUnknownSpecificity means the cleavage specificity is not supported
	ErrUnknownSpecificity = errors.New("unknown cleavage specificity")
	// ErrUnknownInitiatorMethionine means the initiator methionine policy is not supported
	ErrUnknownInitiatorMethionine = errors.New("unknown initiator methionine behavior")
	// ErrUnknownProtease means no protease with the given name exists
	ErrUnknownProtease = errors.New("unknown protease")
	// ErrInvalidParams means digestion parameters contradict each other
	ErrInvalidParams = errors.New("invalid digestion parameters")
)

// Validate checks the parameters for contradictions and unknown policies
func (p Params) Validate() error {
	if p.Protease.Specificity < Full || p.Protease.Specificity > None {
		return fmt.Errorf("%w: %v", ErrUnknownSpecificity, p.Protease.Specificity)
	}
	if p.InitiatorMethionine < Variable || p.InitiatorMethionine > Cleave {
		return fmt.Errorf("%w: %v", ErrUnknownInitiatorMethionine, p.InitiatorMethionine)
	}
	if p.MaxMissedCleavages < 0 {
		return fmt.Errorf("%w: negative missed cleavages", ErrInvalidParams)
	}
	if p.MinPeptideLength < 0 || p.MaxPeptideLength < 0 {
		return fmt.Errorf("%w: negative peptide length", ErrInvalidParams)
	}
	if p.MaxPeptideLength > 0 && p.MinPeptideLength > p.MaxPeptideLength {
		return fmt.Errorf("%w: min length %d > max length %d", ErrInvalidParams,
			p.MinPeptideLength, p.MaxPeptideLength)
	}
	return nil
}

func (p Params) lengthOK(l int) bool {
	return l >= 1 &&
		(p.MinPeptideLength == 0 || l >= p.MinPeptideLength) &&
		(p.MaxPeptideLength == 0 || l <= p.MaxPeptideLength)
}

// Digest returns the peptides of prot. The sequence is lazy and can be
// iterated more than once, each time yielding the same peptides in the
// same order.
func Digest(prot *proteomics.Protein, p Params) (iter.Seq[proteomics.Peptide], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return func(yield func(proteomics.Peptide) bool) {
		if prot.Len() == 0 {
			return
		}
		d := digester{prot: prot, p: p, yield: yield}
		switch p.Protease.Specificity {
		case Full:
			d.full()
		case FullMaxN, FullMaxC:
			d.semi()
		case SingleN:
			d.singleN()
		case SingleC:
			d.singleC()
		case None:
			d.none()
		}
	}, nil
}

type digester struct {
	prot  *proteomics.Protein
	p     Params
	yield func(proteomics.Peptide) bool
	done  bool
}

// emit yields the peptide if it passes the length filters. It returns
// false once the consumer stopped iterating.
func (d *digester) emit(start, end, missed int, desc string) bool {
	if d.done {
		return false
	}
	if start < 1 || end > d.prot.Len() || !d.p.lengthOK(end-start+1) {
		return true
	}
	if !d.yield(proteomics.Peptide{Protein: d.prot, Start: start, End: end,
		Description: desc, MissedCleavages: missed}) {
		d.done = true
	}
	return !d.done
}

// sites returns the cleavage positions with sentinels 0 and protein length
func (d *digester) sites() []int {
	inner := d.p.Protease.CleavageSites(d.prot.Sequence)
	s := make([]int, 0, len(inner)+2)
	s = append(s, 0)
	s = append(s, inner...)
	return append(s, d.prot.Len())
}

func (d *digester) startsWithM() bool {
	return d.prot.Residue(0) == 'M'
}

func (d *digester) retainFirst() bool {
	return d.p.InitiatorMethionine != Cleave || !d.startsWithM()
}

func (d *digester) cleaveFirst() bool {
	return d.p.InitiatorMethionine != Retain && d.startsWithM()
}

func (d *digester) full() {
	sites := d.sites()
	for mc := 0; mc <= d.p.MaxMissedCleavages; mc++ {
		for i := 0; i < len(sites)-mc-1; i++ {
			end := sites[i+mc+1]
			if i != 0 || d.retainFirst() {
				if !d.emit(sites[i]+1, end, mc, "full") {
					return
				}
			}
			if i == 0 && d.cleaveFirst() {
				if !d.emit(2, end, mc, "full:M cleaved") {
					return
				}
			}
		}
		for _, pp := range d.prot.ProteolysisProducts {
			if pp.Begin == 1 && pp.End == d.prot.Len() {
				continue
			}
			if !d.productBoundaries(sites, pp, mc) {
				return
			}
		}
	}
}

// productBoundaries emits the peptides that start at the beginning and end
// at the end of a proteolysis product, aligned to cleavage sites
func (d *digester) productBoundaries(sites []int, pp proteomics.ProteolysisProduct, mc int) bool {
	i := 0
	if pp.Begin > 0 {
		for i < len(sites)-1 && sites[i] < pp.Begin {
			i++
		}
		if i+mc < len(sites) && (pp.End == 0 || sites[i+mc] <= pp.End) {
			if !d.emit(pp.Begin, sites[i+mc], mc, pp.Type+" start") {
				return false
			}
		}
	}
	if pp.End > 0 {
		for i < len(sites)-1 && sites[i] < pp.End {
			i++
		}
		j := i - mc - 1
		if j >= 0 && sites[j]+1 >= pp.Begin {
			if !d.emit(sites[j]+1, pp.End, mc, pp.Type+" end") {
				return false
			}
		}
	}
	return true
}

// semi emits the longest windows for one fixed terminus, the search engine
// slides the free terminus within them
func (d *digester) semi() {
	sites := d.sites()
	mc := d.p.MaxMissedCleavages
	for i := 0; i < len(sites)-mc-1; i++ {
		end := sites[i+mc+1]
		if i != 0 || d.retainFirst() {
			if !d.emit(sites[i]+1, end, mc, "semi") {
				return
			}
		}
		if i == 0 && d.cleaveFirst() {
			if !d.emit(2, end, mc, "semi:M cleaved") {
				return
			}
		}
	}
	last := len(sites) - 1
	maxIndex := min(mc, last)
	for i := 1; i <= maxIndex; i++ {
		var ok bool
		if d.p.Protease.Specificity == FullMaxN {
			ok = d.emit(sites[last-i]+1, sites[last], mc, "semi")
		} else {
			ok = d.emit(sites[0]+1, sites[i], mc, "semi")
		}
		if !ok {
			return
		}
	}
	for _, pp := range d.prot.ProteolysisProducts {
		if pp.Begin == 0 || pp.End == 0 || (pp.Begin == 1 && pp.End == d.prot.Len()) {
			continue
		}
		if !d.emit(pp.Begin, pp.End, 0, pp.Type+" start") {
			return
		}
	}
}

func (d *digester) freeLength() int {
	if d.p.MaxPeptideLength > 0 {
		return d.p.MaxPeptideLength
	}
	return defaultSingleTerminusLength
}

func (d *digester) singleN() {
	n := d.prot.Len()
	for start := 1; start <= n; start++ {
		if !d.emit(start, min(n, start+d.freeLength()-1), 0, "SingleN") {
			return
		}
	}
}

func (d *digester) singleC() {
	for end := 1; end <= d.prot.Len(); end++ {
		if !d.emit(max(1, end-d.freeLength()+1), end, 0, "SingleC") {
			return
		}
	}
}

func (d *digester) none() {
	n := d.prot.Len()
	if d.retainFirst() {
		if !d.emit(1, n, 0, "full") {
			return
		}
	}
	if d.cleaveFirst() {
		if !d.emit(2, n, 0, "full:M cleaved") {
			return
		}
	}
	for _, pp := range d.prot.ProteolysisProducts {
		if pp.Begin == 0 || pp.End == 0 {
			continue
		}
		if !d.emit(pp.Begin, pp.End, 0, pp.Type) {
			return
		}
	}
}

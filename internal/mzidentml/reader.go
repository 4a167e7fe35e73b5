package mzidentml

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"

	"golang.org/x/net/html/charset"
)

// Read reads mzIdentML content from io.reader
func Read(reader io.Reader) (MzIdentML, error) {
	var mzIdentML MzIdentML
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	err := d.Decode(&mzIdentML.content)
	if err != nil {
		return mzIdentML, err
	}
	mzIdentML.buildLookups()
	mzIdentML.buildIdentList()
	return mzIdentML, nil
}

// ID returns the document id
func (m *MzIdentML) ID() string {
	return m.content.ID
}

func (m *MzIdentML) buildLookups() {
	m.seqID2PepIdx = make(map[string]int, len(m.content.Peptide))
	for i, p := range m.content.Peptide {
		m.seqID2PepIdx[p.ID] = i
	}
	m.dbAccession = make(map[string]string, len(m.content.DBSequence))
	for _, s := range m.content.DBSequence {
		m.dbAccession[s.ID] = s.Accession
	}
	m.evidence = make(map[string]peptideEvidence, len(m.content.PeptideEvidence))
	for _, e := range m.content.PeptideEvidence {
		m.evidence[e.ID] = e
	}
}

func (m *MzIdentML) buildIdentList() {
	for i := range m.content.SpectrumIdentificationResult {
		for j := range m.content.SpectrumIdentificationResult[i].SpectrumIdentificationItem {
			m.identList = append(m.identList, identRef{resultIdx: i, itemIdx: j})
		}
	}
}

// NumIdents returns the total number of identifications in the mzIdentML file
// Note that for some spectra, multiple identifications may be present
// The identifications can be accessed using the Ident() method, which takes
// an index as argument. The index runs from 0 to NumIdents()-1
func (m *MzIdentML) NumIdents() int {
	return len(m.identList)
}

// retentionTimePriority orders the CV terms that can carry the retention
// time, lower is preferred
var retentionTimePriority = map[string]int{
	"MS:1000016": 1, // scan start time
	"MS:1000894": 2, // retention time
	"MS:1000826": 3, // elution time
	"MS:1001114": 4, // retention time (deprecated)
}

// Ident returns a spectrum identification from the mzIdentML file.
// Parameter i is the index of the identification to return. The index runs
// from 0 to NumIdents()-1
func (m *MzIdentML) Ident(i int) (Identification, error) {
	var ident Identification

	if i < 0 || i >= len(m.identList) {
		return ident, ErrInvalidIdentIndex
	}
	result := &m.content.SpectrumIdentificationResult[m.identList[i].resultIdx]
	item := &result.SpectrumIdentificationItem[m.identList[i].itemIdx]

	pepIdx, ok := m.seqID2PepIdx[item.PeptideRef]
	if !ok {
		return ident, fmt.Errorf("%w: %s", ErrUnknownPeptide, item.PeptideRef)
	}
	pep := &m.content.Peptide[pepIdx]
	ident.PepSeq = pep.PeptideSequence
	ident.PepID = pep.ID
	ident.Charge = item.ChargeState
	ident.Rank = item.Rank
	ident.PassThreshold = item.PassThreshold
	ident.ExperimentalMz = item.ExperimentalMassToCharge
	ident.CalculatedMz = item.CalculatedMassToCharge
	for _, mod := range pep.Modification {
		ident.ModMass += mod.MonoisotopicMassDelta
	}
	ident.SpecID = result.SpectrumID

	ident.RetentionTime = -1
	prio := math.MaxInt32
	for _, cv := range result.CvPar {
		p, ok := retentionTimePriority[cv.Accession]
		if !ok || p >= prio {
			continue
		}
		prio = p
		retentionTime, err := strconv.ParseFloat(cv.Value, 64)
		if err != nil {
			return ident, err
		}
		// Check if the retention time is in minutes, otherwise assume it's seconds
		if cv.UnitAccession == "UO:0000031" || cv.UnitAccession == "MS:1000038" {
			retentionTime *= 60
		}
		ident.RetentionTime = retentionTime
	}

	if len(item.PeptideEvidenceRef) > 0 {
		ident.Decoy = true
	}
	for _, ref := range item.PeptideEvidenceRef {
		ev := m.evidence[ref.PeptideEvidenceRef]
		ident.Decoy = ident.Decoy && ev.IsDecoy
		if acc, ok := m.dbAccession[ev.DBSequenceRef]; ok {
			ident.Accessions = append(ident.Accessions, acc)
		}
	}
	// The scores are in the CV terms of the item
	ident.Cv = append(ident.Cv, item.CvPar...)
	return ident, nil
}

// Score returns the value of the CV term with the given accession or name
func (ident *Identification) Score(term string) (float64, bool) {
	for _, cv := range ident.Cv {
		if cv.Accession == term || cv.Name == term {
			v, err := strconv.ParseFloat(cv.Value, 64)
			return v, err == nil
		}
	}
	return 0, false
}

// Package mzidentml reads and writes peptide identifications in the
// mzIdentML 1.1 format
package mzidentml

import (
	"encoding/xml"
	"errors"
)

// Types for parsing mzIdentML

// MzIdentML holds only the part of mzIdentML files
// in which we are interrested
type MzIdentML struct {
	seqID2PepIdx map[string]int
	evidence     map[string]peptideEvidence
	dbAccession  map[string]string
	identList    []identRef
	content      mzIdentMLContent
}

type identRef struct {
	resultIdx int // Index into SpectrumIdentificationResult
	itemIdx   int // Index into SpectrumIdentificationItem
}

// Identification is one SpectrumIdentificationItem with the context of its
// result and peptide
type Identification struct {
	PepSeq         string
	PepID          string
	Charge         int
	ModMass        float64
	SpecID         string
	RetentionTime  float64 // seconds, -1 if not present
	Rank           int
	PassThreshold  bool
	ExperimentalMz float64
	CalculatedMz   float64
	Accessions     []string
	Decoy          bool
	Cv             []cvParam
}

type mzIdentMLContent struct {
	XMLName                      xml.Name                       `xml:"MzIdentML"`
	ID                           string                         `xml:"id,attr"`
	DBSequence                   []dbSequence                   `xml:"SequenceCollection>DBSequence"`
	Peptide                      []peptide                      `xml:"SequenceCollection>Peptide"`
	PeptideEvidence              []peptideEvidence              `xml:"SequenceCollection>PeptideEvidence"`
	SpectrumIdentificationResult []spectrumIdentificationResult `xml:"DataCollection>AnalysisData>SpectrumIdentificationList>SpectrumIdentificationResult"`
}

type dbSequence struct {
	ID        string `xml:"id,attr"`
	Accession string `xml:"accession,attr"`
}

type peptide struct {
	ID              string `xml:"id,attr"`
	PeptideSequence string
	Modification    []modification
}

type modification struct {
	Location int `xml:"location,attr"`
	// Note: monoisotopicMassDelta is optional according the the schema, but
	// appears to be no other way to determine mass shift, as other
	// corresponding cvParam's don't carry this info either
	MonoisotopicMassDelta float64 `xml:"monoisotopicMassDelta,attr"`
}

type peptideEvidence struct {
	ID            string `xml:"id,attr"`
	DBSequenceRef string `xml:"dBSequence_ref,attr"`
	IsDecoy       bool   `xml:"isDecoy,attr"`
}

type spectrumIdentificationResult struct {
	SpectrumID                 string `xml:"spectrumID,attr"`
	SpectrumIdentificationItem []spectrumIdentificationItem
	CvPar                      []cvParam `xml:"cvParam"`
}

type spectrumIdentificationItem struct {
	ChargeState              int       `xml:"chargeState,attr"`
	PeptideRef               string    `xml:"peptide_ref,attr"`
	Rank                     int       `xml:"rank,attr"`
	PassThreshold            bool      `xml:"passThreshold,attr"`
	ExperimentalMassToCharge float64   `xml:"experimentalMassToCharge,attr"`
	CalculatedMassToCharge   float64   `xml:"calculatedMassToCharge,attr"`
	PeptideEvidenceRef       []evRef   `xml:"PeptideEvidenceRef"`
	CvPar                    []cvParam `xml:"cvParam"`
}

type evRef struct {
	PeptideEvidenceRef string `xml:"peptideEvidence_ref,attr"`
}

type cvParam struct {
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

var (
	// ErrInvalidIdentIndex means an identification index is out of range
	ErrInvalidIdentIndex = errors.New("mzIdentML: invalid identification index")
	// ErrUnknownPeptide means an identification refers to a missing peptide
	ErrUnknownPeptide = errors.New("mzIdentML: unknown peptide reference")
)

package mzidentml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"

	"github.com/524D/mzsearch/internal/massdiff"
	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/search"
)

// CV terms written with every identification
const (
	CvScore      = "MS:1001143" // search engine specific score for PSMs
	CvPSMQValue  = "MS:1002354" // PSM-level q-value
	cvStartTime  = "MS:1000016"
	cvTolPlus    = "MS:1001412"
	cvTolMinus   = "MS:1001413"
	cvMzMLNative = "MS:1001530"
	unitMinute   = "UO:0000031"
	unitPPM      = "UO:0000169"
	unitDalton   = "UO:0000221"
)

// Document holds the PSMs of one spectra file and the search settings that
// produced them
type Document struct {
	// ID is generated when empty
	ID                 string
	Software           string
	Version            string
	SpectraFile        string
	Databases          []string
	PrecursorTolerance massdiff.Tolerance
	ProductTolerance   massdiff.Tolerance
	QValueThreshold    float64
	PSMs               []*search.PSM
}

// We define separate structs for writing XML because it is not possible
// to write namespace info otherwise
type mzIdentMLWrite struct {
	XMLName                    xml.Name                 `xml:"http://psidev.info/psi/pi/mzIdentML/1.1 MzIdentML"`
	ID                         string                   `xml:"id,attr"`
	Version                    string                   `xml:"version,attr"`
	CvList                     []cvRef                  `xml:"cvList>cv"`
	AnalysisSoftware           []analysisSoftware       `xml:"AnalysisSoftwareList>AnalysisSoftware"`
	SequenceCollection         sequenceCollectionWrite  `xml:"SequenceCollection"`
	SpectrumIdentification     spectrumIdentification   `xml:"AnalysisCollection>SpectrumIdentification"`
	SpectrumIdentificationProt spectrumIdentificationPr `xml:"AnalysisProtocolCollection>SpectrumIdentificationProtocol"`
	DataCollection             dataCollectionWrite      `xml:"DataCollection"`
}

type cvRef struct {
	ID       string `xml:"id,attr"`
	FullName string `xml:"fullName,attr"`
	URI      string `xml:"uri,attr"`
}

type analysisSoftware struct {
	ID      string `xml:"id,attr"`
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr,omitempty"`
}

type sequenceCollectionWrite struct {
	DBSequence      []dbSequenceWrite      `xml:"DBSequence"`
	Peptide         []peptideWrite         `xml:"Peptide"`
	PeptideEvidence []peptideEvidenceWrite `xml:"PeptideEvidence"`
}

type dbSequenceWrite struct {
	ID                string `xml:"id,attr"`
	Accession         string `xml:"accession,attr"`
	Length            int    `xml:"length,attr"`
	SearchDatabaseRef string `xml:"searchDatabase_ref,attr"`
}

type peptideWrite struct {
	ID              string              `xml:"id,attr"`
	PeptideSequence string              `xml:"PeptideSequence"`
	Modification    []modificationWrite `xml:"Modification"`
}

type modificationWrite struct {
	Location              int          `xml:"location,attr"`
	MonoisotopicMassDelta float64      `xml:"monoisotopicMassDelta,attr"`
	Residues              string       `xml:"residues,attr,omitempty"`
	CvPar                 []cvParamOut `xml:"cvParam"`
}

type peptideEvidenceWrite struct {
	ID            string `xml:"id,attr"`
	PeptideRef    string `xml:"peptide_ref,attr"`
	DBSequenceRef string `xml:"dBSequence_ref,attr"`
	Start         int    `xml:"start,attr"`
	End           int    `xml:"end,attr"`
	Pre           string `xml:"pre,attr"`
	Post          string `xml:"post,attr"`
	IsDecoy       bool   `xml:"isDecoy,attr"`
}

type spectrumIdentification struct {
	ID           string `xml:"id,attr"`
	ProtocolRef  string `xml:"spectrumIdentificationProtocol_ref,attr"`
	ListRef      string `xml:"spectrumIdentificationList_ref,attr"`
	InputSpectra struct {
		SpectraDataRef string `xml:"spectraData_ref,attr"`
	} `xml:"InputSpectra"`
	SearchDatabaseRef []searchDatabaseRef `xml:"SearchDatabaseRef"`
}

type searchDatabaseRef struct {
	Ref string `xml:"searchDatabase_ref,attr"`
}

type spectrumIdentificationPr struct {
	ID                string       `xml:"id,attr"`
	SoftwareRef       string       `xml:"analysisSoftware_ref,attr"`
	SearchType        cvParamOut   `xml:"SearchType>cvParam"`
	FragmentTolerance []cvParamOut `xml:"FragmentTolerance>cvParam"`
	ParentTolerance   []cvParamOut `xml:"ParentTolerance>cvParam"`
	Threshold         cvParamOut   `xml:"Threshold>cvParam"`
}

type dataCollectionWrite struct {
	SearchDatabase []searchDatabase `xml:"Inputs>SearchDatabase"`
	SpectraData    spectraData      `xml:"Inputs>SpectraData"`
	List           identListWrite   `xml:"AnalysisData>SpectrumIdentificationList"`
}

type searchDatabase struct {
	ID           string `xml:"id,attr"`
	Location     string `xml:"location,attr"`
	DatabaseName struct {
		UserParam struct {
			Name string `xml:"name,attr"`
		} `xml:"userParam"`
	} `xml:"DatabaseName"`
}

type spectraData struct {
	ID               string     `xml:"id,attr"`
	Location         string     `xml:"location,attr"`
	SpectrumIDFormat cvParamOut `xml:"SpectrumIDFormat>cvParam"`
}

type identListWrite struct {
	ID     string        `xml:"id,attr"`
	Result []resultWrite `xml:"SpectrumIdentificationResult"`
}

type resultWrite struct {
	ID             string       `xml:"id,attr"`
	SpectrumID     string       `xml:"spectrumID,attr"`
	SpectraDataRef string       `xml:"spectraData_ref,attr"`
	Item           []itemWrite  `xml:"SpectrumIdentificationItem"`
	CvPar          []cvParamOut `xml:"cvParam"`
}

type itemWrite struct {
	ID                       string       `xml:"id,attr"`
	ChargeState              int          `xml:"chargeState,attr"`
	ExperimentalMassToCharge float64      `xml:"experimentalMassToCharge,attr"`
	CalculatedMassToCharge   float64      `xml:"calculatedMassToCharge,attr"`
	PeptideRef               string       `xml:"peptide_ref,attr"`
	Rank                     int          `xml:"rank,attr"`
	PassThreshold            bool         `xml:"passThreshold,attr"`
	PeptideEvidenceRef       []evRef      `xml:"PeptideEvidenceRef"`
	CvPar                    []cvParamOut `xml:"cvParam"`
}

type cvParamOut struct {
	CvRef         string `xml:"cvRef,attr"`
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr,omitempty"`
	UnitCvRef     string `xml:"unitCvRef,attr,omitempty"`
	UnitAccession string `xml:"unitAccession,attr,omitempty"`
	UnitName      string `xml:"unitName,attr,omitempty"`
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func toleranceParams(t massdiff.Tolerance) []cvParamOut {
	unit, name := unitDalton, "dalton"
	if t.Unit == massdiff.PPM {
		unit, name = unitPPM, "parts per million"
	}
	v := formatFloat(t.Value)
	return []cvParamOut{
		{CvRef: "MS", Accession: cvTolPlus, Name: "search tolerance plus value", Value: v,
			UnitCvRef: "UO", UnitAccession: unit, UnitName: name},
		{CvRef: "MS", Accession: cvTolMinus, Name: "search tolerance minus value", Value: v,
			UnitCvRef: "UO", UnitAccession: unit, UnitName: name},
	}
}

// builder assigns document ids to proteins, peptides and evidence
type builder struct {
	doc       *mzIdentMLWrite
	dbSeq     map[*proteomics.Protein]string
	peptides  map[string]string
	evidence  map[string]string
	databases map[string]string
}

func (b *builder) dbSequenceRef(p *proteomics.Protein) string {
	if id, ok := b.dbSeq[p]; ok {
		return id
	}
	id := "DBSeq_" + p.Accession
	db := b.databases[p.DatabaseFile]
	if db == "" {
		db = "SDB_0"
	}
	b.dbSeq[p] = id
	b.doc.SequenceCollection.DBSequence = append(b.doc.SequenceCollection.DBSequence, dbSequenceWrite{
		ID: id, Accession: p.Accession, Length: p.Len(), SearchDatabaseRef: db,
	})
	return id
}

func (b *builder) peptideRef(p *proteomics.ModifiedPeptide) string {
	full := p.FullSequence()
	if id, ok := b.peptides[full]; ok {
		return id
	}
	id := fmt.Sprintf("P_%d", len(b.peptides))
	b.peptides[full] = id
	pw := peptideWrite{ID: id, PeptideSequence: p.BaseSequence()}
	n := p.Len()
	for _, k := range p.SortedModPositions() {
		mod := p.Mods[k]
		mw := modificationWrite{
			Location:              k - 1,
			MonoisotopicMassDelta: mod.MonoisotopicMass,
			CvPar: []cvParamOut{{CvRef: "MS", Accession: "MS:1001460",
				Name: "unknown modification", Value: mod.Key()}},
		}
		if k >= 2 && k <= n+1 {
			mw.Residues = string(p.Residue(k - 2))
		}
		pw.Modification = append(pw.Modification, mw)
	}
	b.doc.SequenceCollection.Peptide = append(b.doc.SequenceCollection.Peptide, pw)
	return id
}

func (b *builder) evidenceRef(p *proteomics.ModifiedPeptide) string {
	pepRef := b.peptideRef(p)
	dbRef := b.dbSequenceRef(p.Protein)
	key := fmt.Sprintf("%s\x00%s\x00%d", pepRef, dbRef, p.Start)
	if id, ok := b.evidence[key]; ok {
		return id
	}
	id := fmt.Sprintf("PE_%d", len(b.evidence))
	b.evidence[key] = id
	b.doc.SequenceCollection.PeptideEvidence = append(b.doc.SequenceCollection.PeptideEvidence, peptideEvidenceWrite{
		ID: id, PeptideRef: pepRef, DBSequenceRef: dbRef,
		Start: p.Start, End: p.End,
		Pre:     string(p.PreviousAminoAcid()),
		Post:    string(p.NextAminoAcid()),
		IsDecoy: p.Protein.IsDecoy,
	})
	return id
}

// Write writes doc as an mzIdentML 1.1 document. Every PSM becomes a
// spectrum identification result with one rank 1 item per full sequence.
func Write(w io.Writer, doc Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	out := &mzIdentMLWrite{
		ID:      doc.ID,
		Version: "1.1.0",
		CvList: []cvRef{
			{ID: "MS", FullName: "Proteomics Standards Initiative Mass Spectrometry Vocabularies",
				URI: "https://raw.githubusercontent.com/HUPO-PSI/psi-ms-CV/master/psi-ms.obo"},
			{ID: "UO", FullName: "Unit Ontology",
				URI: "http://obo.cvs.sourceforge.net/*checkout*/obo/obo/ontology/phenotype/unit.obo"},
		},
		AnalysisSoftware: []analysisSoftware{{ID: "AS_0", Name: doc.Software, Version: doc.Version}},
	}
	b := &builder{
		doc:       out,
		dbSeq:     make(map[*proteomics.Protein]string),
		peptides:  make(map[string]string),
		evidence:  make(map[string]string),
		databases: make(map[string]string),
	}

	si := &out.SpectrumIdentification
	si.ID, si.ProtocolRef, si.ListRef = "SI", "SIP", "SIL"
	si.InputSpectra.SpectraDataRef = "SD_0"
	for i, db := range doc.Databases {
		id := fmt.Sprintf("SDB_%d", i)
		b.databases[db] = id
		si.SearchDatabaseRef = append(si.SearchDatabaseRef, searchDatabaseRef{Ref: id})
		sdb := searchDatabase{ID: id, Location: db}
		sdb.DatabaseName.UserParam.Name = db
		out.DataCollection.SearchDatabase = append(out.DataCollection.SearchDatabase, sdb)
	}
	if len(doc.Databases) == 0 {
		si.SearchDatabaseRef = []searchDatabaseRef{{Ref: "SDB_0"}}
		out.DataCollection.SearchDatabase = []searchDatabase{{ID: "SDB_0"}}
	}

	out.SpectrumIdentificationProt = spectrumIdentificationPr{
		ID:                "SIP",
		SoftwareRef:       "AS_0",
		SearchType:        cvParamOut{CvRef: "MS", Accession: "MS:1001083", Name: "ms-ms search"},
		FragmentTolerance: toleranceParams(doc.ProductTolerance),
		ParentTolerance:   toleranceParams(doc.PrecursorTolerance),
		Threshold: cvParamOut{CvRef: "MS", Accession: "MS:1001448", Name: "pep:FDR threshold",
			Value: formatFloat(doc.QValueThreshold)},
	}
	out.DataCollection.SpectraData = spectraData{
		ID: "SD_0", Location: doc.SpectraFile,
		SpectrumIDFormat: cvParamOut{CvRef: "MS", Accession: cvMzMLNative, Name: "mzML unique identifier"},
	}
	out.DataCollection.List.ID = "SIL"

	for i, psm := range doc.PSMs {
		out.DataCollection.List.Result = append(out.DataCollection.List.Result, b.result(i, psm, doc.QValueThreshold))
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent(``, `  `)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

func (b *builder) result(i int, psm *search.PSM, threshold float64) resultWrite {
	spectrumID := psm.Scan.NativeID
	if spectrumID == "" {
		spectrumID = fmt.Sprintf("scan=%d", psm.Scan.OneBasedScanNumber)
	}
	r := resultWrite{
		ID:             fmt.Sprintf("SIR_%d", i),
		SpectrumID:     spectrumID,
		SpectraDataRef: "SD_0",
		CvPar: []cvParamOut{{CvRef: "MS", Accession: cvStartTime, Name: "scan start time",
			Value: formatFloat(psm.Scan.RetentionTime), UnitCvRef: "UO", UnitAccession: unitMinute, UnitName: "minute"}},
	}
	items := make(map[string]int)
	for _, pep := range psm.Peptides() {
		full := pep.FullSequence()
		idx, ok := items[full]
		if !ok {
			idx = len(r.Item)
			items[full] = idx
			r.Item = append(r.Item, itemWrite{
				ID:                       fmt.Sprintf("SII_%d_%d", i, idx),
				ChargeState:              psm.Scan.PrecursorCharge,
				ExperimentalMassToCharge: psm.Scan.PrecursorMz,
				CalculatedMassToCharge:   proteomics.ToMz(pep.MonoisotopicMass(), psm.Scan.PrecursorCharge),
				PeptideRef:               b.peptideRef(pep),
				Rank:                     1,
				PassThreshold:            psm.QValue <= threshold,
				CvPar: []cvParamOut{
					{CvRef: "MS", Accession: CvScore, Name: "search engine specific score for PSMs", Value: formatFloat(psm.Score)},
					{CvRef: "MS", Accession: CvPSMQValue, Name: "PSM-level q-value", Value: formatFloat(psm.QValue)},
				},
			})
		}
		r.Item[idx].PeptideEvidenceRef = append(r.Item[idx].PeptideEvidenceRef, evRef{PeptideEvidenceRef: b.evidenceRef(pep)})
	}
	return r
}

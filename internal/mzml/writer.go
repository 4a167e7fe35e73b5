package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/524D/mzsearch/internal/spectra"
)

// Encoding selects how binary arrays are written
type Encoding struct {
	Zlib   bool
	Bits64 bool
}

// Write writes scans as MS2 spectra of a minimal mzML document. Scans
// without precursor m/z get no precursor list, a charge of 0 is omitted.
func Write(writer io.Writer, scans []*spectra.Scan, enc Encoding) error {
	var content mzMLContent
	content.Run.ID = "run"
	for i, s := range scans {
		sp, err := encodeSpectrum(i, s, enc)
		if err != nil {
			return err
		}
		content.Run.SpectrumList.Spectrum = append(content.Run.SpectrumList.Spectrum, sp)
	}
	content.Run.SpectrumList.Count = len(scans)

	if _, err := io.WriteString(writer, xml.Header); err != nil {
		return err
	}
	e := xml.NewEncoder(writer)
	e.Indent(``, `  `)
	if err := e.Encode(&content); err != nil {
		return err
	}
	return e.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func encodeSpectrum(index int, s *spectra.Scan, enc Encoding) (spectrum, error) {
	sp := spectrum{
		Index:              index,
		ID:                 fmt.Sprintf("controllerType=0 controllerNumber=1 scan=%d", s.OneBasedScanNumber),
		DefaultArrayLength: int64(len(s.Peaks)),
		CvPar: []CVParam{
			{Accession: "MS:1000511", Name: "ms level", Value: "2"},
			{Accession: "MS:1000127", Name: "centroid spectrum"},
			{Accession: "MS:1000285", Name: "total ion current", Value: formatFloat(s.TotalIonCurrent)},
		},
	}
	sp.ScanList = scanList{Count: 1, Scan: []scan{{CvPar: []CVParam{{
		Accession:     "MS:1000016",
		Name:          "scan start time",
		Value:         formatFloat(s.RetentionTime),
		UnitCvRef:     "UO",
		UnitAccession: "UO:0000031",
		UnitName:      "minute",
	}}}}}
	if s.PrecursorMz > 0 {
		ion := selectedIon{CvPar: []CVParam{{
			Accession: cvParamSelectedIonMz, Name: "selected ion m/z", Value: formatFloat(s.PrecursorMz),
		}}}
		if s.PrecursorCharge > 0 {
			ion.CvPar = append(ion.CvPar, CVParam{
				Accession: cvParamChargeState, Name: "charge state", Value: strconv.Itoa(s.PrecursorCharge),
			})
		}
		sp.PrecursorList = []precursorList{{Count: 1, Precursor: []XMLprecursor{{
			SelectedIonList: selectedIonList{Count: 1, SelectedIon: []selectedIon{ion}},
		}}}}
	}

	mz := make([]float64, len(s.Peaks))
	intens := make([]float64, len(s.Peaks))
	for i, p := range s.Peaks {
		mz[i], intens[i] = p.Mz, p.Intens
	}
	for _, arr := range []struct {
		cv     CVParam
		values []float64
	}{
		{CVParam{Accession: "MS:1000514", Name: "m/z array"}, mz},
		{CVParam{Accession: "MS:1000515", Name: "intensity array"}, intens},
	} {
		b64, err := encodeBinary(arr.values, enc)
		if err != nil {
			return sp, err
		}
		cvs := []CVParam{arr.cv, {Accession: "MS:1000521", Name: "32-bit float"}}
		if enc.Bits64 {
			cvs[1] = CVParam{Accession: "MS:1000523", Name: "64-bit float"}
		}
		if enc.Zlib {
			cvs = append(cvs, CVParam{Accession: "MS:1000574", Name: "zlib compression"})
		} else {
			cvs = append(cvs, CVParam{Accession: "MS:1000576", Name: "no compression"})
		}
		sp.BinaryDataArrayList.BinaryDataArray = append(sp.BinaryDataArrayList.BinaryDataArray,
			binaryDataArray{EncodedLength: len(b64), CvPar: cvs, Binary: b64})
	}
	sp.BinaryDataArrayList.Count = 2
	return sp, nil
}

func encodeBinary(values []float64, enc Encoding) (string, error) {
	var raw []byte
	if enc.Bits64 {
		raw = make([]byte, len(values)*8)
		for i, v := range values {
			binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
		}
	} else {
		raw = make([]byte, len(values)*4)
		for i, v := range values {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(float32(v)))
		}
	}
	if enc.Zlib {
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		if _, err := z.Write(raw); err != nil {
			return "", err
		}
		// zlib writer must be closed before the buffer is complete
		if err := z.Close(); err != nil {
			return "", err
		}
		raw = b.Bytes()
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

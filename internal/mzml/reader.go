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

	"golang.org/x/net/html/charset"
)

// Read reads mzML file from an io.Reader
func Read(reader io.Reader) (MzML, error) {
	var mzML MzML

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	// Skip over indexedmzML and everything else
	for {
		t, tokenErr := d.Token()
		if tokenErr != nil {
			if tokenErr == io.EOF {
				break
			}
			return mzML, tokenErr
		}
		if t, ok := t.(xml.StartElement); ok && t.Name.Local == "mzML" {
			if err := d.DecodeElement(&mzML.content, &t); err != nil {
				return mzML, err
			}
		}
	}

	err := mzML.traverseScan()
	return mzML, err
}

// binaryDataPars decodes the CV terms in a mzML binarydata section
//
// CV Terms for binary data compression
// MS:1000574 zlib compression
// MS:1000576 No Compression
// MS:1002312 - MS:1002314, MS:1002746 - MS:1002748 MS-Numpress variants
//
// CV Terms for binary data array types
// MS:1000514 m/z array
// MS:1000515 intensity array
//
// CV Terms for binary-data-type
// MS:1000521 32-bit float
// MS:1000523 64-bit float
func binaryDataPars(binaryDataArray *binaryDataArray) (
	zlibCompression, bits64, mzArray, intensityArray bool, err error) {
	for _, cvParam := range binaryDataArray.CvPar {
		switch cvParam.Accession {
		case `MS:1000574`:
			zlibCompression = true
		case `MS:1000514`:
			mzArray = true
		case `MS:1000515`:
			intensityArray = true
		case `MS:1000523`:
			bits64 = true
		case `MS:1002312`, `MS:1002313`, `MS:1002314`,
			`MS:1002746`, `MS:1002747`, `MS:1002748`:
			return false, false, false, false,
				fmt.Errorf("%w: CV term %s", ErrUnsupportedCompression, cvParam.Accession)
		}
	}
	return zlibCompression, bits64, mzArray, intensityArray, nil
}

// decodeFloats returns the values of a base64, optionally zlib compressed,
// little endian float array
func decodeFloats(encoded string, zlibCompression, bits64 bool) ([]float64, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if zlibCompression {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer z.Close()
		if data, err = io.ReadAll(z); err != nil {
			return nil, err
		}
	}
	if bits64 {
		v := make([]float64, len(data)/8)
		for i := range v {
			v[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return v, nil
	}
	v := make([]float64, len(data)/4)
	for i := range v {
		v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return v, nil
}

func fillScan(p []Peak, binaryDataArray *binaryDataArray) ([]Peak, error) {
	zlibCompression, bits64, mzArray, intensityArray, err :=
		binaryDataPars(binaryDataArray)
	if err != nil {
		return nil, err
	}
	// Only m/z and intensity are of interest
	if !mzArray && !intensityArray {
		return p, nil
	}
	values, err := decodeFloats(binaryDataArray.Binary, zlibCompression, bits64)
	if err != nil {
		return nil, err
	}
	if len(values) > len(p) {
		grown := make([]Peak, len(values))
		copy(grown, p)
		p = grown
	}
	for i, v := range values {
		if mzArray {
			p[i].Mz = v
		} else {
			p[i].Intens = v
		}
	}
	return p, nil
}

// NumSpecs returns the number of spectra
func (f *MzML) NumSpecs() int {
	return len(f.content.Run.SpectrumList.Spectrum)
}

func (f *MzML) spectrum(scanIndex int) (*spectrum, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return nil, ErrInvalidScanIndex
	}
	return &f.content.Run.SpectrumList.Spectrum[scanIndex], nil
}

// RetentionTime returns the retention time of a spectrum in seconds, or -1
// if it is not present
func (f *MzML) RetentionTime(scanIndex int) (float64, error) {
	s, err := f.spectrum(scanIndex)
	if err != nil {
		return 0.0, err
	}
	for _, scan := range s.ScanList.Scan {
		for _, cvParam := range scan.CvPar {
			if cvParam.Accession == "MS:1000016" {
				retentionTime, err := strconv.ParseFloat(cvParam.Value, 64)
				// Minutes are converted, anything else is taken as seconds
				if cvParam.UnitAccession == "UO:0000031" ||
					cvParam.UnitAccession == "MS:1000038" {
					retentionTime *= 60
				}
				return retentionTime, err
			}
		}
	}
	return -1.0, nil
}

// ReadScan reads the peaks of a single scan
// scanIndex is the sequence number of the scan in the mzML file,
// This is not the same as the scan number that is specified
// in the mzML file! To read a scan using the mzML id,
// use ReadScan(f.ScanIndex(id))
func (f *MzML) ReadScan(scanIndex int) ([]Peak, error) {
	s, err := f.spectrum(scanIndex)
	if err != nil {
		return nil, err
	}
	p := make([]Peak, s.DefaultArrayLength)
	for i := range s.BinaryDataArrayList.BinaryDataArray {
		p, err = fillScan(p, &s.BinaryDataArrayList.BinaryDataArray[i])
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Centroid returns true is the spectrum contains centroid peaks
func (f *MzML) Centroid(scanIndex int) (bool, error) {
	s, err := f.spectrum(scanIndex)
	if err != nil {
		return false, err
	}
	for _, cvParam := range s.CvPar {
		if cvParam.Accession == "MS:1000127" {
			return true, nil
		}
	}
	return false, nil
}

// TotalIonCurrent returns the total ion current, or NaN if not found
func (f *MzML) TotalIonCurrent(scanIndex int) (float64, error) {
	s, err := f.spectrum(scanIndex)
	if err != nil {
		return 0.0, err
	}
	for _, cvParam := range s.CvPar {
		if cvParam.Accession == "MS:1000285" {
			return strconv.ParseFloat(cvParam.Value, 64)
		}
	}
	return math.NaN(), nil
}

// MSLevel returns the MS level of a scan
func (f *MzML) MSLevel(scanIndex int) (int, error) {
	s, err := f.spectrum(scanIndex)
	if err != nil {
		return 0, err
	}
	for _, cvParam := range s.CvPar {
		if cvParam.Accession == "MS:1000511" {
			msLevel, err := strconv.ParseInt(cvParam.Value, 10, 64)
			return int(msLevel), err
		}
	}
	return 1, nil // If nothing else, guess it's MS1
}

// MSInstruments returns the CV terms of the mass analyzers
func (f *MzML) MSInstruments() ([]string, error) {
	type analyzer struct {
		CvPar CVParam `xml:"cvParam"`
	}
	type instrumentConfiguration struct {
		XMLName  xml.Name   `xml:"instrumentConfiguration"`
		Analyzer []analyzer `xml:"componentList>analyzer"`
	}
	if f.content.InstrumentConfigurationList == nil {
		return nil, nil
	}

	var instrConf instrumentConfiguration
	if err := xml.Unmarshal(f.content.InstrumentConfigurationList.InstrumentConfigurationListXML, &instrConf); err != nil {
		return nil, err
	}
	var instr []string
	for _, conf := range instrConf.Analyzer {
		instr = append(instr, conf.CvPar.Accession)
	}
	return instr, nil
}

// traverseScan fills f.index2id and f.id2Index to make scans accessible
func (f *MzML) traverseScan() error {
	f.index2id = make([]string, f.NumSpecs())
	f.id2Index = make(map[string]int, f.NumSpecs())
	for i, s := range f.content.Run.SpectrumList.Spectrum {
		if i != s.Index {
			return ErrInvalidScanIndex
		}
		f.index2id[i] = s.ID
		f.id2Index[s.ID] = i
	}
	return nil
}

// ScanIndex converts a scan identifier (the string used in the mzML file)
// into an index that is used to access the scans
func (f *MzML) ScanIndex(scanID string) (int, error) {
	if index, ok := f.id2Index[scanID]; ok {
		return index, nil
	}
	return 0, ErrInvalidScanID
}

// ScanID converts a scan index (used to access the scan data) into a scan id
// (used in the mzML file)
func (f *MzML) ScanID(scanIndex int) (string, error) {
	if scanIndex >= 0 && scanIndex < f.NumSpecs() {
		return f.index2id[scanIndex], nil
	}
	return "", ErrInvalidScanIndex
}

// GetPrecursors returns the precursors of the first precursor list of a scan
func (f *MzML) GetPrecursors(scanIndex int) ([]XMLprecursor, error) {
	s, err := f.spectrum(scanIndex)
	if err != nil {
		return nil, err
	}
	if len(s.PrecursorList) == 0 {
		return nil, nil
	}
	return s.PrecursorList[0].Precursor, nil
}

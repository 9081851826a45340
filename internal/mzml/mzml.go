// Package mzml reads peak data from mzML files, the HUPO-PSI standard
// interchange format for mass spectrometry output. Only the parts
// needed to extract spectra are parsed; chromatograms, instrument and
// processing metadata are skipped.
package mzml

import (
	"encoding/xml"
	"errors"
)

var (
	// ErrBadScanIndex means a scan index outside [0, NumScans) was supplied.
	ErrBadScanIndex = errors.New("mzml: invalid scan index")
	// ErrBadScanID means a scan id not present in the file was supplied.
	ErrBadScanID = errors.New("mzml: invalid scan id")
	// ErrUnsupportedCompression means the peak data uses a compression
	// scheme (MS-Numpress) that this reader does not handle.
	ErrUnsupportedCompression = errors.New("mzml: unsupported binary data compression")
)

// File holds the parsed content of one mzML document.
type File struct {
	content  document
	index2id []string
	id2index map[string]int
}

// document mirrors the slice of the mzML schema we care about.
type document struct {
	XMLName xml.Name `xml:"http://psi.hupo.org/ms/mzml mzML"`
	Run     struct {
		ID           string `xml:"id,attr"`
		SpectrumList struct {
			Count    int        `xml:"count,attr"`
			Spectrum []specElem `xml:"spectrum"`
		} `xml:"spectrumList"`
	} `xml:"run"`
}

type specElem struct {
	Index              int       `xml:"index,attr"`
	ID                 string    `xml:"id,attr"`
	DefaultArrayLength int       `xml:"defaultArrayLength,attr"`
	CvPar              []cvParam `xml:"cvParam"`
	ScanList           struct {
		Scan []struct {
			CvPar []cvParam `xml:"cvParam"`
		} `xml:"scan"`
	} `xml:"scanList"`
	BinaryDataArrayList struct {
		BinaryDataArray []binaryArray `xml:"binaryDataArray"`
	} `xml:"binaryDataArrayList"`
}

type binaryArray struct {
	CvPar  []cvParam `xml:"cvParam"`
	Binary string    `xml:"binary"`
}

// cvParam is a controlled-vocabulary term
// (http://www.peptideatlas.org/tmp/mzML1.1.0.html).
type cvParam struct {
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

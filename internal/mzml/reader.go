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

	"masserstein/internal/spectrum"
)

// Read parses an mzML document. Vendor files often wrap the mzML
// element in indexedmzML; the token scan below skips over anything
// that is not the mzML element itself.
func Read(r io.Reader) (*File, error) {
	var f File

	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel

	for {
		t, err := d.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if se, ok := t.(xml.StartElement); ok && se.Name.Local == "mzML" {
			if err := d.DecodeElement(&f.content, &se); err != nil {
				return nil, err
			}
		}
	}

	specs := f.content.Run.SpectrumList.Spectrum
	f.index2id = make([]string, len(specs))
	f.id2index = make(map[string]int, len(specs))
	for i, s := range specs {
		if s.Index != i {
			return nil, fmt.Errorf("%w: spectrum %d declares index %d",
				ErrBadScanIndex, i, s.Index)
		}
		f.index2id[i] = s.ID
		f.id2index[s.ID] = i
	}
	return &f, nil
}

// NumScans returns the number of spectra in the file.
func (f *File) NumScans() int {
	return len(f.content.Run.SpectrumList.Spectrum)
}

// Spectrum decodes the peak data of one scan. Raw peak lists may be
// unsorted or carry duplicate masses; the returned spectrum has them
// sorted and merged.
func (f *File) Spectrum(scanIndex int) (*spectrum.Spectrum, error) {
	if scanIndex < 0 || scanIndex >= f.NumScans() {
		return nil, ErrBadScanIndex
	}
	s := &f.content.Run.SpectrumList.Spectrum[scanIndex]
	peaks := make([]spectrum.Peak, s.DefaultArrayLength)
	for _, b := range s.BinaryDataArrayList.BinaryDataArray {
		if err := fillPeaks(peaks, &b); err != nil {
			return nil, err
		}
	}
	return spectrum.New(peaks), nil
}

// Binary data CV terms:
// MS:1000514 m/z array        MS:1000521 32-bit float
// MS:1000515 intensity array  MS:1000523 64-bit float
// MS:1000574 zlib compression
// MS:1002312..1002314, MS:1002746..1002748 MS-Numpress variants
func fillPeaks(peaks []spectrum.Peak, b *binaryArray) error {
	var compressed, bits64, mzArray, intensArray bool
	for _, cv := range b.CvPar {
		switch cv.Accession {
		case "MS:1000574":
			compressed = true
		case "MS:1000523":
			bits64 = true
		case "MS:1000514":
			mzArray = true
		case "MS:1000515":
			intensArray = true
		case "MS:1002312", "MS:1002313", "MS:1002314",
			"MS:1002746", "MS:1002747", "MS:1002748":
			return fmt.Errorf("%w (CV term %s)", ErrUnsupportedCompression, cv.Accession)
		}
	}
	if !mzArray && !intensArray {
		return nil
	}

	data, err := base64.StdEncoding.DecodeString(b.Binary)
	if err != nil {
		return err
	}
	if compressed {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return err
		}
		defer z.Close()
		if data, err = io.ReadAll(z); err != nil {
			return err
		}
	}

	width := 4
	if bits64 {
		width = 8
	}
	cnt := len(data) / width
	if cnt > len(peaks) {
		cnt = len(peaks)
	}
	for i := 0; i < cnt; i++ {
		var v float64
		if bits64 {
			v = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		} else {
			v = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
		if mzArray {
			peaks[i].Mz = v
		} else {
			peaks[i].Intens = v
		}
	}
	return nil
}

// MSLevel returns the MS level of a scan, defaulting to 1 when the
// file does not say.
func (f *File) MSLevel(scanIndex int) (int, error) {
	if scanIndex < 0 || scanIndex >= f.NumScans() {
		return 0, ErrBadScanIndex
	}
	for _, cv := range f.content.Run.SpectrumList.Spectrum[scanIndex].CvPar {
		if cv.Accession == "MS:1000511" {
			level, err := strconv.Atoi(cv.Value)
			return level, err
		}
	}
	return 1, nil
}

// Centroid reports whether a scan contains centroided peaks.
func (f *File) Centroid(scanIndex int) (bool, error) {
	if scanIndex < 0 || scanIndex >= f.NumScans() {
		return false, ErrBadScanIndex
	}
	for _, cv := range f.content.Run.SpectrumList.Spectrum[scanIndex].CvPar {
		if cv.Accession == "MS:1000127" {
			return true, nil
		}
	}
	return false, nil
}

// TotalIonCurrent returns the total ion current recorded for a scan,
// or NaN when the file does not record one.
func (f *File) TotalIonCurrent(scanIndex int) (float64, error) {
	if scanIndex < 0 || scanIndex >= f.NumScans() {
		return 0, ErrBadScanIndex
	}
	for _, cv := range f.content.Run.SpectrumList.Spectrum[scanIndex].CvPar {
		if cv.Accession == "MS:1000285" {
			return strconv.ParseFloat(cv.Value, 64)
		}
	}
	return math.NaN(), nil
}

// RetentionTime returns the retention time of a scan in seconds, or
// -1 when the file does not record one.
func (f *File) RetentionTime(scanIndex int) (float64, error) {
	if scanIndex < 0 || scanIndex >= f.NumScans() {
		return 0, ErrBadScanIndex
	}
	for _, scan := range f.content.Run.SpectrumList.Spectrum[scanIndex].ScanList.Scan {
		for _, cv := range scan.CvPar {
			if cv.Accession == "MS:1000016" {
				rt, err := strconv.ParseFloat(cv.Value, 64)
				// UO:0000031 and MS:1000038 are minutes.
				if cv.UnitAccession == "UO:0000031" || cv.UnitAccession == "MS:1000038" {
					rt *= 60
				}
				return rt, err
			}
		}
	}
	return -1, nil
}

// ScanIndex converts a scan identifier (the string used in the mzML
// file) into the index used to access scans.
func (f *File) ScanIndex(scanID string) (int, error) {
	if i, ok := f.id2index[scanID]; ok {
		return i, nil
	}
	return 0, ErrBadScanID
}

// ScanID converts a scan index into the identifier used in the file.
func (f *File) ScanID(scanIndex int) (string, error) {
	if scanIndex < 0 || scanIndex >= f.NumScans() {
		return "", ErrBadScanIndex
	}
	return f.index2id[scanIndex], nil
}

package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"masserstein/internal/spectrum"
)

func encode64(vals []float64, compress bool) string {
	raw := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}
	if compress {
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		w.Write(raw)
		w.Close()
		raw = buf.Bytes()
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func encode32(vals []float64) string {
	raw := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(float32(v)))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

const docTemplate = `<?xml version="1.0" encoding="utf-8"?>
<indexedmzML xmlns="http://psi.hupo.org/ms/mzml">
 <mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0">
  <run id="run1">
   <spectrumList count="1" defaultDataProcessingRef="dp1">
    <spectrum index="0" id="scan=1" defaultArrayLength="3">
     <cvParam accession="MS:1000511" name="ms level" value="1"/>
     <cvParam accession="MS:1000127" name="centroid spectrum"/>
     <cvParam accession="MS:1000285" name="total ion current" value="60"/>
     <scanList count="1">
      <scan>
       <cvParam accession="MS:1000016" name="scan start time" value="2.5" unitAccession="UO:0000031"/>
      </scan>
     </scanList>
     <binaryDataArrayList count="2">
      <binaryDataArray>
       %s
       <cvParam accession="MS:1000514" name="m/z array"/>
       <binary>%s</binary>
      </binaryDataArray>
      <binaryDataArray>
       %s
       <cvParam accession="MS:1000515" name="intensity array"/>
       <binary>%s</binary>
      </binaryDataArray>
     </binaryDataArrayList>
    </spectrum>
   </spectrumList>
  </run>
 </mzML>
</indexedmzML>`

const zlibParam = `<cvParam accession="MS:1000574" name="zlib compression"/>`
const bits64Param = `<cvParam accession="MS:1000523" name="64-bit float"/>`

func testDoc(t *testing.T, compress bool) *File {
	t.Helper()
	mzs := []float64{100.5, 101.5, 102.5}
	intens := []float64{10, 30, 20}
	comp := ""
	if compress {
		comp = zlibParam
	}
	doc := fmt.Sprintf(docTemplate,
		bits64Param+comp, encode64(mzs, compress),
		bits64Param+comp, encode64(intens, compress))
	f, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestReadSpectrum(t *testing.T) {
	for _, compress := range []bool{false, true} {
		f := testDoc(t, compress)
		if f.NumScans() != 1 {
			t.Fatalf("NumScans = %d, want 1", f.NumScans())
		}
		s, err := f.Spectrum(0)
		if err != nil {
			t.Fatal(err)
		}
		want := []spectrum.Peak{
			{Mz: 100.5, Intens: 10}, {Mz: 101.5, Intens: 30}, {Mz: 102.5, Intens: 20},
		}
		if diff := cmp.Diff(want, s.Peaks); diff != "" {
			t.Errorf("compress=%v peaks mismatch (-want +got):\n%s", compress, diff)
		}
	}
}

func TestRead32Bit(t *testing.T) {
	mzs := []float64{200, 201}
	intens := []float64{1, 2}
	// No 64-bit term: both arrays fall back to 32 bits.
	doc := fmt.Sprintf(strings.Replace(docTemplate, `defaultArrayLength="3"`,
		`defaultArrayLength="2"`, 1),
		"", encode32(mzs), "", encode32(intens))

	f, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	s, err := f.Spectrum(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Peaks) != 2 || s.Peaks[0].Mz != 200 || s.Peaks[1].Intens != 2 {
		t.Errorf("unexpected peaks %+v", s.Peaks)
	}
}

func TestScanMetadata(t *testing.T) {
	f := testDoc(t, false)

	level, err := f.MSLevel(0)
	if err != nil || level != 1 {
		t.Errorf("MSLevel = %d, %v; want 1, nil", level, err)
	}
	centroid, err := f.Centroid(0)
	if err != nil || !centroid {
		t.Errorf("Centroid = %v, %v; want true, nil", centroid, err)
	}
	tic, err := f.TotalIonCurrent(0)
	if err != nil || tic != 60 {
		t.Errorf("TotalIonCurrent = %g, %v; want 60, nil", tic, err)
	}
	rt, err := f.RetentionTime(0)
	if err != nil || rt != 150 { // 2.5 minutes
		t.Errorf("RetentionTime = %g, %v; want 150, nil", rt, err)
	}

	idx, err := f.ScanIndex("scan=1")
	if err != nil || idx != 0 {
		t.Errorf("ScanIndex = %d, %v; want 0, nil", idx, err)
	}
	id, err := f.ScanID(0)
	if err != nil || id != "scan=1" {
		t.Errorf("ScanID = %q, %v; want scan=1, nil", id, err)
	}
}

func TestBadIndices(t *testing.T) {
	f := testDoc(t, false)

	if _, err := f.Spectrum(1); !errors.Is(err, ErrBadScanIndex) {
		t.Errorf("Spectrum(1) err = %v, want ErrBadScanIndex", err)
	}
	if _, err := f.MSLevel(-1); !errors.Is(err, ErrBadScanIndex) {
		t.Errorf("MSLevel(-1) err = %v, want ErrBadScanIndex", err)
	}
	if _, err := f.ScanIndex("scan=2"); !errors.Is(err, ErrBadScanID) {
		t.Errorf("ScanIndex err = %v, want ErrBadScanID", err)
	}
}

func TestUnsupportedCompression(t *testing.T) {
	doc := fmt.Sprintf(docTemplate,
		`<cvParam accession="MS:1002312" name="MS-Numpress linear"/>`,
		encode64([]float64{1, 2, 3}, false),
		bits64Param, encode64([]float64{1, 2, 3}, false))
	f, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Spectrum(0); !errors.Is(err, ErrUnsupportedCompression) {
		t.Errorf("Spectrum err = %v, want ErrUnsupportedCompression", err)
	}
}

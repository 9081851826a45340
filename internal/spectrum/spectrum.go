// Package spectrum provides the peak-list representation of a mass
// spectrum used throughout the deconvolution pipeline.
package spectrum

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// NormTol is the absolute tolerance within which peak intensities
// must sum to 1 for a spectrum to count as normalized.
const NormTol = 1e-8

var (
	ErrNotNormalized     = errors.New("spectrum not normalized")
	ErrNegativeMass      = errors.New("spectrum contains peaks with negative mass")
	ErrNegativeIntensity = errors.New("spectrum contains peaks with negative intensity")
	ErrUnsorted          = errors.New("spectrum peaks not sorted by mass")
	ErrEmpty             = errors.New("spectrum has no peaks")
)

// Peak is a single (m/z, intensity) pair.
type Peak struct {
	Mz     float64
	Intens float64
}

// Spectrum is an ordered list of peaks, sorted by ascending m/z with
// unique masses. The zero value is an empty spectrum.
type Spectrum struct {
	Peaks []Peak
}

// New constructs a spectrum from a list of peaks. The peaks are sorted
// by m/z; peaks with identical m/z are merged by summing intensities.
func New(peaks []Peak) *Spectrum {
	p := make([]Peak, len(peaks))
	copy(p, peaks)
	sort.Slice(p, func(i, j int) bool { return p[i].Mz < p[j].Mz })
	merged := p[:0]
	for _, pk := range p {
		if n := len(merged); n > 0 && merged[n-1].Mz == pk.Mz {
			merged[n-1].Intens += pk.Intens
		} else {
			merged = append(merged, pk)
		}
	}
	return &Spectrum{Peaks: merged}
}

// Validate checks the structural invariants: sorted unique masses,
// no negative masses, no negative intensities.
func (s *Spectrum) Validate() error {
	for i, p := range s.Peaks {
		if p.Mz < 0 {
			return fmt.Errorf("peak %d (m/z %g): %w", i, p.Mz, ErrNegativeMass)
		}
		if p.Intens < 0 {
			return fmt.Errorf("peak %d (m/z %g): %w", i, p.Mz, ErrNegativeIntensity)
		}
		if i > 0 && p.Mz <= s.Peaks[i-1].Mz {
			return fmt.Errorf("peak %d (m/z %g): %w", i, p.Mz, ErrUnsorted)
		}
	}
	return nil
}

// TotalIonCurrent returns the sum of all peak intensities.
func (s *Spectrum) TotalIonCurrent() float64 {
	tic := 0.0
	for _, p := range s.Peaks {
		tic += p.Intens
	}
	return tic
}

// Normalize scales intensities so that they sum to 1.
// A spectrum with zero total ion current is left unchanged.
func (s *Spectrum) Normalize() {
	tic := s.TotalIonCurrent()
	if tic == 0 {
		return
	}
	for i := range s.Peaks {
		s.Peaks[i].Intens /= tic
	}
}

// CheckNormalized reports whether intensities sum to 1 within NormTol.
func (s *Spectrum) CheckNormalized() error {
	if math.Abs(s.TotalIonCurrent()-1) >= NormTol {
		return ErrNotNormalized
	}
	return nil
}

// MinMz returns the lowest peak mass. The spectrum must be non-empty.
func (s *Spectrum) MinMz() float64 { return s.Peaks[0].Mz }

// MaxMz returns the highest peak mass. The spectrum must be non-empty.
func (s *Spectrum) MaxMz() float64 { return s.Peaks[len(s.Peaks)-1].Mz }

// ModalPeak returns the peak with the highest intensity. When several
// peaks share the maximum intensity the one with the lowest m/z wins.
func (s *Spectrum) ModalPeak() Peak {
	mode := s.Peaks[0]
	for _, p := range s.Peaks[1:] {
		if p.Intens > mode.Intens {
			mode = p
		}
	}
	return mode
}

// ExtractRange returns the peaks with mzMin <= m/z <= mzMax.
// The returned slice aliases the spectrum's peak storage.
func (s *Spectrum) ExtractRange(mzMin, mzMax float64) []Peak {
	i1 := sort.Search(len(s.Peaks), func(i int) bool { return s.Peaks[i].Mz >= mzMin })
	i2 := sort.Search(len(s.Peaks), func(i int) bool { return s.Peaks[i].Mz > mzMax })
	return s.Peaks[i1:i2]
}

// Closest returns the peak whose m/z is nearest to mz.
// The spectrum must be non-empty.
func (s *Spectrum) Closest(mz float64) Peak {
	i := sort.Search(len(s.Peaks), func(i int) bool { return s.Peaks[i].Mz >= mz })
	if i == len(s.Peaks) {
		return s.Peaks[i-1]
	}
	if i == 0 {
		return s.Peaks[0]
	}
	if mz-s.Peaks[i-1].Mz <= s.Peaks[i].Mz-mz {
		return s.Peaks[i-1]
	}
	return s.Peaks[i]
}

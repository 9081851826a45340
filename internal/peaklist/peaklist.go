// Package peaklist reads and writes the two-column text peak list
// format: one "m/z intensity" pair per line, whitespace separated.
// Blank lines and lines starting with '#' are skipped.
package peaklist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"masserstein/internal/spectrum"
)

// Read parses a peak list from r. Peaks are sorted and duplicate
// masses merged on construction.
func Read(r io.Reader) (*spectrum.Spectrum, error) {
	var peaks []spectrum.Peak
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected 2 fields (m/z, intensity), got %d",
				lineNum, len(fields))
		}
		mz, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid m/z value %q: %w", lineNum, fields[0], err)
		}
		intens, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid intensity value %q: %w", lineNum, fields[1], err)
		}
		peaks = append(peaks, spectrum.Peak{Mz: mz, Intens: intens})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return spectrum.New(peaks), nil
}

// ReadFile reads a peak list from a file.
func ReadFile(path string) (*spectrum.Spectrum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Write writes a spectrum as a peak list.
func Write(w io.Writer, s *spectrum.Spectrum) error {
	bw := bufio.NewWriter(w)
	for _, p := range s.Peaks {
		if _, err := fmt.Fprintf(bw, "%g %g\n", p.Mz, p.Intens); err != nil {
			return err
		}
	}
	return bw.Flush()
}

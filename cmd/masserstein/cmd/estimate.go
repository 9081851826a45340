package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"masserstein/internal/deconv"
	"masserstein/internal/mzml"
	"masserstein/internal/peaklist"
	"masserstein/internal/spectrum"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate candidate proportions in an experimental spectrum",
	Long: `Estimate the proportion of each candidate spectrum in an experimental
spectrum and report unexplained signal as noise.

Examples:
  # Deconvolve a peak list against two candidates
  masserstein estimate --exp spectrum.txt -q cand1.txt -q cand2.txt --mtd 0.05

  # Use scan 3 of an mzML file, allow noise in the candidates too
  masserstein estimate --exp run.mzML --scan 3 -q cand.txt \
      --noise in_both_alg1 --mtd-theory 0.05 --normalize`,
	RunE: runEstimate,
}

// fileConfig is the YAML parameter file. Pointer fields distinguish
// "absent" from an explicit zero; values set on the command line win.
type fileConfig struct {
	Noise     *string  `yaml:"noise"`
	MTD       *float64 `yaml:"mtd"`
	MDC       *float64 `yaml:"mdc"`
	MMD       *float64 `yaml:"mmd"`
	MTDTheory *float64 `yaml:"mtd_theory"`
	MaxReruns *int     `yaml:"max_reruns"`
}

// proportionEntry pairs a candidate file with its estimated share.
type proportionEntry struct {
	File       string  `json:"file"`
	Proportion float64 `json:"proportion"`
}

type noiseEntry struct {
	Mz     float64 `json:"mz"`
	Intens float64 `json:"intensity"`
}

type resultDoc struct {
	Proportions        []proportionEntry `json:"proportions"`
	Noise              []noiseEntry      `json:"noise,omitempty"`
	NoiseInTheoretical float64           `json:"noise_in_theoretical,omitempty"`
	Warnings           []string          `json:"warnings,omitempty"`
}

func runEstimate(cmd *cobra.Command, args []string) error {
	if err := applyConfigFile(cmd); err != nil {
		return err
	}

	exp, err := loadExperimental()
	if err != nil {
		return err
	}
	query := make([]*spectrum.Spectrum, len(queryFiles))
	for i, path := range queryFiles {
		if query[i], err = peaklist.ReadFile(path); err != nil {
			return err
		}
	}
	if normalize {
		exp.Normalize()
		for _, q := range query {
			q.Normalize()
		}
	}

	opts := deconv.Options{
		MTD:       mtd,
		MDC:       mdc,
		MMD:       mmd,
		MTDTheory: mtdTheory,
		MaxReruns: maxReruns,
		Verbose:   verbose,
	}

	var res *deconv.Result
	switch noiseMode {
	case "":
		res, err = deconv.EstimateProportions(exp, query, opts)
	case "only_in_exp":
		res, err = deconv.EstimateProportionsWithNoise(exp, query, deconv.NoiseOnlyExperimental, opts)
	case "in_both_alg1":
		res, err = deconv.EstimateProportionsWithNoise(exp, query, deconv.NoiseInBoth, opts)
	case "in_both_alg2":
		res, err = deconv.EstimateProportionsWithNoise(exp, query, deconv.NoiseInBothCross, opts)
	default:
		return fmt.Errorf("invalid noise mode %q, must be only_in_exp, in_both_alg1 or in_both_alg2", noiseMode)
	}
	if err != nil {
		return err
	}

	return writeResult(exp, res)
}

// applyConfigFile fills parameters from the YAML file for every flag
// the user did not set explicitly.
func applyConfigFile(cmd *cobra.Command) error {
	if configFile == "" {
		return nil
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Noise != nil && !cmd.Flags().Changed("noise") {
		noiseMode = *cfg.Noise
	}
	if cfg.MTD != nil && !cmd.Flags().Changed("mtd") {
		mtd = *cfg.MTD
	}
	if cfg.MDC != nil && !cmd.Flags().Changed("mdc") {
		mdc = *cfg.MDC
	}
	if cfg.MMD != nil && !cmd.Flags().Changed("mmd") {
		mmd = *cfg.MMD
	}
	if cfg.MTDTheory != nil && !cmd.Flags().Changed("mtd-theory") {
		mtdTheory = *cfg.MTDTheory
	}
	if cfg.MaxReruns != nil && !cmd.Flags().Changed("max-reruns") {
		maxReruns = *cfg.MaxReruns
	}
	return nil
}

func loadExperimental() (*spectrum.Spectrum, error) {
	ext := strings.ToLower(filepath.Ext(expFile))
	if ext != ".mzml" {
		return peaklist.ReadFile(expFile)
	}

	f, err := os.Open(expFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mz, err := mzml.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", expFile, err)
	}
	s, err := mz.Spectrum(scanIndex)
	if err != nil {
		return nil, fmt.Errorf("%s scan %d: %w", expFile, scanIndex, err)
	}
	return s, nil
}

func writeResult(exp *spectrum.Spectrum, res *deconv.Result) error {
	doc := resultDoc{NoiseInTheoretical: res.NoiseInTheoretical}
	for i, p := range res.Proportions {
		doc.Proportions = append(doc.Proportions, proportionEntry{
			File:       queryFiles[i],
			Proportion: p,
		})
	}
	for i, v := range res.Noise {
		if v > 0 {
			doc.Noise = append(doc.Noise, noiseEntry{Mz: exp.Peaks[i].Mz, Intens: v})
		}
	}
	for _, w := range res.Warnings {
		doc.Warnings = append(doc.Warnings, w.String())
	}

	var w io.Writer = os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	e := json.NewEncoder(w)
	e.SetIndent(``, `  `) // Make output easier to read for humans
	return e.Encode(doc)
}

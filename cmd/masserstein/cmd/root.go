// Package cmd provides the CLI command implementations
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Flags for the estimate command
	expFile    string
	scanIndex  int
	queryFiles []string
	outFile    string
	configFile string
	noiseMode  string
	mtd        float64
	mdc        float64
	mmd        float64
	mtdTheory  float64
	maxReruns  int
	normalize  bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "masserstein",
	Short: "Mass spectral deconvolution via optimal transport",
	Long: `masserstein estimates the proportions of candidate isotopic envelopes
in an experimental mass spectrum by minimizing the Wasserstein distance
between the observed signal and a mixture of the candidates, with a
configurable noise model.`,
	Version: "1.0.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(estimateCmd)

	estimateCmd.Flags().StringVarP(&expFile, "exp", "e", "", "experimental spectrum: peak list or .mzML file (required)")
	estimateCmd.Flags().IntVar(&scanIndex, "scan", 0, "scan index to use when the experimental file is mzML")
	estimateCmd.Flags().StringArrayVarP(&queryFiles, "query", "q", nil, "candidate spectrum peak list (repeatable, required)")
	estimateCmd.Flags().StringVarP(&outFile, "out", "o", "", "output JSON file (default stdout)")
	estimateCmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML parameter file")
	estimateCmd.Flags().StringVar(&noiseMode, "noise", "",
		"noise model: only_in_exp, in_both_alg1 or in_both_alg2 (default: experimental noise via variable bounds)")
	estimateCmd.Flags().Float64Var(&mtd, "mtd", 1, "maximum transport distance")
	estimateCmd.Flags().Float64Var(&mdc, "mdc", 1e-8, "minimum detectable current (0 disables the check)")
	estimateCmd.Flags().Float64Var(&mmd, "mmd", -1, "maximum mode distance (-1 disables the check)")
	estimateCmd.Flags().Float64Var(&mtdTheory, "mtd-theory", 0, "transport distance for theoretical-side noise")
	estimateCmd.Flags().IntVar(&maxReruns, "max-reruns", 3, "solver retries per chunk before giving up")
	estimateCmd.Flags().BoolVar(&normalize, "normalize", false, "normalize input spectra instead of requiring unit ion current")
	estimateCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log progress and per-chunk statistics")

	estimateCmd.MarkFlagRequired("exp")
	estimateCmd.MarkFlagRequired("query")
}

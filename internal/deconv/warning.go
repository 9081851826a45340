package deconv

import "fmt"

// Warning is a non-fatal diagnostic produced during deconvolution,
// typically a sum-consistency deviation or a solver rerun. Warnings
// are collected on the result and optionally streamed to the
// Options.OnWarning callback as they occur.
type Warning struct {
	Stage     string  // computation stage that produced the warning
	Chunk     int     // chunk index, or -1 when not chunk-specific
	Deviation float64 // |sum - 1| for consistency warnings, else 0
	Message   string
}

func (w Warning) String() string {
	if w.Chunk >= 0 {
		return fmt.Sprintf("%s (chunk %d): %s", w.Stage, w.Chunk, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Stage, w.Message)
}

// sumWarning builds the standard consistency warning for a stage where
// signal and noise proportions summed to total instead of 1.
func sumWarning(stage string, chunk int, total float64) Warning {
	return Warning{
		Stage:     stage,
		Chunk:     chunk,
		Deviation: total - 1,
		Message: fmt.Sprintf(
			"proportions of signal and noise sum to %f instead of 1; results may be inaccurate", total),
	}
}

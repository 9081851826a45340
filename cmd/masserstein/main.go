// masserstein - Wasserstein-distance mass spectral deconvolution
package main

import (
	"fmt"
	"os"

	"masserstein/cmd/masserstein/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command jobledger runs and operates the renovation job ledger.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "jobledger: %v\n", err)
		os.Exit(1)
	}
}

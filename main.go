// Command newsxtract extracts picture-news records from NewsML XML trees
// and writes a fixed-column CSV, resolving and optionally moving the
// backing images as it goes.
package main

import (
	"fmt"
	"os"

	"newsxtract/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

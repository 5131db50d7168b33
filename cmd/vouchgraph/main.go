// Command vouchgraph serves and inspects the Union vouching network graph.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		bad.Fprintf(os.Stderr, "vouchgraph: %v\n", err)
		os.Exit(1)
	}
}

// Package main is the entry point for t1sbridge.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/t1sbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

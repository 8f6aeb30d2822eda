// Package main provides tpf, a CLI for crash-safe file storage.
package main

import (
	"os"

	"github.com/calvinalkan/twophase/internal/cli"
)

func main() {
	exitCode := cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args)

	os.Exit(exitCode)
}

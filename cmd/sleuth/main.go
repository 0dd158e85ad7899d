package main

import (
	"os"

	"github.com/maulida/sleuth/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

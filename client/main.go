package main

import (
	"os"

	"github.com/parleyhq/parley/client/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"errors"
	"os"

	"github.com/conneroisu/assetflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, cmd.ErrInterrupted) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

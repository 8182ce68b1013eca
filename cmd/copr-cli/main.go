package main

import (
	"os"

	"github.com/copr-farm/copr/cmd/copr-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

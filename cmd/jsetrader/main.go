package main

import (
	"os"

	"github.com/rustyeddy/jsetrader/cmd/jsetrader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/blockberries/encounter/cmd/encounter/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

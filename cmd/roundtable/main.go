package main

import (
	"os"

	"github.com/comigor/roundtable/cmd/roundtable/commands"
)

// set at build time
var version = "dev"

func main() {
	commands.SetVersion(version)
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

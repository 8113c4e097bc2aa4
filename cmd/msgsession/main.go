package main

import (
	"os"

	"github.com/spachava753/msgsession/cmd/msgsession/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

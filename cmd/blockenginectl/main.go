package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RootCommand is the top-level blockenginectl command; every subcommand
// registers itself via init().
var RootCommand = &cobra.Command{
	Use:   "blockenginectl",
	Short: "Inspect and manipulate blockengine storage files",
}

func main() {
	if err := RootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

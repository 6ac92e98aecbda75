package main

import (
	"os"
)

func main() {
	rootCmd := newRootCommand()
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// set via -ldflags
var (
	version = ""
	commit  = ""
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the vpipeline version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, c := version, commit
			if info, ok := debug.ReadBuildInfo(); ok {
				if v == "" {
					v = info.Main.Version
				}
				for _, s := range info.Settings {
					if c == "" && s.Key == "vcs.revision" {
						c = s.Value
					}
				}
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "vpipeline %s (commit %s)\n", v, c)
			return err
		},
	}
}

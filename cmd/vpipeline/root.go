package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// newRootCommand makes the subcommands read their flags from the command
// line, the VPIPELINE_* environment variables or config.yaml (in that order).
func newRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("VPIPELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	for _, path := range []string{"/etc/vpipeline", "$HOME/.vpipeline", "."} {
		viper.AddConfigPath(path)
	}
	_ = viper.ReadInConfig()

	return &cobra.Command{
		Use:   "vpipeline",
		Short: "A zero-copy video processing pipeline",
		Long: `A zero-copy video processing pipeline.

The camera buffers travel through the pipeline nodes by reference; every node
is driven by its own worker and slow consumers drop frames instead of blocking
the capture.`,
		SilenceUsage: true,
	}
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

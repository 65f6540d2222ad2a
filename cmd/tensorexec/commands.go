package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/born-ml/tensorexec/engine"
	"github.com/born-ml/tensorexec/internal/envconfig"
)

const version = "v0.1.0-dev"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tensorexec",
		Short:         "Inspect and benchmark the tensor execution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "engine configuration file (YAML)")

	load := func() (engine.Config, error) {
		if configPath == "" {
			return engine.ConfigFromEnv(), nil
		}
		return engine.LoadConfig(configPath)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Show version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "tensorexec %s\n", version)
			},
		},
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective engine configuration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				return printConfig(cmd.OutOrStdout(), cfg)
			},
		},
		newBenchCmd(load),
	)
	return root
}

func printConfig(w io.Writer, cfg engine.Config) error {
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	fmt.Fprint(w, out)

	vars := envconfig.AsMap()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)
	fmt.Fprintln(w, "\n# environment")
	for _, name := range names {
		v := vars[name]
		fmt.Fprintf(w, "# %s=%v\t%s\n", v.Name, v.Value, v.Description)
	}
	return nil
}

func newLogger(cfg engine.Config) *slog.Logger {
	level, _ := cfg.Level()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Command formulang is the CLI front-end over the formulang compiler
// core: it reads a .fm source from disk, resolves its imports through
// the filesystem, and prints a solve/validate/formulas/hover/completions
// result as text or JSON.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bherbruck/formulang/internal/config"
)

var (
	jsonOutput bool
	verbose    bool
	configPath string
	logger     *slog.Logger
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "formulang",
	Short:         "Compile and solve least-cost feed formulation programs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a formulang.toml to use instead of the discovered one")

	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(formulasCmd)
	rootCmd.AddCommand(hoverCmd)
	rootCmd.AddCommand(completionsCmd)

	cobra.OnInitialize(func() {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		var loaded *config.Config
		var err error
		if configPath != "" {
			loaded, err = config.LoadFile(configPath)
		} else {
			loaded, err = config.Load(".")
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bherbruck/formulang/internal/diag"
	"github.com/bherbruck/formulang/internal/formulang"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file.fm>",
	Short: "Run the lex/parse/link/resolve pipeline and print diagnostics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		diags := formulang.Validate(string(src), searchPathProvider{cfg})
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(diags)
		}
		printDiagnosticList(diags)
		if hasErrors(diags) {
			os.Exit(1)
		}
		return nil
	},
}

func hasErrors(diags []diag.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == diag.Error {
			return true
		}
	}
	return false
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bherbruck/formulang/internal/formulang"
)

var formulasCmd = &cobra.Command{
	Use:   "formulas <file.fm>",
	Short: "List the formulas declared in a source file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		formulas := formulang.GetFormulas(string(src))
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(formulas)
		}
		for _, f := range formulas {
			tag := ""
			if f.IsTemplate {
				tag = " (template)"
			}
			fmt.Printf("%s%s\n", f.Name, tag)
		}
		return nil
	},
}

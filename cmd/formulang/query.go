package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bherbruck/formulang/internal/formulang"
)

var hoverCmd = &cobra.Command{
	Use:   "hover <file.fm> <offset>",
	Short: "Show hover documentation for the declaration at a byte offset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		offset, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid offset %q: %w", args[1], err)
		}

		hover, ok := formulang.GetHover(string(src), offset)
		if !ok {
			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(nil)
			}
			fmt.Println("no hover information at that offset")
			return nil
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(hover)
		}
		fmt.Println(hover.Contents)
		return nil
	},
}

var completionsCmd = &cobra.Command{
	Use:   "completions <file.fm> <offset>",
	Short: "List completion suggestions at a byte offset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		offset, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid offset %q: %w", args[1], err)
		}

		completions := formulang.GetCompletions(string(src), offset)
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(completions)
		}
		for _, c := range completions {
			fmt.Printf("%-20s %s\n", c.Label, c.Kind)
		}
		return nil
	},
}

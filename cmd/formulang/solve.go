package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bherbruck/formulang/internal/formulang"
	"github.com/bherbruck/formulang/internal/solve"
)

var solveCmd = &cobra.Command{
	Use:   "solve <file.fm> <formula>",
	Short: "Solve a formula and print the resulting blend",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, formulaName := args[0], args[1]
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		logger.Debug("solving", "path", path, "formula", formulaName)
		res, bag := formulang.Solve(string(src), formulaName, searchPathProvider{cfg}, cfg.SimplexTolerance)
		printDiagnostics(bag)

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(res)
		}
		printSolveResult(res)
		if res.Status == solve.StatusError {
			os.Exit(1)
		}
		return nil
	},
}

func printSolveResult(res *solve.Result) {
	fmt.Printf("status: %s\n", res.Status)
	if res.Status == solve.StatusError {
		fmt.Println(res.Message)
		return
	}
	fmt.Printf("formula: %s (batch %.4g)\n", res.FormulaName, res.BatchSize)
	fmt.Printf("total_cost: %.4g\n\n", res.TotalCost)

	fmt.Println("ingredients:")
	for _, ing := range res.Ingredients {
		fmt.Printf("  %-20s amount=%.4g (%.2f%%) cost=%.4g (%.2f%%)\n",
			ing.Name, ing.Amount, ing.Percentage, ing.Cost, ing.CostPercentage)
	}

	fmt.Println("nutrients:")
	for _, n := range res.Nutrients {
		fmt.Printf("  %-20s value=%.4g\n", n.Name, n.Value)
	}

	if len(res.Violations) > 0 {
		fmt.Println("violations:")
		for _, v := range res.Violations {
			fmt.Printf("  %s: required=%.4g actual=%.4g gap=%.4g\n", v.ConstraintLabel, v.Required, v.Actual, v.Gap)
		}
	}

	if res.Analysis != nil {
		fmt.Println("binding constraints:")
		for _, sp := range res.Analysis.ShadowPrices {
			fmt.Printf("  %s: %s\n", sp.ConstraintLabel, sp.Interpretation)
		}
	}
}

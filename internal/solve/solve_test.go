package solve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bherbruck/formulang/internal/ast"
	"github.com/bherbruck/formulang/internal/linker"
	"github.com/bherbruck/formulang/internal/source"
)

func loadFormula(t *testing.T, files map[string]string, root, formulaName string) (*linker.Graph, *ast.FormulaDecl) {
	t.Helper()
	prov := source.MapProvider(files)
	g, bag := linker.Load(root, files[root], prov)
	require.Empty(t, bag.All())

	link := g.Modules[root]
	require.NotNil(t, link)
	for _, d := range link.Module.Decls {
		if d.Formula != nil && d.Formula.Name == formulaName {
			return g, d.Formula
		}
	}
	t.Fatalf("formula %q not found", formulaName)
	return nil, nil
}

func TestSolve_OptimalBlendSatisfiesBatchAndBound(t *testing.T) {
	g, f := loadFormula(t, map[string]string{
		"root.fm": `nutrient protein { }
ingredient corn { cost 150, protein 8.5 }
ingredient soybean_meal { cost 450, protein 48 }
formula f {
	batch_size 1000
	description "least-cost starter blend"
	nutrients { protein min 20 }
	ingredients { corn, soybean_meal }
}`,
	}, "root.fm", "f")

	res, bag := Solve(g, "root.fm", f, DefaultTolerance)
	require.False(t, bag.HasErrors())
	require.NotNil(t, res)
	require.Equal(t, StatusOptimal, res.Status)
	assert.Equal(t, "f", res.FormulaName)
	assert.Equal(t, "least-cost starter blend", res.Description)
	assert.Equal(t, 1000.0, res.BatchSize)

	var totalAmount float64
	for _, line := range res.Ingredients {
		assert.GreaterOrEqual(t, line.Amount, -1e-6, "amounts must be non-negative")
		totalAmount += line.Amount
	}
	assert.InDelta(t, 1000.0, totalAmount, 1e-4, "ingredient amounts must sum to the batch size")

	require.Len(t, res.Nutrients, 1)
	assert.Equal(t, "protein", res.Nutrients[0].Name)
	assert.GreaterOrEqual(t, res.Nutrients[0].Value, 20.0-1e-6, "the protein minimum must be met")

	var costSum float64
	for _, line := range res.Ingredients {
		costSum += line.Cost
	}
	assert.InDelta(t, res.TotalCost, costSum, 1e-4)
}

func TestSolve_InfeasibleRequirementReportsViolation(t *testing.T) {
	// No combination of corn/soybean_meal can reach 90% protein: the
	// requirement forces an infeasible relaxed solve.
	g, f := loadFormula(t, map[string]string{
		"root.fm": `nutrient protein { }
ingredient corn { cost 150, protein 8.5 }
ingredient soybean_meal { cost 450, protein 48 }
formula f {
	batch_size 1000
	nutrients { protein min 90 }
	ingredients { corn, soybean_meal }
}`,
	}, "root.fm", "f")

	res, bag := Solve(g, "root.fm", f, DefaultTolerance)
	require.NotNil(t, res)
	require.Equal(t, StatusInfeasible, res.Status)
	assert.NotEmpty(t, bag.All())
	assert.Nil(t, res.Analysis, "shadow prices are not meaningful for a relaxed solve")
	require.NotEmpty(t, res.Violations)
	assert.Contains(t, res.Violations[0].ConstraintLabel, "nutrient")
	assert.Greater(t, res.Violations[0].Gap, 0.0)
}

func TestSolve_BuildFailureYieldsErrorStatus(t *testing.T) {
	g, f := loadFormula(t, map[string]string{
		"root.fm": `ingredient corn { protein 8.5 }
formula f {
	batch_size 1000
	ingredients { corn }
}`,
	}, "root.fm", "f")

	res, bag := Solve(g, "root.fm", f, DefaultTolerance)
	require.True(t, bag.HasErrors())
	require.NotNil(t, res)
	assert.Equal(t, StatusError, res.Status)
	assert.NotEmpty(t, res.Message)
}

func TestSolve_SingleFeasibleIngredientFillsEntireBatch(t *testing.T) {
	g, f := loadFormula(t, map[string]string{
		"root.fm": `ingredient corn { cost 150 }
formula f {
	batch_size 500
	ingredients { corn }
}`,
	}, "root.fm", "f")

	res, bag := Solve(g, "root.fm", f, DefaultTolerance)
	require.False(t, bag.HasErrors())
	require.Equal(t, StatusOptimal, res.Status)
	require.Len(t, res.Ingredients, 1)
	assert.InDelta(t, 500.0, res.Ingredients[0].Amount, 1e-4)
	assert.InDelta(t, 100.0, res.Ingredients[0].CostPercentage, 1e-4)
}

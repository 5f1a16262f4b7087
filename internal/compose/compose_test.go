package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bherbruck/formulang/internal/ast"
	"github.com/bherbruck/formulang/internal/diag"
	"github.com/bherbruck/formulang/internal/linker"
	"github.com/bherbruck/formulang/internal/source"
)

func loadFormula(t *testing.T, files map[string]string, root, formulaName string) (*linker.Graph, *ast.FormulaDecl) {
	t.Helper()
	prov := source.MapProvider(files)
	g, bag := linker.Load(root, files[root], prov)
	require.Empty(t, bag.All(), "fixture should link cleanly")

	link := g.Modules[root]
	require.NotNil(t, link)
	for _, d := range link.Module.Decls {
		if d.Formula != nil && d.Formula.Name == formulaName {
			return g, d.Formula
		}
	}
	t.Fatalf("formula %q not found in %q", formulaName, root)
	return nil, nil
}

func TestExpand_CompositionOverrideReplacesWhole(t *testing.T) {
	// Scenario 3 from the testable-properties list: a later bare
	// constraint with only `min` fully replaces the base's `min`+`max`,
	// leaving no inherited upper bound.
	g, f := loadFormula(t, map[string]string{
		"root.fm": `nutrient protein { }
ingredient corn { cost 150, protein 8.5 }
ingredient soybean_meal { cost 450, protein 48 }
template formula base {
	nutrients { protein min 16 max 24 }
}
formula child {
	batch_size 1000
	nutrients { base.nutrients, protein min 22 }
	ingredients { corn, soybean_meal min 10% }
}`,
	}, "root.fm", "child")

	res, bag := Expand(g, "root.fm", f)
	require.Empty(t, bag.All())

	require.Len(t, res.Nutrients, 1)
	c := res.Nutrients[0]
	require.NotNil(t, c.Min)
	assert.Equal(t, 22.0, c.Min.Value)
	assert.Nil(t, c.Max, "override replaces the whole constraint, not just the overridden field")
}

func TestExpand_AllOfInlinesEveryConstraint(t *testing.T) {
	g, f := loadFormula(t, map[string]string{
		"root.fm": `nutrient protein { }
nutrient calcium { }
template formula base {
	nutrients { protein min 16 max 24, calcium min 0.5 }
}
formula child {
	batch_size 1000
	nutrients { base.nutrients }
}`,
	}, "root.fm", "child")

	res, bag := Expand(g, "root.fm", f)
	require.Empty(t, bag.All())
	require.Len(t, res.Nutrients, 2)
}

func TestExpand_SubsetSelectsOnlyNamedEntries(t *testing.T) {
	g, f := loadFormula(t, map[string]string{
		"root.fm": `nutrient protein { }
nutrient calcium { }
nutrient phosphorus { }
template formula base {
	nutrients { protein min 16, calcium min 0.5, phosphorus min 0.3 }
}
formula child {
	batch_size 1000
	nutrients { base.nutrients.[protein,calcium] }
}`,
	}, "root.fm", "child")

	res, bag := Expand(g, "root.fm", f)
	require.Empty(t, bag.All())
	require.Len(t, res.Nutrients, 2)
	names := map[string]bool{}
	for _, fl := range res.Nutrients {
		names[fl.LHS.Ref] = true
	}
	assert.True(t, names["protein"])
	assert.True(t, names["calcium"])
	assert.False(t, names["phosphorus"])
}

func TestExpand_SingleBoundPullsOnlyThatHalf(t *testing.T) {
	g, f := loadFormula(t, map[string]string{
		"root.fm": `nutrient protein { }
template formula base {
	nutrients { protein min 16 max 24 }
}
formula child {
	batch_size 1000
	nutrients { base.nutrients.protein.min }
}`,
	}, "root.fm", "child")

	res, bag := Expand(g, "root.fm", f)
	require.Empty(t, bag.All())
	require.Len(t, res.Nutrients, 1)
	assert.NotNil(t, res.Nutrients[0].Min)
	assert.Nil(t, res.Nutrients[0].Max)
}

func TestExpand_SingleBoundMissingIsWarningNotError(t *testing.T) {
	g, f := loadFormula(t, map[string]string{
		"root.fm": `nutrient protein { }
template formula base {
	nutrients { protein max 24 }
}
formula child {
	batch_size 1000
	nutrients { base.nutrients.protein.min }
}`,
	}, "root.fm", "child")

	res, bag := Expand(g, "root.fm", f)
	assert.Empty(t, res.Nutrients)
	require.Len(t, bag.All(), 1)
	assert.Equal(t, diag.Warning, bag.All()[0].Severity)
	assert.Equal(t, diag.CodeMissingBound, bag.All()[0].Code)
}

func TestExpand_GroupReferenceStaysOneSumConstraint(t *testing.T) {
	g, f := loadFormula(t, map[string]string{
		"root.fm": `ingredient corn { cost 150 }
ingredient wheat { cost 140 }
group grains { corn, wheat }
formula f {
	batch_size 1000
	ingredients { grains max 50% }
}`,
	}, "root.fm", "f")

	res, bag := Expand(g, "root.fm", f)
	require.Empty(t, bag.All())
	require.Len(t, res.Ingredients, 1, "a bare group bounds the sum of its members, not each member")
	fl := res.Ingredients[0]
	assert.Equal(t, ast.ExprRef, fl.LHS.Kind)
	assert.Equal(t, "grains", fl.LHS.Ref)
	require.NotNil(t, fl.Max)
	assert.Equal(t, 50.0, fl.Max.Value)
	assert.True(t, fl.Max.IsPercent)
}

func TestExpand_GroupSelectPicksNamedMembersOnly(t *testing.T) {
	g, f := loadFormula(t, map[string]string{
		"root.fm": `ingredient corn { cost 150 }
ingredient wheat { cost 140 }
ingredient barley { cost 130 }
group grains { corn, wheat, barley }
formula f {
	batch_size 1000
	ingredients { grains.[corn,wheat] }
}`,
	}, "root.fm", "f")

	res, bag := Expand(g, "root.fm", f)
	require.Empty(t, bag.All())
	require.Len(t, res.Ingredients, 2)
}

func TestExpand_CompositionCycleIsError(t *testing.T) {
	g, f := loadFormula(t, map[string]string{
		"root.fm": `nutrient protein { }
template formula a {
	nutrients { b.nutrients }
}
template formula b {
	nutrients { a.nutrients }
}`,
	}, "root.fm", "a")

	_, bag := Expand(g, "root.fm", f)
	require.NotEmpty(t, bag.All())
	assert.Equal(t, diag.CodeCompositionCycle, bag.All()[0].Code)
}

func TestExpand_RatioConstraintIsPreservedAsBinaryExpr(t *testing.T) {
	g, f := loadFormula(t, map[string]string{
		"root.fm": `nutrient calcium { }
nutrient phosphorus { }
formula f {
	batch_size 1000
	nutrients { calcium / phosphorus min 1.5 max 2.0 }
}`,
	}, "root.fm", "f")

	res, bag := Expand(g, "root.fm", f)
	require.Empty(t, bag.All())
	require.Len(t, res.Nutrients, 1)
	assert.Equal(t, ast.ExprBinary, res.Nutrients[0].LHS.Kind)
	assert.Equal(t, ast.OpDiv, res.Nutrients[0].LHS.Op)
}

func TestExpand_IsMemoizedAndDeterministic(t *testing.T) {
	g, f := loadFormula(t, map[string]string{
		"root.fm": `nutrient protein { }
formula f {
	batch_size 1000
	nutrients { protein min 20 }
}`,
	}, "root.fm", "f")

	res1, bag1 := Expand(g, "root.fm", f)
	res2, bag2 := Expand(g, "root.fm", f)
	require.Empty(t, bag1.All())
	require.Empty(t, bag2.All())
	assert.Equal(t, res1, res2)
}

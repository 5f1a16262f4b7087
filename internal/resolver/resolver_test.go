package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bherbruck/formulang/internal/diag"
	"github.com/bherbruck/formulang/internal/linker"
	"github.com/bherbruck/formulang/internal/source"
)

func load(t *testing.T, files map[string]string, root string) *linker.Graph {
	t.Helper()
	prov := source.MapProvider(files)
	g, bag := linker.Load(root, files[root], prov)
	require.Empty(t, bag.All(), "fixture should link cleanly")
	return g
}

func TestResolve_BareLocal(t *testing.T) {
	g := load(t, map[string]string{
		"root.fm": `nutrient protein { }`,
	}, "root.fm")

	sym, err := Resolve(g, "root.fm", "protein")
	require.NoError(t, err)
	assert.Equal(t, KindNutrient, sym.Kind)
}

func TestResolve_NamespacedDottedPath(t *testing.T) {
	g := load(t, map[string]string{
		"root.fm":   `import "grains.fm"`,
		"grains.fm": `ingredient corn { cost 150 }`,
	}, "root.fm")

	sym, err := Resolve(g, "root.fm", "grains.corn")
	require.NoError(t, err)
	assert.Equal(t, KindIngredient, sym.Kind)
	assert.Equal(t, "corn", sym.Ingredient.Name)
}

func TestResolve_DirectImport(t *testing.T) {
	g := load(t, map[string]string{
		"root.fm":     `import "minerals.fm" { limestone }`,
		"minerals.fm": `ingredient limestone { cost 20 }`,
	}, "root.fm")

	sym, err := Resolve(g, "root.fm", "limestone")
	require.NoError(t, err)
	assert.Equal(t, KindIngredient, sym.Kind)
}

func TestResolve_WildcardFallback(t *testing.T) {
	g := load(t, map[string]string{
		"root.fm":   `import "grains.fm" { * }`,
		"grains.fm": `ingredient corn { cost 150 }`,
	}, "root.fm")

	sym, err := Resolve(g, "root.fm", "corn")
	require.NoError(t, err)
	assert.Equal(t, KindIngredient, sym.Kind)
}

func TestResolve_AmbiguousWildcardIsError(t *testing.T) {
	g := load(t, map[string]string{
		"root.fm": `import "a.fm" { * }` + "\n" + `import "b.fm" { * }`,
		"a.fm":    `ingredient corn { cost 150 }`,
		"b.fm":    `ingredient corn { cost 200 }`,
	}, "root.fm")

	_, err := Resolve(g, "root.fm", "corn")
	require.Error(t, err)
}

func TestResolve_UnknownIdentifier(t *testing.T) {
	g := load(t, map[string]string{"root.fm": `nutrient protein { }`}, "root.fm")
	_, err := Resolve(g, "root.fm", "nonexistent")
	assert.Error(t, err)
}

func TestResolve_UnknownNamespace(t *testing.T) {
	g := load(t, map[string]string{"root.fm": `nutrient protein { }`}, "root.fm")
	_, err := Resolve(g, "root.fm", "nope.protein")
	assert.Error(t, err)
}

func TestValidate_RedeclarationIsError(t *testing.T) {
	g := load(t, map[string]string{
		"root.fm": `nutrient protein { }
nutrient protein { }`,
	}, "root.fm")

	bag := Validate(g)
	require.NotEmpty(t, bag.All())
	assert.Equal(t, diag.CodeRedeclaration, bag.All()[0].Code)
}

func TestValidate_WrongKindReferenceInNutrientsBlock(t *testing.T) {
	g := load(t, map[string]string{
		"root.fm": `ingredient corn { cost 150 }
formula f {
	batch_size 1000
	nutrients { corn min 10 }
}`,
	}, "root.fm")

	bag := Validate(g)
	require.NotEmpty(t, bag.All())
	assert.Equal(t, diag.CodeWrongKindRef, bag.All()[0].Code)
}

func TestValidate_GroupAllowedInIngredientsBlock(t *testing.T) {
	g := load(t, map[string]string{
		"root.fm": `ingredient corn { cost 150 }
group grains { corn }
formula f {
	batch_size 1000
	ingredients { grains max 50% }
}`,
	}, "root.fm")

	bag := Validate(g)
	assert.Empty(t, bag.All())
}

func TestValidate_PercentOutsideIngredientsBlockIsError(t *testing.T) {
	g := load(t, map[string]string{
		"root.fm": `nutrient protein { }
formula f {
	batch_size 1000
	nutrients { protein min 20% }
}`,
	}, "root.fm")

	bag := Validate(g)
	require.NotEmpty(t, bag.All())
	found := false
	for _, d := range bag.All() {
		if d.Code == diag.CodePercentOutOfPlace {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_UnknownIdentifierInCompositionRef(t *testing.T) {
	g := load(t, map[string]string{
		"root.fm": `formula child {
	batch_size 1000
	nutrients { nonexistent.nutrients }
}`,
	}, "root.fm")

	bag := Validate(g)
	require.NotEmpty(t, bag.All())
	assert.Equal(t, diag.CodeUnknownIdent, bag.All()[0].Code)
}

func TestValidate_CleanFormulaProducesNoDiagnostics(t *testing.T) {
	g := load(t, map[string]string{
		"root.fm": `nutrient protein { }
ingredient corn { cost 150, protein 8.5 }
ingredient soybean_meal { cost 450, protein 48 }
formula f {
	batch_size 1000
	nutrients { protein min 20 }
	ingredients { corn, soybean_meal }
}`,
	}, "root.fm")

	bag := Validate(g)
	assert.Empty(t, bag.All())
}

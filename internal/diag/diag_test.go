package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBag_ErrorfAndWarnf(t *testing.T) {
	var b Bag
	b.Errorf(Span{1, 2}, CodeUnknownIdent, "unknown %q", "foo")
	b.Warnf(Span{3, 4}, CodeMissingBound, "no lower bound")

	require.Len(t, b.All(), 2)
	assert.Equal(t, Error, b.All()[0].Severity)
	assert.Equal(t, `unknown "foo"`, b.All()[0].Message)
	assert.Equal(t, Warning, b.All()[1].Severity)
	assert.True(t, b.HasErrors())
}

func TestBag_HasErrorsFalseForWarningsOnly(t *testing.T) {
	var b Bag
	b.Warnf(Span{}, CodeMissingBound, "warn only")
	assert.False(t, b.HasErrors())
}

func TestBag_Merge(t *testing.T) {
	var a, b Bag
	a.Errorf(Span{}, CodeUnknownIdent, "a error")
	b.Errorf(Span{}, CodeImportCycle, "b error")
	a.Merge(&b)
	require.Len(t, a.All(), 2)

	a.Merge(nil) // must not panic
	assert.Len(t, a.All(), 2)
}

func TestSpan_Contains(t *testing.T) {
	s := Span{Start: 10, End: 20}
	assert.True(t, s.Contains(10))
	assert.True(t, s.Contains(19))
	assert.False(t, s.Contains(20))
	assert.False(t, s.Contains(9))
}

func TestDiagnostic_String(t *testing.T) {
	d := Diagnostic{Span: Span{1, 5}, Severity: Error, Code: CodeUnknownIdent, Message: "boom"}
	assert.Equal(t, "1:5: error [name/unknown-identifier] boom", d.String())

	d.Source = "root.fm"
	assert.Equal(t, "root.fm@1:5: error [name/unknown-identifier] boom", d.String())
}

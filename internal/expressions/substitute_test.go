package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteString_Basic(t *testing.T) {
	ctx := map[string]any{"name": "Ada"}
	got := SubstituteString("Hello {{name}}!", ctx)
	assert.Equal(t, "Hello Ada!", got)
}

func TestSubstituteString_UnknownKeyLeftLiteral(t *testing.T) {
	ctx := map[string]any{"name": "Ada"}
	got := SubstituteString("Hello {{name}}, id={{id}}", ctx)
	assert.Equal(t, "Hello Ada, id={{id}}", got)
}

func TestSubstituteString_MultipleOccurrences(t *testing.T) {
	ctx := map[string]any{"x": "a"}
	got := SubstituteString("{{x}}-{{x}}-{{x}}", ctx)
	assert.Equal(t, "a-a-a", got)
}

func TestSubstituteString_NoPlaceholders(t *testing.T) {
	got := SubstituteString("plain text", map[string]any{"x": 1})
	assert.Equal(t, "plain text", got)
}

func TestSubstituteString_UnterminatedMarker(t *testing.T) {
	got := SubstituteString("start {{oops", map[string]any{"oops": "v"})
	assert.Equal(t, "start {{oops", got)
}

func TestSubstituteString_WhitespaceInsideBraces(t *testing.T) {
	ctx := map[string]any{"name": "Ada"}
	got := SubstituteString("hi {{ name }}", ctx)
	assert.Equal(t, "hi Ada", got)
}

func TestSubstituteString_NonStringValues(t *testing.T) {
	ctx := map[string]any{
		"n":    42,
		"f":    3.5,
		"ok":   true,
		"none": nil,
		"obj":  map[string]any{"k": "v"},
	}
	assert.Equal(t, "n=42", SubstituteString("n={{n}}", ctx))
	assert.Equal(t, "f=3.5", SubstituteString("f={{f}}", ctx))
	assert.Equal(t, "ok=true", SubstituteString("ok={{ok}}", ctx))
	assert.Equal(t, "none=null", SubstituteString("none={{none}}", ctx))
	assert.Equal(t, `obj={"k":"v"}`, SubstituteString("obj={{obj}}", ctx))
}

func TestSubstitute_NestedStructures(t *testing.T) {
	ctx := map[string]any{"user": "ada", "host": "example.com"}
	in := map[string]any{
		"url": "https://{{host}}/api",
		"tags": []any{
			"{{user}}",
			map[string]any{"owner": "{{user}}"},
			7,
		},
		"count": 3,
	}

	got := Substitute(in, ctx).(map[string]any)
	assert.Equal(t, "https://example.com/api", got["url"])
	assert.Equal(t, 3, got["count"])

	tags := got["tags"].([]any)
	assert.Len(t, tags, 3)
	assert.Equal(t, "ada", tags[0])
	assert.Equal(t, map[string]any{"owner": "ada"}, tags[1])
	assert.Equal(t, 7, tags[2])
}

func TestSubstitute_ScalarsUnchanged(t *testing.T) {
	ctx := map[string]any{"x": "y"}
	assert.Equal(t, 42, Substitute(42, ctx))
	assert.Equal(t, true, Substitute(true, ctx))
	assert.Nil(t, Substitute(nil, ctx))
}

func TestSubstitute_OriginalInputNotMutated(t *testing.T) {
	ctx := map[string]any{"a": "1"}
	in := map[string]any{"v": "{{a}}"}
	_ = Substitute(in, ctx)
	assert.Equal(t, "{{a}}", in["v"])
}

func TestSubstituteMap_Nil(t *testing.T) {
	assert.Nil(t, SubstituteMap(nil, map[string]any{"a": 1}))
}

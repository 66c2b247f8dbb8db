package context

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveWholeStringPreservesType(t *testing.T) {
	c := New(map[string]any{"count": 5})
	assert.Equal(t, 5, c.Resolve("${count}"))
}

func TestResolveEmbeddedSubstitution(t *testing.T) {
	c := New(map[string]any{"host": "10.0.0.5"})
	assert.Equal(t, "scan 10.0.0.5 now", c.Resolve("scan ${host} now"))
}

func TestResolveMissingPathIsNull(t *testing.T) {
	c := New(nil)
	assert.Equal(t, nil, c.Resolve("${missing.path}"))
	assert.Equal(t, nil, c.Resolve("${missing}"))
}

func TestResolveDottedAndIndexedPath(t *testing.T) {
	c := New(map[string]any{
		"foo": map[string]any{
			"bar": map[string]any{"baz": "deep"},
			"items": []any{"first", "second"},
		},
	})
	v, ok := c.ResolvePath("foo.bar.baz")
	assert.True(t, ok)
	assert.Equal(t, "deep", v)

	v, ok = c.ResolvePath("foo.items[0]")
	assert.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestEvaluateOperatorPriority(t *testing.T) {
	c := New(map[string]any{"score": 9})
	assert.True(t, c.Evaluate("score >= 9"))
	assert.False(t, c.Evaluate("score > 9"))
	assert.True(t, c.Evaluate("score != 5"))
	assert.True(t, c.Evaluate("score == 9"))
}

func TestEvaluateContains(t *testing.T) {
	c := New(map[string]any{"host": "scan.example.com", "tags": []any{"web", "internal"}})
	assert.True(t, c.Evaluate("host contains example"))
	assert.True(t, c.Evaluate("tags contains web"))
	assert.False(t, c.Evaluate("tags contains missing"))
}

func TestEvaluateTypeErrorIsFalse(t *testing.T) {
	c := New(map[string]any{"name": "nmap"})
	assert.False(t, c.Evaluate("name > 5"))
}

// P7: condition resolution — an lhs resolving to null (missing path)
// evaluates to false rather than raising.
func TestEvaluateMissingLHSIsFalse(t *testing.T) {
	c := New(nil)
	assert.False(t, c.Evaluate("missing.path == 5"))
	assert.NotPanics(t, func() { c.Evaluate("missing.path contains x") })
}

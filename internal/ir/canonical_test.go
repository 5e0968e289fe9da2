package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"max int64", Int(9223372036854775807), "9223372036854775807"},
		{"bool true", Bool(true), "true"},
		{"bool false", Bool(false), "false"},
		{"null", Null{}, "null"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"array of ints", Array{Int(1), Int(2), Int(3)}, "[1,2,3]"},
		{"simple object", Object{"a": Int(1)}, `{"a":1}`},
		{"go map", map[string]any{"b": true, "a": "x"}, `{"a":"x","b":true}`},
		{"go slice", []any{"a", 1}, `["a",1]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := Object{
		"z": Object{"b": Int(1), "a": Int(2)},
		"a": Int(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as a surrogate pair starting 0xD800, which sorts
	// before U+E000 in UTF-16 but after it in UTF-8.
	obj := Object{
		"\uE000":     Int(1),
		"\U00010000": Int(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(String("<a href='x'>&</a>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a href='x'>&</a>"`, string(result))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"amount": 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed form.
	decomposed := String("cafe\u0301")
	precomposed := String("caf\u00e9")

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(precomposed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonicalU2028U2029NotEscaped(t *testing.T) {
	result, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))
}

func TestMarshalCanonicalLiteralBackslashU2028(t *testing.T) {
	// A literal backslash followed by the text u2028 must stay escaped.
	result, err := MarshalCanonical(String(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}

func TestMarshalCanonicalStringEscaping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"quote\"", `"quote\""`},
		{"back\\slash", `"back\\slash"`},
		{"new\nline", `"new\nline"`},
		{"tab\t", `"tab\t"`},
	}
	for _, tt := range tests {
		result, err := MarshalCanonical(String(tt.input))
		require.NoError(t, err)
		assert.Equal(t, tt.expected, string(result))
	}
}

func TestMarshalCanonicalIdempotency(t *testing.T) {
	payload := NewPayload(
		P("user", String("ann")),
		P("tags", Array{String("x"), String("y")}),
		P("meta", Object{"k": Bool(true)}),
	)

	first, err := MarshalCanonical(payload)
	require.NoError(t, err)

	parsed, err := UnmarshalPayload(first)
	require.NoError(t, err)

	second, err := MarshalCanonical(parsed)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func FuzzMarshalCanonicalIdempotent(f *testing.F) {
	f.Add("hello", int64(1))
	f.Add("\u2028", int64(-5))
	f.Add(`\\u2029`, int64(0))

	f.Fuzz(func(t *testing.T, s string, n int64) {
		obj := Object{"s": String(s), "n": Int(n)}
		first, err := MarshalCanonical(obj)
		if err != nil {
			t.Skip()
		}
		parsed, err := UnmarshalPayload(first)
		if err != nil {
			t.Fatalf("reparse failed for %q: %v", first, err)
		}
		second, err := MarshalCanonical(parsed)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(second))
	})
}

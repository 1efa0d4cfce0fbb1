package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeysAndStripsWhitespace(t *testing.T) {
	raw := []byte(`{
		"b": [3, 2, {"z": true, "a": null}],
		"a": "x<y>&z",
		"c": {"é": 1, "e": 2}
	}`)
	got, err := Canonicalize(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x<y>&z","b":[3,2,{"a":null,"z":true}],"c":{"e":2,"é":1}}`, string(got))
}

func TestCanonicalizeNumbers(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"integer verbatim", `123456789012345678901234567890`, `123456789012345678901234567890`},
		{"negative zero", `-0`, `0`},
		{"fraction", `1.5`, `1.500000000000`},
		{"exponent", `1e3`, `1000.000000000000`},
		{"half even", `0.0000000000025`, `0.000000000002`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Canonicalize([]byte(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	raw := []byte(`{"payload":{"events":[{"slot":10,"rate":0.45}],"hash":"ab"},"schema":"v1"}`)
	once, err := Canonicalize(raw)
	require.NoError(t, err)
	twice, err := Canonicalize(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestCanonicalizeRejectsInvalidInput(t *testing.T) {
	_, err := Canonicalize([]byte(`{"a":1,"a":2}`))
	assert.ErrorIs(t, err, ErrDuplicateKey)

	_, err = Canonicalize([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)

	_, err = Canonicalize([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestMarshalStruct(t *testing.T) {
	type inner struct {
		Zeta  string `json:"zeta"`
		Alpha int    `json:"alpha"`
	}
	got, err := Marshal(struct {
		Name  string `json:"name"`
		Inner inner  `json:"inner"`
	}{Name: "<tag>", Inner: inner{Zeta: "z", Alpha: 1}})
	require.NoError(t, err)
	assert.Equal(t, `{"inner":{"alpha":1,"zeta":"z"},"name":"<tag>"}`, string(got))
}

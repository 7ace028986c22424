package render

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/zabbix-web/pkg/config"
)

func TestPHPArray(t *testing.T) {
	tests := []struct {
		name  string
		build func() *config.OrderedMap
		want  string
	}{
		{
			name:  "empty",
			build: config.NewOrderedMap,
			want:  "[]",
		},
		{
			name: "scalars",
			build: func() *config.OrderedMap {
				m := config.NewOrderedMap()
				m.Set("strict", false)
				m.Set("port", json.Number("443"))
				m.Set("count", 3)
				m.Set("ratio", 0.5)
				m.Set("unset", nil)
				return m
			},
			want: "[ \n  \"strict\" => false,\n  \"port\" => 443,\n  \"count\" => 3,\n  \"ratio\" => 0.5,\n  \"unset\" => null\n]",
		},
		{
			name: "escaping",
			build: func() *config.OrderedMap {
				m := config.NewOrderedMap()
				m.Set(`we"ird`, `C:\path with "quotes" and $var`)
				return m
			},
			want: "[ \n  \"we\\\"ird\" => \"C:\\\\path with \\\"quotes\\\" and \\$var\"\n]",
		},
		{
			name: "lists and empty nested",
			build: func() *config.OrderedMap {
				m := config.NewOrderedMap()
				m.Set("algorithms", []any{"sha256", "sha384"})
				m.Set("contacts", []string{})
				m.Set("organization", config.NewOrderedMap())
				return m
			},
			want: "[ \n  \"algorithms\" => [\n    \"sha256\",\n    \"sha384\"\n  ],\n  \"contacts\" => [],\n  \"organization\" => []\n]",
		},
		{
			name: "plain maps render sorted",
			build: func() *config.OrderedMap {
				m := config.NewOrderedMap()
				m.Set("sp", map[string]any{"b": 1, "a": "x"})
				return m
			},
			want: "[ \n  \"sp\" => [\n    \"a\" => \"x\",\n    \"b\" => 1\n  ]\n]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PHPArray(tt.build())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPHPArray_SAMLSettings(t *testing.T) {
	got, err := PHPArray(samlSettings())
	require.NoError(t, err)

	want := "[ \n  \"strict\" => true,\n  \"baseurl\" => \"http://example.com/sp/\",\n  \"security\" => [\n    \"signatureAlgorithm\" => \"http://www.w3.org/2001/04/xmldsig-more#rsa-sha384\",\n    \"digestAlgorithm\" => \"http://www.w3.org/2001/04/xmldsig-more#sha384\",\n    \"singleLogoutService\" => [\n      \"responseUrl\" => \"\"\n    ]\n  ]\n]"
	assert.Equal(t, want, got)
}

func TestPHPArray_UnsupportedValue(t *testing.T) {
	m := config.NewOrderedMap()
	m.Set("bad", struct{}{})

	_, err := PHPArray(m)
	assert.Error(t, err)
}

func TestPHPQuoting(t *testing.T) {
	assert.Equal(t, `it\'s \\ here`, phpSingleQuote(`it's \ here`))
	assert.Equal(t, `say \"hi\" \$x`, phpDoubleQuote(`say "hi" $x`))
}

package normalize

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealwatch/internal/deal"
)

func TestPrice(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{json.Number("1299"), "1299"},
		{json.Number("1299.50"), "1299.5"},
		{"1 299 zł", "1299"},
		{"1 299,50 PLN", "1299.5"},
		{"12,345.60", "12345.6"},
		{"1.299,50", "1299.5"},
		{"1,299", "1299"},
		{"1.299", "1299"},
		{"1,299,000", "1299000"},
		{"1299,5", "1299.5"},
		{"0,125", "0.125"},
		{1299.0, "1299"},
		{42, "42"},
		{"0", "0"},
	}
	for _, tc := range cases {
		got, err := Price(tc.in)
		require.NoError(t, err, "input %v", tc.in)
		assert.Equal(t, tc.want, got.String(), "input %v", tc.in)
	}
}

func TestPriceMalformed(t *testing.T) {
	for _, in := range []any{nil, "", "zł", "abc", "-5", true, "1.2.3", "1,2.3,4", "12.5,3", "1299,000.5"} {
		_, err := Price(in)
		require.Error(t, err, "input %v", in)
		assert.True(t, errors.Is(err, deal.ErrMalformedRecord), "input %v: %v", in, err)
	}
}

func TestDate(t *testing.T) {
	cases := map[string]string{
		"2024-08-12T00:00:00Z":      "2024-08-12",
		"2024-08-12T10:30:00+02:00": "2024-08-12",
		"2024-08-12 10:30:00":       "2024-08-12",
		"2024-08-12":                "2024-08-12",
		"12.08.2024":                "2024-08-12",
		"":                          "",
	}
	for in, want := range cases {
		got, err := Date(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	got, err := Date(nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = Date("next tuesday")
	assert.True(t, errors.Is(err, deal.ErrMalformedRecord))
}

func TestLookupAndStrings(t *testing.T) {
	rec := map[string]any{
		"place": map[string]any{"country": map[string]any{"name": " Turcja "}},
		"code":  json.Number("7"),
		"blank": "  ",
		"null":  nil,
	}
	assert.Equal(t, "Turcja", String(rec, "", "place", "country", "name"))
	assert.Equal(t, "7", String(rec, "", "code"))
	assert.Equal(t, "def", String(rec, "def", "blank"))
	assert.Equal(t, "def", String(rec, "def", "null"))
	assert.Equal(t, "def", String(rec, "def", "place", "region", "name"))

	_, ok := Lookup(rec, "code", "deeper")
	assert.False(t, ok)

	_, err := RequiredString(rec, "place", "region", "name")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "place.region.name")
	assert.True(t, errors.Is(err, deal.ErrMalformedRecord))
}

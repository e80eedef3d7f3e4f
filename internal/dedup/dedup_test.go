package dedup

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	require.NoError(t, dec.Decode(&m))
	return m
}

func TestFingerprintIgnoresKeyOrderAndWhitespace(t *testing.T) {
	t.Parallel()
	a := decode(t, `{"Cena":"1 299","Panstwo":"Hiszpania","DataLayer":{"brand":"R","price":1299}}`)
	b := decode(t, `{ "DataLayer": {"price": 1299, "brand": "R"},
		"Panstwo": "Hiszpania", "Cena": "1 299" }`)
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	c := decode(t, `{"Cena":"1 300","Panstwo":"Hiszpania","DataLayer":{"brand":"R","price":1299}}`)
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestFingerprintKeepsNumberLiterals(t *testing.T) {
	t.Parallel()
	a := decode(t, `{"price":1299.0}`)
	b := decode(t, `{"price":1299}`)
	// Literal repeats only: differently formatted numbers are different payloads.
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestSetObserveIsCycleScoped(t *testing.T) {
	t.Parallel()
	s := NewSet()
	rec := decode(t, `{"a":1}`)

	assert.True(t, s.Observe(rec))
	assert.False(t, s.Observe(rec))
	assert.Equal(t, 1, s.Len())

	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Observe(rec), "a new cycle must not suppress a re-observed record")
}

func TestFingerprintKeepsLargeNumberPrecision(t *testing.T) {
	t.Parallel()
	a := decode(t, `{"offerId":9007199254740993}`)
	b := decode(t, `{"offerId":9007199254740992}`)
	// Both round to the same float64.
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

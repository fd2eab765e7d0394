package receipts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, body string) RawReceipt {
	t.Helper()
	raw, err := DecodeRawReceiptBytes([]byte(body))
	require.NoError(t, err)
	return raw
}

func fingerprintOf(t *testing.T, body string) string {
	t.Helper()
	fp, err := Fingerprint(Canonicalize(mustDecode(t, body)))
	require.NoError(t, err)
	return fp
}

func TestSerializeExactForm(t *testing.T) {
	raw := mustDecode(t, `{"date":"2024-01-02","total":9.99,"currency":"EUR",
		"items":[{"name":"Milk","price":3.5,"quantity":2,"total":7.0}]}`)

	data, err := Canonicalize(raw).Serialize()
	require.NoError(t, err)

	assert.Equal(t,
		`{"currency":"EUR","date":"2024-01-02","items":[{"category":null,"discount":null,"name":"Milk","price":3.5,"quantity":2,"total":7.0}],"store_category":null,"store_name":null,"tax_amount":null,"total":9.99,"total_discount":null}`,
		string(data))
}

func TestFingerprintShape(t *testing.T) {
	fp := fingerprintOf(t, `{"date":"2024-01-02","total":5}`)

	assert.Len(t, fp, 64)
	assert.Regexp(t, `^[0-9a-f]{64}$`, fp)
}

func TestFingerprintIgnoresKeyOrder(t *testing.T) {
	a := fingerprintOf(t, `{"date":"2024-01-02","total":9.99,"store_name":"Lidl"}`)
	b := fingerprintOf(t, `{"store_name":"Lidl","total":9.99,"date":"2024-01-02"}`)

	assert.Equal(t, a, b)
}

func TestFingerprintIgnoresItemOrder(t *testing.T) {
	a := fingerprintOf(t, `{"date":"2024-01-02","total":5,
		"items":[{"name":"Apples","price":2},{"name":"Bread","price":3}]}`)
	b := fingerprintOf(t, `{"date":"2024-01-02","total":5,
		"items":[{"name":"Bread","price":3},{"name":"Apples","price":2}]}`)

	assert.Equal(t, a, b)
}

func TestFingerprintSortsByPriceWithinName(t *testing.T) {
	a := fingerprintOf(t, `{"date":"2024-01-02","total":5,
		"items":[{"name":"Apples","price":3},{"name":"Apples","price":2}]}`)
	b := fingerprintOf(t, `{"date":"2024-01-02","total":5,
		"items":[{"name":"Apples","price":2},{"name":"Apples","price":3}]}`)

	assert.Equal(t, a, b)
}

func TestFingerprintExplicitNullEqualsAbsent(t *testing.T) {
	a := fingerprintOf(t, `{"date":"2024-01-02","total":9.99}`)
	b := fingerprintOf(t, `{"date":"2024-01-02","total":9.99,"tax_amount":null,"store_name":null}`)

	assert.Equal(t, a, b)
}

func TestFingerprintPreservesNumberLiterals(t *testing.T) {
	a := fingerprintOf(t, `{"date":"2024-01-02","total":10}`)
	b := fingerprintOf(t, `{"date":"2024-01-02","total":10.0}`)
	c := fingerprintOf(t, `{"date":"2024-01-02","total":10.00}`)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
	assert.NotEqual(t, a, c)
}

func TestFingerprintSensitivity(t *testing.T) {
	base := `{"date":"2024-01-02","total":9.99,"store_name":"Lidl","items":[{"name":"Milk","price":3.5}]}`
	variants := []string{
		`{"date":"2024-01-03","total":9.99,"store_name":"Lidl","items":[{"name":"Milk","price":3.5}]}`,
		`{"date":"2024-01-02","total":9.98,"store_name":"Lidl","items":[{"name":"Milk","price":3.5}]}`,
		`{"date":"2024-01-02","total":9.99,"store_name":"lidl","items":[{"name":"Milk","price":3.5}]}`,
		`{"date":"2024-01-02","total":9.99,"store_name":"Lidl","items":[{"name":"Milk","price":3.51}]}`,
		`{"date":"2024-01-02","total":9.99,"store_name":"Lidl","items":[{"name":"Milk","price":3.5},{"name":"Milk","price":3.5}]}`,
		`{"date":"2024-01-02","total":9.99,"store_name":"Lidl","items":[]}`,
	}

	baseFp := fingerprintOf(t, base)
	seen := map[string]string{baseFp: base}
	for _, v := range variants {
		fp := fingerprintOf(t, v)
		prev, dup := seen[fp]
		assert.False(t, dup, "fingerprint collision between %s and %s", prev, v)
		seen[fp] = v
	}
}

func TestFingerprintIgnoresUnknownItemFields(t *testing.T) {
	a := fingerprintOf(t, `{"date":"2024-01-02","total":5,"items":[{"name":"Milk","price":3.5}]}`)
	b := fingerprintOf(t, `{"date":"2024-01-02","total":5,"items":[{"name":"Milk","price":3.5,"brand":"Alpro","aisle":7}]}`)

	assert.Equal(t, a, b)
}

func TestFingerprintStableSortPreservesTieOrder(t *testing.T) {
	// Same (name, price) ties keep submission order, so swapped duplicates
	// with differing quantities are distinct submissions.
	a := fingerprintOf(t, `{"date":"2024-01-02","total":5,
		"items":[{"name":"Milk","price":3.5,"quantity":1},{"name":"Milk","price":3.5,"quantity":2}]}`)
	b := fingerprintOf(t, `{"date":"2024-01-02","total":5,
		"items":[{"name":"Milk","price":3.5,"quantity":2},{"name":"Milk","price":3.5,"quantity":1}]}`)

	assert.NotEqual(t, a, b)
}

func TestFingerprintItemsMissingNameSortFirst(t *testing.T) {
	a := fingerprintOf(t, `{"date":"2024-01-02","total":5,
		"items":[{"name":"Apples","price":2},{"price":1}]}`)
	b := fingerprintOf(t, `{"date":"2024-01-02","total":5,
		"items":[{"price":1},{"name":"Apples","price":2}]}`)

	assert.Equal(t, a, b)
}

func TestStringTotalDistinctFromNumber(t *testing.T) {
	a := fingerprintOf(t, `{"date":"2024-01-02","total":9.99}`)
	b := fingerprintOf(t, `{"date":"2024-01-02","total":"9.99"}`)

	assert.NotEqual(t, a, b)
}

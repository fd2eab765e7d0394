package receipts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Canonicalize reduces a submission to its deterministic canonical form:
// the seven scalar fields verbatim, items reduced to their six fingerprinted
// fields and stably sorted by (name, price). Absent fields stay nil and
// serialize as explicit nulls, so {"tax_amount": null} and a missing
// tax_amount canonicalize identically.
func Canonicalize(raw RawReceipt) CanonicalReceipt {
	items := make([]CanonicalItem, 0, len(raw.Items))
	for _, it := range raw.Items {
		items = append(items, CanonicalItem{
			Name:     it["name"],
			Quantity: it["quantity"],
			Category: it["category"],
			Price:    it["price"],
			Total:    it["total"],
			Discount: it["discount"],
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		ni, pi := itemSortKey(items[i])
		nj, pj := itemSortKey(items[j])
		if ni != nj {
			return ni < nj
		}
		return pi < pj
	})

	return CanonicalReceipt{
		StoreCategory: raw.StoreCategory,
		StoreName:     raw.StoreName,
		Date:          raw.Date,
		Total:         raw.Total,
		Currency:      raw.Currency,
		TaxAmount:     raw.TaxAmount,
		TotalDiscount: raw.TotalDiscount,
		Items:         items,
	}
}

// itemSortKey coerces an item to its ordering key: a missing or non-string
// name sorts as the empty string, a missing or non-numeric price as zero.
// The values themselves are never mutated.
func itemSortKey(it CanonicalItem) (string, float64) {
	name, _ := it.Name.(string)
	price, _ := ToFloat(it.Price)
	return name, price
}

// payload lays the canonical form out as maps so encoding/json emits keys in
// lexicographic order at every nesting level, with no insignificant
// whitespace. json.Number values round-trip byte for byte, so "4.50" and
// "4.5" remain distinct inputs.
func (c CanonicalReceipt) payload() map[string]interface{} {
	items := make([]interface{}, len(c.Items))
	for i, it := range c.Items {
		items[i] = map[string]interface{}{
			"name":     it.Name,
			"quantity": it.Quantity,
			"category": it.Category,
			"price":    it.Price,
			"total":    it.Total,
			"discount": it.Discount,
		}
	}
	return map[string]interface{}{
		"store_category": c.StoreCategory,
		"store_name":     c.StoreName,
		"date":           c.Date,
		"total":          c.Total,
		"currency":       c.Currency,
		"tax_amount":     c.TaxAmount,
		"total_discount": c.TotalDiscount,
		"items":          items,
	}
}

// Serialize renders the canonical form as the exact byte sequence that gets
// hashed. Exposed separately from Fingerprint for tests and debugging.
func (c CanonicalReceipt) Serialize() ([]byte, error) {
	return json.Marshal(c.payload())
}

// Fingerprint computes the SHA-256 of the canonical serialization as 64
// lowercase hex characters. The same logical receipt always produces the
// same fingerprint regardless of item order or key order in the submission.
func Fingerprint(c CanonicalReceipt) (string, error) {
	data, err := c.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ToFloat coerces a decoded JSON value to a float64. It reports false for
// nil and for anything that is not a number.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ToString coerces a decoded JSON value to a string, reporting false for nil
// and non-strings.
func ToString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

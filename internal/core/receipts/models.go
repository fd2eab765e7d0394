package receipts

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
)

// RawReceipt is a submitted receipt payload before canonicalization. Scalar
// fields are kept exactly as decoded (json.Number for numbers, nil for
// absent) so the fingerprint reflects the submitted values verbatim. Items
// keep every submitted key, not just the six the canonical form reduces to.
type RawReceipt struct {
	StoreCategory interface{}              `json:"store_category"`
	StoreName     interface{}              `json:"store_name"`
	Date          interface{}              `json:"date"`
	Total         interface{}              `json:"total"`
	Currency      interface{}              `json:"currency"`
	TaxAmount     interface{}              `json:"tax_amount"`
	TotalDiscount interface{}              `json:"total_discount"`
	Items         []map[string]interface{} `json:"items"`
}

// DecodeRawReceipt parses a submission body. Numbers are decoded as
// json.Number so the canonical serialization preserves the submitted literal.
func DecodeRawReceipt(r io.Reader) (RawReceipt, error) {
	var raw RawReceipt
	dec := json.NewDecoder(r)
	dec.UseNumber()
	err := dec.Decode(&raw)
	return raw, err
}

// DecodeRawReceiptBytes is DecodeRawReceipt over an in-memory body.
func DecodeRawReceiptBytes(b []byte) (RawReceipt, error) {
	return DecodeRawReceipt(bytes.NewReader(b))
}

// CanonicalItem is an item reduced to the six fingerprinted fields, values
// verbatim from the submission (nil for absent).
type CanonicalItem struct {
	Name     interface{}
	Quantity interface{}
	Category interface{}
	Price    interface{}
	Total    interface{}
	Discount interface{}
}

// CanonicalReceipt is the deterministic reduction of a submission used only
// to compute its fingerprint.
type CanonicalReceipt struct {
	StoreCategory interface{}
	StoreName     interface{}
	Date          interface{}
	Total         interface{}
	Currency      interface{}
	TaxAmount     interface{}
	TotalDiscount interface{}
	Items         []CanonicalItem
}

// Receipt is the persisted entity. Items hold the submitted list verbatim,
// not the canonical reduction.
type Receipt struct {
	ID            uuid.UUID                `json:"id"`
	UserID        uuid.UUID                `json:"user_id"`
	StoreCategory *string                  `json:"store_category"`
	StoreName     *string                  `json:"store_name"`
	Date          time.Time                `json:"-"`
	Total         float64                  `json:"total"`
	TaxAmount     *float64                 `json:"tax_amount"`
	TotalDiscount *float64                 `json:"total_discount"`
	Items         []map[string]interface{} `json:"items"`
	Fingerprint   string                   `json:"-"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// DateString renders the transaction date in the format clients submit it.
func (r *Receipt) DateString() string {
	return r.Date.Format("2006-01-02")
}

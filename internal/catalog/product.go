// Package catalog defines the product record accepted by the service and
// turns product files (local, HTTP or S3, optionally gzip-compressed JSON
// arrays) into batches of records.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
)

// Product is a single catalog record. Every field is optional; a missing
// field decodes to the empty string. Values are stored exactly as received.
type Product struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Merchant    string `json:"merchant"`
}

// Batch is the decoded content of one product file.
type Batch struct {
	Source   string    `json:"source"`
	Products []Product `json:"-"`
	// Skipped counts array elements that were not valid product objects.
	Skipped int   `json:"skipped"`
	Bytes   int64 `json:"bytes"`
}

// Decode reads a JSON array of products from r. Elements that do not decode
// into a Product are counted in skipped instead of failing the batch; a body
// that is not a JSON array fails with ErrInvalidInput.
func Decode(r io.Reader) (products []Product, skipped int, err error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading product array: %w", apperrors.ErrInvalidInput, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, 0, fmt.Errorf("%w: product file must contain a JSON array", apperrors.ErrInvalidInput)
	}
	products = make([]Product, 0, 64)
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, apperrors.ErrInvalidInput) {
				return nil, skipped, err
			}
			return nil, skipped, fmt.Errorf("%w: malformed product array at element %d: %w",
				apperrors.ErrInvalidInput, len(products)+skipped, err)
		}
		var p Product
		if err := json.Unmarshal(raw, &p); err != nil {
			skipped++
			continue
		}
		products = append(products, p)
	}
	if _, err := dec.Token(); err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			return nil, skipped, err
		}
		return nil, skipped, fmt.Errorf("%w: unterminated product array: %w", apperrors.ErrInvalidInput, err)
	}
	return products, skipped, nil
}

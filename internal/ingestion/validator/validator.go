// Package validator decides whether a product record can be indexed. A
// rejected record is skipped by the builder rather than failing the batch.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
)

const (
	maxTitleLength       = 64 << 10
	maxMerchantLength    = 64 << 10
	maxDescriptionLength = 1 << 20
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// ValidateProduct rejects records whose fields are all blank, that contain
// invalid UTF-8, or whose fields exceed their length limits.
func ValidateProduct(p catalog.Product) error {
	errs := make(map[string]string)
	if strings.TrimSpace(p.Title) == "" &&
		strings.TrimSpace(p.Description) == "" &&
		strings.TrimSpace(p.Merchant) == "" {
		errs["product"] = "at least one of title, description or merchant is required"
	}
	check := func(name, value string, limit int) {
		if !utf8.ValidString(value) {
			errs[name] = "must be valid UTF-8"
		} else if len(value) > limit {
			errs[name] = fmt.Sprintf("must be at most %d bytes", limit)
		}
	}
	check("title", p.Title, maxTitleLength)
	check("description", p.Description, maxDescriptionLength)
	check("merchant", p.Merchant, maxMerchantLength)

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

package validate

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/models"
)

var (
	reEmail = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	reColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// maxPrice is the largest value the NUMERIC(12, 2) price column holds.
var maxPrice = decimal.RequireFromString("9999999999.99")

const (
	MaxQuantity    = 10000
	maxNameLen     = 120
	maxDescription = 2000
)

// Price parses a user-entered price. Empty, malformed and negative values are
// validation errors.
func Price(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, apperr.Validation("price is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperr.Validation("price %q is not a number", s)
	}
	if d.IsNegative() {
		return decimal.Zero, apperr.Validation("price must not be negative")
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, apperr.Validation("price %q has more than 2 decimal places", s)
	}
	if d.GreaterThan(maxPrice) {
		return decimal.Zero, apperr.Validation("price must be at most %s", maxPrice)
	}
	return d.Round(2), nil
}

func Quantity(n int) error {
	if n < 1 {
		return apperr.Validation("quantity must be at least 1")
	}
	if n > MaxQuantity {
		return apperr.Validation("quantity must be at most %d", MaxQuantity)
	}
	return nil
}

func Category(s string) (models.Category, error) {
	c := models.Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", apperr.Validation("unknown category %q", s)
	}
	return c, nil
}

// Name trims s and requires a non-empty value of bounded length.
func Name(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperr.Validation("%s is required", field)
	}
	if len(s) > maxNameLen {
		return "", apperr.Validation("%s is too long", field)
	}
	return s, nil
}

func Description(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) > maxDescription {
		return "", apperr.Validation("description is too long")
	}
	return s, nil
}

// ID validates a row identifier.
func ID(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if _, err := uuid.Parse(s); err != nil {
		return "", apperr.Validation("%s is not a valid id", field)
	}
	return s, nil
}

func Email(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 254 {
		return "", false
	}
	return s, reEmail.MatchString(s)
}

func Color(s string) bool {
	return reColor.MatchString(s)
}

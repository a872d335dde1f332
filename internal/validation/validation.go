// Package validation provides input validation for the NyumbaPay API.
package validation

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (256KB). Payment intents
// are small; anything bigger is not a payment intent.
const MaxRequestSize = 256 << 10

// MaxStringLength is the maximum length for free-form string fields.
const MaxStringLength = 1000

// MaxAmountCents caps a single payment at 10 million major units.
const MaxAmountCents = int64(10_000_000_00)

var (
	currencyRegex  = regexp.MustCompile(`^[A-Z]{3}$`)
	referenceRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]{6,64}$`)
)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// SanitizeString trims whitespace, strips null bytes, and limits length.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs all validators and collects their errors.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks that a field is non-empty.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAmount checks that an amount in minor units is positive and below
// the per-payment cap.
func ValidAmount(field string, cents int64) func() *ValidationError {
	return func() *ValidationError {
		if cents <= 0 {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		if cents > MaxAmountCents {
			return &ValidationError{Field: field, Message: "exceeds the maximum allowed amount"}
		}
		return nil
	}
}

// ValidCurrency checks for a three-letter uppercase ISO 4217 code.
func ValidCurrency(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if !currencyRegex.MatchString(value) {
			return &ValidationError{Field: field, Message: "must be a 3-letter ISO currency code"}
		}
		return nil
	}
}

// ValidReference checks the idempotency key shape: 6-64 characters of
// letters, digits, underscore or hyphen.
func ValidReference(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if !referenceRegex.MatchString(value) {
			return &ValidationError{Field: field, Message: "must be 6-64 characters of letters, digits, _ or -"}
		}
		return nil
	}
}

// OneOf checks that a field holds one of the allowed values.
func OneOf(field, value string, allowed ...string) func() *ValidationError {
	return func() *ValidationError {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
		}
	}
}

// MaxLen checks that a field does not exceed maxLen bytes.
func MaxLen(field, value string, maxLen int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > maxLen {
			return &ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", maxLen)}
		}
		return nil
	}
}

// Package barcode normalizes raw retailer barcodes into canonical GTIN
// strings. Normalization is pure and deterministic; every rejection is an
// InvalidBarcodeError describing why the input was refused.
package barcode

import (
	"strings"

	"github.com/shelfmatch/shelfmatch/pkg/errors"
)

const (
	// MinLength is the shortest accepted normalized barcode (EAN-8).
	MinLength = 8
	// MaxLength is the longest accepted normalized barcode (EAN-13).
	MaxLength = 13
)

// Normalize canonicalizes a raw barcode string.
//
// Non-digit characters are stripped, then leading zeros are removed without
// shortening the code below MinLength digits. Codes shorter than MinLength or
// longer than MaxLength are rejected. A full 13-digit code must carry a valid
// EAN-13 check digit.
func Normalize(raw string) (string, error) {
	digits := digitsOnly(raw)
	if digits == "" {
		return "", errors.NewInvalidBarcodeError(raw, "no digits")
	}

	// Leading zeros are padding from fixed-width exports, but an EAN-8
	// beginning with zero is legitimate.
	for len(digits) > MinLength && digits[0] == '0' {
		digits = digits[1:]
	}

	switch {
	case len(digits) < MinLength:
		return "", errors.NewInvalidBarcodeError(raw, "too short")
	case len(digits) > MaxLength:
		return "", errors.NewInvalidBarcodeError(raw, "too long")
	}

	if len(digits) == MaxLength && !checksumOK(digits) {
		return "", errors.NewInvalidBarcodeError(raw, "checksum mismatch")
	}

	return digits, nil
}

// Valid reports whether a raw barcode normalizes successfully.
func Valid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

// digitsOnly strips everything but ASCII digits.
func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// checksumOK validates the EAN-13 check digit: digits in odd positions
// (1-indexed from the left) weigh 1, even positions weigh 3, and the sum
// including the check digit must be a multiple of 10.
func checksumOK(digits string) bool {
	sum := 0
	for i := 0; i < len(digits)-1; i++ {
		d := int(digits[i] - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	return check == int(digits[len(digits)-1]-'0')
}

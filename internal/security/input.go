// Package security validates patient-entered text and scrubs credentials
// from strings before they are logged or returned.
package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/Medi-Pal/medipal/internal/errors"
)

var (
	ErrEmptyInput         = errors.New("value is required")
	ErrInputTooLarge      = errors.New("value exceeds maximum length")
	ErrControlCharacter   = errors.New("control character in value")
	ErrRepetitiveContent  = errors.New("excessive repetition")
	ErrInvalidPhoneNumber = errors.New("phone number must have 7 to 15 digits")
)

// TextValidator checks short free-text fields such as names
type TextValidator struct {
	MaxLen        int
	MaxRepetition int
}

func NewTextValidator() *TextValidator {
	return &TextValidator{
		MaxLen:        120,
		MaxRepetition: 20,
	}
}

// Validate returns a bad request error naming field when input is empty,
// too long, holds control characters or repeats one rune too often
func (v *TextValidator) Validate(field, input string) error {
	if err := v.check(strings.TrimSpace(input)); err != nil {
		return apperrors.ErrBadRequest.WithCause(fmt.Errorf("%s: %w", field, err))
	}
	return nil
}

func (v *TextValidator) check(input string) error {
	if input == "" {
		return ErrEmptyInput
	}
	if v.MaxLen > 0 && utf8.RuneCountInString(input) > v.MaxLen {
		return ErrInputTooLarge
	}
	for _, r := range input {
		if unicode.IsControl(r) {
			return ErrControlCharacter
		}
	}
	if v.MaxRepetition > 0 && hasExcessiveRepetition(input, v.MaxRepetition) {
		return ErrRepetitiveContent
	}
	return nil
}

func hasExcessiveRepetition(input string, maxLen int) bool {
	if len(input) <= maxLen {
		return false
	}

	runes := []rune(input)
	consecutiveCount := 1

	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			consecutiveCount++
			if consecutiveCount > maxLen {
				return true
			}
		} else {
			consecutiveCount = 1
		}
	}

	return false
}

// ValidateName checks a person name with the default limits
func ValidateName(field, name string) error {
	return NewTextValidator().Validate(field, name)
}

// NormalizePhone strips spaces, dashes, dots and parentheses and checks
// that what remains is an optional leading + and 7 to 15 digits
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", apperrors.ErrBadRequest.WithCause(ErrInvalidPhoneNumber)
		}
	}

	out := b.String()
	digits := len(strings.TrimPrefix(out, "+"))
	if digits < 7 || digits > 15 {
		return "", apperrors.ErrBadRequest.WithCause(ErrInvalidPhoneNumber)
	}
	return out, nil
}

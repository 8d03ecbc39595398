// input.go validates and sanitizes the user-supplied fields of a signup
// submission before they reach the ledger or the database.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxEmailLength   = 254
	maxNameLength    = 100
	maxPhoneLength   = 30
	maxUseCaseLength = 1000
)

var (
	// emailPattern is deliberately permissive; the unique index and the
	// verification email are the real gatekeepers.
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	phonePattern = regexp.MustCompile(`^\+?[0-9 ().-]{7,}$`)

	// tagPattern strips anything that looks like markup from free-text fields.
	tagPattern = regexp.MustCompile(`<[^>]*>`)

	controlPattern = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// ValidateEmail normalizes and validates an email address, returning the
// lowercased form.
func ValidateEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("email cannot be empty")
	}
	if len(email) > maxEmailLength {
		return "", fmt.Errorf("email cannot exceed %d characters", maxEmailLength)
	}
	if !emailPattern.MatchString(email) {
		return "", fmt.Errorf("invalid email address")
	}
	return email, nil
}

// ValidateName sanitizes a display name. Names are optional.
func ValidateName(name string) (string, error) {
	name = SanitizeText(name)
	if len(name) > maxNameLength {
		return "", fmt.Errorf("name cannot exceed %d characters", maxNameLength)
	}
	return name, nil
}

// ValidatePhone validates an optional phone number.
func ValidatePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	if len(phone) > maxPhoneLength {
		return "", fmt.Errorf("phone number cannot exceed %d characters", maxPhoneLength)
	}
	if !phonePattern.MatchString(phone) {
		return "", fmt.Errorf("invalid phone number")
	}
	return phone, nil
}

// ValidateUseCase sanitizes the free-text "what will you use this for" field.
func ValidateUseCase(useCase string) (string, error) {
	useCase = SanitizeText(useCase)
	if len(useCase) > maxUseCaseLength {
		return "", fmt.Errorf("use case cannot exceed %d characters", maxUseCaseLength)
	}
	return useCase, nil
}

// SanitizeText strips markup and control characters from free text and
// collapses surrounding whitespace.
func SanitizeText(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = controlPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

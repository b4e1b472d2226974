// notes/auth/validation.go
package auth

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ViniZap4/lumi-notes/domain"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,6}$`)
	phonePattern = regexp.MustCompile(`^\d{12,}$`)
)

const (
	minPasswordRunes = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

// RejectionError names the registration field that failed validation.
type RejectionError struct {
	Field  string
	Reason string
}

func (e *RejectionError) Error() string { return e.Field + ": " + e.Reason }
func (e *RejectionError) Unwrap() error { return domain.ErrRejected }

// NormalizeEmail trims and lower-cases an address. Every lookup and every
// stored record goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return &RejectionError{Field: "email", Reason: "Invalid email format."}
	}
	return nil
}

// ValidatePassword requires at least 8 characters mixing letters and digits.
func ValidatePassword(password string) error {
	var letter, digit bool
	for _, r := range password {
		letter = letter || unicode.IsLetter(r)
		digit = digit || unicode.IsDigit(r)
	}
	if utf8.RuneCountInString(password) < minPasswordRunes || !letter || !digit {
		return &RejectionError{
			Field:  "password",
			Reason: "Password must be at least 8 characters, contain a mix of letters and numbers.",
		}
	}
	if len(password) > maxPasswordBytes {
		return &RejectionError{Field: "password", Reason: "Password must be at most 72 bytes long."}
	}
	return nil
}

func ValidatePhoneNumber(phone string) error {
	if !phonePattern.MatchString(phone) {
		return &RejectionError{Field: "phone_number", Reason: "Phone number must be numeric and at least 12 digits long."}
	}
	return nil
}

// ValidateRegistration checks the fields in the order the form shows them
// and reports the first failure. email must already be normalized.
func ValidateRegistration(email, password, phone string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	return ValidatePhoneNumber(phone)
}

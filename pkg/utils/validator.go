package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validation errors.
var (
	ErrInvalidExchangeName = errors.New("invalid exchange name")
	ErrInvalidInterval     = errors.New("invalid fetch interval")
	ErrInvalidPairName     = errors.New("invalid pair name")
	ErrInvalidFiatSymbol   = errors.New("invalid fiat symbol")
	ErrInvalidAPIKey       = errors.New("invalid API key")
	ErrInvalidAPISecret    = errors.New("invalid API secret")
)

var exchangeNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,31}$`)

// ValidateExchangeName checks the venue identifier stored in exchanges.name:
// lowercase, starts with a letter, 2-32 chars of [a-z0-9_].
func ValidateExchangeName(name string) error {
	if !exchangeNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidExchangeName, name)
	}
	return nil
}

// NormalizeExchangeName lowercases and trims an exchange identifier.
func NormalizeExchangeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateInterval checks a fetch interval in seconds (spec §3: Exchange.interval).
// Must be positive and no less than 5s to avoid hammering upstream APIs.
func ValidateInterval(seconds int) error {
	if seconds < 5 {
		return fmt.Errorf("%w: %d (minimum 5s)", ErrInvalidInterval, seconds)
	}
	return nil
}

var pairNamePattern = regexp.MustCompile(`^[A-Z0-9]{2,15}-[A-Z0-9]{2,15}$`)

// ValidatePairName checks the canonical "BASE-QUOTE" form produced by
// CanonicalName (spec §4.1).
func ValidatePairName(name string) error {
	if !pairNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidPairName, name)
	}
	return nil
}

var fiatSymbolPattern = regexp.MustCompile(`^[A-Z]{3,5}$`)

// ValidateFiatSymbol checks a configured fiat currency code (FIAT_SYMBOLS, spec §9).
func ValidateFiatSymbol(symbol string) error {
	if !fiatSymbolPattern.MatchString(symbol) {
		return fmt.Errorf("%w: %q", ErrInvalidFiatSymbol, symbol)
	}
	return nil
}

// ValidateAPIKey checks an optional exchange API key before it is encrypted
// and stored (pkg/crypto). At least 16 chars of letters, digits, dash, underscore.
func ValidateAPIKey(key string) error {
	if len(key) < 16 {
		return fmt.Errorf("%w: must be at least 16 characters", ErrInvalidAPIKey)
	}
	for _, r := range key {
		if !isKeyChar(r) {
			return fmt.Errorf("%w: contains invalid character %q", ErrInvalidAPIKey, r)
		}
	}
	return nil
}

// ValidateAPISecret checks an optional exchange API secret. Secrets may
// carry a wider character set than keys (exchanges often mint base64-ish
// secrets), so only a minimum length is enforced.
func ValidateAPISecret(secret string) error {
	if len(secret) < 16 {
		return fmt.Errorf("%w: must be at least 16 characters", ErrInvalidAPISecret)
	}
	return nil
}

func isKeyChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		return true
	default:
		return false
	}
}

// IsValidExchangeName reports whether name passes ValidateExchangeName.
func IsValidExchangeName(name string) bool { return ValidateExchangeName(name) == nil }

// IsValidPairName reports whether name passes ValidatePairName.
func IsValidPairName(name string) bool { return ValidatePairName(name) == nil }

// ValidationError is one field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates ValidationError entries from a multi-field check.
type ValidationErrors []ValidationError

// Add appends a field/message pair.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// AddError appends err's message under field, no-op when err is nil.
func (v *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	v.Add(field, err.Error())
}

// HasErrors reports whether any field failed.
func (v ValidationErrors) HasErrors() bool { return len(v) > 0 }

// Error joins all field errors into one message, satisfying the error interface.
func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Sentinel validation errors, returned by the single-field validators below
// and collected into a ValidationErrors by API handlers.
var (
	ErrInvalidGroupJID    = errors.New("invalid group jid")
	ErrInvalidPhrase      = errors.New("trigger_phrase must be between 1 and 200 characters")
	ErrInvalidPatternType = errors.New("pattern_type must be one of exact, contains, regex")
	ErrInvalidActionType  = errors.New("unrecognized action_type")
	ErrInvalidPriority    = errors.New("priority must be between 0 and 100")
	ErrInvalidSpreadMode  = errors.New("spread_mode must be one of bps, abs_brl, flat")
	ErrInvalidQuoteTTL    = errors.New("quote_ttl_seconds must be between 1 and 3600")
	ErrInvalidThreshold   = errors.New("threshold_bps must be between 10 and 1000")
	ErrInvalidMaxReprices = errors.New("max_reprices must be between 1 and 10")
)

// jidPattern is a loose shape check for transport-assigned ids
// (phone-number-like local part + "@" domain, or a bare local part for
// groups that have not been JID-qualified yet).
var jidPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,64}(@[a-zA-Z0-9.-]+)?$`)

// IsValidJID reports whether jid has a plausible transport-id shape.
func IsValidJID(jid string) bool {
	return jid != "" && jidPattern.MatchString(jid)
}

// ValidateGroupJID returns ErrInvalidGroupJID when jid is empty or malformed.
func ValidateGroupJID(jid string) error {
	if !IsValidJID(jid) {
		return ErrInvalidGroupJID
	}
	return nil
}

// ValidateTriggerPhrase enforces the 1..200 character bound from §6.2.
func ValidateTriggerPhrase(phrase string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(phrase))
	if n < 1 || n > 200 {
		return ErrInvalidPhrase
	}
	return nil
}

// ValidatePriority enforces the 0..100 bound shared by triggers and rules.
func ValidatePriority(priority int) error {
	if priority < 0 || priority > 100 {
		return ErrInvalidPriority
	}
	return nil
}

// ValidateQuoteTTLSeconds enforces the 1..3600 bound from GroupConfig.
func ValidateQuoteTTLSeconds(seconds int) error {
	if seconds < 1 || seconds > 3600 {
		return ErrInvalidQuoteTTL
	}
	return nil
}

// ValidateVolatilityConfig enforces the threshold/maxReprices bounds from §4.6.4.
func ValidateVolatilityConfig(thresholdBps, maxReprices int) error {
	if thresholdBps < 10 || thresholdBps > 1000 {
		return ErrInvalidThreshold
	}
	if maxReprices < 1 || maxReprices > 10 {
		return ErrInvalidMaxReprices
	}
	return nil
}

// ============================================================
// ValidationErrors — a batch of field-scoped validation failures
// ============================================================

// FieldError is one field-scoped validation failure.
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors accumulates FieldError values across a single request's
// validation pass, reported together as one 400 response (§6.2).
type ValidationErrors []FieldError

// Add appends a field error described by a literal message.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// AddError appends a field error derived from err, a no-op when err is nil.
func (e *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	*e = append(*e, FieldError{Field: field, Message: err.Error()})
}

// HasErrors reports whether any field error was collected.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Error implements the error interface, joining every field message.
func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return strings.Join(parts, "; ")
}

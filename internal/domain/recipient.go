package domain

import (
	"regexp"
	"time"
)

// ConsentState enumerates the consent lifecycle of a Recipient.
type ConsentState string

const (
	ConsentOptIn  ConsentState = "OPT_IN"
	ConsentOptOut ConsentState = "OPT_OUT"
	ConsentStop   ConsentState = "STOP"
)

// CanTransitionConsent reports whether a consent write from the prior state
// to newState is allowed. Any state may move to STOP. Only OPT_OUT may move
// to OPT_IN, so STOP is sticky against a bare START (it never re-opens a
// STOP'd recipient) and a START is a no-op outside OPT_OUT rather than a
// silent reconfirmation. Every other transition (e.g. an explicit OPT_OUT)
// is unrestricted.
func CanTransitionConsent(prior, newState ConsentState) bool {
	switch newState {
	case ConsentStop:
		return true
	case ConsentOptIn:
		return prior == ConsentOptOut
	default:
		return true
	}
}

// e164Pattern matches a leading '+' followed by 8-15 digits.
var e164Pattern = regexp.MustCompile(`^\+[0-9]{8,15}$`)

// IsValidE164 reports whether s is a well-formed E.164 phone string.
func IsValidE164(s string) bool {
	return e164Pattern.MatchString(s)
}

// Recipient is identified by an immutable E.164 phone string and carries an
// open attribute bag plus a monotonically-stoppable consent state.
type Recipient struct {
	E164       string                 `json:"e164" db:"e164"`
	Attributes map[string]interface{} `json:"attributes" db:"attributes"`
	Consent    ConsentState           `json:"consent_state" db:"consent_state"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" db:"updated_at"`
}

// Subscription is a pure (Recipient, Topic) many-to-many edge with no state
// of its own.
type Subscription struct {
	E164  string `json:"e164" db:"e164"`
	Topic string `json:"topic" db:"topic"`
}

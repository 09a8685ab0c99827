package services

import (
	"fmt"
	"strings"
	"unicode"
)

// maxPhoneDigits is the longest digit string treated as a phone number.
// Longer identifiers are linked-device ids (LIDs).
const maxPhoneDigits = 13

// NormalizeNumber keeps only digits and folds the Mexican mobile prefix
// "521" into "52", so "+52 1 81 1234 5678" and "5218112345678@c.us" yield
// the same key.
func NormalizeNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r == '@' {
			break
		}
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "521") {
		digits = "52" + digits[3:]
	}
	return digits
}

// SenderPolicy decides which inbound senders are accepted.
type SenderPolicy struct {
	// OwnerKey is the normalized owner number.
	OwnerKey string
	// AllowExtendedIDs accepts digit strings longer than maxPhoneDigits and
	// maps them onto OwnerKey.
	AllowExtendedIDs bool
}

// NewSenderPolicy normalizes owner and returns the policy.
func NewSenderPolicy(owner string, allowExtended bool) SenderPolicy {
	return SenderPolicy{OwnerKey: NormalizeNumber(owner), AllowExtendedIDs: allowExtended}
}

// Authorize returns the state key for from, or ErrSenderRejected. The
// second result reports whether from was accepted as an extended id.
func (p SenderPolicy) Authorize(from string) (string, bool, error) {
	key := NormalizeNumber(from)
	if key == "" || p.OwnerKey == "" {
		return "", false, fmt.Errorf("%w: empty sender", ErrSenderRejected)
	}
	if key == p.OwnerKey {
		return key, false, nil
	}
	if len(key) > maxPhoneDigits && p.AllowExtendedIDs {
		return p.OwnerKey, true, nil
	}
	return "", false, ErrSenderRejected
}

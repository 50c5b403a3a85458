package archive

import (
	"crypto/sha256"
	"fmt"
	"regexp"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	taxIDRe = regexp.MustCompile(`\b[0-9]{2}\.?[0-9]{3}\.?[0-9]{3}/?[0-9]{4}-?[0-9]{2}\b|\b[0-9]{3}\.?[0-9]{3}\.?[0-9]{3}-?[0-9]{2}\b`)
	phoneRe = regexp.MustCompile(`\+?[0-9]{0,3}[-.\s]?\(?[0-9]{2,3}\)?[-.\s]?[0-9]{4,5}[-.\s]?[0-9]{4}`)
)

// HashPhone returns the hex-encoded SHA-256 hash of a phone number.
func HashPhone(phone string) string {
	h := sha256.Sum256([]byte(phone))
	return fmt.Sprintf("%x", h)
}

// ScrubPII replaces emails with [EMAIL], CPF/CNPJ numbers with [TAX_ID] and
// phone numbers with [PHONE]. Names are kept.
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = taxIDRe.ReplaceAllString(text, "[TAX_ID]")
	text = phoneRe.ReplaceAllString(text, "[PHONE]")
	return text
}

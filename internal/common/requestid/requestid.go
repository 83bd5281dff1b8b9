package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// HeaderName carries the request ID in both directions
const HeaderName = "X-Request-ID"

const (
	// MaxLength matches the length of a UUID string
	MaxLength = 36
	// PrefixLength is the random prefix added to caller-supplied IDs
	PrefixLength = 5

	maxCallerPart = MaxLength - PrefixLength - 1
)

var (
	invalidChars = regexp.MustCompile(`[^a-zA-Z0-9-]+`)
	hyphenRuns   = regexp.MustCompile(`-{2,}`)
)

// New returns a fresh UUID request ID
func New() string {
	return uuid.NewString()
}

// FromHeader derives the request ID for an incoming request. A caller value
// is sanitized to [a-zA-Z0-9-] and prefixed with random hex so retries with
// the same header stay distinguishable in logs. Empty input yields a UUID.
func FromHeader(value string) string {
	caller := sanitize(value)
	if caller == "" {
		return New()
	}
	if len(caller) > maxCallerPart {
		caller = strings.TrimSuffix(caller[:maxCallerPart], "-")
	}
	return randomPrefix() + "-" + caller
}

func sanitize(value string) string {
	value = strings.ReplaceAll(strings.TrimSpace(value), " ", "-")
	value = invalidChars.ReplaceAllString(value, "")
	value = hyphenRuns.ReplaceAllString(value, "-")
	return strings.Trim(value, "-")
}

func randomPrefix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()[:PrefixLength]
	}
	return hex.EncodeToString(buf)[:PrefixLength]
}

package content

import (
	"errors"
	"html"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const MaxIDLength = 256

var (
	policy = bluemonday.UGCPolicy()

	ErrEmptyID   = errors.New("id cannot be empty")
	ErrLongID    = errors.New("id is too long")
	ErrControlID = errors.New("id contains control characters")
)

// Sanitize removes unsafe HTML from message text using the UGC policy.
// Entities the policy escapes are decoded again so plain text such as
// "3 < 5 & ok" comes back unchanged.
func Sanitize(input string) string {
	return html.UnescapeString(policy.Sanitize(input))
}

// ValidateID checks a user or channel id supplied by a client.
func ValidateID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if len(id) > MaxIDLength {
		return ErrLongID
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return ErrControlID
		}
	}
	return nil
}

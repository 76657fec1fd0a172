package gateway

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxMessageBytes caps the encoded size of a message body.
	MaxMessageBytes = 4096
	// MaxMessageChars caps the character count of a message body.
	MaxMessageChars = 2000
)

// validateContent checks that a message body meets content requirements
// before it is persisted or broadcast.
func validateContent(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(text) > MaxMessageChars {
		return fmt.Errorf("message exceeds %d character limit", MaxMessageChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}

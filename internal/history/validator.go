package history

import (
	"fmt"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // max encoded size of a message text
	MaxTextChars    = 2000 // max character count
)

// ValidateText checks that message text meets content requirements before it
// is persisted or delivered.
func ValidateText(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}

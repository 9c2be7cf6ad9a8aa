package domain

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

const (
	MaxUsernameLen = 20
	MaxRoomNameLen = 30
	MaxTextLen     = 500
	MaxMediaRefLen = 2048
)

// Usernames and room names share one charset: letters, digits, underscore, hyphen.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func ValidateUsername(name string) error {
	if name == "" {
		return fmt.Errorf("%w: username required", ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxUsernameLen {
		return fmt.Errorf("%w: username longer than %d chars", ErrValidation, MaxUsernameLen)
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: username may contain only letters, digits, underscore, hyphen", ErrValidation)
	}
	return nil
}

func ValidateRoomName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: room required", ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLen {
		return fmt.Errorf("%w: room name longer than %d chars", ErrValidation, MaxRoomNameLen)
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: room name may contain only letters, digits, underscore, hyphen", ErrValidation)
	}
	return nil
}

// ValidateContent checks the content against the limit for its kind. Text is
// capped at 500 chars; image/voice content is a media reference, capped at 2048.
func ValidateContent(content string, kind MessageKind) error {
	if content == "" {
		return fmt.Errorf("%w: content required", ErrValidation)
	}
	switch kind {
	case KindText:
		if utf8.RuneCountInString(content) > MaxTextLen {
			return fmt.Errorf("%w: content longer than %d chars", ErrValidation, MaxTextLen)
		}
	case KindImage, KindVoice:
		if utf8.RuneCountInString(content) > MaxMediaRefLen {
			return fmt.Errorf("%w: media reference longer than %d chars", ErrValidation, MaxMediaRefLen)
		}
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrValidation, string(kind))
	}
	return nil
}

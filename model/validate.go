package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// CheckOwner applies the owner bounds every registry enforces.
func CheckOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return errors.New("owner cannot be empty")
	}
	if len(owner) > MaxOwnerLength {
		return fmt.Errorf("owner exceeds max length %d", MaxOwnerLength)
	}
	if !utf8.ValidString(owner) {
		return errors.New("owner is not valid UTF-8")
	}
	return nil
}

// CheckNote applies the note bounds every registry enforces. Empty is allowed.
func CheckNote(note string) error {
	if len(note) > MaxNoteLength {
		return fmt.Errorf("note exceeds max length %d", MaxNoteLength)
	}
	if !utf8.ValidString(note) {
		return errors.New("note is not valid UTF-8")
	}
	return nil
}

package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidLeadID is returned for lead ids that are empty or would escape
// the data directory.
var ErrInvalidLeadID = errors.New("invalid lead id")

// ValidateLeadID checks that id is usable as a single path element.
func ValidateLeadID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("%w: empty", ErrInvalidLeadID)
	case id == "." || id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidLeadID, id)
	case strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidLeadID, id)
	}
	return nil
}

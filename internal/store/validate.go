package store

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxDisplayNameLength matches the VARCHAR(255) column in the SQL schemas.
const MaxDisplayNameLength = 255

// ValidateLibrary checks a descriptor before it is written.
func ValidateLibrary(lib LibraryDescriptor) error {
	if lib.UUID == uuid.Nil {
		return fmt.Errorf("library id is required")
	}
	name := strings.TrimSpace(lib.DisplayName)
	if name == "" {
		return fmt.Errorf("library display name is required")
	}
	if len(name) > MaxDisplayNameLength {
		return fmt.Errorf("library display name too long: %d chars (max %d)", len(name), MaxDisplayNameLength)
	}
	return nil
}

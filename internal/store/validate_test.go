package store

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidateLibrary(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		lib     LibraryDescriptor
		wantErr bool
	}{
		{"ok", LibraryDescriptor{UUID: id, DisplayName: "Photos"}, false},
		{"nil id", LibraryDescriptor{DisplayName: "Photos"}, true},
		{"blank name", LibraryDescriptor{UUID: id, DisplayName: "  "}, true},
		{"at limit", LibraryDescriptor{UUID: id, DisplayName: strings.Repeat("a", MaxDisplayNameLength)}, false},
		{"too long", LibraryDescriptor{UUID: id, DisplayName: strings.Repeat("a", MaxDisplayNameLength+1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLibrary(tt.lib)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLibrary() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nextlevelbuilder/pairlink/internal/store"
)

// runWithHelp wraps huh fields in a Form with help hints visible at the bottom.
func runWithHelp(fields ...huh.Field) error {
	return huh.NewForm(huh.NewGroup(fields...)).WithShowHelp(true).Run()
}

// promptLibraryName asks for a new library's display name, enforcing the
// same limits as the stores.
func promptLibraryName() (string, error) {
	var value string
	inp := huh.NewInput().
		Title("Library name").
		Description("Shown to the user when a peer asks to pair").
		Value(&value).
		Validate(func(s string) error {
			s = strings.TrimSpace(s)
			if s == "" {
				return fmt.Errorf("name is required")
			}
			if len(s) > store.MaxDisplayNameLength {
				return fmt.Errorf("at most %d characters", store.MaxDisplayNameLength)
			}
			return nil
		})

	if err := runWithHelp(inp); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// filterThreshold: enable type-to-filter only when there are more than this many options.
const filterThreshold = 5

// promptSelect shows a single-select list. defaultIdx is preselected.
func promptSelect[T comparable](title, description string, options []SelectOption[T], defaultIdx int) (T, error) {
	var value T

	huhOpts := make([]huh.Option[T], len(options))
	for i, opt := range options {
		huhOpts[i] = huh.NewOption(opt.Label, opt.Value)
	}
	if defaultIdx >= 0 && defaultIdx < len(options) {
		huhOpts[defaultIdx] = huhOpts[defaultIdx].Selected(true)
	}

	sel := huh.NewSelect[T]().
		Title(title).
		Options(huhOpts...).
		Value(&value)
	if description != "" {
		sel = sel.Description(description)
	}
	if len(options) > filterThreshold {
		sel = sel.Filtering(true)
	}

	if err := runWithHelp(sel); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// promptConfirm asks a yes/no question. Returns true for yes.
func promptConfirm(title string, defaultYes bool) (bool, error) {
	value := defaultYes

	c := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&value)

	if err := runWithHelp(c); err != nil {
		return false, err
	}
	return value, nil
}

// SelectOption represents a single option in a select prompt.
type SelectOption[T any] struct {
	Label string
	Value T
}

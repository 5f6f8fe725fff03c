package cli

import (
	"os"

	"github.com/charmbracelet/huh"
)

// NewAccessibleForm builds a huh form, switching to plain accessible mode
// when ACCESSIBLE is set in the environment (see root.go's accessibilityHelp).
func NewAccessibleForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...)
	if os.Getenv("ACCESSIBLE") != "" {
		form = form.WithAccessible(true)
	}
	return form
}

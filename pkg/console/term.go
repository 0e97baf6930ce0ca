package console

import (
	"os"

	"golang.org/x/term"
)

// Width returns the column width of f if it is a terminal, or 0.
func Width(f *os.File) int {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}

	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

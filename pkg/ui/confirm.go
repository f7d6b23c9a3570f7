package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Confirm asks a yes/no question on w and reads the answer from r.
// Only "y" and "yes" (any case) count as consent; end of input is a no.
func Confirm(r io.Reader, w io.Writer, question string) (bool, error) {
	Fprintf(w, "%s %s [y/N]: ", WarnStyle.Render(Icon("⚠️", "[!]")), question)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("ui: read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

package decode

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Canonical folds a cell's text into the form used for classification and
// fingerprinting: NFC, full-width ASCII folded, every line trimmed with inner
// whitespace collapsed, blank lines dropped.
func Canonical(text string) string {
	text = norm.NFC.String(width.Fold.String(text))
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Lines splits canonical text into its non-empty lines.
func Lines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Package ansi removes terminal escape sequences from subprocess output so
// the mirrored log file stays plain text.
package ansi

import "regexp"

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`),            // CSI sequences (colors, cursor movement)
	regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`), // OSC sequences (titles, hyperlinks)
	regexp.MustCompile(`\x1b[()][AB012]`),                   // character set selection
	regexp.MustCompile(`\x1b[=>]`),                          // keypad modes
	regexp.MustCompile(`\x1b[A-Za-z]`),                      // bare ESC+letter
	regexp.MustCompile(`\r`),                                // carriage returns
}

// Strip removes all recognized escape sequences from s.
func Strip(s string) string {
	for _, p := range patterns {
		s = p.ReplaceAllString(s, "")
	}
	return s
}

// Package logtail reads the captured workspace log: last-N-lines tailing and
// error-pattern extraction. Read-only; a missing log is an expected state
// (nothing started yet), reported as ErrNoLog rather than failure.
package logtail

import (
	"errors"
	"os"
	"regexp"
	"strings"
)

// ErrNoLog means the log file does not exist yet.
var ErrNoLog = errors.New("log file not found")

// errorPatterns match log lines worth surfacing as failures. Substring
// patterns are matched case-insensitively; glyphs exactly.
var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)error:`),
	regexp.MustCompile(`(?i)exception`),
	regexp.MustCompile(`(?i)failed`),
	regexp.MustCompile(`(?i)cannot`),
	regexp.MustCompile(`(?i)unable to`),
	regexp.MustCompile(`\[ERROR\]`),
	regexp.MustCompile(`✗`),
	regexp.MustCompile(`✖`),
}

// Tail returns the last n lines of the log at path, oldest first.
func Tail(path string, n int) ([]string, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// LastLine returns the final non-blank line of the log.
func LastLine(path string) (string, error) {
	lines, err := readLines(path)
	if err != nil {
		return "", err
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i], nil
		}
	}
	return "", nil
}

// FilterErrors returns the log lines matching any error pattern, in their
// original order.
func FilterErrors(path string) ([]string, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range lines {
		for _, p := range errorPatterns {
			if p.MatchString(line) {
				out = append(out, line)
				break
			}
		}
	}
	return out, nil
}

func readLines(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoLog
		}
		return nil, err
	}
	content := strings.TrimRight(string(b), "\n")
	if content == "" {
		return nil, nil
	}
	return strings.Split(content, "\n"), nil
}

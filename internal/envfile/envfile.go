// Package envfile reads and writes the shell-style env file at a workspace
// root. The format is line oriented: blank lines and # comments are skipped,
// an optional "export " prefix is accepted, and matching surrounding quotes
// are stripped from values.
package envfile

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Vars is a parsed KEY=VALUE mapping.
type Vars map[string]string

// Read parses the env file at path. A missing file is not an error and yields
// an empty map; any other read failure is logged and also yields an empty map,
// since the file feeds optional customization rather than required config.
func Read(path string) Vars {
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("env file unreadable", "path", path, "error", err)
		}
		return Vars{}
	}
	return Parse(string(b))
}

// Parse parses env file content.
func Parse(content string) Vars {
	m := make(Vars)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:i])
		v := strings.TrimSpace(line[i+1:])
		m[k] = unquote(v)
	}
	return m
}

// Write merges updates into the env file at path, preserving variables that
// are already present, and rewrites the file as "export KEY=VALUE" lines in
// sorted key order. Values containing whitespace are double-quoted.
func Write(path string, updates Vars) error {
	merged := Read(path)
	for k, v := range updates {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString("export ")
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quote(merged[k]))
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

// Merge composes an environment slice: base entries first, then vars applied
// as overrides, in "K=V" form.
func Merge(base []string, vars Vars) []string {
	m := make(map[string]string, len(base)+len(vars))
	order := make([]string, 0, len(base)+len(vars))
	for _, kv := range base {
		if i := strings.IndexByte(kv, '='); i > 0 {
			k := kv[:i]
			if _, seen := m[k]; !seen {
				order = append(order, k)
			}
			m[k] = kv[i+1:]
		}
	}
	for k, v := range vars {
		if k == "" {
			continue
		}
		if _, seen := m[k]; !seen {
			order = append(order, k)
		}
		m[k] = v
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, fmt.Sprintf("%s=%s", k, m[k]))
	}
	return out
}

func unquote(v string) string {
	if n := len(v); n >= 2 {
		if (v[0] == '"' && v[n-1] == '"') || (v[0] == '\'' && v[n-1] == '\'') {
			return v[1 : n-1]
		}
	}
	return v
}

func quote(v string) string {
	if strings.ContainsAny(v, " \t") || v == "" {
		return `"` + v + `"`
	}
	return v
}

// Package workspace maps a workspace root to the well-known files sst-mcp
// manages for it. Every other package derives paths through these functions;
// none may join workspace paths on its own.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// StateDirName is the hidden directory the sst CLI owns under a workspace.
	StateDirName = ".sst"
	// LogFileName is the dev-process log inside the state directory.
	LogFileName = "dev.log"
	// PIDFileName records the supervised dev-process PID.
	PIDFileName = "dev.pid"
	// EnvFileName is the human-edited env file at the workspace root.
	EnvFileName = "env.sh"
	// OutputsFileName is the resource metadata written by sst deploy.
	OutputsFileName = "outputs.json"
	// ServerMarkerGlob matches stale instance markers left by an unclean
	// sst shutdown; they must be removed before a fresh dev start.
	ServerMarkerGlob = "*.server"
)

func StateDir(root string) string { return filepath.Join(root, StateDirName) }

func LogFile(root string) string { return filepath.Join(root, StateDirName, LogFileName) }

func PIDFile(root string) string { return filepath.Join(root, StateDirName, PIDFileName) }

func EnvFile(root string) string { return filepath.Join(root, EnvFileName) }

func OutputsFile(root string) string { return filepath.Join(root, StateDirName, OutputsFileName) }

// ServerMarkers returns the stale marker files currently present in the
// state directory. A missing state directory yields an empty slice.
func ServerMarkers(root string) []string {
	matches, err := filepath.Glob(filepath.Join(StateDir(root), ServerMarkerGlob))
	if err != nil {
		return nil
	}
	return matches
}

// Resolve validates a workspace root and returns its canonical form.
// The path must be absolute and must exist as a directory. Symlinked
// segments are dereferenced so two spellings of the same directory land on
// the same per-workspace registry entry.
func Resolve(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("workspace path is required")
	}
	if !filepath.IsAbs(root) {
		return "", fmt.Errorf("workspace path must be absolute: %s", root)
	}
	clean := filepath.Clean(root)
	fi, err := os.Stat(clean)
	if err != nil {
		return "", fmt.Errorf("workspace path not accessible: %w", err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("workspace path is not a directory: %s", clean)
	}
	resolved, err := filepath.EvalSymlinks(clean)
	if err != nil {
		return "", fmt.Errorf("workspace path not resolvable: %w", err)
	}
	return resolved, nil
}

package paths

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Directory constants
const (
	EntireDir          = ".entire"
	EntireTmpDir       = ".entire/tmp"
	EntireMetadataDir  = ".entire/metadata"
	CurrentSessionFile = ".entire/current_session"
)

// SettingsFileName is the config file written under .entire by `entire
// install-hooks` and read by LoadEntireSettings.
const SettingsFileName = "settings.json"

// repoRootCache caches the repository root to avoid repeated git commands.
// The cache is keyed by the current working directory to handle directory changes.
var (
	repoRootMu       sync.RWMutex
	repoRootCache    string
	repoRootCacheDir string
)

// RepoRoot returns the git repository root directory.
// Uses 'git rev-parse --show-toplevel' which works from any subdirectory.
// The result is cached per working directory.
// Returns an error if not inside a git repository.
func RepoRoot() (string, error) {
	// Get current working directory to check cache validity
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}

	// Check cache with read lock first
	repoRootMu.RLock()
	if repoRootCache != "" && repoRootCacheDir == cwd {
		cached := repoRootCache
		repoRootMu.RUnlock()
		return cached, nil
	}
	repoRootMu.RUnlock()

	// Cache miss - get repo root and update cache with write lock
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get git repository root: %w", err)
	}

	root := strings.TrimSpace(string(output))

	repoRootMu.Lock()
	repoRootCache = root
	repoRootCacheDir = cwd
	repoRootMu.Unlock()

	return root, nil
}

// ClearRepoRootCache clears the cached repository root.
// This is primarily useful for testing when changing directories.
func ClearRepoRootCache() {
	repoRootMu.Lock()
	repoRootCache = ""
	repoRootCacheDir = ""
	repoRootMu.Unlock()
}

// RepoRootOr returns the git repository root directory, or the current directory
// if not inside a git repository. This is useful for functions that need a fallback.
func RepoRootOr(fallback string) string {
	root, err := RepoRoot()
	if err != nil {
		return fallback
	}
	return root
}

// AbsPath returns the absolute path for a relative path within the repository.
// If the path is already absolute, it is returned as-is.
// Uses RepoRoot() to resolve paths relative to the repository root.
func AbsPath(relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return relPath, nil
	}

	root, err := RepoRoot()
	if err != nil {
		return "", err
	}

	return filepath.Join(root, relPath), nil
}

// IsInfrastructurePath returns true if the path is part of CLI infrastructure
// (i.e., inside the .entire directory)
func IsInfrastructurePath(path string) bool {
	return strings.HasPrefix(path, EntireDir+"/") || path == EntireDir
}

// ToRelativePath converts an absolute path to relative.
// Returns empty string if the path is outside the working directory.
func ToRelativePath(absPath, cwd string) string {
	if !filepath.IsAbs(absPath) {
		return absPath
	}
	relPath, err := filepath.Rel(cwd, absPath)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return ""
	}
	return relPath
}

// EntireSessionID generates the full Entire session ID from an agent's own
// session ID. The format is: YYYY-MM-DD-<agent-session-id>
func EntireSessionID(agentSessionID string) string {
	return time.Now().Format("2006-01-02") + "-" + agentSessionID
}

// ReadCurrentSession reads the current session ID from .entire/current_session.
// Returns an empty string (not error) if the file doesn't exist.
// Works correctly from any subdirectory within the repository.
func ReadCurrentSession() (string, error) {
	sessionFile, err := AbsPath(CurrentSessionFile)
	if err != nil {
		// Fallback to relative path if not in a git repo
		sessionFile = CurrentSessionFile
	}
	data, err := os.ReadFile(sessionFile) //nolint:gosec // path is from AbsPath or constant
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read current session file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteCurrentSession writes the session ID to .entire/current_session.
// Creates the .entire directory if it doesn't exist.
// Works correctly from any subdirectory within the repository.
func WriteCurrentSession(sessionID string) error {
	// Get absolute paths for the directory and file
	entireDirAbs, err := AbsPath(EntireDir)
	if err != nil {
		// Fallback to relative path if not in a git repo
		entireDirAbs = EntireDir
	}
	sessionFileAbs, err := AbsPath(CurrentSessionFile)
	if err != nil {
		sessionFileAbs = CurrentSessionFile
	}

	// Ensure .entire directory exists
	if err := os.MkdirAll(entireDirAbs, 0o750); err != nil {
		return fmt.Errorf("failed to create .entire directory: %w", err)
	}

	// Write session ID to file (no newline, just the ID)
	if err := os.WriteFile(sessionFileAbs, []byte(sessionID), 0o600); err != nil {
		return fmt.Errorf("failed to write current session file: %w", err)
	}

	return nil
}

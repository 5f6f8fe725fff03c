package cli

import (
	"os"
	"path/filepath"
	"testing"
)

const (
	testSettingsEnabled  = `{"enabled": true}`
	testSettingsDisabled = `{"enabled": false}`
)

func TestLoadEntireSettings_EnabledDefaultsToTrue(t *testing.T) {
	// Create a temporary directory and change to it (auto-restored after test)
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	// Test 1: No settings file exists - should default to enabled
	settings, err := LoadEntireSettings()
	if err != nil {
		t.Fatalf("LoadEntireSettings() error = %v", err)
	}
	if !settings.Enabled {
		t.Error("Enabled should default to true when no settings file exists")
	}

	// Test 2: Settings file exists without enabled field - should default to true
	settingsDir := filepath.Dir(EntireSettingsFile)
	if err := os.MkdirAll(settingsDir, 0o755); err != nil {
		t.Fatalf("Failed to create settings dir: %v", err)
	}
	settingsContent := `{"git_binary_path": "git"}`
	if err := os.WriteFile(EntireSettingsFile, []byte(settingsContent), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	settings, err = LoadEntireSettings()
	if err != nil {
		t.Fatalf("LoadEntireSettings() error = %v", err)
	}
	if !settings.Enabled {
		t.Error("Enabled should default to true when field is missing from JSON")
	}

	// Test 3: Settings file with enabled: false - should be false
	settingsContent = testSettingsDisabled
	if err := os.WriteFile(EntireSettingsFile, []byte(settingsContent), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	settings, err = LoadEntireSettings()
	if err != nil {
		t.Fatalf("LoadEntireSettings() error = %v", err)
	}
	if settings.Enabled {
		t.Error("Enabled should be false when explicitly set to false")
	}

	// Test 4: Settings file with enabled: true - should be true
	settingsContent = testSettingsEnabled
	if err := os.WriteFile(EntireSettingsFile, []byte(settingsContent), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	settings, err = LoadEntireSettings()
	if err != nil {
		t.Fatalf("LoadEntireSettings() error = %v", err)
	}
	if !settings.Enabled {
		t.Error("Enabled should be true when explicitly set to true")
	}
}

func TestSaveEntireSettings_PreservesEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	// Save settings with Enabled = false
	settings := &EntireSettings{
		Enabled: false,
	}
	if err := SaveEntireSettings(settings); err != nil {
		t.Fatalf("SaveEntireSettings() error = %v", err)
	}

	// Load and verify
	loaded, err := LoadEntireSettings()
	if err != nil {
		t.Fatalf("LoadEntireSettings() error = %v", err)
	}
	if loaded.Enabled {
		t.Error("Enabled should be false after saving as false")
	}
}

func TestIsEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	// Test 1: No settings file - should return true (default)
	enabled, err := IsEnabled()
	if err != nil {
		t.Fatalf("IsEnabled() error = %v", err)
	}
	if !enabled {
		t.Error("IsEnabled() should return true when no settings file exists")
	}

	// Test 2: Settings with enabled: false - should return false
	settingsDir := filepath.Dir(EntireSettingsFile)
	if err := os.MkdirAll(settingsDir, 0o755); err != nil {
		t.Fatalf("Failed to create settings dir: %v", err)
	}
	settingsContent := `{"enabled": false}`
	if err := os.WriteFile(EntireSettingsFile, []byte(settingsContent), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	enabled, err = IsEnabled()
	if err != nil {
		t.Fatalf("IsEnabled() error = %v", err)
	}
	if enabled {
		t.Error("IsEnabled() should return false when disabled")
	}

	// Test 3: Settings with enabled: true - should return true
	settingsContent = `{"enabled": true}`
	if err := os.WriteFile(EntireSettingsFile, []byte(settingsContent), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	enabled, err = IsEnabled()
	if err != nil {
		t.Fatalf("IsEnabled() error = %v", err)
	}
	if !enabled {
		t.Error("IsEnabled() should return true when enabled")
	}
}

// setupLocalOverrideTestDir creates a temp directory with .entire folder for testing
func setupLocalOverrideTestDir(t *testing.T) {
	t.Helper()
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	settingsDir := filepath.Dir(EntireSettingsFile)
	if err := os.MkdirAll(settingsDir, 0o755); err != nil {
		t.Fatalf("Failed to create settings dir: %v", err)
	}
}

func TestLoadEntireSettings_LocalOverridesGitBinaryPath(t *testing.T) {
	setupLocalOverrideTestDir(t)

	baseSettings := testSettingsEnabled
	if err := os.WriteFile(EntireSettingsFile, []byte(baseSettings), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	localSettings := `{"git_binary_path": "/usr/local/bin/git"}`
	if err := os.WriteFile(EntireSettingsLocalFile, []byte(localSettings), 0o644); err != nil {
		t.Fatalf("Failed to write local settings file: %v", err)
	}

	settings, err := LoadEntireSettings()
	if err != nil {
		t.Fatalf("LoadEntireSettings() error = %v", err)
	}
	if settings.GitBinaryPath != "/usr/local/bin/git" {
		t.Errorf("GitBinaryPath should be '/usr/local/bin/git' from local override, got %q", settings.GitBinaryPath)
	}
	if !settings.Enabled {
		t.Error("Enabled should remain true from base settings")
	}
}

func TestLoadEntireSettings_LocalOverridesEnabled(t *testing.T) {
	setupLocalOverrideTestDir(t)

	baseSettings := testSettingsEnabled
	if err := os.WriteFile(EntireSettingsFile, []byte(baseSettings), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	localSettings := `{"enabled": false}`
	if err := os.WriteFile(EntireSettingsLocalFile, []byte(localSettings), 0o644); err != nil {
		t.Fatalf("Failed to write local settings file: %v", err)
	}

	settings, err := LoadEntireSettings()
	if err != nil {
		t.Fatalf("LoadEntireSettings() error = %v", err)
	}
	if settings.Enabled {
		t.Error("Enabled should be false from local override")
	}
}

func TestLoadEntireSettings_LocalOverridesLocalDev(t *testing.T) {
	setupLocalOverrideTestDir(t)

	baseSettings := `{"enabled": true}`
	if err := os.WriteFile(EntireSettingsFile, []byte(baseSettings), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	localSettings := `{"local_dev": true}`
	if err := os.WriteFile(EntireSettingsLocalFile, []byte(localSettings), 0o644); err != nil {
		t.Fatalf("Failed to write local settings file: %v", err)
	}

	settings, err := LoadEntireSettings()
	if err != nil {
		t.Fatalf("LoadEntireSettings() error = %v", err)
	}
	if !settings.LocalDev {
		t.Error("LocalDev should be true from local override")
	}
}

func TestLoadEntireSettings_LocalMergesOptions(t *testing.T) {
	setupLocalOverrideTestDir(t)

	baseSettings := `{"enabled": true, "options": {"key1": "value1", "key2": "value2"}}`
	if err := os.WriteFile(EntireSettingsFile, []byte(baseSettings), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	localSettings := `{"options": {"key2": "overridden", "key3": "value3"}}`
	if err := os.WriteFile(EntireSettingsLocalFile, []byte(localSettings), 0o644); err != nil {
		t.Fatalf("Failed to write local settings file: %v", err)
	}

	settings, err := LoadEntireSettings()
	if err != nil {
		t.Fatalf("LoadEntireSettings() error = %v", err)
	}

	if settings.Options["key1"] != "value1" {
		t.Errorf("key1 should remain 'value1', got %v", settings.Options["key1"])
	}
	if settings.Options["key2"] != "overridden" {
		t.Errorf("key2 should be 'overridden', got %v", settings.Options["key2"])
	}
	if settings.Options["key3"] != "value3" {
		t.Errorf("key3 should be 'value3', got %v", settings.Options["key3"])
	}
}

func TestLoadEntireSettings_OnlyLocalFileExists(t *testing.T) {
	setupLocalOverrideTestDir(t)

	// No base settings file
	localSettings := `{"agent": "claude-code"}`
	if err := os.WriteFile(EntireSettingsLocalFile, []byte(localSettings), 0o644); err != nil {
		t.Fatalf("Failed to write local settings file: %v", err)
	}

	settings, err := LoadEntireSettings()
	if err != nil {
		t.Fatalf("LoadEntireSettings() error = %v", err)
	}
	if settings.Agent != "claude-code" {
		t.Errorf("Agent should be 'claude-code' from local file, got %q", settings.Agent)
	}
	if !settings.Enabled {
		t.Error("Enabled should default to true")
	}
}

func TestLoadEntireSettings_NoLocalFileUsesBase(t *testing.T) {
	setupLocalOverrideTestDir(t)

	baseSettings := `{"agent": "gemini-cli", "enabled": true}`
	if err := os.WriteFile(EntireSettingsFile, []byte(baseSettings), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	settings, err := LoadEntireSettings()
	if err != nil {
		t.Fatalf("LoadEntireSettings() error = %v", err)
	}
	if settings.Agent != "gemini-cli" {
		t.Errorf("Agent should be 'gemini-cli' from base settings, got %q", settings.Agent)
	}
}

func TestLoadEntireSettings_EmptyGitBinaryPathInLocalDoesNotOverride(t *testing.T) {
	setupLocalOverrideTestDir(t)

	baseSettings := `{"git_binary_path": "/opt/git/bin/git"}`
	if err := os.WriteFile(EntireSettingsFile, []byte(baseSettings), 0o644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	localSettings := `{"git_binary_path": ""}`
	if err := os.WriteFile(EntireSettingsLocalFile, []byte(localSettings), 0o644); err != nil {
		t.Fatalf("Failed to write local settings file: %v", err)
	}

	settings, err := LoadEntireSettings()
	if err != nil {
		t.Fatalf("LoadEntireSettings() error = %v", err)
	}
	if settings.GitBinaryPath != "/opt/git/bin/git" {
		t.Errorf("GitBinaryPath should remain '/opt/git/bin/git', got %q", settings.GitBinaryPath)
	}
}

func TestLoadEntireSettings_NeitherFileExistsReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	settings, err := LoadEntireSettings()
	if err != nil {
		t.Fatalf("LoadEntireSettings() error = %v", err)
	}
	if settings.GitBinaryPath != DefaultGitBinaryPath {
		t.Errorf("GitBinaryPath should be default %q, got %q", DefaultGitBinaryPath, settings.GitBinaryPath)
	}
	if !settings.Enabled {
		t.Error("Enabled should default to true")
	}
}

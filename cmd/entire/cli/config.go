package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blametrail/cli/cmd/entire/cli/agent"
	"github.com/blametrail/cli/cmd/entire/cli/jsonutil"
	"github.com/blametrail/cli/cmd/entire/cli/paths"

	// Import claudecode to register the agent
	_ "github.com/blametrail/cli/cmd/entire/cli/agent/claudecode"
)

const (
	// EntireSettingsFile is the path to the Entire settings file
	EntireSettingsFile = ".entire/settings.json"
	// EntireSettingsLocalFile is the path to the local settings override file (not committed)
	EntireSettingsLocalFile = ".entire/settings.local.json"

	// DefaultGitBinaryPath is used when no git binary override is configured.
	DefaultGitBinaryPath = "git"
)

// EntireSettings represents the .entire/settings.json configuration.
type EntireSettings struct {
	// Enabled indicates whether Entire is active. When false, CLI commands
	// show a disabled message and hooks exit silently. Defaults to true.
	Enabled bool `json:"enabled"`

	// LocalDev indicates whether to use "go run" instead of the "entire" binary
	// This is used for development when the binary is not installed
	LocalDev bool `json:"local_dev,omitempty"`

	// LogLevel sets the logging verbosity (debug, info, warn, error).
	// Can be overridden by ENTIRE_LOG_LEVEL environment variable.
	// Defaults to "info".
	LogLevel string `json:"log_level,omitempty"`

	// IgnorePrompts, when true, discards prompt transcript text when an
	// authorship log is finalized (§4.4 step 5): prompt records and
	// attribution data are kept, only the message bodies are dropped.
	IgnorePrompts bool `json:"ignore_prompts,omitempty"`

	// GitBinaryPath overrides the git executable used for plumbing calls
	// that go-git itself doesn't cover (notes fetch/push, grep over notes).
	GitBinaryPath string `json:"git_binary_path,omitempty"`

	// Options contains free-form per-agent configuration.
	Options map[string]interface{} `json:"options,omitempty"`

	// Telemetry controls anonymous usage analytics.
	// nil = not asked yet (show prompt), true = opted in, false = opted out
	Telemetry *bool `json:"telemetry,omitempty"`

	// Agent names the active transcript-ingestion agent (claude-code, gemini-cli, mock).
	Agent string `json:"agent,omitempty"`
}

// LoadEntireSettings loads the Entire settings from .entire/settings.json,
// then applies any overrides from .entire/settings.local.json if it exists.
// Returns default settings if neither file exists.
// Works correctly from any subdirectory within the repository.
func LoadEntireSettings() (*EntireSettings, error) {
	// Get absolute paths for settings files
	settingsFileAbs, err := paths.AbsPath(EntireSettingsFile)
	if err != nil {
		settingsFileAbs = EntireSettingsFile // Fallback to relative
	}
	localSettingsFileAbs, err := paths.AbsPath(EntireSettingsLocalFile)
	if err != nil {
		localSettingsFileAbs = EntireSettingsLocalFile // Fallback to relative
	}

	// Load base settings
	settings, err := loadSettingsFromFile(settingsFileAbs)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	// Apply local overrides if they exist
	localData, err := os.ReadFile(localSettingsFileAbs) //nolint:gosec // path is from AbsPath or constant
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading local settings file: %w", err)
		}
		// Local file doesn't exist, continue without overrides
	} else {
		if err := mergeSettingsJSON(settings, localData); err != nil {
			return nil, fmt.Errorf("merging local settings: %w", err)
		}
	}

	applyDefaults(settings)

	return settings, nil
}

// mergeSettingsJSON merges JSON data into existing settings.
// Only non-zero values from the JSON override existing settings.
func mergeSettingsJSON(settings *EntireSettings, data []byte) error {
	// Parse into a map to check which fields are present
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	// Override enabled if present
	if enabledRaw, ok := raw["enabled"]; ok {
		var e bool
		if err := json.Unmarshal(enabledRaw, &e); err != nil {
			return fmt.Errorf("parsing enabled field: %w", err)
		}
		settings.Enabled = e
	}

	// Override local_dev if present
	if localDevRaw, ok := raw["local_dev"]; ok {
		var ld bool
		if err := json.Unmarshal(localDevRaw, &ld); err != nil {
			return fmt.Errorf("parsing local_dev field: %w", err)
		}
		settings.LocalDev = ld
	}

	// Override log_level if present and non-empty
	if logLevelRaw, ok := raw["log_level"]; ok {
		var ll string
		if err := json.Unmarshal(logLevelRaw, &ll); err != nil {
			return fmt.Errorf("parsing log_level field: %w", err)
		}
		if ll != "" {
			settings.LogLevel = ll
		}
	}

	// Override ignore_prompts if present
	if ignorePromptsRaw, ok := raw["ignore_prompts"]; ok {
		var ip bool
		if err := json.Unmarshal(ignorePromptsRaw, &ip); err != nil {
			return fmt.Errorf("parsing ignore_prompts field: %w", err)
		}
		settings.IgnorePrompts = ip
	}

	// Override git_binary_path if present and non-empty
	if gitPathRaw, ok := raw["git_binary_path"]; ok {
		var gp string
		if err := json.Unmarshal(gitPathRaw, &gp); err != nil {
			return fmt.Errorf("parsing git_binary_path field: %w", err)
		}
		if gp != "" {
			settings.GitBinaryPath = gp
		}
	}

	// Override agent if present and non-empty
	if agentRaw, ok := raw["agent"]; ok {
		var a string
		if err := json.Unmarshal(agentRaw, &a); err != nil {
			return fmt.Errorf("parsing agent field: %w", err)
		}
		if a != "" {
			settings.Agent = a
		}
	}

	// Merge options if present
	if optionsRaw, ok := raw["options"]; ok {
		var opts map[string]interface{}
		if err := json.Unmarshal(optionsRaw, &opts); err != nil {
			return fmt.Errorf("parsing options field: %w", err)
		}
		if settings.Options == nil {
			settings.Options = opts
		} else {
			for k, v := range opts {
				settings.Options[k] = v
			}
		}
	}

	// Override telemetry if present
	if telemetryRaw, ok := raw["telemetry"]; ok {
		var t bool
		if err := json.Unmarshal(telemetryRaw, &t); err != nil {
			return fmt.Errorf("parsing telemetry field: %w", err)
		}
		settings.Telemetry = &t
	}

	return nil
}

// SaveEntireSettings saves the Entire settings to .entire/settings.json.
func SaveEntireSettings(settings *EntireSettings) error {
	return saveSettingsToFile(settings, EntireSettingsFile)
}

// SaveEntireSettingsLocal saves the Entire settings to .entire/settings.local.json.
func SaveEntireSettingsLocal(settings *EntireSettings) error {
	return saveSettingsToFile(settings, EntireSettingsLocalFile)
}

// loadSettingsFromFile loads settings from a specific file path.
// Returns default settings if the file doesn't exist.
func loadSettingsFromFile(filePath string) (*EntireSettings, error) {
	settings := &EntireSettings{
		Enabled:       true, // Default to enabled
		GitBinaryPath: DefaultGitBinaryPath,
	}

	data, err := os.ReadFile(filePath) //nolint:gosec // path is from caller
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("%w", err)
	}

	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	applyDefaults(settings)

	return settings, nil
}

func applyDefaults(settings *EntireSettings) {
	if settings.GitBinaryPath == "" {
		settings.GitBinaryPath = DefaultGitBinaryPath
	}
}

func saveSettingsToFile(settings *EntireSettings, filePath string) error {
	// Get absolute path for the file
	filePathAbs, err := paths.AbsPath(filePath)
	if err != nil {
		filePathAbs = filePath // Fallback to relative
	}

	// Ensure directory exists
	dir := filepath.Dir(filePathAbs)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	data, err := jsonutil.MarshalIndentWithNewline(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	//nolint:gosec // G306: settings file is config, not secrets; 0o644 is appropriate
	if err := os.WriteFile(filePathAbs, data, 0o644); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	return nil
}

// IsEnabled returns whether Entire is currently enabled.
// Returns true by default if settings cannot be loaded.
func IsEnabled() (bool, error) {
	settings, err := LoadEntireSettings()
	if err != nil {
		return true, err
	}
	return settings.Enabled, nil
}

// GetLogLevel returns the configured log level from settings.
// Returns empty string if not configured (caller should use default).
// Note: ENTIRE_LOG_LEVEL env var takes precedence; check it first.
func GetLogLevel() string {
	settings, err := LoadEntireSettings()
	if err != nil {
		return ""
	}
	return settings.LogLevel
}

// GetGitBinaryPath returns the configured git binary path, falling back
// to the default "git" if settings cannot be loaded or none is set.
func GetGitBinaryPath() string {
	settings, err := LoadEntireSettings()
	if err != nil || settings.GitBinaryPath == "" {
		return DefaultGitBinaryPath
	}
	return settings.GitBinaryPath
}

// ShouldIgnorePrompts returns whether prompt message bodies should be
// dropped when authorship logs are finalized.
func ShouldIgnorePrompts() bool {
	settings, err := LoadEntireSettings()
	if err != nil {
		return false
	}
	return settings.IgnorePrompts
}

// IsMultiSessionWarningDisabled checks if multi-session warnings are disabled.
// Returns false (show warnings) by default if settings cannot be loaded or the key is missing.
func IsMultiSessionWarningDisabled() bool {
	settings, err := LoadEntireSettings()
	if err != nil {
		return false // Default: show warnings
	}
	if settings.Options == nil {
		return false
	}
	if disabled, ok := settings.Options["disable_multisession_warning"].(bool); ok {
		return disabled
	}
	return false
}

// GetAgentsWithHooksInstalled returns names of agents that have hooks installed.
func GetAgentsWithHooksInstalled() []agent.AgentName {
	var installed []agent.AgentName
	for _, name := range agent.List() {
		ag, err := agent.Get(name)
		if err != nil {
			continue
		}
		if hs, ok := ag.(agent.HookSupport); ok && hs.AreHooksInstalled() {
			installed = append(installed, name)
		}
	}
	return installed
}

// JoinAgentNames joins agent names into a comma-separated string.
func JoinAgentNames(names []agent.AgentName) string {
	strs := make([]string, len(names))
	for i, n := range names {
		strs[i] = string(n)
	}
	return strings.Join(strs, ",")
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/blametrail/cli/cmd/entire/cli/agent"
	"github.com/blametrail/cli/cmd/entire/cli/paths"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Config path display strings
const (
	configDisplayProject = ".entire/settings.json"
	configDisplayLocal   = ".entire/settings.local.json"
)

func newInstallHooksCmd() *cobra.Command {
	var localDev bool
	var useLocalSettings bool
	var useProjectSettings bool
	var agentName string
	var forceHooks bool
	var telemetry bool

	cmd := &cobra.Command{
		Use:   "install-hooks",
		Short: "Install agent hooks and enable attribution in the current project",
		Long: `Installs lifecycle hooks for a coding agent (human pre-commit checkpoints,
AI post-tool-use checkpoints) and writes .entire/settings.json so the
working log and authorship log are populated on every commit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := paths.RepoRoot(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Not a git repository. Please run 'entire install-hooks' from within a git repository.")
				return NewSilentError(errors.New("not a git repository"))
			}

			if useLocalSettings && useProjectSettings {
				return errors.New("cannot specify both --project and --local")
			}

			if cmd.Flags().Changed("agent") && agentName == "" {
				printMissingAgentError(cmd.ErrOrStderr())
				return NewSilentError(errors.New("missing agent name"))
			}

			if agentName != "" {
				ag, err := agent.Get(agent.AgentName(agentName))
				if err != nil {
					printWrongAgentError(cmd.ErrOrStderr(), agentName)
					return NewSilentError(errors.New("wrong agent name"))
				}
				return installHooksNonInteractive(cmd.OutOrStdout(), ag, localDev, forceHooks, telemetry, useLocalSettings, useProjectSettings)
			}
			return installHooksInteractive(cmd.OutOrStdout(), localDev, forceHooks, telemetry, useLocalSettings, useProjectSettings)
		},
	}

	cmd.Flags().BoolVar(&localDev, "local-dev", false, "Use go run instead of entire binary for hooks")
	cmd.Flags().MarkHidden("local-dev") //nolint:errcheck,gosec // flag is defined above
	cmd.Flags().BoolVar(&useLocalSettings, "local", false, "Write settings to settings.local.json instead of settings.json")
	cmd.Flags().BoolVar(&useProjectSettings, "project", false, "Write settings to settings.json even if it already exists")
	cmd.Flags().StringVar(&agentName, "agent", "", "Agent to install hooks for (e.g., claude-code). Enables non-interactive mode.")
	cmd.Flags().BoolVarP(&forceHooks, "force", "f", false, "Force reinstall hooks (removes existing Entire hooks first)")
	cmd.Flags().BoolVar(&telemetry, "telemetry", true, "Enable anonymous usage analytics")

	// Provide a helpful error when --agent is used without a value
	defaultFlagErr := cmd.FlagErrorFunc()
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		var valErr *pflag.ValueRequiredError
		if errors.As(err, &valErr) && valErr.GetSpecifiedName() == "agent" {
			printMissingAgentError(c.ErrOrStderr())
			return NewSilentError(errors.New("missing agent name"))
		}
		return defaultFlagErr(c, err)
	})

	return cmd
}

func newDisableCmd() *cobra.Command {
	var useProjectSettings bool

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable Entire in current project",
		Long: `Disable Entire integrations in the current project. Hooks will exit
silently and commands will show a disabled message; .entire/ and
installed agent hooks are left in place.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDisable(cmd.OutOrStdout(), useProjectSettings)
		},
	}

	cmd.Flags().BoolVar(&useProjectSettings, "project", false, "Update settings.json instead of settings.local.json")

	return cmd
}

// isFullyEnabled checks whether Entire is already fully set up.
func isFullyEnabled() (enabled bool, agentDesc string, configPath string) {
	s, err := LoadEntireSettings()
	if err != nil || !s.Enabled {
		return false, "", ""
	}

	installedAgents := GetAgentsWithHooksInstalled()
	if len(installedAgents) == 0 {
		return false, "", ""
	}

	if !checkEntireDirExists() {
		return false, "", ""
	}

	desc := string(installedAgents[0])
	if ag, err := agent.Get(installedAgents[0]); err == nil {
		desc = ag.Description()
	}

	entireDirAbs, err := paths.AbsPath(paths.EntireDir)
	if err != nil {
		entireDirAbs = paths.EntireDir
	}
	configDisplay := configDisplayProject
	localSettingsPath := filepath.Join(entireDirAbs, "settings.local.json")
	if _, err := os.Stat(localSettingsPath); err == nil {
		configDisplay = configDisplayLocal
	}

	return true, desc, configDisplay
}

// installHooksNonInteractive installs hooks for a specific agent without prompting.
func installHooksNonInteractive(w io.Writer, ag agent.Agent, localDev, forceHooks, telemetry bool, useLocalSettings, useProjectSettings bool) error {
	hookAgent, ok := ag.(agent.HookSupport)
	if !ok {
		return fmt.Errorf("agent %s does not support hooks", ag.Name())
	}

	fmt.Fprintf(w, "Agent: %s\n\n", ag.Description())

	installedHooks, err := hookAgent.InstallHooks(localDev, forceHooks)
	if err != nil {
		return fmt.Errorf("failed to install hooks for %s: %w", ag.Name(), err)
	}

	if _, err := setupEntireDirectory(); err != nil {
		return fmt.Errorf("failed to setup .entire directory: %w", err)
	}

	settings, err := LoadEntireSettings()
	if err != nil {
		settings = &EntireSettings{}
	}
	settings.Enabled = true
	settings.Agent = ag.Name()
	if localDev {
		settings.LocalDev = localDev
	}
	if !telemetry || os.Getenv("ENTIRE_TELEMETRY_OPTOUT") != "" {
		f := false
		settings.Telemetry = &f
	}

	configDisplay, err := saveSettingsToTarget(settings, useLocalSettings, useProjectSettings, w)
	if err != nil {
		return err
	}

	printHookInstallResult(w, ag, installedHooks)
	fmt.Fprintf(w, "✓ Project configured (%s)\n", configDisplay)
	fmt.Fprintln(w, "\nReady.")

	return nil
}

// installHooksInteractive runs the interactive install-hooks flow.
func installHooksInteractive(w io.Writer, localDev, forceHooks, telemetry bool, useLocalSettings, useProjectSettings bool) error {
	hasConfigFlags := forceHooks || !telemetry || useLocalSettings || useProjectSettings || localDev
	if !hasConfigFlags {
		if fullyEnabled, agentDesc, configPath := isFullyEnabled(); fullyEnabled {
			fmt.Fprintln(w, "Already enabled. Everything looks good.")
			fmt.Fprintln(w)
			fmt.Fprintf(w, "  Agent: %s\n", agentDesc)
			fmt.Fprintf(w, "  Config: %s\n", configPath)
			return nil
		}
	}

	ag := agent.Default()
	if ag == nil {
		return errors.New("no default agent registered")
	}
	fmt.Fprintf(w, "Agent: %s (use --agent to change)\n\n", ag.Description())

	hookAgent, ok := ag.(agent.HookSupport)
	if !ok {
		return fmt.Errorf("agent %s does not support hooks", ag.Name())
	}
	installedHooks, err := hookAgent.InstallHooks(localDev, forceHooks)
	if err != nil {
		return fmt.Errorf("failed to install hooks: %w", err)
	}

	if _, err := setupEntireDirectory(); err != nil {
		return fmt.Errorf("failed to setup .entire directory: %w", err)
	}

	settings, err := LoadEntireSettings()
	if err != nil {
		settings = &EntireSettings{}
	}
	settings.Enabled = true
	settings.Agent = ag.Name()
	settings.LocalDev = localDev

	configDisplay, err := saveSettingsToTarget(settings, useLocalSettings, useProjectSettings, w)
	if err != nil {
		return err
	}

	printHookInstallResult(w, ag, installedHooks)
	fmt.Fprintf(w, "✓ Project configured (%s)\n", configDisplay)

	fmt.Fprintln(w)
	if err := promptTelemetryConsent(settings, telemetry); err != nil {
		return fmt.Errorf("telemetry consent: %w", err)
	}
	if _, err := saveSettingsToTarget(settings, useLocalSettings, useProjectSettings, io.Discard); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nReady.")

	return nil
}

func printHookInstallResult(w io.Writer, ag agent.Agent, installedHooks int) {
	if installedHooks == 0 {
		fmt.Fprintf(w, "Hooks for %s already installed\n", ag.Description())
	} else {
		fmt.Fprintf(w, "Installed %d hooks for %s\n", installedHooks, ag.Description())
	}
}

// saveSettingsToTarget saves settings to settings.json or settings.local.json
// based on flags and current state, printing a display path.
func saveSettingsToTarget(settings *EntireSettings, useLocalSettings, useProjectSettings bool, w io.Writer) (string, error) {
	entireDirAbs, err := paths.AbsPath(paths.EntireDir)
	if err != nil {
		entireDirAbs = paths.EntireDir
	}
	shouldUseLocal, showNotification := determineSettingsTarget(entireDirAbs, useLocalSettings, useProjectSettings)

	if showNotification {
		fmt.Fprintln(w, "Info: Project settings exist. Saving to settings.local.json instead.")
		fmt.Fprintln(w, "  Use --project to update the project settings file.")
	}

	if shouldUseLocal {
		if err := SaveEntireSettingsLocal(settings); err != nil {
			return "", fmt.Errorf("failed to save local settings: %w", err)
		}
		return configDisplayLocal, nil
	}
	if err := SaveEntireSettings(settings); err != nil {
		return "", fmt.Errorf("failed to save settings: %w", err)
	}
	return configDisplayProject, nil
}

func runDisable(w io.Writer, useProjectSettings bool) error {
	settings, err := LoadEntireSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	settings.Enabled = false

	if useProjectSettings {
		if err := SaveEntireSettings(settings); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
	} else {
		if err := SaveEntireSettingsLocal(settings); err != nil {
			return fmt.Errorf("failed to save local settings: %w", err)
		}
	}

	fmt.Fprintln(w, "Entire is now disabled.")
	return nil
}

// DisabledMessage is the message shown when Entire is disabled
const DisabledMessage = "Entire is disabled. Run `entire install-hooks` to re-enable."

// checkDisabledGuard checks if Entire is disabled and prints a message if so.
// Returns true if the caller should exit (i.e., Entire is disabled).
func checkDisabledGuard(w io.Writer) bool {
	enabled, err := IsEnabled()
	if err != nil {
		return false
	}
	if !enabled {
		fmt.Fprintln(w, DisabledMessage)
		return true
	}
	return false
}

// printAgentError writes an error message followed by available agents and usage.
func printAgentError(w io.Writer, message string) {
	agents := agent.List()
	fmt.Fprintf(w, "%s Available agents:\n", message)
	fmt.Fprintln(w)
	for _, a := range agents {
		suffix := ""
		if a == agent.DefaultAgentName {
			suffix = "    (default)"
		}
		fmt.Fprintf(w, "  %s%s\n", a, suffix)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: entire install-hooks --agent <agent-name>")
}

func printMissingAgentError(w io.Writer) {
	printAgentError(w, "Missing agent name.")
}

func printWrongAgentError(w io.Writer, name string) {
	printAgentError(w, fmt.Sprintf("Unknown agent %q.", name))
}

// determineSettingsTarget decides whether to write to settings.local.json based on:
// - Whether settings.json already exists
// - The --local and --project flags
// Returns (useLocal, showNotification).
func determineSettingsTarget(entireDir string, useLocal, useProject bool) (bool, bool) {
	if useLocal {
		return true, false
	}
	if useProject {
		return false, false
	}
	settingsPath := filepath.Join(entireDir, paths.SettingsFileName)
	if _, err := os.Stat(settingsPath); err == nil {
		return true, true
	}
	return false, false
}

// setupEntireDirectory creates the .entire directory and gitignore entries.
// Returns true if the directory was created, false if it already existed.
func setupEntireDirectory() (bool, error) {
	entireDirAbs, err := paths.AbsPath(paths.EntireDir)
	if err != nil {
		entireDirAbs = paths.EntireDir
	}

	created := false
	if _, err := os.Stat(entireDirAbs); os.IsNotExist(err) {
		created = true
	}

	//nolint:gosec // G301: Project directory needs standard permissions for git
	if err := os.MkdirAll(entireDirAbs, 0o755); err != nil {
		return false, fmt.Errorf("failed to create .entire directory: %w", err)
	}

	if err := ensureEntireGitignore(entireDirAbs); err != nil {
		return false, fmt.Errorf("failed to setup .gitignore: %w", err)
	}

	return created, nil
}

// entireGitignoreEntries lists paths under .entire/ that must never be committed:
// per-session logs, the working log's content-addressed blob store and checkpoint
// streams, and local settings overrides.
var entireGitignoreEntries = []string{"logs/", "workinglog/", "settings.local.json"}

// ensureEntireGitignore writes/updates .entire/.gitignore so working-log
// scratch state never gets committed alongside the authoritative notes.
func ensureEntireGitignore(entireDirAbs string) error {
	gitignorePath := filepath.Join(entireDirAbs, ".gitignore")

	existing := ""
	if data, err := os.ReadFile(gitignorePath); err == nil { //nolint:gosec // constructed from known dir
		existing = string(data)
	}

	var missing []string
	for _, entry := range entireGitignoreEntries {
		if !strings.Contains(existing, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	content := existing
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	for _, entry := range missing {
		content += entry + "\n"
	}

	//nolint:gosec // G306: gitignore is not sensitive
	return os.WriteFile(gitignorePath, []byte(content), 0o644)
}

// promptTelemetryConsent asks the user if they want to enable telemetry.
// It modifies settings.Telemetry based on the user's choice or flags.
// The caller is responsible for saving settings.
func promptTelemetryConsent(settings *EntireSettings, telemetryFlag bool) error {
	if !telemetryFlag {
		f := false
		settings.Telemetry = &f
		return nil
	}

	if settings.Telemetry != nil {
		return nil
	}

	if os.Getenv("ENTIRE_TELEMETRY_OPTOUT") != "" {
		f := false
		settings.Telemetry = &f
		return nil
	}

	consent := true
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Help improve Entire CLI?").
				Description("Share anonymous usage data. No code or personal info collected.").
				Affirmative("Yes").
				Negative("No").
				Value(&consent),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("telemetry prompt: %w", err)
	}

	settings.Telemetry = &consent
	return nil
}

// checkEntireDirExists checks if the .entire directory exists.
func checkEntireDirExists() bool {
	entireDirAbs, err := paths.AbsPath(paths.EntireDir)
	if err != nil {
		entireDirAbs = paths.EntireDir
	}
	_, err = os.Stat(entireDirAbs)
	return err == nil
}

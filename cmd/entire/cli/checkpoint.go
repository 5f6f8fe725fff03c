package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/cobra"

	"github.com/blametrail/cli/cmd/entire/cli/agent"
	"github.com/blametrail/cli/cmd/entire/cli/paths"
	"github.com/blametrail/cli/cmd/entire/cli/telemetry"
	"github.com/blametrail/cli/cmd/entire/cli/validation"
	"github.com/blametrail/cli/internal/attribution/authorshiplog"
	"github.com/blametrail/cli/internal/attribution/tracker"
	"github.com/blametrail/cli/internal/attribution/workinglog"
	"github.com/blametrail/cli/internal/vcs"
)

// aiMetadataSubdir is where the working log and rewrite log live under a
// repo's metadata directory (spec §6: "<repo_metadata>/ai").
const aiMetadataSubdir = "ai"

func aiMetadataDir(repoRoot string) string {
	return filepath.Join(repoRoot, paths.EntireMetadataDir, aiMetadataSubdir)
}

func newCheckpointCmd() *cobra.Command {
	var agentName string
	var toolName string
	var sessionID string

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Record a checkpoint attributing the current working tree's changes",
		Long: `Builds one checkpoint for the current base commit's working log.

With no flags, checkpoint attributes every uncommitted change in the
working tree to a human author (the pre-commit checkpoint). With
--tool, it instead reads a single post-tool-use hook event from stdin
and attributes that tool's edit to the named agent session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repoRoot, err := paths.RepoRoot()
			if err != nil {
				return NewSilentError(fmt.Errorf("not a git repository: %w", err))
			}

			settings, err := LoadEntireSettings()
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}
			// Checkpoint runs on the hook-invoked path (every tool call, every
			// commit); tracking is fired via the detached subprocess so the
			// PostHog round trip never adds to a hook's latency.
			if settings.Telemetry != nil && *settings.Telemetry {
				telemetry.TrackCommandDetached(cmd, "", settings.Agent, settings.Enabled, Version)
			}

			if !settings.Enabled {
				return nil
			}

			repo, err := vcs.Open(repoRoot)
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}

			head, err := repo.HeadCommit()
			if err != nil {
				return fmt.Errorf("resolving HEAD: %w", err)
			}
			baseTree, err := head.Tree()
			if err != nil {
				return fmt.Errorf("reading HEAD tree: %w", err)
			}
			baseSHA := vcs.CommitSHA(head)

			wl := workinglog.Open(aiMetadataDir(repoRoot), baseSHA)
			blame := blameServiceForCommit(repo, baseSHA)

			if toolName != "" {
				resolvedAgent := agentName
				if resolvedAgent == "" {
					resolvedAgent = settings.Agent
				}
				return runAgentCheckpoint(cmd, wl, baseTree, blame, repoRoot, resolvedAgent, toolName, sessionID)
			}
			return runHumanCheckpoint(cmd, repo, wl, baseTree, blame, repoRoot)
		},
	}

	cmd.Flags().StringVar(&agentName, "agent", "", "Agent producing this checkpoint (defaults to the configured or detected agent)")
	cmd.Flags().StringVar(&toolName, "tool", "", "Tool name for an AI post-tool-use checkpoint; reads hook input from stdin")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Agent session ID for an AI post-tool-use checkpoint")

	return cmd
}

// runHumanCheckpoint builds the human pre-commit checkpoint (spec §4.7)
// from the working tree's uncommitted changes, crediting any newly
// inserted text to tracker.HumanAuthorID.
func runHumanCheckpoint(cmd *cobra.Command, repo *vcs.Repo, wl *workinglog.Log, baseTree *object.Tree, blame workinglog.BlameService, repoRoot string) error {
	worktreeChanges, err := repo.ChangedWorktreeFiles()
	if err != nil {
		return fmt.Errorf("reading worktree status: %w", err)
	}
	if len(worktreeChanges) == 0 {
		return nil
	}

	changes := make([]workinglog.FileChange, 0, len(worktreeChanges))
	for _, c := range worktreeChanges {
		changes = append(changes, workinglog.FileChange{
			Path:   c.Path,
			Status: changeStatusFromGitCode(c.Status),
		})
	}

	_, err = workinglog.BuildCheckpoint(cmd.Context(), wl, workinglog.BuildOptions{
		RepoRoot:    repoRoot,
		BaseTree:    baseTree,
		Changes:     changes,
		Kind:        workinglog.KindHuman,
		Author:      tracker.HumanAuthorID,
		NewAuthorID: tracker.HumanAuthorID,
		Timestamp:   time.Now().Unix(),
		Blame:       blame,
		Initial:     wl.ReadInitialAttributions(),
	})
	if err != nil {
		return fmt.Errorf("building human checkpoint: %w", err)
	}
	return nil
}

// runAgentCheckpoint builds the AI post-tool-use checkpoint (spec §4.7)
// from a single hook event read off stdin, crediting the tool's edit to
// the session's short hash.
func runAgentCheckpoint(cmd *cobra.Command, wl *workinglog.Log, baseTree *object.Tree, blame workinglog.BlameService, repoRoot, agentName, toolName, sessionID string) error {
	ag, err := resolveAgent(agentName)
	if err != nil {
		return err
	}

	hookInput, err := ag.ParseHookInput(agent.HookPostToolUse, cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("parsing hook input: %w", err)
	}

	tool := toolName
	if tool == "" {
		tool = hookInput.ToolName
	}
	session := sessionID
	if session == "" {
		session = ag.GetSessionID(hookInput)
	}
	if session == "" {
		if cached, err := paths.ReadCurrentSession(); err == nil && cached != "" {
			session = cached
		}
	}
	if err := validation.ValidateSessionID(session); err != nil {
		return fmt.Errorf("agent checkpoint: %w", err)
	}
	if err := validation.ValidateToolUseID(hookInput.ToolUseID); err != nil {
		return fmt.Errorf("agent checkpoint: %w", err)
	}
	if err := validation.ValidateAgentID(session); err != nil {
		return fmt.Errorf("agent checkpoint: %w", err)
	}
	if err := paths.WriteCurrentSession(session); err != nil {
		return fmt.Errorf("caching current session: %w", err)
	}

	path, ok := toolTouchedFile(hookInput)
	if !ok {
		// Nothing this tool call touched maps to a worktree file (e.g. a
		// read-only tool); nothing to attribute.
		return nil
	}

	sessionHash := authorshiplog.ShortHash(tool, session)

	changes := []workinglog.FileChange{{Path: path, Status: workinglog.StatusModified}}

	_, err = workinglog.BuildCheckpoint(cmd.Context(), wl, workinglog.BuildOptions{
		RepoRoot: repoRoot,
		BaseTree: baseTree,
		Changes:  changes,
		Kind:     workinglog.KindAIAgent,
		Author:   sessionHash,
		AgentID: &workinglog.AgentID{
			Tool: tool,
			ID:   session,
		},
		Transcript:  buildTranscriptExcerpt(hookInput),
		NewAuthorID: sessionHash,
		Timestamp:   time.Now().Unix(),
		Blame:       blame,
		Initial:     wl.ReadInitialAttributions(),
	})
	if err != nil {
		return fmt.Errorf("building agent checkpoint: %w", err)
	}
	return nil
}

// toolTouchedFile extracts the single file path a tool call edited, from
// either its input or its response payload. Tools this CLI doesn't
// recognize report !ok.
func toolTouchedFile(input *agent.HookInput) (string, bool) {
	var payload struct {
		FilePath string `json:"file_path"`
		Path     string `json:"path"`
	}
	for _, raw := range [][]byte{input.ToolInput, input.ToolResponse} {
		if len(raw) == 0 {
			continue
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}
		if payload.FilePath != "" {
			return payload.FilePath, true
		}
		if payload.Path != "" {
			return payload.Path, true
		}
	}
	return "", false
}

// resolveAgent returns the named agent, falling back to the configured
// default and then to auto-detection.
func resolveAgent(name string) (agent.Agent, error) {
	if name != "" {
		return agent.Get(agent.AgentName(name))
	}
	if detected, err := agent.Detect(); err == nil {
		return detected, nil
	}
	return agent.Get(agent.DefaultAgentName)
}

// blameServiceForCommit loads the authorship log attached to commitSHA (if
// any) so a checkpoint's "untouched line" owners resolve against prior
// attribution instead of falling back to the human sentinel.
func blameServiceForCommit(repo *vcs.Repo, commitSHA string) workinglog.BlameService {
	text, err := repo.ReadNote(commitSHA)
	if err != nil || text == "" {
		return workinglog.NoBlame
	}
	log, err := authorshiplog.Deserialize(text)
	if err != nil {
		return workinglog.NoBlame
	}
	return baseCommitBlame{
		logs:  []*authorshiplog.Log{log},
		notes: repo,
		cache: authorshiplog.NewNegativeCache(256),
	}
}

// baseCommitBlame adapts authorshiplog.LineLookup to workinglog.BlameService.
type baseCommitBlame struct {
	logs  []*authorshiplog.Log
	notes authorshiplog.NoteSource
	cache *authorshiplog.NegativeCache
}

func (b baseCommitBlame) LineAuthor(file string, line uint32) (string, bool) {
	res, ok := authorshiplog.LineLookup(b.logs, file, line, b.notes, nil, b.cache)
	if !ok {
		return "", false
	}
	return res.Hash, true
}

// changeStatusFromGitCode maps a go-git worktree status byte to the
// tracked-file status BuildCheckpoint expects.
func changeStatusFromGitCode(code byte) workinglog.ChangeStatus {
	switch code {
	case 'A', '?':
		return workinglog.StatusAdded
	case 'D':
		return workinglog.StatusDeleted
	case 'U':
		return workinglog.StatusUnmerged
	default:
		return workinglog.StatusModified
	}
}

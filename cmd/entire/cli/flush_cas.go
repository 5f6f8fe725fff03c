package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blametrail/cli/cmd/entire/cli/paths"
	"github.com/blametrail/cli/internal/attribution/workinglog"
)

func newFlushCASCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flush-cas",
		Short: "Remove working-log blobs no longer referenced by any checkpoint",
		Long: `Walks every working log's content-addressed blob store (one per
base commit under .entire/metadata/ai/working_logs) and deletes any blob
that no checkpoint in that log's checkpoints.jsonl still points at.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFlushCAS(cmd)
		},
	}
	return cmd
}

func runFlushCAS(cmd *cobra.Command) error {
	repoRoot, err := paths.RepoRoot()
	if err != nil {
		return NewSilentError(fmt.Errorf("not a git repository: %w", err))
	}

	workingLogsDir := filepath.Join(aiMetadataDir(repoRoot), "working_logs")
	entries, err := os.ReadDir(workingLogsDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "flush-cas: no working logs to compact")
			return nil
		}
		return fmt.Errorf("listing working logs: %w", err)
	}

	totalRemoved := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		baseSHA := entry.Name()
		log := workinglog.Open(aiMetadataDir(repoRoot), baseSHA)
		removed, err := log.CompactBlobs()
		if err != nil {
			return fmt.Errorf("compacting %s: %w", baseSHA, err)
		}
		totalRemoved += removed
	}

	fmt.Fprintf(cmd.OutOrStdout(), "flush-cas: removed %d orphan blobs across %d working log(s)\n", totalRemoved, len(entries))
	return nil
}

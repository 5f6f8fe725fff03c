package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blametrail/cli/internal/vcs"
)

// statsDelta reports how a session's contribution changed between two
// commits' authorship logs.
type statsDelta struct {
	Hash               string `json:"hash"`
	Tool               string `json:"tool,omitempty"`
	AdditionsDelta     int    `json:"additions_delta"`
	DeletionsDelta     int    `json:"deletions_delta"`
	AcceptedLinesDelta int    `json:"accepted_lines_delta"`
}

func newStatsDeltaCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats-delta",
		Short: "Show the per-session stats change between HEAD and its parent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatsDelta(cmd, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the delta as JSON")
	return cmd
}

func runStatsDelta(cmd *cobra.Command, asJSON bool) error {
	repo, head, err := openRepoAndResolve("")
	if err != nil {
		return err
	}

	headLog, err := loadAuthorshipLog(repo, vcs.CommitSHA(head))
	if err != nil {
		return err
	}

	priorByHash := map[string]authorStats{}
	if head.NumParents() > 0 {
		parent, err := head.Parent(0)
		if err != nil {
			return fmt.Errorf("reading parent commit: %w", err)
		}
		parentLog, err := loadAuthorshipLog(repo, vcs.CommitSHA(parent))
		if err != nil {
			return err
		}
		for _, s := range collectAuthorStats(parentLog) {
			priorByHash[s.Hash] = s
		}
	}

	headStats := collectAuthorStats(headLog)
	deltas := make([]statsDelta, 0, len(headStats))
	for _, s := range headStats {
		prior := priorByHash[s.Hash]
		deltas = append(deltas, statsDelta{
			Hash:               s.Hash,
			Tool:               s.Tool,
			AdditionsDelta:     s.TotalAdditions - prior.TotalAdditions,
			DeletionsDelta:     s.TotalDeletions - prior.TotalDeletions,
			AcceptedLinesDelta: s.AcceptedLines - prior.AcceptedLines,
		})
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(deltas)
	}

	w := cmd.OutOrStdout()
	for _, d := range deltas {
		fmt.Fprintf(w, "%-10s %-16s +%d/-%d  accepted%+d\n", d.Hash, d.Tool, d.AdditionsDelta, d.DeletionsDelta, d.AcceptedLinesDelta)
	}
	return nil
}

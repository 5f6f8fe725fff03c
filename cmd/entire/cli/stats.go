package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/blametrail/cli/internal/attribution/authorshiplog"
	"github.com/blametrail/cli/internal/vcs"
)

// authorStats aggregates one session's contribution across a commit's
// authorship log.
type authorStats struct {
	Hash            string `json:"hash"`
	Tool            string `json:"tool,omitempty"`
	TotalAdditions  int    `json:"total_additions"`
	TotalDeletions  int    `json:"total_deletions"`
	AcceptedLines   int    `json:"accepted_lines"`
	OverriddenLines int    `json:"overridden_lines"`
}

func newStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats [<commit>]",
		Short: "Show per-session attribution stats for a commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev := ""
			if len(args) == 1 {
				rev = args[0]
			}
			return runStats(cmd, rev, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print stats as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, rev string, asJSON bool) error {
	repo, commit, err := openRepoAndResolve(rev)
	if err != nil {
		return err
	}

	log, err := loadAuthorshipLog(repo, vcs.CommitSHA(commit))
	if err != nil {
		return err
	}

	stats := collectAuthorStats(log)

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	w := cmd.OutOrStdout()
	for _, s := range stats {
		fmt.Fprintf(w, "%-10s %-16s +%d/-%d  accepted=%d overridden=%d\n",
			s.Hash, s.Tool, s.TotalAdditions, s.TotalDeletions, s.AcceptedLines, s.OverriddenLines)
	}
	return nil
}

// collectAuthorStats flattens a log's metadata.prompts into a
// deterministically sorted stats slice (empty log -> empty slice, never
// nil, so JSON output is always `[]` rather than `null`).
func collectAuthorStats(log *authorshiplog.Log) []authorStats {
	stats := []authorStats{}
	if log == nil {
		return stats
	}
	for hash, record := range log.Metadata.Prompts {
		stats = append(stats, authorStats{
			Hash:            hash,
			Tool:            record.AgentID.Tool,
			TotalAdditions:  record.TotalAdditions,
			TotalDeletions:  record.TotalDeletions,
			AcceptedLines:   record.AcceptedLines,
			OverriddenLines: record.OverriddenLines,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Hash < stats[j].Hash })
	return stats
}

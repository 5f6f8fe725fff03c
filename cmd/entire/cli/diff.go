package cli

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/blametrail/cli/internal/vcs"
)

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <rev> | <revA>..<revB>",
		Short: "Show a diff overlaid with per-line attributions",
		Long:  "Diff view overlaid with per-line attributions: every added line is annotated with the human or AI session that authored it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, args[0])
		},
	}
	return cmd
}

func runDiff(cmd *cobra.Command, revSpec string) error {
	fromRev, toRev, hasRange := strings.Cut(revSpec, "..")
	if !hasRange {
		toRev = revSpec
	}

	toRepo, toCommit, err := openRepoAndResolve(toRev)
	if err != nil {
		return err
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return fmt.Errorf("reading %s tree: %w", toRev, err)
	}

	var fromTree *object.Tree
	if fromRev != "" {
		_, fromCommit, err := openRepoAndResolve(fromRev)
		if err != nil {
			return err
		}
		fromTree, err = fromCommit.Tree()
		if err != nil {
			return fmt.Errorf("reading %s tree: %w", fromRev, err)
		}
	} else {
		fromTree, err = vcs.ParentTree(toCommit)
		if err != nil {
			return fmt.Errorf("reading parent tree: %w", err)
		}
	}

	changed, err := vcs.ChangedFiles(fromTree, toTree)
	if err != nil {
		return fmt.Errorf("diffing trees: %w", err)
	}

	log, err := loadAuthorshipLog(toRepo, vcs.CommitSHA(toCommit))
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	dmp := diffmatchpatch.New()
	for _, path := range changed {
		oldContent, _, _ := vcs.FileContent(fromTree, path) //nolint:errcheck // absent old content just means an added file
		newContent, ok, err := vcs.FileContent(toTree, path)
		if err != nil || !ok {
			continue
		}

		attestation, hasAttestation := fileAttestation(log, path)

		fmt.Fprintf(w, "diff --entire a/%s b/%s\n", path, path)

		text1, text2, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
		diffs := dmp.DiffCharsToLines(dmp.DiffMain(text1, text2, false), lineArray)

		var newLine uint32
		for _, d := range diffs {
			for _, line := range diffLines(d.Text) {
				switch d.Type {
				case diffmatchpatch.DiffEqual:
					newLine++
					fmt.Fprintf(w, " %s\n", line)
				case diffmatchpatch.DiffInsert:
					newLine++
					author := lineAuthorLabel(log, attestation, hasAttestation, newLine)
					fmt.Fprintf(w, "+[%s] %s\n", author, line)
				case diffmatchpatch.DiffDelete:
					fmt.Fprintf(w, "-%s\n", line)
				}
			}
		}
	}
	return nil
}

// diffLines splits a diffmatchpatch line-mode chunk into its constituent
// lines, dropping the single trailing empty element left by a final
// newline.
func diffLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/montybuilt/MPS-sub000/internal/curriculum"
	"github.com/montybuilt/MPS-sub000/internal/eventlog"
	"github.com/montybuilt/MPS-sub000/internal/progress"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kpi",
		Short:         "Offline learner progress summaries",
		Long:          "kpi folds an exported attempt log and a curriculum directory into KPI, completion and tag summaries.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("tree", "./content", "Curriculum directory (YAML content files)")
	root.PersistentFlags().String("attempts", "", "JSON file holding the attempt log")
	root.PersistentFlags().String("owner", "", "Learner whose assignments to use (empty means every content)")

	root.AddCommand(newSummaryCmd())
	root.AddCommand(newCompletedCmd())
	root.AddCommand(newTagsCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newNextCmd())
	root.AddCommand(newSeedCmd())
	return root
}

// inputs is what most commands need: the learner's tree and attempt log.
type inputs struct {
	owner    string
	tree     progress.AssignmentTree
	attempts []progress.AttemptRecord
}

func loadInputs(cmd *cobra.Command) (*inputs, error) {
	dir, _ := cmd.Flags().GetString("tree")
	path, _ := cmd.Flags().GetString("attempts")
	owner, _ := cmd.Flags().GetString("owner")

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		return nil, err
	}
	attempts, err := readAttempts(path)
	if err != nil {
		return nil, err
	}
	return &inputs{owner: owner, tree: loader.Tree(owner), attempts: attempts}, nil
}

// readAttempts reads a JSON array of attempts, or a profile bundle with an
// xpData field. Duplicate records are dropped. An empty path means no
// attempts.
func readAttempts(path string) ([]progress.AttemptRecord, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading attempts: %w", err)
	}

	var records []progress.AttemptRecord
	if err := json.Unmarshal(data, &records); err != nil {
		var bundle struct {
			XPData []progress.AttemptRecord `json:"xpData"`
		}
		if err2 := json.Unmarshal(data, &bundle); err2 != nil {
			return nil, fmt.Errorf("parsing attempts %s: %w", path, err)
		}
		records = bundle.XPData
	}
	log := eventlog.New("")
	log.Dedupe = true
	log.Apply(records, "")
	return log.Records, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

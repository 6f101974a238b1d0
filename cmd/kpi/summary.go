package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/montybuilt/MPS-sub000/internal/progress"
	"github.com/montybuilt/MPS-sub000/internal/report"
)

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the KPI summary as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := loadInputs(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd, progress.CalculateKPIs(in.attempts, in.tree))
		},
	}
}

func newCompletedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completed",
		Short: "List completed curricula, one per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := loadInputs(cmd)
			if err != nil {
				return err
			}
			for _, id := range progress.IdentifyCompletedCurriculums(in.attempts, in.tree).Sorted() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Print the tag summary, or tag performance for one content",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := loadInputs(cmd)
			if err != nil {
				return err
			}
			summary := progress.BuildTagSummary(in.tree)
			if content, _ := cmd.Flags().GetString("content"); content != "" {
				return printJSON(cmd, progress.TagPerformanceFor(content, summary, in.attempts))
			}
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().String("content", "", "Report earned XP per tag for this content")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the progress report workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := loadInputs(cmd)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")

			summary := progress.BuildTagSummary(in.tree)
			tags := make(map[string][]progress.TagPerformance, len(summary))
			for contentID := range summary {
				tags[contentID] = progress.TagPerformanceFor(contentID, summary, in.attempts)
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			err = report.Write(f, report.Workbook{
				Owner:     in.owner,
				Generated: time.Now(),
				KPIs:      progress.CalculateKPIs(in.attempts, in.tree),
				Completed: progress.IdentifyCompletedCurriculums(in.attempts, in.tree),
				Tags:      tags,
			})
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().String("out", "progress.xlsx", "Output workbook path")
	return cmd
}

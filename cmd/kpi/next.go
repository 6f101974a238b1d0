package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/montybuilt/MPS-sub000/internal/progress"
	"github.com/montybuilt/MPS-sub000/internal/quiz"
)

func newNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Pick the next question of a curriculum",
		Long:  "next prints the first task not yet answered correctly, then the first task ever missed, then the first task.",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, _ := cmd.Flags().GetStringSlice("tasks")
			correct, _ := cmd.Flags().GetStringSlice("correct")
			incorrect, _ := cmd.Flags().GetStringSlice("incorrect")
			if len(tasks) == 0 {
				return fmt.Errorf("--tasks is required")
			}
			fmt.Fprintln(cmd.OutOrStdout(), quiz.ChooseNextQuestion(tasks, progress.NewSet(correct...), progress.NewSet(incorrect...)))
			return nil
		},
	}
	cmd.Flags().StringSlice("tasks", nil, "Ordered task keys of the curriculum")
	cmd.Flags().StringSlice("correct", nil, "Questions answered correctly")
	cmd.Flags().StringSlice("incorrect", nil, "Questions answered incorrectly")
	return cmd
}

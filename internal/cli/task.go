package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/taskmachine/internal/config"
	"github.com/shaiso/taskmachine/internal/domain"
)

// NewTaskCmd создаёт группу команд журнала задач.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect the task journal",
	}

	cmd.AddCommand(
		newTaskShowCmd(clientFn, outputFn),
		newTaskStaleCmd(clientFn, outputFn),
	)

	return cmd
}

var taskHeaders = []string{"WORKER", "SUBJECT_ID", "STATE", "ATTEMPT", "STATUS", "ERROR", "UPDATED"}

func taskRow(t domain.Task) []string {
	return []string{
		t.Worker,
		t.SubjectID,
		string(t.State),
		strconv.Itoa(t.Attempt),
		string(t.Status),
		t.Error,
		t.UpdatedAt.Format(time.RFC3339),
	}
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show WORKER SUBJECT_ID",
		Short: "Show the last journal entry of a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			journal, pool, err := clientFn().Journal(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			task, err := journal.Get(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			return outputFn().Print(taskHeaders, [][]string{taskRow(*task)}, task)
		},
	}
}

func newTaskStaleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var olderThan time.Duration
	var limit int

	cmd := &cobra.Command{
		Use:   "stale WORKER",
		Short: "List tasks without progress beyond the wait threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			journal, pool, err := clientFn().Journal(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			tasks, err := journal.ListStale(ctx, args[0], olderThan, limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = taskRow(t)
			}

			return outputFn().Print(taskHeaders, rows, tasks)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", config.DefaultWaitThreshold, "Idle time threshold")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of results")

	return cmd
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/ledger"
	"github.com/roach88/sovereign/internal/store"
)

// NewTaskCommand creates the task command group.
func NewTaskCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "List tasks and move them through their lifecycle",
	}
	cmd.AddCommand(newTaskListCommand(rootOpts))
	cmd.AddCommand(newTaskStatusCommand(rootOpts))
	return cmd
}

// TaskListOptions holds flags for task list.
type TaskListOptions struct {
	*RootOptions
	Status string
	Limit  int
	Newest bool
}

func newTaskListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TaskListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, oldest first",
		Long: `List tasks in creation order.

Examples:
  sovereign task list
  sovereign task list --status pending --newest --limit 5`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := store.Query{Limit: opts.Limit}
			if opts.Status != "" {
				status := ir.TaskStatus(opts.Status)
				if !status.Valid() {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown task status %q", opts.Status))
				}
				q.Filters = append(q.Filters, store.Eq("status", string(status)))
			}
			if opts.Newest {
				q.Order = store.Desc
			}
			return withLedger(rootOpts, func(l *ledger.Ledger) error {
				tasks, err := l.Tasks(cmd.Context(), q)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Emit(tasks, formatTasks(tasks))
			})
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "only tasks with this status")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of tasks (0 for all)")
	cmd.Flags().BoolVar(&opts.Newest, "newest", false, "newest first")

	return cmd
}

func formatTasks(tasks []ir.Task) string {
	if len(tasks) == 0 {
		return "No tasks."
	}
	var b strings.Builder
	for i, t := range tasks {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-36s  %-7s  p%d  %s", t.ID, t.Status, t.Priority, t.Title)
	}
	return b.String()
}

// TaskStatusResult is reported after a status change.
type TaskStatusResult struct {
	ID     string        `json:"id"`
	Status ir.TaskStatus `json:"status"`
}

func newTaskStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <pending|active|done>",
		Short: "Change a task's status",
		Long: `Move a task along pending -> active -> done.

Active tasks may go back to pending; nothing leaves done.

Examples:
  sovereign task status <id> active`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, status := args[0], ir.TaskStatus(args[1])
			return withLedger(rootOpts, func(l *ledger.Ledger) error {
				if err := l.Batch().SetTaskStatus(cmd.Context(), id, status); err != nil {
					return err
				}
				text := fmt.Sprintf("Task %s is %s.", id, status)
				return rootOpts.formatter(cmd).Emit(TaskStatusResult{ID: id, Status: status}, text)
			})
		},
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/taskgate/taskgate/internal/model"
	"github.com/taskgate/taskgate/internal/store"
)

// dueLayout is the accepted format for --due.
const dueLayout = "2006-01-02"

const defaultListLimit = 100

var errTaskIDArgRequired = errors.New("task id argument required")

func cmdAdd(a *App) *Command {
	flags := flag.NewFlagSet("add", flag.ContinueOnError)
	title := flags.StringP("title", "t", "", "Task title (required)")
	assignees := flags.StringSliceP("assignee", "a", nil, "Assignee user id (repeatable)")
	project := flags.StringP("project", "p", "", "Project id")
	due := flags.String("due", "", "Due date (YYYY-MM-DD)")

	return &Command{
		Flags: flags,
		Usage: "add -t <title> [flags]",
		Short: "Create a new pending task",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			task := model.Task{
				Title:     *title,
				Status:    model.StatusPending,
				Assignees: *assignees,
				ProjectID: *project,
			}

			if *due != "" {
				parsed, err := time.ParseInLocation(dueLayout, *due, time.UTC)
				if err != nil {
					return fmt.Errorf("invalid --due %q: expected %s", *due, dueLayout)
				}

				task.DueDate = &parsed
			}

			saved, err := a.Store.PutTask(ctx, task)
			if err != nil {
				return err
			}

			if err := a.Engine.Refresh(ctx); err != nil {
				return err
			}

			o.Println(saved.ID)

			return nil
		},
	}
}

func cmdLs(a *App) *Command {
	flags := flag.NewFlagSet("ls", flag.ContinueOnError)
	status := flags.String("status", "", "Filter by status")
	project := flags.String("project", "", "Filter by project id")
	assignee := flags.String("assignee", "", "Filter by assignee user id")
	archived := flags.Bool("archived", false, "Include archived tasks")
	limit := flags.Int("limit", defaultListLimit, "Maximum tasks to show")
	offset := flags.Int("offset", 0, "Skip first N tasks")

	return &Command{
		Flags: flags,
		Usage: "ls [flags]",
		Short: "List tasks in creation order",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			if *status != "" && !model.IsValidTaskStatus(*status) {
				return fmt.Errorf("%w: %q", model.ErrInvalidStatus, *status)
			}

			if *limit < 0 || *offset < 0 {
				return errors.New("--limit and --offset must be non-negative")
			}

			tasks, err := a.Store.ListTasks(ctx, store.TaskQuery{
				Status:          *status,
				ProjectID:       *project,
				AssigneeID:      *assignee,
				IncludeArchived: *archived,
				Limit:           *limit,
				Offset:          *offset,
			})
			if err != nil {
				return err
			}

			for _, task := range tasks {
				o.Println(a.formatTaskLine(task))
			}

			return nil
		},
	}
}

func cmdShow(a *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("show", flag.ContinueOnError),
		Usage: "show <id>",
		Short: "Show one task with its restrictions",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errTaskIDArgRequired
			}

			task, err := a.Store.GetTask(ctx, args[0])
			if err != nil {
				return err
			}

			o.Println("id:       ", task.ID)
			o.Println("title:    ", task.Title)
			o.Println("status:   ", task.Status)

			if len(task.Assignees) > 0 {
				o.Println("assignees:", strings.Join(task.Assignees, ", "))
			}

			if task.ProjectID != "" {
				o.Println("project:  ", task.ProjectID)
			}

			if task.DueDate != nil {
				o.Println("due:      ", task.DueDate.Format(dueLayout))
			}

			if task.Archived {
				o.Println("archived:  true")
			}

			snapshot := a.Engine.Snapshot()

			available := "no"
			if snapshot.IsAvailable(task.ID) {
				available = "yes"
			}

			o.Println("available:", available)

			for _, r := range snapshot.ActiveBlockersOf(task.ID) {
				o.Printf("blocked-by: %s (restriction %s, owner %s)\n",
					r.BlockingTaskID, r.ID, r.BlockingUserID)
			}

			for _, r := range snapshot.ActiveDependentsOf(task.ID) {
				o.Printf("blocking:   %s (restriction %s)\n", r.WaitingTaskID, r.ID)
			}

			return nil
		},
	}
}

func cmdStart(a *App) *Command {
	return statusCommand(a, "start <id>", "Move a task to in_progress", model.StatusInProgress)
}

func cmdHold(a *App) *Command {
	return statusCommand(a, "hold <id>", "Put a task on hold", model.StatusOnHold)
}

func cmdStall(a *App) *Command {
	return statusCommand(a, "stall <id>", "Mark a task as stalled", model.StatusStalled)
}

func cmdResume(a *App) *Command {
	return statusCommand(a, "resume <id>", "Return a task to pending", model.StatusPending)
}

// statusCommand builds the shared single-argument status transitions.
// Completed tasks are rejected: undoing a completion is reopen's job because
// it also reinstates the restrictions the completion resolved.
func statusCommand(a *App, usage, short, status string) *Command {
	return &Command{
		Flags: flag.NewFlagSet(status, flag.ContinueOnError),
		Usage: usage,
		Short: short,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errTaskIDArgRequired
			}

			task, err := a.Store.GetTask(ctx, args[0])
			if err != nil {
				return err
			}

			if task.Status == model.StatusCompleted {
				return fmt.Errorf("%w: %s, use reopen", model.ErrTaskAlreadyCompleted, task.ID)
			}

			if task.Status == status {
				o.Warn("task is already "+status, "no transition was applied; check the id")

				return nil
			}

			err = a.Store.UpdateTaskStatus(ctx, task.ID, status, nil)
			if err != nil {
				return err
			}

			if err := a.Engine.Refresh(ctx); err != nil {
				return err
			}

			o.Println(task.ID, "->", status)

			return nil
		},
	}
}

func cmdComplete(a *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("complete", flag.ContinueOnError),
		Usage: "complete <id>",
		Short: "Complete a task and release its dependents",
		Long: `Complete a task. Every active restriction the task was blocking is
auto-resolved, which can make other tasks available immediately.
Completing an already completed task re-runs the release, so a partially
failed completion can be retried safely.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errTaskIDArgRequired
			}

			err := a.Engine.OnTaskCompleted(ctx, args[0])
			if err != nil {
				return err
			}

			o.Println(args[0], "->", model.StatusCompleted)

			return nil
		},
	}
}

func cmdReopen(a *App) *Command {
	flags := flag.NewFlagSet("reopen", flag.ContinueOnError)
	status := flags.String("status", model.StatusPending, "Status to reopen into (pending|in_progress)")

	return &Command{
		Flags: flags,
		Usage: "reopen <id> [--status=X]",
		Short: "Reopen a completed task",
		Long: `Reopen a completed task. Restrictions that were auto-resolved by the
completion become active again; manually resolved or cancelled ones stay
terminal.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errTaskIDArgRequired
			}

			err := a.Engine.OnTaskReopened(ctx, args[0], *status)
			if err != nil {
				return err
			}

			o.Println(args[0], "->", *status)

			return nil
		},
	}
}

func cmdArchive(a *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("archive", flag.ContinueOnError),
		Usage: "archive <id>",
		Short: "Archive (soft-delete) a task",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errTaskIDArgRequired
			}

			err := a.Store.ArchiveTask(ctx, args[0])
			if err != nil {
				return err
			}

			if err := a.Engine.Refresh(ctx); err != nil {
				return err
			}

			o.Println(args[0], "archived")

			return nil
		},
	}
}

// formatTaskLine renders one ls line: id, status, title, due date and the
// ids of any active blockers.
func (a *App) formatTaskLine(task model.Task) string {
	var builder strings.Builder

	builder.WriteString(task.ID)
	builder.WriteString(" [")
	builder.WriteString(task.Status)
	builder.WriteString("] - ")
	builder.WriteString(task.Title)

	if task.DueDate != nil {
		builder.WriteString(" (due ")
		builder.WriteString(task.DueDate.Format(dueLayout))
		builder.WriteString(")")
	}

	blockers := a.Engine.Snapshot().ActiveBlockersOf(task.ID)
	if len(blockers) > 0 {
		ids := make([]string, 0, len(blockers))
		for _, r := range blockers {
			ids = append(ids, r.BlockingTaskID)
		}

		builder.WriteString(" <- blocked-by: [")
		builder.WriteString(strings.Join(ids, ", "))
		builder.WriteString("]")
	}

	return builder.String()
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/taskgate/taskgate/internal/metrics"
	"github.com/taskgate/taskgate/internal/store"
)

// exportDocument is the JSON shape written by tg export. Dashboards consume
// it directly, so the field names are part of the interface.
type exportDocument struct {
	ExportedAt   time.Time                      `json:"exported_at"`
	Tasks        []exportTask                   `json:"tasks"`
	Restrictions []exportRestriction            `json:"restrictions"`
	Metrics      map[string]metrics.UserMetrics `json:"metrics"`
}

type exportTask struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Assignees   []string   `json:"assignees"`
	ProjectID   string     `json:"project_id,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Available   bool       `json:"available"`
}

type exportRestriction struct {
	ID             string     `json:"id"`
	WaitingTaskID  string     `json:"waiting_task_id"`
	BlockingTaskID string     `json:"blocking_task_id"`
	BlockingUserID string     `json:"blocking_user_id"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	AutoResolved   bool       `json:"auto_resolved"`
}

func cmdExport(a *App) *Command {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	out := flags.StringP("out", "o", "", "Output file (required)")

	return &Command{
		Flags: flags,
		Usage: "export -o <file>",
		Short: "Write a JSON dashboard snapshot",
		Long: `Export all tasks, restrictions and per-user metrics as one JSON
document. The file is replaced atomically, so a dashboard polling it
never reads a half-written snapshot.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			if *out == "" {
				return errors.New("--out is required")
			}

			doc, err := buildExport(ctx, a)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal export: %w", err)
			}

			path := *out
			if !filepath.IsAbs(path) {
				path = filepath.Join(a.Cfg.EffectiveCwd, path)
			}

			err = atomic.WriteFile(path, bytes.NewReader(append(data, '\n')))
			if err != nil {
				return fmt.Errorf("write export: %w", err)
			}

			o.Println("exported", len(doc.Tasks), "tasks,", len(doc.Restrictions), "restrictions to", path)

			return nil
		},
	}
}

func buildExport(ctx context.Context, a *App) (exportDocument, error) {
	tasks, err := a.Store.ListTasks(ctx, store.TaskQuery{})
	if err != nil {
		return exportDocument{}, err
	}

	restrictions, err := a.Store.ListRestrictions(ctx, store.RestrictionQuery{})
	if err != nil {
		return exportDocument{}, err
	}

	snapshot := a.Engine.Snapshot()

	doc := exportDocument{
		ExportedAt:   time.Now().UTC(),
		Tasks:        make([]exportTask, 0, len(tasks)),
		Restrictions: make([]exportRestriction, 0, len(restrictions)),
		Metrics:      a.Engine.MetricsForAll(),
	}

	for _, task := range tasks {
		doc.Tasks = append(doc.Tasks, exportTask{
			ID:          task.ID,
			Title:       task.Title,
			Status:      task.Status,
			Assignees:   task.Assignees,
			ProjectID:   task.ProjectID,
			DueDate:     task.DueDate,
			CreatedAt:   task.CreatedAt,
			CompletedAt: task.CompletedAt,
			Available:   snapshot.IsAvailable(task.ID),
		})
	}

	for _, r := range restrictions {
		doc.Restrictions = append(doc.Restrictions, exportRestriction(r))
	}

	return doc, nil
}

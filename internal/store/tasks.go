package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskgate/taskgate/internal/feed"
	"github.com/taskgate/taskgate/internal/model"
)

// TaskQuery mirrors the allowed row-level filters; zero values mean "no filter".
// Archived tasks are excluded unless IncludeArchived is set.
type TaskQuery struct {
	Status          string
	ProjectID       string
	AssigneeID      string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// PutTask inserts or replaces a task together with its assignee set.
// An empty ID gets a freshly generated one; the stored task is returned.
func (s *Store) PutTask(ctx context.Context, task model.Task) (model.Task, error) {
	if task.ID == "" {
		task.ID = model.NewID()
	}

	if task.Title == "" {
		return model.Task{}, model.ErrTitleRequired
	}

	if !model.IsValidTaskStatus(task.Status) {
		return model.Task{}, fmt.Errorf("%w: %q", model.ErrInvalidStatus, task.Status)
	}

	if task.CreatedAt.IsZero() {
		// Second precision matches what the integer column can round-trip.
		task.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	tx, err := s.sql.BeginTx(ctx, nil)
	if err != nil {
		return model.Task{}, unavailable("put task", err)
	}

	defer func() { _ = tx.Rollback() }()

	var existed bool

	row := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE id = ?", task.ID)

	var count int
	if scanErr := row.Scan(&count); scanErr != nil {
		return model.Task{}, unavailable("put task", scanErr)
	}

	existed = count > 0

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO tasks (
			id, title, status, project_id, due_date, created_at, completed_at, archived
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.Title,
		task.Status,
		sql.NullString{String: task.ProjectID, Valid: task.ProjectID != ""},
		timeToNull(task.DueDate),
		task.CreatedAt.Unix(),
		timeToNull(task.CompletedAt),
		boolToInt(task.Archived),
	)
	if err != nil {
		return model.Task{}, unavailable("put task", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM task_assignees WHERE task_id = ?", task.ID)
	if err != nil {
		return model.Task{}, unavailable("put task: clear assignees", err)
	}

	for _, userID := range task.Assignees {
		_, err = tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO task_assignees (task_id, user_id) VALUES (?, ?)",
			task.ID, userID)
		if err != nil {
			return model.Task{}, unavailable("put task: insert assignee", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return model.Task{}, unavailable("put task: commit", err)
	}

	kind := feed.KindInsert
	if existed {
		kind = feed.KindUpdate
	}

	s.publish(feed.TableTasks, kind, task.ID)

	return task, nil
}

// GetTask returns a single task by id, archived or not.
func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	if id == "" {
		return model.Task{}, model.ErrTaskIDRequired
	}

	tasks, err := s.queryTasks(ctx, "t.id = ?", []any{id}, true, 0, 0)
	if err != nil {
		return model.Task{}, err
	}

	if len(tasks) == 0 {
		return model.Task{}, fmt.Errorf("%w: %s", model.ErrTaskNotFound, id)
	}

	return tasks[0], nil
}

// ListTasks returns tasks matching the query, ordered by id (creation order).
func (s *Store) ListTasks(ctx context.Context, query TaskQuery) ([]model.Task, error) {
	var (
		clauses []string
		args    []any
	)

	if query.Status != "" {
		clauses = append(clauses, "t.status = ?")
		args = append(args, query.Status)
	}

	if query.ProjectID != "" {
		clauses = append(clauses, "t.project_id = ?")
		args = append(args, query.ProjectID)
	}

	if query.AssigneeID != "" {
		clauses = append(clauses, "t.id IN (SELECT task_id FROM task_assignees WHERE user_id = ?)")
		args = append(args, query.AssigneeID)
	}

	where := strings.Join(clauses, " AND ")

	return s.queryTasks(ctx, where, args, query.IncludeArchived, query.Limit, query.Offset)
}

// UpdateTaskStatus sets a task's status and completion timestamp in one
// single-record write. completedAt nil clears the stamp.
func (s *Store) UpdateTaskStatus(ctx context.Context, id, status string, completedAt *time.Time) error {
	if id == "" {
		return model.ErrTaskIDRequired
	}

	if !model.IsValidTaskStatus(status) {
		return fmt.Errorf("%w: %q", model.ErrInvalidStatus, status)
	}

	result, err := s.sql.ExecContext(ctx,
		"UPDATE tasks SET status = ?, completed_at = ? WHERE id = ?",
		status, timeToNull(completedAt), id)
	if err != nil {
		return unavailable("update task status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return unavailable("update task status", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", model.ErrTaskNotFound, id)
	}

	s.publish(feed.TableTasks, feed.KindUpdate, id)

	return nil
}

// ArchiveTask soft-deletes a task. Archived tasks drop out of every query;
// their restrictions are untouched (archival is outside engine semantics).
func (s *Store) ArchiveTask(ctx context.Context, id string) error {
	if id == "" {
		return model.ErrTaskIDRequired
	}

	result, err := s.sql.ExecContext(ctx, "UPDATE tasks SET archived = 1 WHERE id = ?", id)
	if err != nil {
		return unavailable("archive task", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return unavailable("archive task", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", model.ErrTaskNotFound, id)
	}

	s.publish(feed.TableTasks, feed.KindDelete, id)

	return nil
}

// queryTasks fetches tasks and their assignees in a single LEFT JOIN query,
// merging assignee rows into each task.
func (s *Store) queryTasks(ctx context.Context, where string, args []any, includeArchived bool, limit, offset int) ([]model.Task, error) {
	clauses := []string{}
	if where != "" {
		clauses = append(clauses, where)
	}

	if !includeArchived {
		clauses = append(clauses, "t.archived = 0")
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	subquery := "SELECT * FROM tasks t" + whereClause + " ORDER BY t.id"

	if limit > 0 {
		subquery += " LIMIT ?"

		args = append(args, limit)
	} else if offset > 0 {
		// SQLite requires LIMIT with OFFSET; -1 means no limit.
		subquery += " LIMIT -1"
	}

	if offset > 0 {
		subquery += " OFFSET ?"

		args = append(args, offset)
	}

	query := `
		SELECT t.id, t.title, t.status, t.project_id, t.due_date, t.created_at,
			t.completed_at, t.archived, a.user_id
		FROM (` + subquery + `) t
		LEFT JOIN task_assignees a ON t.id = a.task_id
		ORDER BY t.id, a.user_id`

	rows, err := s.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query tasks", err)
	}

	defer func() { _ = rows.Close() }()

	var (
		tasks   []model.Task
		current *model.Task
	)

	for rows.Next() {
		var (
			id        string
			title     string
			status    string
			projectID sql.NullString
			dueDate   sql.NullInt64
			createdAt int64
			completed sql.NullInt64
			archived  int
			userID    sql.NullString
		)

		scanErr := rows.Scan(&id, &title, &status, &projectID, &dueDate, &createdAt, &completed, &archived, &userID)
		if scanErr != nil {
			return nil, unavailable("scan task", scanErr)
		}

		if current == nil || current.ID != id {
			tasks = append(tasks, model.Task{
				ID:          id,
				Title:       title,
				Status:      status,
				Assignees:   []string{},
				ProjectID:   nullStringValue(projectID),
				DueDate:     nullToTime(dueDate),
				CreatedAt:   time.Unix(createdAt, 0).UTC(),
				CompletedAt: nullToTime(completed),
				Archived:    archived != 0,
			})
			current = &tasks[len(tasks)-1]
		}

		if userID.Valid {
			current.Assignees = append(current.Assignees, userID.String)
		}
	}

	err = rows.Err()
	if err != nil {
		return nil, unavailable("iterate tasks", err)
	}

	if tasks == nil {
		tasks = []model.Task{}
	}

	return tasks, nil
}

func timeToNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullToTime(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}

	parsed := time.Unix(value.Int64, 0).UTC()

	return &parsed
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

// errIsNoRows reports whether err is the driver's no-rows sentinel.
func errIsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

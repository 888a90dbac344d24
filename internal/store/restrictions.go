package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/taskgate/taskgate/internal/feed"
	"github.com/taskgate/taskgate/internal/model"
)

// RestrictionQuery mirrors the allowed row-level filters; zero values mean
// "no filter".
type RestrictionQuery struct {
	Status         string
	WaitingTaskID  string
	BlockingTaskID string
	BlockingUserID string
}

// InsertRestriction persists a new restriction edge. An empty ID gets a
// freshly generated one; the stored restriction is returned.
//
// InsertRestriction is a plain record write: semantic validation (self
// dependency, duplicates, cycles, assignee membership) belongs to the engine.
func (s *Store) InsertRestriction(ctx context.Context, restriction model.Restriction) (model.Restriction, error) {
	if restriction.ID == "" {
		restriction.ID = model.NewID()
	}

	if restriction.Status == "" {
		restriction.Status = model.RestrictionActive
	}

	if !model.IsValidRestrictionStatus(restriction.Status) {
		return model.Restriction{}, fmt.Errorf("%w: %q", model.ErrInvalidStatus, restriction.Status)
	}

	if restriction.CreatedAt.IsZero() {
		restriction.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	_, err := s.sql.ExecContext(ctx, `
		INSERT INTO restrictions (
			id, waiting_task_id, blocking_task_id, blocking_user_id,
			status, created_at, resolved_at, auto_resolved
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		restriction.ID,
		restriction.WaitingTaskID,
		restriction.BlockingTaskID,
		restriction.BlockingUserID,
		restriction.Status,
		restriction.CreatedAt.Unix(),
		timeToNull(restriction.ResolvedAt),
		boolToInt(restriction.AutoResolved),
	)
	if err != nil {
		return model.Restriction{}, unavailable("insert restriction", err)
	}

	s.publish(feed.TableRestrictions, feed.KindInsert, restriction.ID)

	return restriction, nil
}

// GetRestriction returns a single restriction by id.
func (s *Store) GetRestriction(ctx context.Context, id string) (model.Restriction, error) {
	row := s.sql.QueryRowContext(ctx, `
		SELECT id, waiting_task_id, blocking_task_id, blocking_user_id,
			status, created_at, resolved_at, auto_resolved
		FROM restrictions WHERE id = ?`, id)

	restriction, err := scanRestriction(row)
	if err != nil {
		if errIsNoRows(err) {
			return model.Restriction{}, fmt.Errorf("%w: %s", model.ErrRestrictionNotFound, id)
		}

		return model.Restriction{}, unavailable("get restriction", err)
	}

	return restriction, nil
}

// ListRestrictions returns restrictions matching the query, ordered by id
// (creation order).
func (s *Store) ListRestrictions(ctx context.Context, query RestrictionQuery) ([]model.Restriction, error) {
	var (
		clauses []string
		args    []any
	)

	if query.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, query.Status)
	}

	if query.WaitingTaskID != "" {
		clauses = append(clauses, "waiting_task_id = ?")
		args = append(args, query.WaitingTaskID)
	}

	if query.BlockingTaskID != "" {
		clauses = append(clauses, "blocking_task_id = ?")
		args = append(args, query.BlockingTaskID)
	}

	if query.BlockingUserID != "" {
		clauses = append(clauses, "blocking_user_id = ?")
		args = append(args, query.BlockingUserID)
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.sql.QueryContext(ctx, `
		SELECT id, waiting_task_id, blocking_task_id, blocking_user_id,
			status, created_at, resolved_at, auto_resolved
		FROM restrictions`+whereClause+` ORDER BY id`, args...)
	if err != nil {
		return nil, unavailable("query restrictions", err)
	}

	defer func() { _ = rows.Close() }()

	restrictions := []model.Restriction{}

	for rows.Next() {
		restriction, scanErr := scanRestriction(rows)
		if scanErr != nil {
			return nil, unavailable("scan restriction", scanErr)
		}

		restrictions = append(restrictions, restriction)
	}

	err = rows.Err()
	if err != nil {
		return nil, unavailable("iterate restrictions", err)
	}

	return restrictions, nil
}

// FindActivePair returns the Active restriction with the given task pair, if
// one exists. At most one can exist (duplicate creation is rejected upstream).
func (s *Store) FindActivePair(ctx context.Context, waitingTaskID, blockingTaskID string) (model.Restriction, bool, error) {
	row := s.sql.QueryRowContext(ctx, `
		SELECT id, waiting_task_id, blocking_task_id, blocking_user_id,
			status, created_at, resolved_at, auto_resolved
		FROM restrictions
		WHERE waiting_task_id = ? AND blocking_task_id = ? AND status = ?
		ORDER BY id LIMIT 1`,
		waitingTaskID, blockingTaskID, model.RestrictionActive)

	restriction, err := scanRestriction(row)
	if err != nil {
		if errIsNoRows(err) {
			return model.Restriction{}, false, nil
		}

		return model.Restriction{}, false, unavailable("find active pair", err)
	}

	return restriction, true, nil
}

// TerminateRestriction transitions an Active restriction to the given
// terminal status in one single-record write. It returns whether the row
// changed: false with a nil error means the restriction was already terminal,
// which callers treat as idempotent success.
func (s *Store) TerminateRestriction(ctx context.Context, id, status string, resolvedAt time.Time, autoResolved bool) (bool, error) {
	if status != model.RestrictionResolved && status != model.RestrictionCancelled {
		return false, fmt.Errorf("%w: %q is not terminal", model.ErrInvalidStatus, status)
	}

	result, err := s.sql.ExecContext(ctx, `
		UPDATE restrictions
		SET status = ?, resolved_at = ?, auto_resolved = ?
		WHERE id = ? AND status = ?`,
		status, resolvedAt.Unix(), boolToInt(autoResolved), id, model.RestrictionActive)
	if err != nil {
		return false, unavailable("terminate restriction", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("terminate restriction", err)
	}

	if affected == 0 {
		// Distinguish "already terminal" from "no such restriction".
		_, getErr := s.GetRestriction(ctx, id)
		if getErr != nil {
			return false, getErr
		}

		return false, nil
	}

	s.publish(feed.TableRestrictions, feed.KindUpdate, id)

	return true, nil
}

// ReinstateRestriction returns an auto-resolved restriction to Active,
// clearing the resolution stamp. Only resolved rows are touched; the caller
// selects which ones qualify.
func (s *Store) ReinstateRestriction(ctx context.Context, id string) (bool, error) {
	result, err := s.sql.ExecContext(ctx, `
		UPDATE restrictions
		SET status = ?, resolved_at = NULL, auto_resolved = 0
		WHERE id = ? AND status = ?`,
		model.RestrictionActive, id, model.RestrictionResolved)
	if err != nil {
		return false, unavailable("reinstate restriction", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("reinstate restriction", err)
	}

	if affected == 0 {
		return false, nil
	}

	s.publish(feed.TableRestrictions, feed.KindUpdate, id)

	return true, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRestriction(row rowScanner) (model.Restriction, error) {
	var (
		id         string
		waitingID  string
		blockingID string
		userID     string
		status     string
		createdAt  int64
		resolvedAt sql.NullInt64
		auto       int
	)

	err := row.Scan(&id, &waitingID, &blockingID, &userID, &status, &createdAt, &resolvedAt, &auto)
	if err != nil {
		return model.Restriction{}, err
	}

	return model.Restriction{
		ID:             id,
		WaitingTaskID:  waitingID,
		BlockingTaskID: blockingID,
		BlockingUserID: userID,
		Status:         status,
		CreatedAt:      time.Unix(createdAt, 0).UTC(),
		ResolvedAt:     nullToTime(resolvedAt),
		AutoResolved:   auto != 0,
	}, nil
}

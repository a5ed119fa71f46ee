package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anupamxy/kanban-board/internal/conflict"
	"github.com/anupamxy/kanban-board/internal/models"
	"github.com/anupamxy/kanban-board/internal/position"
)

// ErrNotFound is returned when the target task does not exist.
var ErrNotFound = errors.New("task not found")

// ErrValidation wraps rejections of malformed input (bad column, oversized
// text, non-positive position).
var ErrValidation = errors.New("validation failed")

// Conflict resolutions reported alongside a write.
const (
	ResolutionMerged   = "MERGED"
	ResolutionRejected = "REJECTED"
)

// Conflict describes how a mutation was reconciled against concurrent writes.
// A nil *Conflict means the mutation applied cleanly.
type Conflict struct {
	Resolution     string   `json:"resolution"`
	MergedFields   []string `json:"mergedFields"`
	RejectedFields []string `json:"rejectedFields"`
	Reason         string   `json:"reason"`
}

// CreateParams are the inputs for CreateTask. A non-positive Position means
// "append to the end of the column".
type CreateParams struct {
	Title       string
	Description string
	ColumnID    models.ColumnID
	Position    float64
}

// UpdateChanges carries the editable text fields of an update. Nil means the
// field is not part of the change set.
type UpdateChanges struct {
	Title       *string
	Description *string
}

const taskColumns = `id, title, description, column_id, position,
       version, title_version, description_version, column_version, position_version,
       created_at, updated_at`

// CreateTask inserts a new task with all per-field versions at 1. The
// position is computed inside the transaction when the caller did not supply
// a strictly positive one.
func (db *DB) CreateTask(ctx context.Context, p CreateParams) (*models.Task, error) {
	if !models.ValidColumn(p.ColumnID) {
		return nil, fmt.Errorf("%w: unknown column %q", ErrValidation, p.ColumnID)
	}
	if p.Title == "" {
		p.Title = models.DefaultTitle
	}
	if len(p.Title) > models.MaxTitleLen {
		return nil, fmt.Errorf("%w: title exceeds %d characters", ErrValidation, models.MaxTitleLen)
	}
	if len(p.Description) > models.MaxDescriptionLen {
		return nil, fmt.Errorf("%w: description exceeds %d characters", ErrValidation, models.MaxDescriptionLen)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	pos := p.Position
	if pos <= 0 {
		existing, err := columnPositions(ctx, tx, p.ColumnID)
		if err != nil {
			return nil, err
		}
		pos = position.AtEnd(existing)
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:                 uuid.NewString(),
		Title:              p.Title,
		Description:        p.Description,
		ColumnID:           p.ColumnID,
		Position:           pos,
		Version:            1,
		TitleVersion:       1,
		DescriptionVersion: 1,
		ColumnVersion:      1,
		PositionVersion:    1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, column_id, position,
		                   version, title_version, description_version, column_version, position_version,
		                   created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, 1, 1, 1, 1, ?, ?)
	`, task.ID, task.Title, task.Description, task.ColumnID, task.Position, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return task, nil
}

// UpdateTask applies the text-field changes a client based on baseVersion.
// Fields already overwritten by a later version are rejected per-field; a
// fully rejected update performs no write and returns the current row.
func (db *DB) UpdateTask(ctx context.Context, taskID string, baseVersion int64, ch UpdateChanges) (*models.Task, *Conflict, error) {
	if ch.Title != nil && len(*ch.Title) > models.MaxTitleLen {
		return nil, nil, fmt.Errorf("%w: title exceeds %d characters", ErrValidation, models.MaxTitleLen)
	}
	if ch.Description != nil && len(*ch.Description) > models.MaxDescriptionLen {
		return nil, nil, fmt.Errorf("%w: description exceeds %d characters", ErrValidation, models.MaxDescriptionLen)
	}

	changes := map[conflict.Field]any{}
	if ch.Title != nil {
		changes[conflict.FieldTitle] = *ch.Title
	}
	if ch.Description != nil {
		changes[conflict.FieldDescription] = *ch.Description
	}

	task, cf, _, err := db.applyChanges(ctx, taskID, baseVersion, changes, false)
	return task, cf, err
}

// MoveTask changes a task's column and/or position, then checks whether the
// landing spot is within MinGap of a neighbour. The rebalance itself is the
// caller's responsibility, in a follow-up transaction.
func (db *DB) MoveTask(ctx context.Context, taskID string, baseVersion int64, columnID models.ColumnID, pos float64) (*models.Task, *Conflict, bool, error) {
	if !models.ValidColumn(columnID) {
		return nil, nil, false, fmt.Errorf("%w: unknown column %q", ErrValidation, columnID)
	}
	if pos <= 0 {
		return nil, nil, false, fmt.Errorf("%w: position must be strictly positive", ErrValidation)
	}

	changes := map[conflict.Field]any{
		conflict.FieldColumn:   columnID,
		conflict.FieldPosition: pos,
	}
	return db.applyChanges(ctx, taskID, baseVersion, changes, true)
}

// DeleteTask removes a task unconditionally. baseVersion is accepted but not
// enforced: deletion is irreversible and commutes with every other mutation
// of the row, so it always wins. Returns false when the row was already gone.
func (db *DB) DeleteTask(ctx context.Context, taskID string, baseVersion int64) (bool, error) {
	_ = baseVersion
	res, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetTask retrieves a single task by ID.
func (db *DB) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetAllTasks returns every task ordered by (column, position). Used for the
// initial snapshot and the REST list endpoint.
func (db *DB) GetAllTasks(ctx context.Context) ([]models.Task, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY column_id, position`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// RebalanceColumn atomically re-lays out a column to evenly spaced multiples
// of Step in the current order, advancing each row's version by one and
// stamping position_version with it. Clients observe either all new positions
// or none.
func (db *DB) RebalanceColumn(ctx context.Context, columnID models.ColumnID) ([]models.Task, error) {
	if !models.ValidColumn(columnID) {
		return nil, fmt.Errorf("%w: unknown column %q", ErrValidation, columnID)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, version FROM tasks WHERE column_id = ? ORDER BY position`, columnID)
	if err != nil {
		return nil, fmt.Errorf("read column: %w", err)
	}
	type rowRef struct {
		id      string
		version int64
	}
	var refs []rowRef
	for rows.Next() {
		var r rowRef
		if err := rows.Scan(&r.id, &r.version); err != nil {
			rows.Close()
			return nil, err
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	now := time.Now().UTC()
	for i, r := range refs {
		newVersion := r.version + 1
		_, err := tx.ExecContext(ctx, `
			UPDATE tasks SET position = ?, version = ?, position_version = ?, updated_at = ?
			WHERE id = ?
		`, position.ForIndex(i), newVersion, newVersion, now, r.id)
		if err != nil {
			return nil, fmt.Errorf("rebalance row %s: %w", r.id, err)
		}
	}

	out, err := queryTasks(ctx, tx, `SELECT `+taskColumns+` FROM tasks WHERE column_id = ? ORDER BY position`, columnID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// applyChanges is the shared read-analyse-write core of UpdateTask and
// MoveTask. The whole span runs inside one transaction on the single
// connection, so no concurrent writer can interleave between the read and the
// write. checkGap enables the post-write neighbour inspection for moves.
func (db *DB) applyChanges(ctx context.Context, taskID string, baseVersion int64, changes map[conflict.Field]any, checkGap bool) (*models.Task, *Conflict, bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	current, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil, false, ErrNotFound
	}
	if err != nil {
		return nil, nil, false, err
	}

	if len(changes) == 0 {
		return current, nil, false, nil
	}

	analysis := conflict.Analyze(fieldStamps(current), baseVersion, changes)

	if analysis.FullyRejected() {
		// No write: the current row is authoritative.
		return current, &Conflict{
			Resolution:     ResolutionRejected,
			MergedFields:   conflict.FieldNames(analysis.MergedFields),
			RejectedFields: conflict.FieldNames(analysis.RejectedFields),
			Reason:         analysis.Reason(),
		}, false, nil
	}

	newVersion := current.Version + 1
	now := time.Now().UTC()

	setClauses := []string{"version = ?", "updated_at = ?"}
	args := []any{newVersion, now}
	for _, f := range analysis.MergedFields {
		v := analysis.MergedChanges[f]
		switch f {
		case conflict.FieldTitle:
			setClauses = append(setClauses, "title = ?", "title_version = ?")
		case conflict.FieldDescription:
			setClauses = append(setClauses, "description = ?", "description_version = ?")
		case conflict.FieldColumn:
			setClauses = append(setClauses, "column_id = ?", "column_version = ?")
		case conflict.FieldPosition:
			setClauses = append(setClauses, "position = ?", "position_version = ?")
		}
		args = append(args, v, newVersion)
	}
	args = append(args, taskID)

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = ?`, strings.Join(setClauses, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, nil, false, fmt.Errorf("update task: %w", err)
	}

	row = tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	updated, err := scanTask(row)
	if err != nil {
		return nil, nil, false, fmt.Errorf("reread task: %w", err)
	}

	needsRebalance := false
	if checkGap {
		needsRebalance, err = neighbourWithinMinGap(ctx, tx, updated)
		if err != nil {
			return nil, nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, false, fmt.Errorf("commit: %w", err)
	}

	var cf *Conflict
	if analysis.HasConflict() {
		cf = &Conflict{
			Resolution:     ResolutionMerged,
			MergedFields:   conflict.FieldNames(analysis.MergedFields),
			RejectedFields: conflict.FieldNames(analysis.RejectedFields),
			Reason:         analysis.Reason(),
		}
	}
	return updated, cf, needsRebalance, nil
}

// neighbourWithinMinGap reads the two same-column tasks closest to the moved
// task's new position and reports whether either sits inside MinGap. Only the
// moved task's neighbourhood is inspected; compaction elsewhere in the column
// waits until one of those rows is itself moved.
func neighbourWithinMinGap(ctx context.Context, tx *sql.Tx, t *models.Task) (bool, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT position FROM tasks
		WHERE column_id = ? AND id != ?
		ORDER BY ABS(position - ?) LIMIT 2
	`, t.ColumnID, t.ID, t.Position)
	if err != nil {
		return false, fmt.Errorf("read neighbours: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return false, err
		}
		if math.Abs(p-t.Position) < position.MinGap {
			return true, nil
		}
	}
	return false, rows.Err()
}

func columnPositions(ctx context.Context, tx *sql.Tx, columnID models.ColumnID) ([]float64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT position FROM tasks WHERE column_id = ?`, columnID)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func fieldStamps(t *models.Task) map[conflict.Field]int64 {
	return map[conflict.Field]int64{
		conflict.FieldTitle:       t.TitleVersion,
		conflict.FieldDescription: t.DescriptionVersion,
		conflict.FieldColumn:      t.ColumnVersion,
		conflict.FieldPosition:    t.PositionVersion,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	var t models.Task
	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &t.ColumnID, &t.Position,
		&t.Version, &t.TitleVersion, &t.DescriptionVersion, &t.ColumnVersion, &t.PositionVersion,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func queryTasks(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]models.Task, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

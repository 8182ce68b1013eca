package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/copr-farm/copr/pkg/models"
)

const actionColumns = `id, action_type, object_type, object_id, old_value, new_value, data, result, message, created_on, ended_on`

func scanAction(row interface{ Scan(...interface{}) error }) (*models.Action, error) {
	var a models.Action
	var endedOn sql.NullInt64
	err := row.Scan(&a.ID, &a.ActionType, &a.ObjectType, &a.ObjectID, &a.OldValue, &a.NewValue,
		&a.Data, &a.Result, &a.Message, &a.CreatedOn, &endedOn)
	if err != nil {
		return nil, err
	}
	a.EndedOn = int64Ptr(endedOn)
	return &a, nil
}

// CreateAction queues an action
func (s *sqlStore) CreateAction(ctx context.Context, action *models.Action) error {
	if action.CreatedOn == 0 {
		action.CreatedOn = time.Now().Unix()
	}
	id, err := s.insert(ctx, `
		INSERT INTO actions (action_type, object_type, object_id, old_value, new_value, data,
		                     result, message, created_on, ended_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ActionType, action.ObjectType, action.ObjectID, action.OldValue, action.NewValue,
		action.Data, action.Result, action.Message, action.CreatedOn, nullInt64(action.EndedOn))
	if err != nil {
		return fmt.Errorf("failed to create action: %w", err)
	}
	action.ID = id
	return nil
}

// GetAction retrieves an action by ID
func (s *sqlStore) GetAction(ctx context.Context, id int64) (*models.Action, error) {
	a, err := scanAction(s.queryRow(ctx, "SELECT "+actionColumns+" FROM actions WHERE id = ?", id))
	if err != nil {
		return nil, notFound("action", err)
	}
	return a, nil
}

// ListActions returns actions matching the filter, oldest first
func (s *sqlStore) ListActions(ctx context.Context, filter ActionFilter) ([]*models.Action, error) {
	var conds []string
	var args []interface{}

	if filter.Type != nil {
		conds = append(conds, "action_type = ?")
		args = append(args, *filter.Type)
	}
	if filter.ExcludeType != nil {
		conds = append(conds, "action_type != ?")
		args = append(args, *filter.ExcludeType)
	}
	if filter.Result != nil {
		conds = append(conds, "result = ?")
		args = append(args, *filter.Result)
	}
	if filter.ObjectType != "" {
		conds = append(conds, "object_type = ?")
		args = append(args, filter.ObjectType)
	}
	if filter.ObjectID != nil {
		conds = append(conds, "object_id = ?")
		args = append(args, *filter.ObjectID)
	}
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return nil, nil
		}
		var in string
		in, args = inClause("id", filter.IDs, args)
		conds = append(conds, in)
	}

	rows, err := s.query(ctx, "SELECT "+actionColumns+" FROM actions"+whereClause(conds)+
		" ORDER BY created_on ASC, id ASC"+limitClause(filter.Limit, 0), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var out []*models.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAction saves the result reported by the backend
func (s *sqlStore) UpdateAction(ctx context.Context, action *models.Action) error {
	return s.execOne(ctx, "action",
		"UPDATE actions SET result = ?, message = ?, ended_on = ? WHERE id = ?",
		action.Result, action.Message, nullInt64(action.EndedOn), action.ID)
}

// DeleteActionsEndedBefore removes finished actions that ended before the given time
func (s *sqlStore) DeleteActionsEndedBefore(ctx context.Context, before int64) (int64, error) {
	res, err := s.exec(ctx,
		"DELETE FROM actions WHERE result != ? AND ended_on IS NOT NULL AND ended_on < ?",
		models.ResultWaiting, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune actions: %w", err)
	}
	return res.RowsAffected()
}

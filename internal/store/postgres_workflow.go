package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// EnsureWorkflowState lazily creates the state row for a document on first
// access. The insert is idempotent, so two first-viewers racing each other
// both end up reading the same single row.
func (s *PostgresStore) EnsureWorkflowState(ctx context.Context, documentID, stateID, createdBy string) (WorkflowState, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_states (id, document_id, current_state, updated_by)
		VALUES ($1, $2, 'draft', $3)
		ON CONFLICT (document_id) DO NOTHING
	`, stateID, documentID, createdBy)
	if err != nil {
		return WorkflowState{}, fmt.Errorf("ensure workflow state: %w", err)
	}
	return s.GetWorkflowState(ctx, documentID)
}

func (s *PostgresStore) GetWorkflowState(ctx context.Context, documentID string) (WorkflowState, error) {
	var state WorkflowState
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, current_state, previous_state, assigned_to, due_date, updated_by, created_at, updated_at
		FROM workflow_states
		WHERE document_id=$1
	`, documentID).Scan(&state.ID, &state.DocumentID, &state.CurrentState, &state.PreviousState, &state.AssignedTo, &state.DueDate, &state.UpdatedBy, &state.CreatedAt, &state.UpdatedAt)
	if err != nil {
		return WorkflowState{}, err
	}
	return state, nil
}

// ApplyTransition commits the state update and the history row in one
// transaction. The state row is locked first so concurrent transitions
// serialize; if the locked state no longer matches the transition's
// from-state, the attempt loses the race and fails cleanly with no writes.
func (s *PostgresStore) ApplyTransition(ctx context.Context, t WorkflowTransition) (TransitionResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `
		SELECT current_state FROM workflow_states WHERE document_id=$1 FOR UPDATE
	`, t.DocumentID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return TransitionResult{Success: false, ErrorMessage: "document has no workflow state"}, nil
	}
	if err != nil {
		return TransitionResult{}, fmt.Errorf("lock workflow state: %w", err)
	}
	if current != t.FromState {
		return TransitionResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("document is in state %q, not %q", current, t.FromState),
		}, nil
	}

	// Assignment columns are only written on the transition out of draft;
	// later transitions keep whatever assignment is already stored.
	_, err = tx.ExecContext(ctx, `
		UPDATE workflow_states
		SET current_state=$2, previous_state=$3,
			assigned_to=CASE WHEN $3='draft' THEN $4 ELSE assigned_to END,
			due_date=CASE WHEN $3='draft' THEN $5 ELSE due_date END,
			updated_by=$6, updated_at=NOW()
		WHERE document_id=$1
	`, t.DocumentID, t.ToState, t.FromState, t.AssignedTo, t.DueDate, t.Actor)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("update workflow state: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_transitions (id, document_id, from_state, to_state, action, comment, actor, assigned_to, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.DocumentID, t.FromState, t.ToState, t.Action, t.Comment, t.Actor, t.AssignedTo, t.DueDate)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("insert transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return TransitionResult{}, fmt.Errorf("commit transition: %w", err)
	}

	state, err := s.GetWorkflowState(ctx, t.DocumentID)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("reload workflow state: %w", err)
	}
	return TransitionResult{Success: true, State: &state}, nil
}

func (s *PostgresStore) ListTransitions(ctx context.Context, documentID string) ([]WorkflowTransition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, from_state, to_state, action, comment, actor, assigned_to, due_date, created_at,
			EXTRACT(EPOCH FROM created_at - LAG(created_at) OVER (ORDER BY created_at ASC, id ASC)) / 3600.0
		FROM workflow_transitions
		WHERE document_id=$1
		ORDER BY created_at ASC, id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	items := make([]WorkflowTransition, 0)
	for rows.Next() {
		var item WorkflowTransition
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.FromState, &item.ToState, &item.Action, &item.Comment, &item.Actor, &item.AssignedTo, &item.DueDate, &item.CreatedAt, &item.HoursSincePrevious); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return items, nil
}

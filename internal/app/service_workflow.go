package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"legajo/api/internal/flags"
	"legajo/api/internal/store"
	"legajo/api/internal/util"
	"legajo/api/internal/workflow"
)

type TransitionInput struct {
	Action     string `json:"action"`
	Comment    string `json:"comment"`
	AssignedTo string `json:"assignedTo"`
	DueDate    string `json:"dueDate"`
}

// GetWorkflow returns the document's workflow state, available actions and
// full transition history. The state row is created lazily on first view.
func (s *Service) GetWorkflow(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	if !s.flags.Enabled(flags.Workflow) {
		return nil, domainError(http.StatusForbidden, "FEATURE_DISABLED", "The workflow system is disabled", nil)
	}
	if _, err := s.requireDocument(ctx, session, documentID); err != nil {
		return nil, err
	}
	state, err := s.store.EnsureWorkflowState(ctx, documentID, util.NewID("wfs"), session.UserID)
	if err != nil {
		return nil, err
	}
	transitions, err := s.store.ListTransitions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"state":            workflowStatePayload(state),
		"availableActions": workflow.ActionsFrom(workflow.State(state.CurrentState)),
		"history":          transitionPayloads(transitions),
	}, nil
}

// Transition applies a workflow action to a document. Legality, comment
// requirements and assignment rules are checked here; the store applies
// the state change and history row atomically, rechecking the from-state
// under lock so a concurrent racer loses cleanly.
func (s *Service) Transition(ctx context.Context, session Session, documentID string, input TransitionInput) (map[string]any, error) {
	if !s.flags.Enabled(flags.Workflow) {
		return nil, domainError(http.StatusForbidden, "FEATURE_DISABLED", "The workflow system is disabled", nil)
	}
	doc, err := s.requireDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}

	actionName := strings.TrimSpace(input.Action)
	if !workflow.ValidAction(actionName) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown workflow action", map[string]any{"action": actionName})
	}
	action := workflow.Action(actionName)

	comment := strings.TrimSpace(input.Comment)
	if workflow.RequiresComment(action) && comment == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a comment is required for this action", map[string]any{"action": actionName})
	}

	state, err := s.store.EnsureWorkflowState(ctx, documentID, util.NewID("wfs"), session.UserID)
	if err != nil {
		return nil, err
	}
	from := workflow.State(state.CurrentState)

	to, err := workflow.Next(from, action)
	if err != nil {
		return nil, domainError(http.StatusConflict, "ILLEGAL_TRANSITION", err.Error(), map[string]any{
			"from":   string(from),
			"action": actionName,
		})
	}

	// Assignee and due date ride along only when the document leaves draft.
	var assignedTo *string
	var dueDate *time.Time
	if from == workflow.StateDraft {
		if trimmed := strings.TrimSpace(input.AssignedTo); trimmed != "" {
			if _, err := s.store.GetUserByID(ctx, trimmed); err != nil {
				return nil, err
			}
			assignedTo = &trimmed
		}
		if raw := strings.TrimSpace(input.DueDate); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "dueDate must be YYYY-MM-DD", nil)
			}
			dueDate = &parsed
		}
	}

	result, err := s.store.ApplyTransition(ctx, store.WorkflowTransition{
		ID:         util.NewID("wft"),
		DocumentID: documentID,
		FromState:  string(from),
		ToState:    string(to),
		Action:     string(action),
		Comment:    comment,
		Actor:      session.UserID,
		AssignedTo: assignedTo,
		DueDate:    dueDate,
	})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, domainError(http.StatusConflict, "TRANSITION_CONFLICT", result.ErrorMessage, nil)
	}

	doc.Status = string(to)
	_, _ = s.store.UpdateDocumentMeta(ctx, doc)
	s.syncDocumentIndex(ctx, doc)

	s.notifyTransition(ctx, doc, action, comment, assignedTo, dueDate)
	s.audit(ctx, session, &documentID, "workflow", map[string]any{
		"action": string(action),
		"from":   string(from),
		"to":     string(to),
	})

	transitions, err := s.store.ListTransitions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"history": transitionPayloads(transitions),
	}
	if result.State != nil {
		payload["state"] = workflowStatePayload(*result.State)
		payload["availableActions"] = workflow.ActionsFrom(workflow.State(result.State.CurrentState))
	}
	return payload, nil
}

// notifyTransition feeds the in-app notification stream and, when SMTP is
// configured, sends the matching email: assignee on submit, uploader on
// approve/reject. All of it is best-effort.
func (s *Service) notifyTransition(ctx context.Context, doc store.Document, action workflow.Action, comment string, assignedTo *string, dueDate *time.Time) {
	emailReady := s.email != nil && s.email.IsConfigured()
	documentURL := "/documents/" + doc.ID

	if action == workflow.ActionSubmit && assignedTo != nil {
		s.notify(ctx, *assignedTo, "Documento pendiente de revisión",
			doc.FileName+" te fue asignado para revisión", "approval_pending", &doc)
		if !emailReady {
			return
		}
		assignee, err := s.store.GetUserByID(ctx, *assignedTo)
		if err != nil {
			return
		}
		due := ""
		if dueDate != nil {
			due = dueDate.Format("2006-01-02")
		}
		_ = s.email.SendAssignmentEmail(assignee.Email, assignee.FullName, doc.FileName, string(workflow.StateInReview), due, documentURL)
		return
	}

	if action == workflow.ActionApprove || action == workflow.ActionReject {
		decision := "approved"
		title := "Documento aprobado"
		message := doc.FileName + " fue aprobado"
		if action == workflow.ActionReject {
			decision = "rejected"
			title = "Documento rechazado"
			message = doc.FileName + " fue rechazado: " + comment
		}
		if doc.UploadedBy != "" {
			s.notify(ctx, doc.UploadedBy, title, message, "approval_"+decision, &doc)
		}
		if !emailReady {
			return
		}
		uploader, err := s.store.GetUserByID(ctx, doc.UploadedBy)
		if err != nil {
			return
		}
		_ = s.email.SendReviewResultEmail(uploader.Email, uploader.FullName, doc.FileName, decision, comment, documentURL)
	}
}

func workflowStatePayload(state store.WorkflowState) map[string]any {
	item := map[string]any{
		"documentId":   state.DocumentID,
		"currentState": state.CurrentState,
		"updatedBy":    state.UpdatedBy,
		"updatedAt":    state.UpdatedAt,
	}
	if state.PreviousState != nil {
		item["previousState"] = *state.PreviousState
	}
	if state.AssignedTo != nil {
		item["assignedTo"] = *state.AssignedTo
	}
	if state.DueDate != nil {
		item["dueDate"] = state.DueDate.Format("2006-01-02")
	}
	return item
}

func transitionPayloads(transitions []store.WorkflowTransition) []map[string]any {
	items := make([]map[string]any, 0, len(transitions))
	for _, t := range transitions {
		item := map[string]any{
			"id":        t.ID,
			"fromState": t.FromState,
			"toState":   t.ToState,
			"action":    t.Action,
			"comment":   t.Comment,
			"actor":     t.Actor,
			"createdAt": t.CreatedAt,
		}
		if t.AssignedTo != nil {
			item["assignedTo"] = *t.AssignedTo
		}
		if t.DueDate != nil {
			item["dueDate"] = t.DueDate.Format("2006-01-02")
		}
		if t.HoursSincePrevious != nil {
			item["hoursSincePrevious"] = *t.HoursSincePrevious
		}
		items = append(items, item)
	}
	return items
}

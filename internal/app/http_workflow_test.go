package app

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"legajo/api/internal/store"
)

// workflowFixture backs the workflow endpoints with an in-memory state
// machine the way the Postgres store would behave.
type workflowFixture struct {
	state   store.WorkflowState
	history []store.WorkflowTransition
}

func newWorkflowServer(t *testing.T) (*HTTPServer, string, *workflowFixture) {
	t.Helper()
	fixture := &workflowFixture{}

	fs := &fakeStore{
		ensureWorkflowStateFn: func(_ context.Context, documentID, stateID, createdBy string) (store.WorkflowState, error) {
			if fixture.state.ID == "" {
				fixture.state = store.WorkflowState{
					ID:           stateID,
					DocumentID:   documentID,
					CurrentState: "draft",
					UpdatedBy:    createdBy,
				}
			}
			return fixture.state, nil
		},
		applyTransitionFn: func(_ context.Context, transition store.WorkflowTransition) (store.TransitionResult, error) {
			if fixture.state.CurrentState != transition.FromState {
				return store.TransitionResult{
					Success:      false,
					ErrorMessage: fmt.Sprintf("document moved to %s concurrently", fixture.state.CurrentState),
				}, nil
			}
			previous := fixture.state.CurrentState
			fixture.state.PreviousState = &previous
			fixture.state.CurrentState = transition.ToState
			fixture.state.UpdatedBy = transition.Actor
			// Assignment columns only change on the transition out of
			// draft, matching the Postgres store.
			if transition.FromState == "draft" {
				fixture.state.AssignedTo = transition.AssignedTo
				fixture.state.DueDate = transition.DueDate
			}
			transition.CreatedAt = time.Now()
			fixture.history = append(fixture.history, transition)
			state := fixture.state
			return store.TransitionResult{Success: true, State: &state}, nil
		},
		listTransitionsFn: func(context.Context, string) ([]store.WorkflowTransition, error) {
			return fixture.history, nil
		},
	}
	server, token := newServerAndToken(t, fs, "admin")
	return server, token, fixture
}

func postTransition(t *testing.T, server *HTTPServer, token, body string) map[string]any {
	t.Helper()
	rr := doJSON(t, server, http.MethodPost, "/api/documents/doc-1/workflow/transitions", token, body)
	if rr.Code != http.StatusOK {
		t.Fatalf("transition failed: %d body=%s", rr.Code, rr.Body.String())
	}
	return parseBody(t, rr)
}

func TestWorkflowFullApprovalLifecycle(t *testing.T) {
	server, token, fixture := newWorkflowServer(t)

	steps := []struct {
		body string
		want string
	}{
		{body: `{"action":"submit"}`, want: "in_review"},
		{body: `{"action":"approve"}`, want: "approved"},
		{body: `{"action":"publish"}`, want: "published"},
		{body: `{"action":"archive"}`, want: "archived"},
	}
	for _, step := range steps {
		payload := postTransition(t, server, token, step.body)
		state := payload["state"].(map[string]any)
		if state["currentState"] != step.want {
			t.Fatalf("expected state %s, got %v", step.want, state["currentState"])
		}
	}

	if len(fixture.history) != 4 {
		t.Fatalf("expected 4 history rows, got %d", len(fixture.history))
	}

	// Archived is terminal: no actions remain and everything conflicts.
	rr := doJSON(t, server, http.MethodGet, "/api/documents/doc-1/workflow", token, "")
	payload := parseBody(t, rr)
	actions := payload["availableActions"].([]any)
	if len(actions) != 0 {
		t.Fatalf("expected no actions from archived, got %v", actions)
	}

	rr = doJSON(t, server, http.MethodPost, "/api/documents/doc-1/workflow/transitions", token, `{"action":"submit"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 from archived, got %d", rr.Code)
	}
}

func TestWorkflowRejectReviseLoop(t *testing.T) {
	server, token, fixture := newWorkflowServer(t)

	postTransition(t, server, token, `{"action":"submit"}`)
	payload := postTransition(t, server, token, `{"action":"reject","comment":"Falta la firma"}`)
	state := payload["state"].(map[string]any)
	if state["currentState"] != "rejected" {
		t.Fatalf("expected rejected, got %v", state["currentState"])
	}

	payload = postTransition(t, server, token, `{"action":"revise","comment":"Firma añadida"}`)
	state = payload["state"].(map[string]any)
	if state["currentState"] != "draft" {
		t.Fatalf("expected draft after revise, got %v", state["currentState"])
	}
	if len(fixture.history) != 3 {
		t.Fatalf("expected 3 history rows, got %d", len(fixture.history))
	}
}

func TestWorkflowRejectRequiresComment(t *testing.T) {
	server, token, _ := newWorkflowServer(t)

	postTransition(t, server, token, `{"action":"submit"}`)
	rr := doJSON(t, server, http.MethodPost, "/api/documents/doc-1/workflow/transitions", token, `{"action":"reject","comment":"   "}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	if parseBody(t, rr)["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", rr.Body.String())
	}
}

func TestWorkflowIllegalTransitionConflicts(t *testing.T) {
	server, token, _ := newWorkflowServer(t)

	rr := doJSON(t, server, http.MethodPost, "/api/documents/doc-1/workflow/transitions", token, `{"action":"approve","comment":"x"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["code"] != "ILLEGAL_TRANSITION" {
		t.Fatalf("expected ILLEGAL_TRANSITION, got %v", payload["code"])
	}
	details := payload["details"].(map[string]any)
	if details["from"] != "draft" || details["action"] != "approve" {
		t.Fatalf("expected details naming the attempt, got %v", details)
	}
}

func TestWorkflowUnknownActionIsRejected(t *testing.T) {
	server, token, _ := newWorkflowServer(t)

	rr := doJSON(t, server, http.MethodPost, "/api/documents/doc-1/workflow/transitions", token, `{"action":"yeet"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestWorkflowSubmitCarriesAssignment(t *testing.T) {
	server, token, fixture := newWorkflowServer(t)

	payload := postTransition(t, server, token, `{"action":"submit","assignedTo":"usr-reviewer","dueDate":"2026-09-15"}`)
	state := payload["state"].(map[string]any)
	if state["assignedTo"] != "usr-reviewer" {
		t.Fatalf("expected assignment to ride along, got %v", state["assignedTo"])
	}
	if state["dueDate"] != "2026-09-15" {
		t.Fatalf("expected due date, got %v", state["dueDate"])
	}

	// Assignment only applies when leaving draft; it is ignored later.
	payload = postTransition(t, server, token, `{"action":"approve","assignedTo":"usr-other"}`)
	last := fixture.history[len(fixture.history)-1]
	if last.AssignedTo != nil {
		t.Fatalf("expected assignment ignored outside draft, got %v", *last.AssignedTo)
	}
	state = payload["state"].(map[string]any)
	if state["currentState"] != "approved" {
		t.Fatalf("expected approved state")
	}
	if state["assignedTo"] != "usr-reviewer" || state["dueDate"] != "2026-09-15" {
		t.Fatalf("expected stored assignment to survive review, got %v / %v", state["assignedTo"], state["dueDate"])
	}
}

func TestWorkflowLostRaceReturnsConflict(t *testing.T) {
	// A concurrent actor moves the document between the legality check
	// and the store apply. The store reports the lost race without an
	// error and the handler maps it to 409.
	fs := &fakeStore{
		applyTransitionFn: func(context.Context, store.WorkflowTransition) (store.TransitionResult, error) {
			return store.TransitionResult{
				Success:      false,
				ErrorMessage: "document state changed concurrently",
			}, nil
		},
	}
	server, token := newServerAndToken(t, fs, "admin")

	rr := doJSON(t, server, http.MethodPost, "/api/documents/doc-1/workflow/transitions", token, `{"action":"submit"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	if parseBody(t, rr)["code"] != "TRANSITION_CONFLICT" {
		t.Fatalf("expected TRANSITION_CONFLICT, got %s", rr.Body.String())
	}
}

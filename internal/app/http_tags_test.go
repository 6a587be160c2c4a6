package app

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"legajo/api/internal/store"
)

func TestTagCreateAndDuplicateName(t *testing.T) {
	var inserted store.Tag
	fs := &fakeStore{
		insertTagFn: func(_ context.Context, item store.Tag) error {
			if inserted.ID != "" {
				return store.ErrDuplicateTagName
			}
			inserted = item
			return nil
		},
		getTagFn: func(_ context.Context, tagID string) (store.Tag, error) {
			return inserted, nil
		},
	}
	server, token := newServerAndToken(t, fs, "admin")

	rr := doJSON(t, server, http.MethodPost, "/api/tags", token, `{"name":"Fiscal","description":"Documentación fiscal"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["name"] != "Fiscal" {
		t.Fatalf("expected tag name in payload, got %v", payload["name"])
	}
	if payload["color"] != "#3B82F6" {
		t.Fatalf("expected the default color, got %v", payload["color"])
	}

	rr = doJSON(t, server, http.MethodPost, "/api/tags", token, `{"name":"Fiscal"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a duplicate name, got %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "TAG_EXISTS" {
		t.Fatalf("expected TAG_EXISTS, got %s", rr.Body.String())
	}
}

func TestTagCreateRequiresName(t *testing.T) {
	server, token := newServerAndToken(t, &fakeStore{}, "admin")

	rr := doJSON(t, server, http.MethodPost, "/api/tags", token, `{"name":"  "}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestTagDeleteRequiresAdmin(t *testing.T) {
	server, token := newServerAndToken(t, &fakeStore{}, "user")

	rr := doJSON(t, server, http.MethodDelete, "/api/tags/tag-1", token, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-admin delete, got %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodGet, "/api/tags", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected tag listing to stay readable, got %d", rr.Code)
	}
}

func TestSetDocumentTagsReplacesAssignments(t *testing.T) {
	var assigned []string
	known := map[string]store.Tag{
		"tag-1": {ID: "tag-1", Name: "fiscal"},
		"tag-2": {ID: "tag-2", Name: "contable"},
	}
	fs := &fakeStore{
		getTagFn: func(_ context.Context, tagID string) (store.Tag, error) {
			tag, ok := known[tagID]
			if !ok {
				return store.Tag{}, sql.ErrNoRows
			}
			return tag, nil
		},
		setDocumentTagsFn: func(_ context.Context, documentID string, tagIDs []string) error {
			assigned = tagIDs
			return nil
		},
		listDocumentTagsFn: func(_ context.Context, _ string) ([]store.Tag, error) {
			items := make([]store.Tag, 0, len(assigned))
			for _, id := range assigned {
				items = append(items, known[id])
			}
			return items, nil
		},
	}
	server, token := newServerAndToken(t, fs, "admin")

	rr := doJSON(t, server, http.MethodPut, "/api/documents/doc-1/tags", token, `{"tagIds":["tag-1","tag-2"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	tags := parseBody(t, rr)["tags"].([]any)
	if len(tags) != 2 {
		t.Fatalf("expected both tags back, got %d", len(tags))
	}

	rr = doJSON(t, server, http.MethodPut, "/api/documents/doc-1/tags", token, `{"tagIds":["tag-missing"]}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an unknown tag, got %d", rr.Code)
	}
	if len(assigned) != 2 {
		t.Fatalf("expected the failed update to leave assignments untouched, got %v", assigned)
	}
}

func TestTransitionFeedsNotifications(t *testing.T) {
	var created []store.Notification
	state := "in_review"
	fs := &fakeStore{
		ensureWorkflowStateFn: func(_ context.Context, documentID, stateID, createdBy string) (store.WorkflowState, error) {
			return store.WorkflowState{ID: stateID, DocumentID: documentID, CurrentState: state}, nil
		},
		applyTransitionFn: func(_ context.Context, transition store.WorkflowTransition) (store.TransitionResult, error) {
			state = transition.ToState
			return store.TransitionResult{Success: true}, nil
		},
		insertNotificationFn: func(_ context.Context, item store.Notification) error {
			created = append(created, item)
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.Transition(context.Background(), adminSession(), "doc-1", TransitionInput{
		Action:  "reject",
		Comment: "Falta la firma",
	})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	if len(created) != 1 {
		t.Fatalf("expected one notification, got %d", len(created))
	}
	n := created[0]
	if n.UserID != "usr-uploader" {
		t.Fatalf("expected the uploader to be notified, got %s", n.UserID)
	}
	if n.Type != "approval_rejected" {
		t.Fatalf("expected approval_rejected, got %s", n.Type)
	}
	if n.EntityID == nil || *n.EntityID != "doc-1" {
		t.Fatalf("expected the notification to reference the document, got %+v", n)
	}
}

func TestSubmitNotifiesAssignee(t *testing.T) {
	var created []store.Notification
	fs := &fakeStore{
		ensureWorkflowStateFn: func(_ context.Context, documentID, stateID, createdBy string) (store.WorkflowState, error) {
			return store.WorkflowState{ID: stateID, DocumentID: documentID, CurrentState: "draft"}, nil
		},
		applyTransitionFn: func(_ context.Context, _ store.WorkflowTransition) (store.TransitionResult, error) {
			return store.TransitionResult{Success: true}, nil
		},
		insertNotificationFn: func(_ context.Context, item store.Notification) error {
			created = append(created, item)
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.Transition(context.Background(), adminSession(), "doc-1", TransitionInput{
		Action:     "submit",
		AssignedTo: "usr-reviewer",
	})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if len(created) != 1 || created[0].UserID != "usr-reviewer" || created[0].Type != "approval_pending" {
		t.Fatalf("expected a pending-approval notification for the assignee, got %+v", created)
	}
}

func TestNotificationFeedOverHTTP(t *testing.T) {
	now := time.Now()
	readAt := now.Add(-time.Hour)
	fs := &fakeStore{
		listNotificationsFn: func(_ context.Context, userID string, unreadOnly bool, limit int) ([]store.Notification, error) {
			items := []store.Notification{
				{ID: "ntf-1", UserID: userID, Title: "Documento rechazado", Type: "approval_rejected", CreatedAt: now},
				{ID: "ntf-2", UserID: userID, Title: "Documento aprobado", Type: "approval_approved", IsRead: true, ReadAt: &readAt, CreatedAt: now.Add(-2 * time.Hour)},
			}
			if unreadOnly {
				return items[:1], nil
			}
			return items, nil
		},
		countUnreadFn: func(context.Context, string) (int, error) { return 1, nil },
	}
	server, token := newServerAndToken(t, fs, "user")

	rr := doJSON(t, server, http.MethodGet, "/api/notifications", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := parseBody(t, rr)
	if len(payload["notifications"].([]any)) != 2 {
		t.Fatalf("expected the full feed, got %v", payload["notifications"])
	}
	if payload["unreadCount"] != float64(1) {
		t.Fatalf("expected unreadCount 1, got %v", payload["unreadCount"])
	}

	rr = doJSON(t, server, http.MethodGet, "/api/notifications?unread=1", token, "")
	if len(parseBody(t, rr)["notifications"].([]any)) != 1 {
		t.Fatalf("expected only unread entries")
	}

	rr = doJSON(t, server, http.MethodGet, "/api/notifications/unread-count", token, "")
	if parseBody(t, rr)["unreadCount"] != float64(1) {
		t.Fatalf("expected unread-count payload, got %s", rr.Body.String())
	}
}

func TestNotificationActionsAreScopedToCaller(t *testing.T) {
	var markedUser, markedID string
	allRead := false
	var deletedUser string
	fs := &fakeStore{
		markNotificationFn: func(_ context.Context, userID, notificationID string) (bool, error) {
			markedUser, markedID = userID, notificationID
			return true, nil
		},
		markAllNotificationsFn: func(_ context.Context, userID string) error {
			allRead = true
			return nil
		},
		deleteNotificationFn: func(_ context.Context, userID, notificationID string) (bool, error) {
			deletedUser = userID
			return true, nil
		},
	}
	server, token := newServerAndToken(t, fs, "cliente")

	rr := doJSON(t, server, http.MethodPost, "/api/notifications/ntf-1/read", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if markedUser != "user-cliente" || markedID != "ntf-1" {
		t.Fatalf("expected the caller's own notification marked, got %s/%s", markedUser, markedID)
	}

	rr = doJSON(t, server, http.MethodPost, "/api/notifications/read-all", token, "")
	if rr.Code != http.StatusOK || !allRead {
		t.Fatalf("expected read-all to land, got %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodDelete, "/api/notifications/ntf-1", token, "")
	if rr.Code != http.StatusOK || deletedUser != "user-cliente" {
		t.Fatalf("expected the caller's own notification deleted, got %d user=%s", rr.Code, deletedUser)
	}
}

func TestMarkUnknownNotificationIsNotFound(t *testing.T) {
	fs := &fakeStore{
		markNotificationFn: func(context.Context, string, string) (bool, error) {
			return false, nil
		},
	}
	server, token := newServerAndToken(t, fs, "user")

	rr := doJSON(t, server, http.MethodPost, "/api/notifications/ntf-missing/read", token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown notification, got %d", rr.Code)
	}
}

package app

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"strings"

	"legajo/api/internal/authpw"
	"legajo/api/internal/ocr"
	"legajo/api/internal/rbac"
	"legajo/api/internal/store"
	"legajo/api/internal/util"
)

type UserInput struct {
	FullName  string   `json:"fullName"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Role      string   `json:"role"`
	ClientIDs []string `json:"clientIds"`
}

func (s *Service) ListAppUsers(ctx context.Context) ([]map[string]any, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, user := range users {
		items = append(items, userPayload(user))
	}
	return items, nil
}

// CreateAppUser provisions an account with its client grants. The store
// runs account and grants in one transaction.
func (s *Service) CreateAppUser(ctx context.Context, input UserInput) (map[string]any, error) {
	emailAddr := strings.ToLower(strings.TrimSpace(input.Email))
	fullName := strings.TrimSpace(input.FullName)
	if emailAddr == "" || fullName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "fullName and email are required", nil)
	}
	if !strings.Contains(emailAddr, "@") {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is not valid", nil)
	}
	if _, err := s.store.GetUserByEmail(ctx, emailAddr); err == nil {
		return nil, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	}

	hash, err := authpw.HashPassword(input.Password)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	role := string(rbac.Normalize(input.Role))

	user := store.User{
		ID:           util.NewID("usr"),
		FullName:     fullName,
		Email:        emailAddr,
		PasswordHash: hash,
		Role:         role,
		ClientIDs:    input.ClientIDs,
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		return nil, err
	}
	created, err := s.store.GetUserByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return userPayload(created), nil
}

func (s *Service) UpdateAppUser(ctx context.Context, userID string, input UserInput) (map[string]any, error) {
	existing, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing.FullName = firstNonBlank(strings.TrimSpace(input.FullName), existing.FullName)
	if input.Role != "" {
		existing.Role = string(rbac.Normalize(input.Role))
	}
	if input.ClientIDs != nil {
		existing.ClientIDs = input.ClientIDs
	}

	updated, err := s.store.UpdateUser(ctx, existing)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, sql.ErrNoRows
	}

	if strings.TrimSpace(input.Password) != "" {
		hash, err := authpw.HashPassword(input.Password)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
		if _, err := s.store.UpdateUserPassword(ctx, userID, hash); err != nil {
			return nil, err
		}
	}

	current, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userPayload(current), nil
}

func (s *Service) DeleteAppUser(ctx context.Context, session Session, userID string) error {
	if userID == session.UserID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "you cannot delete your own account", nil)
	}
	deleted, err := s.store.DeleteUser(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	return nil
}

// ReprocessAllDocuments re-runs OCR over every live document, strictly
// sequentially and in upload order. Only one run at a time.
func (s *Service) ReprocessAllDocuments(ctx context.Context) (map[string]any, error) {
	if s.reprocess == nil {
		return nil, domainError(http.StatusServiceUnavailable, "OCR_UNAVAILABLE", "OCR is not configured", nil)
	}
	if !s.reprocessMu.TryLock() {
		return nil, domainError(http.StatusConflict, "REPROCESS_RUNNING", "A reprocess run is already in progress", nil)
	}
	defer s.reprocessMu.Unlock()

	result, err := s.reprocess.Run(ctx, func(p ocr.Progress) {
		log.Printf("reprocess: %d/%d %s", p.Processed, p.Total, p.Current)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"total":     result.Total,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	}, nil
}

// ReindexSearch rebuilds the Meilisearch indexes from PostgreSQL.
func (s *Service) ReindexSearch(ctx context.Context) error {
	if s.search == nil {
		return domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	s.search.ReindexAllFromPG(ctx)
	return nil
}

func userPayload(user store.User) map[string]any {
	item := map[string]any{
		"id":        user.ID,
		"fullName":  user.FullName,
		"email":     user.Email,
		"role":      user.Role,
		"clientIds": user.ClientIDs,
		"createdAt": user.CreatedAt,
	}
	if user.DeactivatedAt != nil {
		item["deactivatedAt"] = *user.DeactivatedAt
	}
	return item
}

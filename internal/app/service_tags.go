package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"legajo/api/internal/store"
	"legajo/api/internal/util"
)

const defaultTagColor = "#3B82F6"

type TagInput struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

func (s *Service) ListTags(ctx context.Context) ([]map[string]any, error) {
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tags))
	for _, tag := range tags {
		items = append(items, tagPayload(tag))
	}
	return items, nil
}

func (s *Service) CreateTag(ctx context.Context, session Session, input TagInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	color := strings.TrimSpace(input.Color)
	if color == "" {
		color = defaultTagColor
	}
	tag := store.Tag{
		ID:          util.NewID("tag"),
		Name:        name,
		Color:       color,
		Description: strings.TrimSpace(input.Description),
	}
	if err := s.store.InsertTag(ctx, tag); err != nil {
		if errors.Is(err, store.ErrDuplicateTagName) {
			return nil, domainError(http.StatusConflict, "TAG_EXISTS", "A tag with that name already exists", nil)
		}
		return nil, err
	}
	s.audit(ctx, session, nil, "edit", map[string]any{"createdTag": tag.Name})
	return s.getTag(ctx, tag.ID)
}

func (s *Service) UpdateTag(ctx context.Context, session Session, tagID string, input TagInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	color := strings.TrimSpace(input.Color)
	if color == "" {
		color = defaultTagColor
	}
	updated, err := s.store.UpdateTag(ctx, store.Tag{
		ID:          tagID,
		Name:        name,
		Color:       color,
		Description: strings.TrimSpace(input.Description),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateTagName) {
			return nil, domainError(http.StatusConflict, "TAG_EXISTS", "A tag with that name already exists", nil)
		}
		return nil, err
	}
	if !updated {
		return nil, sql.ErrNoRows
	}
	s.audit(ctx, session, nil, "edit", map[string]any{"updatedTag": name})
	return s.getTag(ctx, tagID)
}

// DeleteTag removes the tag and every document assignment carrying it.
func (s *Service) DeleteTag(ctx context.Context, tagID string) error {
	deleted, err := s.store.DeleteTag(ctx, tagID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Service) ListDocumentTags(ctx context.Context, session Session, documentID string) ([]map[string]any, error) {
	if _, err := s.requireDocument(ctx, session, documentID); err != nil {
		return nil, err
	}
	tags, err := s.store.ListDocumentTags(ctx, documentID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tags))
	for _, tag := range tags {
		items = append(items, tagPayload(tag))
	}
	return items, nil
}

// SetDocumentTags replaces the document's tag set. Unknown tag IDs are
// rejected before anything is written.
func (s *Service) SetDocumentTags(ctx context.Context, session Session, documentID string, tagIDs []string) ([]map[string]any, error) {
	if _, err := s.requireDocument(ctx, session, documentID); err != nil {
		return nil, err
	}
	cleaned := make([]string, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		tagID = strings.TrimSpace(tagID)
		if tagID == "" {
			continue
		}
		if _, err := s.store.GetTag(ctx, tagID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown tag", map[string]any{"tagId": tagID})
			}
			return nil, err
		}
		cleaned = append(cleaned, tagID)
	}
	if err := s.store.SetDocumentTags(ctx, documentID, cleaned); err != nil {
		return nil, err
	}
	s.audit(ctx, session, &documentID, "edit", map[string]any{"tags": cleaned})
	return s.ListDocumentTags(ctx, session, documentID)
}

func (s *Service) getTag(ctx context.Context, tagID string) (map[string]any, error) {
	tag, err := s.store.GetTag(ctx, tagID)
	if err != nil {
		return nil, err
	}
	return tagPayload(tag), nil
}

func tagPayload(tag store.Tag) map[string]any {
	return map[string]any{
		"id":          tag.ID,
		"name":        tag.Name,
		"color":       tag.Color,
		"description": tag.Description,
		"createdAt":   tag.CreatedAt,
	}
}

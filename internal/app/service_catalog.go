package app

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"legajo/api/internal/store"
	"legajo/api/internal/util"
)

type ClientInput struct {
	Name  string `json:"name"`
	TaxID string `json:"taxId"`
	Notes string `json:"notes"`
}

type EntityInput struct {
	ClientID   string `json:"clientId"`
	Name       string `json:"name"`
	EntityType string `json:"entityType"`
	TaxID      string `json:"taxId"`
}

type MovementInput struct {
	EntityID     string `json:"entityId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	MovementDate string `json:"movementDate"`
}

func (s *Service) ListClients(ctx context.Context, session Session) ([]map[string]any, error) {
	clients, err := s.store.ListClients(ctx, clientScope(session))
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(clients))
	for _, client := range clients {
		items = append(items, clientPayload(client))
	}
	return items, nil
}

func (s *Service) GetClient(ctx context.Context, session Session, clientID string) (map[string]any, error) {
	if !scopeAllows(clientScope(session), clientID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return clientPayload(client), nil
}

func (s *Service) CreateClient(ctx context.Context, session Session, input ClientInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	client := store.Client{
		ID:    util.NewID("cli"),
		Name:  name,
		TaxID: strings.TrimSpace(input.TaxID),
		Notes: strings.TrimSpace(input.Notes),
	}
	if err := s.store.InsertClient(ctx, client); err != nil {
		return nil, err
	}
	return s.GetClient(ctx, session, client.ID)
}

func (s *Service) UpdateClient(ctx context.Context, session Session, clientID string, input ClientInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	updated, err := s.store.UpdateClient(ctx, store.Client{
		ID:    clientID,
		Name:  name,
		TaxID: strings.TrimSpace(input.TaxID),
		Notes: strings.TrimSpace(input.Notes),
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, sql.ErrNoRows
	}
	return s.GetClient(ctx, session, clientID)
}

func (s *Service) DeleteClient(ctx context.Context, clientID string) error {
	deleted, err := s.store.DeleteClient(ctx, clientID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Service) ListEntities(ctx context.Context, session Session, clientID string) ([]map[string]any, error) {
	scope := clientScope(session)
	if clientID != "" && !scopeAllows(scope, clientID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	entities, err := s.store.ListEntities(ctx, clientID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entities))
	for _, entity := range entities {
		if !scopeAllows(scope, entity.ClientID) {
			continue
		}
		items = append(items, entityPayload(entity))
	}
	return items, nil
}

func (s *Service) GetEntity(ctx context.Context, session Session, entityID string) (map[string]any, error) {
	entity, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if !scopeAllows(clientScope(session), entity.ClientID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return entityPayload(entity), nil
}

func (s *Service) CreateEntity(ctx context.Context, session Session, input EntityInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	clientID := strings.TrimSpace(input.ClientID)
	if name == "" || clientID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name and clientId are required", nil)
	}
	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	entity := store.Entity{
		ID:         util.NewID("ent"),
		ClientID:   clientID,
		Name:       name,
		EntityType: strings.TrimSpace(input.EntityType),
		TaxID:      strings.TrimSpace(input.TaxID),
	}
	if err := s.store.InsertEntity(ctx, entity); err != nil {
		return nil, err
	}
	return s.GetEntity(ctx, session, entity.ID)
}

func (s *Service) UpdateEntity(ctx context.Context, session Session, entityID string, input EntityInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	updated, err := s.store.UpdateEntity(ctx, store.Entity{
		ID:         entityID,
		Name:       name,
		EntityType: strings.TrimSpace(input.EntityType),
		TaxID:      strings.TrimSpace(input.TaxID),
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, sql.ErrNoRows
	}
	return s.GetEntity(ctx, session, entityID)
}

func (s *Service) DeleteEntity(ctx context.Context, entityID string) error {
	deleted, err := s.store.DeleteEntity(ctx, entityID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Service) ListMovements(ctx context.Context, session Session, entityID string) ([]map[string]any, error) {
	if entityID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "entityId is required", nil)
	}
	if _, err := s.requireEntityAccess(ctx, session, entityID); err != nil {
		return nil, err
	}
	movements, err := s.store.ListMovements(ctx, entityID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(movements))
	for _, movement := range movements {
		items = append(items, movementPayload(movement))
	}
	return items, nil
}

func (s *Service) CreateMovement(ctx context.Context, session Session, input MovementInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	entityID := strings.TrimSpace(input.EntityID)
	if title == "" || entityID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title and entityId are required", nil)
	}
	if _, err := s.requireEntityAccess(ctx, session, entityID); err != nil {
		return nil, err
	}
	movementDate := time.Now()
	if raw := strings.TrimSpace(input.MovementDate); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "movementDate must be YYYY-MM-DD", nil)
		}
		movementDate = parsed
	}
	movement := store.Movement{
		ID:           util.NewID("mov"),
		EntityID:     entityID,
		Title:        title,
		Description:  strings.TrimSpace(input.Description),
		MovementDate: movementDate,
		CreatedBy:    session.UserID,
	}
	if err := s.store.InsertMovement(ctx, movement); err != nil {
		return nil, err
	}
	created, err := s.store.GetMovement(ctx, movement.ID)
	if err != nil {
		return nil, err
	}
	return movementPayload(created), nil
}

func (s *Service) UpdateMovement(ctx context.Context, session Session, movementID string, input MovementInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	existing, err := s.store.GetMovement(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireEntityAccess(ctx, session, existing.EntityID); err != nil {
		return nil, err
	}
	movementDate := existing.MovementDate
	if raw := strings.TrimSpace(input.MovementDate); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "movementDate must be YYYY-MM-DD", nil)
		}
		movementDate = parsed
	}
	updated, err := s.store.UpdateMovement(ctx, store.Movement{
		ID:           movementID,
		Title:        title,
		Description:  strings.TrimSpace(input.Description),
		MovementDate: movementDate,
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, sql.ErrNoRows
	}
	current, err := s.store.GetMovement(ctx, movementID)
	if err != nil {
		return nil, err
	}
	return movementPayload(current), nil
}

func (s *Service) DeleteMovement(ctx context.Context, movementID string) error {
	deleted, err := s.store.DeleteMovement(ctx, movementID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Service) Summary(ctx context.Context) (map[string]any, error) {
	clients, entities, documents, err := s.store.SummaryCounts(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"clients":   clients,
		"entities":  entities,
		"documents": documents,
	}, nil
}

func clientPayload(client store.Client) map[string]any {
	return map[string]any{
		"id":        client.ID,
		"name":      client.Name,
		"taxId":     client.TaxID,
		"notes":     client.Notes,
		"createdAt": client.CreatedAt,
		"updatedAt": client.UpdatedAt,
	}
}

func entityPayload(entity store.Entity) map[string]any {
	return map[string]any{
		"id":         entity.ID,
		"clientId":   entity.ClientID,
		"name":       entity.Name,
		"entityType": entity.EntityType,
		"taxId":      entity.TaxID,
		"createdAt":  entity.CreatedAt,
		"updatedAt":  entity.UpdatedAt,
	}
}

func movementPayload(movement store.Movement) map[string]any {
	return map[string]any{
		"id":           movement.ID,
		"entityId":     movement.EntityID,
		"title":        movement.Title,
		"description":  movement.Description,
		"movementDate": movement.MovementDate.Format("2006-01-02"),
		"createdBy":    movement.CreatedBy,
		"createdAt":    movement.CreatedAt,
	}
}

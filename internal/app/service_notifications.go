package app

import (
	"context"
	"database/sql"

	"legajo/api/internal/store"
	"legajo/api/internal/util"
)

// notify writes a best-effort feed entry for a user. A failed insert never
// fails the operation that triggered it.
func (s *Service) notify(ctx context.Context, userID, title, message, notificationType string, doc *store.Document) {
	item := store.Notification{
		ID:      util.NewID("ntf"),
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    notificationType,
	}
	if doc != nil {
		entityType := "document"
		item.EntityType = &entityType
		item.EntityID = &doc.ID
		item.EntityName = &doc.FileName
	}
	_ = s.store.InsertNotification(ctx, item)
}

func (s *Service) ListNotifications(ctx context.Context, session Session, unreadOnly bool, limit int) (map[string]any, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	notifications, err := s.store.ListNotifications(ctx, session.UserID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.CountUnreadNotifications(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, notificationPayload(n))
	}
	return map[string]any{
		"notifications": items,
		"unreadCount":   unread,
	}, nil
}

func (s *Service) UnreadNotificationCount(ctx context.Context, session Session) (map[string]any, error) {
	count, err := s.store.CountUnreadNotifications(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"unreadCount": count}, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) error {
	marked, err := s.store.MarkNotificationRead(ctx, session.UserID, notificationID)
	if err != nil {
		return err
	}
	if !marked {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, session Session) error {
	return s.store.MarkAllNotificationsRead(ctx, session.UserID)
}

func (s *Service) DeleteNotification(ctx context.Context, session Session, notificationID string) error {
	deleted, err := s.store.DeleteNotification(ctx, session.UserID, notificationID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	return nil
}

func notificationPayload(n store.Notification) map[string]any {
	item := map[string]any{
		"id":        n.ID,
		"title":     n.Title,
		"message":   n.Message,
		"type":      n.Type,
		"isRead":    n.IsRead,
		"createdAt": n.CreatedAt,
	}
	if n.EntityType != nil {
		item["entityType"] = *n.EntityType
	}
	if n.EntityID != nil {
		item["entityId"] = *n.EntityID
	}
	if n.EntityName != nil {
		item["entityName"] = *n.EntityName
	}
	if n.ReadAt != nil {
		item["readAt"] = *n.ReadAt
	}
	return item
}

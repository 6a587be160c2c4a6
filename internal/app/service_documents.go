package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"legajo/api/internal/flags"
	"legajo/api/internal/search"
	"legajo/api/internal/sharelink"
	"legajo/api/internal/store"
	"legajo/api/internal/util"
)

// objectStore is the blob backend for document files (MinIO in production).
type objectStore interface {
	Upload(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, objectPath string) (io.ReadCloser, error)
	Remove(ctx context.Context, objectPath string) error
}

type UploadDocumentInput struct {
	EntityID    string
	MovementID  string
	Title       string
	Description string
	FileName    string
	MimeType    string
	FileSize    int64
}

type UpdateDocumentInput struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Notes          string `json:"notes"`
	ExpirationDate string `json:"expirationDate"`
}

type CreateSharedLinkInput struct {
	ExpiresInHours int  `json:"expiresInHours"`
	MaxAccesses    *int `json:"maxAccesses"`
}

func (s *Service) ListDocuments(ctx context.Context, session Session, entityID, movementID string) ([]map[string]any, error) {
	if entityID != "" {
		if _, err := s.requireEntityAccess(ctx, session, entityID); err != nil {
			return nil, err
		}
	}
	documents, err := s.store.ListDocuments(ctx, entityID, movementID)
	if err != nil {
		return nil, err
	}
	scope := clientScope(session)
	items := make([]map[string]any, 0, len(documents))
	for _, doc := range documents {
		if scope != nil && entityID == "" {
			clientID, err := s.store.EntityClientID(ctx, doc.EntityID)
			if err != nil {
				return nil, err
			}
			if !scopeAllows(scope, clientID) {
				continue
			}
		}
		items = append(items, documentPayload(doc))
	}
	return items, nil
}

func (s *Service) GetDocumentPayload(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, err := s.requireDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, session, &doc.ID, "view", nil)
	return documentPayload(doc), nil
}

// requireDocument loads a live document and enforces client scoping.
func (s *Service) requireDocument(ctx context.Context, session Session, documentID string) (store.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, err
	}
	if _, err := s.requireEntityAccess(ctx, session, doc.EntityID); err != nil {
		return store.Document{}, err
	}
	return doc, nil
}

func (s *Service) UploadDocument(ctx context.Context, session Session, input UploadDocumentInput, file io.Reader) (map[string]any, error) {
	entityID := strings.TrimSpace(input.EntityID)
	fileName := path.Base(strings.TrimSpace(input.FileName))
	if entityID == "" || fileName == "" || fileName == "." {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "entityId and file are required", nil)
	}
	if _, err := s.requireEntityAccess(ctx, session, entityID); err != nil {
		return nil, err
	}

	var movementID *string
	if trimmed := strings.TrimSpace(input.MovementID); trimmed != "" {
		movement, err := s.store.GetMovement(ctx, trimmed)
		if err != nil {
			return nil, err
		}
		if movement.EntityID != entityID {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "movement belongs to a different entity", nil)
		}
		movementID = &trimmed
	}

	documentID := util.NewID("doc")
	objectPath := fmt.Sprintf("%s/%s/%d_%s", entityID, documentID, time.Now().UnixNano(), fileName)
	mimeType := firstNonBlank(input.MimeType, "application/octet-stream")

	if err := s.blobs.Upload(ctx, objectPath, file, input.FileSize, mimeType); err != nil {
		return nil, fmt.Errorf("upload object: %w", err)
	}

	doc := store.Document{
		ID:          documentID,
		EntityID:    entityID,
		MovementID:  movementID,
		FileName:    fileName,
		FilePath:    objectPath,
		FileSize:    input.FileSize,
		MimeType:    mimeType,
		Title:       firstNonBlank(strings.TrimSpace(input.Title), fileName),
		Description: strings.TrimSpace(input.Description),
		Status:      "draft",
		UploadedBy:  session.UserID,
	}
	version := store.DocumentVersion{
		ID:                util.NewID("ver"),
		DocumentID:        documentID,
		VersionNumber:     1,
		FilePath:          objectPath,
		FileSize:          input.FileSize,
		ChangeDescription: "Initial upload",
		CreatedBy:         session.UserID,
	}
	if err := s.store.InsertDocument(ctx, doc, version); err != nil {
		// The object is orphaned otherwise.
		_ = s.blobs.Remove(ctx, objectPath)
		return nil, err
	}

	if s.search != nil {
		clientID, lookupErr := s.store.EntityClientID(ctx, entityID)
		if lookupErr == nil {
			s.search.IndexDocument(search.DocumentRecord{
				ID:          doc.ID,
				Title:       doc.Title,
				Description: doc.Description,
				FileName:    doc.FileName,
				EntityID:    doc.EntityID,
				ClientID:    clientID,
				Status:      doc.Status,
			})
		}
	}
	if s.queue != nil && s.flags.Enabled(flags.OCRQueue) {
		if err := s.queue.EnqueueDocumentOCR(ctx, doc.ID); err != nil {
			// The upload already succeeded; reprocess-all can catch up later.
			s.audit(ctx, session, &doc.ID, "upload", map[string]any{"ocrEnqueueError": err.Error()})
		}
	}
	s.audit(ctx, session, &doc.ID, "upload", map[string]any{"fileName": fileName, "fileSize": input.FileSize})

	created, err := s.store.GetDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return documentPayload(created), nil
}

func (s *Service) UpdateDocument(ctx context.Context, session Session, documentID string, input UpdateDocumentInput) (map[string]any, error) {
	doc, err := s.requireDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}

	doc.Title = firstNonBlank(strings.TrimSpace(input.Title), doc.Title)
	doc.Description = strings.TrimSpace(input.Description)
	doc.Notes = strings.TrimSpace(input.Notes)
	if raw := strings.TrimSpace(input.ExpirationDate); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "expirationDate must be YYYY-MM-DD", nil)
		}
		doc.ExpirationDate = &parsed
	}

	updated, err := s.store.UpdateDocumentMeta(ctx, doc)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, sql.ErrNoRows
	}
	s.syncDocumentIndex(ctx, doc)
	s.audit(ctx, session, &doc.ID, "edit", nil)

	current, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return documentPayload(current), nil
}

// MarkReviewed stamps the reviewer on the document row itself, separate
// from the workflow history.
func (s *Service) MarkReviewed(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, err := s.requireDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	doc.ReviewedBy = &session.UserID
	doc.ReviewedAt = &now
	updated, err := s.store.UpdateDocumentMeta(ctx, doc)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, sql.ErrNoRows
	}
	s.audit(ctx, session, &doc.ID, "edit", map[string]any{"reviewed": true})
	current, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return documentPayload(current), nil
}

func (s *Service) DownloadDocument(ctx context.Context, session Session, documentID string) (io.ReadCloser, store.Document, error) {
	doc, err := s.requireDocument(ctx, session, documentID)
	if err != nil {
		return nil, store.Document{}, err
	}
	reader, err := s.blobs.Download(ctx, doc.FilePath)
	if err != nil {
		return nil, store.Document{}, fmt.Errorf("download object: %w", err)
	}
	s.audit(ctx, session, &doc.ID, "download", map[string]any{"version": doc.CurrentVersion})
	return reader, doc, nil
}

func (s *Service) GetDocumentContent(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, err := s.requireDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	entry, err := s.store.GetContentIndex(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"documentId":    entry.DocumentID,
		"contentText":   entry.ContentText,
		"ocrConfidence": entry.OCRConfidence,
		"indexedAt":     entry.IndexedAt,
	}, nil
}

func (s *Service) DeleteDocument(ctx context.Context, session Session, documentID string) error {
	doc, err := s.requireDocument(ctx, session, documentID)
	if err != nil {
		return err
	}
	deleted, err := s.store.SoftDeleteDocument(ctx, doc.ID, session.UserID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	if s.search != nil {
		s.search.DeleteDocument(doc.ID)
	}
	s.audit(ctx, session, &doc.ID, "delete", map[string]any{"fileName": doc.FileName})
	return nil
}

func (s *Service) ListRecycleBin(ctx context.Context) ([]map[string]any, error) {
	entries, err := s.store.ListRecycleBin(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := documentPayload(entry.Document)
		item["deletedBy"] = entry.DeletedBy
		item["deletedAt"] = entry.DeletedAt
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) RestoreDocument(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	restored, err := s.store.RestoreDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !restored {
		return nil, sql.ErrNoRows
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.syncDocumentIndex(ctx, doc)
	s.audit(ctx, session, &documentID, "edit", map[string]any{"restored": true})
	return documentPayload(doc), nil
}

// PurgeDocument permanently removes a recycled document, its versions via
// cascade, and the stored object.
func (s *Service) PurgeDocument(ctx context.Context, session Session, documentID string) error {
	filePath, purged, err := s.store.PurgeDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if !purged {
		return sql.ErrNoRows
	}
	if filePath != "" {
		_ = s.blobs.Remove(ctx, filePath)
	}
	s.audit(ctx, session, &documentID, "delete", map[string]any{"purged": true})
	return nil
}

func (s *Service) CreateSharedLink(ctx context.Context, session Session, documentID string, input CreateSharedLinkInput) (map[string]any, error) {
	if !s.flags.Enabled(flags.SharedLinks) {
		return nil, domainError(http.StatusForbidden, "FEATURE_DISABLED", "Shared links are disabled", nil)
	}
	doc, err := s.requireDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}

	hours := input.ExpiresInHours
	if hours <= 0 {
		hours = 72
	}
	if input.MaxAccesses != nil && *input.MaxAccesses <= 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "maxAccesses must be positive", nil)
	}

	linkID := util.NewID("shl")
	expiresAt := time.Now().Add(time.Duration(hours) * time.Hour)
	token, err := sharelink.IssueToken([]byte(s.cfg.JWTSecret), sharelink.Claims{
		LinkID:     linkID,
		DocumentID: doc.ID,
		Exp:        expiresAt.Unix(),
	})
	if err != nil {
		return nil, err
	}

	link := store.SharedLink{
		ID:          linkID,
		DocumentID:  doc.ID,
		Token:       token,
		CreatedBy:   session.UserID,
		ExpiresAt:   expiresAt,
		MaxAccesses: input.MaxAccesses,
	}
	if err := s.store.InsertSharedLink(ctx, link); err != nil {
		return nil, err
	}
	s.audit(ctx, session, &doc.ID, "share", map[string]any{"linkId": linkID})

	return sharedLinkPayload(link), nil
}

func (s *Service) ListSharedLinks(ctx context.Context, session Session, documentID string) ([]map[string]any, error) {
	if _, err := s.requireDocument(ctx, session, documentID); err != nil {
		return nil, err
	}
	links, err := s.store.ListSharedLinks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(links))
	for _, link := range links {
		items = append(items, sharedLinkPayload(link))
	}
	return items, nil
}

func (s *Service) RevokeSharedLink(ctx context.Context, session Session, documentID, linkID string) error {
	if _, err := s.requireDocument(ctx, session, documentID); err != nil {
		return err
	}
	revoked, err := s.store.RevokeSharedLink(ctx, linkID)
	if err != nil {
		return err
	}
	if !revoked {
		return sql.ErrNoRows
	}
	s.audit(ctx, session, &documentID, "share", map[string]any{"revokedLinkId": linkID})
	return nil
}

// ResolveSharedLink is the unauthenticated path behind /share/{token}.
// Signature and expiry are checked before the database row, then the row
// enforces revocation and the access cap.
func (s *Service) ResolveSharedLink(ctx context.Context, token string) (io.ReadCloser, store.Document, error) {
	if !s.flags.Enabled(flags.SharedLinks) {
		return nil, store.Document{}, domainError(http.StatusForbidden, "FEATURE_DISABLED", "Shared links are disabled", nil)
	}
	claims, err := sharelink.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return nil, store.Document{}, err
	}
	link, err := s.store.GetSharedLinkByToken(ctx, token)
	if err != nil {
		return nil, store.Document{}, err
	}
	if link.RevokedAt != nil {
		return nil, store.Document{}, domainError(http.StatusGone, "LINK_REVOKED", "This link has been revoked", nil)
	}
	if link.MaxAccesses != nil && link.AccessCount >= *link.MaxAccesses {
		return nil, store.Document{}, domainError(http.StatusGone, "LINK_EXHAUSTED", "This link has reached its access limit", nil)
	}

	doc, err := s.store.GetDocument(ctx, claims.DocumentID)
	if err != nil {
		return nil, store.Document{}, err
	}
	reader, err := s.blobs.Download(ctx, doc.FilePath)
	if err != nil {
		return nil, store.Document{}, fmt.Errorf("download object: %w", err)
	}
	if err := s.store.BumpSharedLinkAccess(ctx, link.ID); err != nil {
		reader.Close()
		return nil, store.Document{}, err
	}
	return reader, doc, nil
}

func (s *Service) ListAudit(ctx context.Context, documentID, userID, action string, limit int) ([]map[string]any, error) {
	entries, err := s.store.ListAuditEntries(ctx, documentID, userID, action, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"id":        entry.ID,
			"userId":    entry.UserID,
			"action":    entry.Action,
			"details":   entry.Details,
			"createdAt": entry.CreatedAt,
		}
		if entry.DocumentID != nil {
			item["documentId"] = *entry.DocumentID
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) Search(ctx context.Context, session Session, text, filterType, entityID string, limit, offset int) (map[string]any, error) {
	if s.search == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	if entityID != "" {
		if _, err := s.requireEntityAccess(ctx, session, entityID); err != nil {
			return nil, err
		}
	}
	response := s.search.Search(search.Query{
		Text:           text,
		FilterType:     search.ResultType(filterType),
		FilterEntityID: entityID,
		ClientIDs:      clientScope(session),
		Limit:          limit,
		Offset:         offset,
	})
	return map[string]any{
		"results": response.Results,
		"total":   response.Total,
		"query":   response.Query,
	}, nil
}

// syncDocumentIndex refreshes the search metadata entry after a change.
func (s *Service) syncDocumentIndex(ctx context.Context, doc store.Document) {
	if s.search == nil {
		return
	}
	clientID, err := s.store.EntityClientID(ctx, doc.EntityID)
	if err != nil {
		return
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:          doc.ID,
		Title:       doc.Title,
		Description: doc.Description,
		FileName:    doc.FileName,
		EntityID:    doc.EntityID,
		ClientID:    clientID,
		Status:      doc.Status,
	})
}

func documentPayload(doc store.Document) map[string]any {
	item := map[string]any{
		"id":             doc.ID,
		"entityId":       doc.EntityID,
		"fileName":       doc.FileName,
		"fileSize":       doc.FileSize,
		"mimeType":       doc.MimeType,
		"title":          doc.Title,
		"description":    doc.Description,
		"notes":          doc.Notes,
		"status":         doc.Status,
		"currentVersion": doc.CurrentVersion,
		"uploadedBy":     doc.UploadedBy,
		"uploadedAt":     doc.UploadedAt,
		"updatedAt":      doc.UpdatedAt,
	}
	if doc.MovementID != nil {
		item["movementId"] = *doc.MovementID
	}
	if doc.ExpirationDate != nil {
		item["expirationDate"] = doc.ExpirationDate.Format("2006-01-02")
	}
	if doc.ReviewedBy != nil {
		item["reviewedBy"] = *doc.ReviewedBy
	}
	if doc.ReviewedAt != nil {
		item["reviewedAt"] = *doc.ReviewedAt
	}
	return item
}

func sharedLinkPayload(link store.SharedLink) map[string]any {
	item := map[string]any{
		"id":          link.ID,
		"documentId":  link.DocumentID,
		"token":       link.Token,
		"createdBy":   link.CreatedBy,
		"expiresAt":   link.ExpiresAt,
		"accessCount": link.AccessCount,
		"createdAt":   link.CreatedAt,
	}
	if link.MaxAccesses != nil {
		item["maxAccesses"] = *link.MaxAccesses
	}
	if link.RevokedAt != nil {
		item["revokedAt"] = *link.RevokedAt
	}
	return item
}

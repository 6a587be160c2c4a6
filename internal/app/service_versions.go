package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"legajo/api/internal/diff"
	"legajo/api/internal/store"
	"legajo/api/internal/undo"
	"legajo/api/internal/util"
)

type UploadVersionInput struct {
	FileName          string
	MimeType          string
	FileSize          int64
	ChangeDescription string
}

func (s *Service) ListVersions(ctx context.Context, session Session, documentID string) ([]map[string]any, error) {
	if _, err := s.requireDocument(ctx, session, documentID); err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(versions))
	for _, version := range versions {
		items = append(items, versionPayload(version))
	}
	return items, nil
}

// UploadVersion stores a new file for an existing document. The version
// number is assigned by the store inside the allocation transaction, so
// concurrent uploads never collide.
func (s *Service) UploadVersion(ctx context.Context, session Session, documentID string, input UploadVersionInput, file io.Reader) (map[string]any, error) {
	doc, err := s.requireDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	fileName := path.Base(strings.TrimSpace(input.FileName))
	if fileName == "" || fileName == "." {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file is required", nil)
	}

	objectPath := fmt.Sprintf("%s/%s/%d_%s", doc.EntityID, doc.ID, time.Now().UnixNano(), fileName)
	mimeType := firstNonBlank(input.MimeType, doc.MimeType)
	if err := s.blobs.Upload(ctx, objectPath, file, input.FileSize, mimeType); err != nil {
		return nil, fmt.Errorf("upload object: %w", err)
	}

	version, err := s.store.CreateVersion(ctx, store.DocumentVersion{
		ID:                util.NewID("ver"),
		DocumentID:        doc.ID,
		FilePath:          objectPath,
		FileSize:          input.FileSize,
		ChangeDescription: firstNonBlank(strings.TrimSpace(input.ChangeDescription), "New version"),
		CreatedBy:         session.UserID,
	})
	if err != nil {
		_ = s.blobs.Remove(ctx, objectPath)
		return nil, err
	}

	if s.queue != nil {
		_ = s.queue.EnqueueDocumentOCR(ctx, doc.ID)
	}
	s.audit(ctx, session, &doc.ID, "upload", map[string]any{"version": version.VersionNumber})
	return versionPayload(version), nil
}

// DiffVersions compares the extracted text of two versions of a document.
func (s *Service) DiffVersions(ctx context.Context, session Session, documentID string, olderNumber, newerNumber int) (map[string]any, error) {
	if _, err := s.requireDocument(ctx, session, documentID); err != nil {
		return nil, err
	}
	if olderNumber <= 0 || newerNumber <= 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version numbers must be positive", nil)
	}
	older, err := s.store.GetVersion(ctx, documentID, olderNumber)
	if err != nil {
		return nil, err
	}
	newer, err := s.store.GetVersion(ctx, documentID, newerNumber)
	if err != nil {
		return nil, err
	}
	segments := diff.Compute(older.ContentText, newer.ContentText)
	return map[string]any{
		"documentId": documentID,
		"older":      older.VersionNumber,
		"newer":      newer.VersionNumber,
		"segments":   segments,
	}, nil
}

// RevertToVersion creates a new version whose file is the target
// version's file, then parks an undo record for a short window.
func (s *Service) RevertToVersion(ctx context.Context, session Session, documentID string, versionNumber int) (map[string]any, error) {
	doc, err := s.requireDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	if versionNumber == doc.CurrentVersion {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "document is already at that version", nil)
	}
	target, err := s.store.GetVersion(ctx, documentID, versionNumber)
	if err != nil {
		return nil, err
	}

	version, err := s.store.CreateVersion(ctx, store.DocumentVersion{
		ID:                util.NewID("ver"),
		DocumentID:        doc.ID,
		FilePath:          target.FilePath,
		FileSize:          target.FileSize,
		ContentText:       target.ContentText,
		ChangeDescription: fmt.Sprintf("Revert to version %d", target.VersionNumber),
		CreatedBy:         session.UserID,
	})
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"document": documentPayload(current),
		"version":  versionPayload(version),
	}

	if s.undo != nil {
		undoToken := util.NewID("und")
		pending := undo.Pending{
			DocumentID:          doc.ID,
			FilePath:            doc.FilePath,
			FileSize:            doc.FileSize,
			CurrentVersion:      doc.CurrentVersion,
			RevertVersionNumber: version.VersionNumber,
			Actor:               session.UserID,
			CreatedAt:           time.Now(),
		}
		if err := s.undo.Save(ctx, undoToken, pending); err == nil {
			payload["undoToken"] = undoToken
			payload["undoExpiresInSeconds"] = int(s.undo.TTL().Seconds())
		}
	}

	s.audit(ctx, session, &doc.ID, "edit", map[string]any{
		"revertedTo": target.VersionNumber,
		"newVersion": version.VersionNumber,
	})
	return payload, nil
}

// UndoRevert consumes a single-use undo token and restores the document
// to its pre-revert state, erasing the revert version.
func (s *Service) UndoRevert(ctx context.Context, session Session, token string) (map[string]any, error) {
	if s.undo == nil {
		return nil, domainError(http.StatusServiceUnavailable, "UNDO_UNAVAILABLE", "Undo is not configured", nil)
	}
	pending, err := s.undo.Take(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, domainError(http.StatusGone, "UNDO_EXPIRED", "The undo window has closed", nil)
	}

	snapshot := store.Document{
		ID:             pending.DocumentID,
		FilePath:       pending.FilePath,
		FileSize:       pending.FileSize,
		CurrentVersion: pending.CurrentVersion,
	}
	if err := s.store.UndoRevert(ctx, snapshot, pending.RevertVersionNumber); err != nil {
		// The token was already consumed; put the record back so a retry
		// within the remaining window is not lost to a transient failure.
		_ = s.undo.Restore(ctx, strings.TrimSpace(token), pending)
		return nil, err
	}
	s.audit(ctx, session, &pending.DocumentID, "edit", map[string]any{
		"undoneRevertVersion": pending.RevertVersionNumber,
	})

	doc, err := s.store.GetDocument(ctx, pending.DocumentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"document": documentPayload(doc)}, nil
}

func versionPayload(version store.DocumentVersion) map[string]any {
	return map[string]any{
		"id":                version.ID,
		"documentId":        version.DocumentID,
		"versionNumber":     version.VersionNumber,
		"fileSize":          version.FileSize,
		"changeDescription": version.ChangeDescription,
		"createdBy":         version.CreatedBy,
		"createdAt":         version.CreatedAt,
	}
}

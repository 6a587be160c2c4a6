package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const documentColumns = `
	id, entity_id, movement_id, file_name, file_path, file_size, mime_type,
	title, description, notes, status, expiration_date, current_version,
	uploaded_by, reviewed_by, reviewed_at, uploaded_at, updated_at
`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var item Document
	err := row.Scan(
		&item.ID, &item.EntityID, &item.MovementID, &item.FileName, &item.FilePath,
		&item.FileSize, &item.MimeType, &item.Title, &item.Description, &item.Notes,
		&item.Status, &item.ExpirationDate, &item.CurrentVersion, &item.UploadedBy,
		&item.ReviewedBy, &item.ReviewedAt, &item.UploadedAt, &item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) ListDocuments(ctx context.Context, entityID, movementID string) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE deleted_at IS NULL`
	args := []any{}
	idx := 1
	if entityID != "" {
		query += fmt.Sprintf(" AND entity_id=$%d", idx)
		args = append(args, entityID)
		idx++
	}
	if movementID != "" {
		query += fmt.Sprintf(" AND movement_id=$%d", idx)
		args = append(args, movementID)
		idx++
	}
	query += ` ORDER BY uploaded_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE id=$1 AND deleted_at IS NULL
	`, documentID)
	return scanDocument(row)
}

// InsertDocument writes the document row and its version 1 in one
// transaction so an upload never leaves a document without a version.
func (s *PostgresStore) InsertDocument(ctx context.Context, item Document, version DocumentVersion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert document: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (
			id, entity_id, movement_id, file_name, file_path, file_size, mime_type,
			title, description, notes, status, expiration_date, current_version, uploaded_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13)
	`, item.ID, item.EntityID, item.MovementID, item.FileName, item.FilePath, item.FileSize,
		item.MimeType, item.Title, item.Description, item.Notes, item.Status,
		item.ExpirationDate, item.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO document_versions (id, document_id, version_number, file_path, file_size, content_text, change_description, created_by)
		VALUES ($1, $2, 1, $3, $4, $5, $6, $7)
	`, version.ID, item.ID, item.FilePath, item.FileSize, version.ContentText, version.ChangeDescription, item.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert initial version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentMeta(ctx context.Context, item Document) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title=$2, description=$3, notes=$4, status=$5, expiration_date=$6,
			reviewed_by=$7, reviewed_at=$8, updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
	`, item.ID, item.Title, item.Description, item.Notes, item.Status,
		item.ExpirationDate, item.ReviewedBy, item.ReviewedAt)
	if err != nil {
		return false, fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update document result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, version_number, file_path, file_size, content_text, change_description, created_by, created_at
		FROM document_versions
		WHERE document_id=$1
		ORDER BY version_number DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentVersion, 0)
	for rows.Next() {
		var item DocumentVersion
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.VersionNumber, &item.FilePath, &item.FileSize, &item.ContentText, &item.ChangeDescription, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, documentID string, versionNumber int) (DocumentVersion, error) {
	var item DocumentVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, version_number, file_path, file_size, content_text, change_description, created_by, created_at
		FROM document_versions
		WHERE document_id=$1 AND version_number=$2
	`, documentID, versionNumber).Scan(&item.ID, &item.DocumentID, &item.VersionNumber, &item.FilePath, &item.FileSize, &item.ContentText, &item.ChangeDescription, &item.CreatedBy, &item.CreatedAt)
	if err != nil {
		return DocumentVersion{}, err
	}
	return item, nil
}

// CreateVersion allocates the next version number and promotes it to the
// document pointer inside a single transaction. The document row lock
// serializes concurrent writers so numbers are dense and never reused;
// the unique (document_id, version_number) index backs that up.
func (s *PostgresStore) CreateVersion(ctx context.Context, version DocumentVersion) (DocumentVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DocumentVersion{}, fmt.Errorf("begin create version: %w", err)
	}
	defer tx.Rollback()

	var lockedID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM documents WHERE id=$1 AND deleted_at IS NULL FOR UPDATE
	`, version.DocumentID).Scan(&lockedID)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentVersion{}, sql.ErrNoRows
	}
	if err != nil {
		return DocumentVersion{}, fmt.Errorf("lock document: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO document_versions (id, document_id, version_number, file_path, file_size, content_text, change_description, created_by)
		SELECT $1, $2, COALESCE(MAX(version_number), 0) + 1, $3, $4, $5, $6, $7
		FROM document_versions
		WHERE document_id=$2
		RETURNING version_number, created_at
	`, version.ID, version.DocumentID, version.FilePath, version.FileSize,
		version.ContentText, version.ChangeDescription, version.CreatedBy,
	).Scan(&version.VersionNumber, &version.CreatedAt)
	if err != nil {
		return DocumentVersion{}, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE documents
		SET file_path=$2, file_size=$3, current_version=$4, updated_at=NOW()
		WHERE id=$1
	`, version.DocumentID, version.FilePath, version.FileSize, version.VersionNumber)
	if err != nil {
		return DocumentVersion{}, fmt.Errorf("promote version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return DocumentVersion{}, fmt.Errorf("commit create version: %w", err)
	}
	return version, nil
}

// UndoRevert restores the document pointer from a pre-revert snapshot and
// deletes the revert's version row, atomically. Used only within the undo
// window right after a revert.
func (s *PostgresStore) UndoRevert(ctx context.Context, snapshot Document, revertVersionNumber int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin undo revert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET file_path=$2, file_size=$3, current_version=$4, updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
	`, snapshot.ID, snapshot.FilePath, snapshot.FileSize, snapshot.CurrentVersion)
	if err != nil {
		return fmt.Errorf("restore document pointer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("restore document result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM document_versions WHERE document_id=$1 AND version_number=$2
	`, snapshot.ID, revertVersionNumber); err != nil {
		return fmt.Errorf("delete revert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit undo revert: %w", err)
	}
	return nil
}

// PromoteLatestVersion repoints a document at its highest version. Only
// needed for rows imported from the legacy system, where the pointer
// could lag behind the version table.
func (s *PostgresStore) PromoteLatestVersion(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents d
		SET file_path=v.file_path, file_size=v.file_size, current_version=v.version_number, updated_at=NOW()
		FROM (
			SELECT file_path, file_size, version_number
			FROM document_versions
			WHERE document_id=$1
			ORDER BY version_number DESC
			LIMIT 1
		) v
		WHERE d.id=$1 AND d.current_version < v.version_number
	`, documentID)
	if err != nil {
		return fmt.Errorf("promote latest version: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertContentIndex(ctx context.Context, entry ContentIndexEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_content_index (document_id, content_text, ocr_confidence, indexed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (document_id) DO UPDATE
			SET content_text=EXCLUDED.content_text, ocr_confidence=EXCLUDED.ocr_confidence, indexed_at=NOW()
	`, entry.DocumentID, entry.ContentText, entry.OCRConfidence)
	if err != nil {
		return fmt.Errorf("upsert content index: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetContentIndex(ctx context.Context, documentID string) (ContentIndexEntry, error) {
	var entry ContentIndexEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, content_text, ocr_confidence, indexed_at
		FROM document_content_index
		WHERE document_id=$1
	`, documentID).Scan(&entry.DocumentID, &entry.ContentText, &entry.OCRConfidence, &entry.IndexedAt)
	if err != nil {
		return ContentIndexEntry{}, err
	}
	return entry, nil
}

// ListDocumentsForReprocess returns every live document in upload order,
// which fixes the iteration order of a bulk OCR reprocess run.
func (s *PostgresStore) ListDocumentsForReprocess(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE deleted_at IS NULL
		ORDER BY uploaded_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents for reprocess: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SoftDeleteDocument(ctx context.Context, documentID, deletedBy string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET deleted_at=NOW(), deleted_by=$2 WHERE id=$1 AND deleted_at IS NULL
	`, documentID, deletedBy)
	if err != nil {
		return false, fmt.Errorf("soft delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) RestoreDocument(ctx context.Context, documentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET deleted_at=NULL, deleted_by=NULL WHERE id=$1 AND deleted_at IS NOT NULL
	`, documentID)
	if err != nil {
		return false, fmt.Errorf("restore document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("restore document result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListRecycleBin(ctx context.Context) ([]RecycleBinEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`, deleted_by, deleted_at
		FROM documents
		WHERE deleted_at IS NOT NULL
		ORDER BY deleted_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list recycle bin: %w", err)
	}
	defer rows.Close()

	items := make([]RecycleBinEntry, 0)
	for rows.Next() {
		var entry RecycleBinEntry
		item := &entry.Document
		if err := rows.Scan(
			&item.ID, &item.EntityID, &item.MovementID, &item.FileName, &item.FilePath,
			&item.FileSize, &item.MimeType, &item.Title, &item.Description, &item.Notes,
			&item.Status, &item.ExpirationDate, &item.CurrentVersion, &item.UploadedBy,
			&item.ReviewedBy, &item.ReviewedAt, &item.UploadedAt, &item.UpdatedAt,
			&entry.DeletedBy, &entry.DeletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recycle bin entry: %w", err)
		}
		entry.ID = item.ID
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recycle bin: %w", err)
	}
	return items, nil
}

// PurgeDocument permanently removes a soft-deleted document. Versions,
// content index rows and shared links go with it via cascade. The stored
// file path is returned so the caller can remove the object too.
func (s *PostgresStore) PurgeDocument(ctx context.Context, documentID string) (string, bool, error) {
	var filePath string
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM documents WHERE id=$1 AND deleted_at IS NOT NULL RETURNING file_path
	`, documentID).Scan(&filePath)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("purge document: %w", err)
	}
	return filePath, true, nil
}

func (s *PostgresStore) InsertSharedLink(ctx context.Context, link SharedLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shared_links (id, document_id, token, created_by, expires_at, max_accesses)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, link.ID, link.DocumentID, link.Token, link.CreatedBy, link.ExpiresAt, link.MaxAccesses)
	if err != nil {
		return fmt.Errorf("insert shared link: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSharedLinkByToken(ctx context.Context, token string) (SharedLink, error) {
	var link SharedLink
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, token, created_by, expires_at, max_accesses, access_count, revoked_at, created_at
		FROM shared_links
		WHERE token=$1
	`, token).Scan(&link.ID, &link.DocumentID, &link.Token, &link.CreatedBy, &link.ExpiresAt, &link.MaxAccesses, &link.AccessCount, &link.RevokedAt, &link.CreatedAt)
	if err != nil {
		return SharedLink{}, err
	}
	return link, nil
}

func (s *PostgresStore) ListSharedLinks(ctx context.Context, documentID string) ([]SharedLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, token, created_by, expires_at, max_accesses, access_count, revoked_at, created_at
		FROM shared_links
		WHERE document_id=$1
		ORDER BY created_at DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list shared links: %w", err)
	}
	defer rows.Close()

	items := make([]SharedLink, 0)
	for rows.Next() {
		var link SharedLink
		if err := rows.Scan(&link.ID, &link.DocumentID, &link.Token, &link.CreatedBy, &link.ExpiresAt, &link.MaxAccesses, &link.AccessCount, &link.RevokedAt, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan shared link: %w", err)
		}
		items = append(items, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared links: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) RevokeSharedLink(ctx context.Context, linkID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shared_links SET revoked_at=NOW() WHERE id=$1 AND revoked_at IS NULL
	`, linkID)
	if err != nil {
		return false, fmt.Errorf("revoke shared link: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke shared link result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) BumpSharedLinkAccess(ctx context.Context, linkID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE shared_links SET access_count=access_count+1 WHERE id=$1
	`, linkID)
	if err != nil {
		return fmt.Errorf("bump shared link access: %w", err)
	}
	return nil
}

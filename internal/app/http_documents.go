package app

import (
	"net/http"
	"strconv"
	"strings"

	"legajo/api/internal/rbac"
)

func (s *HTTPServer) routeDocuments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if !s.service.Can(session.Role, rbac.ActionRead) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			entityID := strings.TrimSpace(r.URL.Query().Get("entityId"))
			movementID := strings.TrimSpace(r.URL.Query().Get("movementId"))
			items, err := s.service.ListDocuments(r.Context(), session, entityID, movementID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"documents": items})
		case http.MethodPost:
			if !s.service.Can(session.Role, rbac.ActionUpload) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			s.handleDocumentUpload(w, r, session)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	documentID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetDocumentPayload(r.Context(), session, documentID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPut:
			if !s.service.Can(session.Role, rbac.ActionUpload) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var body UpdateDocumentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateDocument(r.Context(), session, documentID, body)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodDelete:
			if !s.service.Can(session.Role, rbac.ActionUpload) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			if err := s.service.DeleteDocument(r.Context(), session, documentID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 2 {
		switch {
		case parts[1] == "download" && r.Method == http.MethodGet:
			reader, doc, err := s.service.DownloadDocument(r.Context(), session, documentID)
			if err != nil {
				s.fail(w, err)
				return
			}
			defer reader.Close()
			streamFile(w, doc.FileName, doc.MimeType, reader)
			return
		case parts[1] == "content" && r.Method == http.MethodGet:
			payload, err := s.service.GetDocumentContent(r.Context(), session, documentID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case parts[1] == "review" && r.Method == http.MethodPost:
			if !s.service.Can(session.Role, rbac.ActionReview) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			payload, err := s.service.MarkReviewed(r.Context(), session, documentID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case parts[1] == "versions":
			s.routeVersions(w, r, session, documentID, nil)
			return
		case parts[1] == "workflow":
			s.routeWorkflow(w, r, session, documentID, nil)
			return
		case parts[1] == "links":
			s.routeSharedLinks(w, r, session, documentID, nil)
			return
		case parts[1] == "tags" && r.Method == http.MethodGet:
			items, err := s.service.ListDocumentTags(r.Context(), session, documentID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"tags": items})
			return
		case parts[1] == "tags" && r.Method == http.MethodPut:
			if !s.service.Can(session.Role, rbac.ActionUpload) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var body struct {
				TagIDs []string `json:"tagIds"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			items, err := s.service.SetDocumentTags(r.Context(), session, documentID, body.TagIDs)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"tags": items})
			return
		}
	}

	if len(parts) > 2 {
		switch parts[1] {
		case "versions":
			s.routeVersions(w, r, session, documentID, parts[2:])
			return
		case "workflow":
			s.routeWorkflow(w, r, session, documentID, parts[2:])
			return
		case "links":
			s.routeSharedLinks(w, r, session, documentID, parts[2:])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDocumentUpload(w http.ResponseWriter, r *http.Request, session Session) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Expected multipart form data", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file is required", nil)
		return
	}
	defer file.Close()

	input := UploadDocumentInput{
		EntityID:    strings.TrimSpace(r.FormValue("entityId")),
		MovementID:  strings.TrimSpace(r.FormValue("movementId")),
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		FileName:    header.Filename,
		MimeType:    header.Header.Get("Content-Type"),
		FileSize:    header.Size,
	}
	payload, err := s.service.UploadDocument(r.Context(), session, input, file)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) routeVersions(w http.ResponseWriter, r *http.Request, session Session, documentID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListVersions(r.Context(), session, documentID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"versions": items})
		case http.MethodPost:
			if !s.service.Can(session.Role, rbac.ActionUpload) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			s.handleVersionUpload(w, r, session, documentID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && rest[0] == "diff" && r.Method == http.MethodGet {
		older, ok := queryInt(w, r, "older", 0)
		if !ok {
			return
		}
		newer, ok := queryInt(w, r, "newer", 0)
		if !ok {
			return
		}
		if older <= 0 || newer <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "older and newer version numbers are required", nil)
			return
		}
		payload, err := s.service.DiffVersions(r.Context(), session, documentID, older, newer)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(rest) == 2 && rest[1] == "revert" && r.Method == http.MethodPost {
		if !s.service.Can(session.Role, rbac.ActionUpload) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		versionNumber, err := strconv.Atoi(rest[0])
		if err != nil || versionNumber <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version number must be a positive integer", nil)
			return
		}
		payload, err := s.service.RevertToVersion(r.Context(), session, documentID, versionNumber)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleVersionUpload(w http.ResponseWriter, r *http.Request, session Session, documentID string) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Expected multipart form data", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file is required", nil)
		return
	}
	defer file.Close()

	input := UploadVersionInput{
		FileName:          header.Filename,
		MimeType:          header.Header.Get("Content-Type"),
		FileSize:          header.Size,
		ChangeDescription: strings.TrimSpace(r.FormValue("changeDescription")),
	}
	payload, err := s.service.UploadVersion(r.Context(), session, documentID, input, file)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) routeWorkflow(w http.ResponseWriter, r *http.Request, session Session, documentID string, rest []string) {
	if len(rest) == 0 && r.Method == http.MethodGet {
		payload, err := s.service.GetWorkflow(r.Context(), session, documentID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(rest) == 1 && rest[0] == "transitions" && r.Method == http.MethodPost {
		var body TransitionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		required := rbac.ActionReview
		switch body.Action {
		case "submit", "revise":
			required = rbac.ActionUpload
		}
		if !s.service.Can(session.Role, required) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		payload, err := s.service.Transition(r.Context(), session, documentID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) routeSharedLinks(w http.ResponseWriter, r *http.Request, session Session, documentID string, rest []string) {
	if !s.service.Can(session.Role, rbac.ActionShare) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListSharedLinks(r.Context(), session, documentID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"links": items})
		case http.MethodPost:
			var body CreateSharedLinkInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateSharedLink(r.Context(), session, documentID, body)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && r.Method == http.MethodDelete {
		if err := s.service.RevokeSharedLink(r.Context(), session, documentID, rest[0]); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

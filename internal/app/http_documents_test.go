package app

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"legajo/api/internal/store"
)

func multipartUpload(t *testing.T, fields map[string]string, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestUploadDocumentOverHTTP(t *testing.T) {
	var insertedDoc store.Document
	var insertedVersion store.DocumentVersion
	fs := &fakeStore{
		insertDocumentFn: func(_ context.Context, doc store.Document, version store.DocumentVersion) error {
			insertedDoc = doc
			insertedVersion = version
			return nil
		},
		getDocumentFn: func(_ context.Context, documentID string) (store.Document, error) {
			insertedDoc.CurrentVersion = 1
			return insertedDoc, nil
		},
	}
	svc := newTestService(fs)
	blobs := newFakeBlobs()
	svc.blobs = blobs
	fsearch := &fakeSearch{}
	svc.search = fsearch
	server := NewHTTPServer(svc, "*")
	_, token := newServerAndToken(t, fs, "user")

	body, contentType := multipartUpload(t, map[string]string{
		"entityId": "ent-1",
		"title":    "Escritura de constitución",
	}, "escritura.pdf", "%PDF-1.4 fake")

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["title"] != "Escritura de constitución" {
		t.Fatalf("expected title preserved, got %v", payload["title"])
	}
	if payload["fileName"] != "escritura.pdf" {
		t.Fatalf("expected fileName, got %v", payload["fileName"])
	}
	if insertedVersion.VersionNumber != 1 || insertedVersion.ChangeDescription != "Initial upload" {
		t.Fatalf("expected initial version row, got %+v", insertedVersion)
	}
	if len(blobs.objects) != 1 {
		t.Fatalf("expected one stored object, got %d", len(blobs.objects))
	}
	if len(fsearch.indexed) != 1 || fsearch.indexed[0].ClientID != "cli-1" {
		t.Fatalf("expected document indexed with client scope, got %+v", fsearch.indexed)
	}
}

func TestUploadDocumentWithoutFileIsRejected(t *testing.T) {
	server, token := newServerAndToken(t, &fakeStore{}, "user")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("entityId", "ent-1")
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestUploadVersionAssignsNextNumber(t *testing.T) {
	fs := &fakeStore{
		createVersionFn: func(_ context.Context, version store.DocumentVersion) (store.DocumentVersion, error) {
			version.VersionNumber = 3
			return version, nil
		},
	}
	svc := newTestService(fs)
	svc.blobs = newFakeBlobs()
	server := NewHTTPServer(svc, "*")
	_, token := newServerAndToken(t, fs, "user")

	body, contentType := multipartUpload(t, map[string]string{
		"changeDescription": "Versión firmada",
	}, "escritura-v3.pdf", "%PDF-1.4 signed")

	req := httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/versions", body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["versionNumber"] != float64(3) {
		t.Fatalf("expected version 3, got %v", payload["versionNumber"])
	}
	if payload["changeDescription"] != "Versión firmada" {
		t.Fatalf("expected change description, got %v", payload["changeDescription"])
	}
}

func TestDiffVersionsOverHTTP(t *testing.T) {
	fs := &fakeStore{
		getVersionFn: func(_ context.Context, documentID string, versionNumber int) (store.DocumentVersion, error) {
			text := "capital social de 3.000 euros"
			if versionNumber == 2 {
				text = "capital social de 10.000 euros"
			}
			return store.DocumentVersion{DocumentID: documentID, VersionNumber: versionNumber, ContentText: text}, nil
		},
	}
	server, token := newServerAndToken(t, fs, "user")

	rr := doJSON(t, server, http.MethodGet, "/api/documents/doc-1/versions/diff?older=1&newer=2", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["older"] != float64(1) || payload["newer"] != float64(2) {
		t.Fatalf("expected version pair in payload, got %v", payload)
	}
	segments := payload["segments"].([]any)
	if len(segments) == 0 {
		t.Fatalf("expected diff segments")
	}
}

func TestDownloadSetsFileHeaders(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	blobs := newFakeBlobs()
	blobs.objects["ent-1/doc-1/contrato.pdf"] = []byte("%PDF-1.4 data")
	svc.blobs = blobs
	server := NewHTTPServer(svc, "*")
	_, token := newServerAndToken(t, fs, "user")

	req := httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/download", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", got)
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, "contrato.pdf") {
		t.Fatalf("expected attachment filename, got %q", got)
	}
	if rr.Body.String() != "%PDF-1.4 data" {
		t.Fatalf("expected file bytes, got %q", rr.Body.String())
	}
}

func TestSharedLinkRoundTripThroughPublicRoute(t *testing.T) {
	var savedLink store.SharedLink
	fs := &fakeStore{
		insertSharedLinkFn: func(_ context.Context, link store.SharedLink) error {
			savedLink = link
			return nil
		},
	}
	fs.getSharedLinkByTokenFn = func(_ context.Context, token string) (store.SharedLink, error) {
		if token == savedLink.Token {
			return savedLink, nil
		}
		return store.SharedLink{}, io.EOF
	}
	svc := newTestService(fs)
	blobs := newFakeBlobs()
	blobs.objects["ent-1/doc-1/contrato.pdf"] = []byte("shared bytes")
	svc.blobs = blobs
	server := NewHTTPServer(svc, "*")
	_, token := newServerAndToken(t, fs, "rc_abogados")

	rr := doJSON(t, server, http.MethodPost, "/api/documents/doc-1/links", token, `{"expiresInHours":24}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	created := parseBody(t, rr)
	shareToken := created["token"].(string)

	// No Authorization header on the public route.
	req := httptest.NewRequest(http.MethodGet, "/share/"+shareToken, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "shared bytes" {
		t.Fatalf("expected shared file bytes, got %q", rec.Body.String())
	}
}

func TestPublicShareRejectsForgedToken(t *testing.T) {
	server, _ := newServerAndToken(t, &fakeStore{}, "user")

	req := httptest.NewRequest(http.MethodGet, "/share/not-a-real-token", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for forged token, got %d", rr.Code)
	}
}

func TestUserCannotShare(t *testing.T) {
	server, token := newServerAndToken(t, &fakeStore{}, "user")

	rr := doJSON(t, server, http.MethodPost, "/api/documents/doc-1/links", token, `{}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRecycleBinRestoreAndPurge(t *testing.T) {
	purged := false
	fs := &fakeStore{
		listRecycleBinFn: func(context.Context) ([]store.RecycleBinEntry, error) {
			return []store.RecycleBinEntry{{
				ID:        "rb-1",
				Document:  store.Document{ID: "doc-1", EntityID: "ent-1", FileName: "contrato.pdf"},
				DeletedBy: "usr-1",
			}}, nil
		},
		purgeDocumentFn: func(_ context.Context, documentID string) (string, bool, error) {
			purged = true
			return "ent-1/doc-1/contrato.pdf", true, nil
		},
	}
	svc := newTestService(fs)
	blobs := newFakeBlobs()
	blobs.objects["ent-1/doc-1/contrato.pdf"] = []byte("x")
	svc.blobs = blobs
	server := NewHTTPServer(svc, "*")
	_, token := newServerAndToken(t, fs, "admin")

	rr := doJSON(t, server, http.MethodGet, "/api/admin/recycle-bin", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	docs := parseBody(t, rr)["documents"].([]any)
	if len(docs) != 1 {
		t.Fatalf("expected one recycled document, got %d", len(docs))
	}

	rr = doJSON(t, server, http.MethodPost, "/api/admin/recycle-bin/doc-1/restore", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected restore 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodDelete, "/api/admin/recycle-bin/doc-1", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected purge 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !purged {
		t.Fatalf("expected purge to reach the store")
	}
	if len(blobs.removed) != 1 {
		t.Fatalf("expected stored object removed on purge, got %v", blobs.removed)
	}
}

func TestDeleteDocumentDropsSearchEntry(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	fsearch := &fakeSearch{}
	svc.search = fsearch
	server := NewHTTPServer(svc, "*")
	_, token := newServerAndToken(t, fs, "user")

	rr := doJSON(t, server, http.MethodDelete, "/api/documents/doc-1", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if len(fsearch.deleted) != 1 || fsearch.deleted[0] != "doc-1" {
		t.Fatalf("expected search entry dropped, got %v", fsearch.deleted)
	}
}

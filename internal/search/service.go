package search

import (
	"context"
	"log"
	"sync/atomic"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili    *Meili
	pgfts    *PgFTS
	semantic atomic.Bool
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{meili: meili, pgfts: pgfts}
	s.semantic.Store(true)
	return s
}

// SetSemantic toggles the Meilisearch path at runtime. When off, every
// query answers from Postgres full-text and index writes are skipped.
func (s *Service) SetSemantic(enabled bool) {
	s.semantic.Store(enabled)
}

func (s *Service) useMeili() bool {
	return s.meili != nil && s.semantic.Load() && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.useMeili() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDocument indexes document metadata (fire-and-forget to Meilisearch).
func (s *Service) IndexDocument(doc DocumentRecord) {
	if !s.useMeili() {
		return
	}
	go func() {
		if err := s.meili.IndexDocument(doc); err != nil {
			log.Printf("search: index document %s: %v", doc.ID, err)
		}
	}()
}

// IndexContent indexes a document's extracted text. Unlike the metadata
// path this is synchronous: the OCR worker wants to know whether the
// index write succeeded before marking the job done.
func (s *Service) IndexContent(ctx context.Context, documentID, contentText string) error {
	if !s.useMeili() {
		return nil
	}
	entityID, clientID, fileName, err := s.pgfts.LookupDocumentRefs(ctx, documentID)
	if err != nil {
		return err
	}
	return s.meili.IndexContent(ContentRecord{
		ID:       documentID,
		Content:  contentText,
		FileName: fileName,
		EntityID: entityID,
		ClientID: clientID,
	})
}

// DeleteDocument removes a document from both indexes (fire-and-forget).
func (s *Service) DeleteDocument(id string) {
	if !s.useMeili() {
		return
	}
	go func() {
		if err := s.meili.DeleteDocument(id); err != nil {
			log.Printf("search: delete document %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes pre-loaded records to Meilisearch. Called during
// Bootstrap if Meilisearch is healthy.
func (s *Service) ReindexAll(documents []DocumentRecord, contents []ContentRecord) {
	if !s.useMeili() {
		return
	}

	if len(documents) > 0 {
		if err := s.meili.IndexDocuments(documents); err != nil {
			log.Printf("search: reindex documents: %v", err)
		}
	}
	if len(contents) > 0 {
		if err := s.meili.IndexContents(contents); err != nil {
			log.Printf("search: reindex content: %v", err)
		}
	}
}

// ReindexAllFromPG reindexes all searchable records from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.useMeili() || s.pgfts == nil {
		return
	}
	documents, contents, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(documents, contents)
	log.Printf("search: reindexed %d documents, %d content entries", len(documents), len(contents))
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}

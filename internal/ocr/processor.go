package ocr

import (
	"context"
	"fmt"
	"io"
	"log"

	"legajo/api/internal/store"
)

type dataStore interface {
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	UpsertContentIndex(ctx context.Context, entry store.ContentIndexEntry) error
}

type blobStore interface {
	Download(ctx context.Context, objectPath string) (io.ReadCloser, error)
}

// indexer mirrors the search service surface the processor needs. Nil is
// allowed; indexing is then skipped.
type indexer interface {
	IndexContent(ctx context.Context, documentID, contentText string) error
}

type extractor interface {
	Extract(ctx context.Context, mimeType string, reader io.Reader) (string, float64, error)
}

// Processor runs the OCR pipeline for one document: download, extract,
// upsert the content index row, push the text to search.
type Processor struct {
	store     dataStore
	blobs     blobStore
	extractor extractor
	search    indexer
}

func NewProcessor(dataStore dataStore, blobs blobStore, extractor extractor, search indexer) *Processor {
	return &Processor{store: dataStore, blobs: blobs, extractor: extractor, search: search}
}

// Process extracts and indexes one document. Unsupported content types
// surface as ErrUnsupported so callers can skip rather than retry.
func (p *Processor) Process(ctx context.Context, documentID string) error {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}

	reader, err := p.blobs.Download(ctx, doc.FilePath)
	if err != nil {
		return fmt.Errorf("download %s: %w", doc.FilePath, err)
	}
	defer reader.Close()

	text, confidence, err := p.extractor.Extract(ctx, doc.MimeType, reader)
	if err != nil {
		return err
	}

	if err := p.store.UpsertContentIndex(ctx, store.ContentIndexEntry{
		DocumentID:    doc.ID,
		ContentText:   text,
		OCRConfidence: confidence,
	}); err != nil {
		return err
	}

	if p.search != nil {
		if err := p.search.IndexContent(ctx, doc.ID, text); err != nil {
			// The index row is already written; search catches up on the
			// next reindex.
			log.Printf("search index for %s failed: %v", doc.ID, err)
		}
	}
	return nil
}

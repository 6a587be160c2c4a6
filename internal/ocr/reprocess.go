package ocr

import (
	"context"
	"errors"
	"time"

	"legajo/api/internal/store"
)

type reprocessLister interface {
	ListDocumentsForReprocess(ctx context.Context) ([]store.Document, error)
}

type documentProcessor interface {
	Process(ctx context.Context, documentID string) error
}

// Progress is reported to the callback after each document.
type Progress struct {
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Current   string `json:"current"`
}

// Result tallies a finished run.
type Result struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Reprocessor re-runs extraction over the whole corpus, one document at a
// time in upload order. The run is deliberately sequential with a fixed
// pause between items to keep load on the OCR engine and object store flat.
type Reprocessor struct {
	store     reprocessLister
	processor documentProcessor
	delay     time.Duration
}

func NewReprocessor(lister reprocessLister, processor documentProcessor, delay time.Duration) *Reprocessor {
	return &Reprocessor{store: lister, processor: processor, delay: delay}
}

// Run processes every live document. Unsupported content types count as
// skipped, individual failures count and continue; there is no mid-run
// cancellation, so an abandoned caller simply stops reading progress while
// completed items stay processed.
func (r *Reprocessor) Run(ctx context.Context, onProgress func(Progress)) (Result, error) {
	docs, err := r.store.ListDocumentsForReprocess(ctx)
	if err != nil {
		return Result{}, err
	}

	result := Result{Total: len(docs)}
	for i, doc := range docs {
		if i > 0 && r.delay > 0 {
			time.Sleep(r.delay)
		}

		err := r.processor.Process(ctx, doc.ID)
		switch {
		case err == nil:
			result.Succeeded++
		case errors.Is(err, ErrUnsupported):
			result.Skipped++
		default:
			result.Failed++
		}

		if onProgress != nil {
			onProgress(Progress{
				Total:     result.Total,
				Processed: i + 1,
				Succeeded: result.Succeeded,
				Failed:    result.Failed,
				Skipped:   result.Skipped,
				Current:   doc.FileName,
			})
		}
	}
	return result, nil
}

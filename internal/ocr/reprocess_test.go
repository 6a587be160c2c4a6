package ocr

import (
	"context"
	"errors"
	"testing"

	"legajo/api/internal/store"
)

type fakeLister struct {
	docs []store.Document
	err  error
}

func (f *fakeLister) ListDocumentsForReprocess(ctx context.Context) ([]store.Document, error) {
	return f.docs, f.err
}

type fakeProcessor struct {
	results map[string]error
	calls   []string
}

func (f *fakeProcessor) Process(ctx context.Context, documentID string) error {
	f.calls = append(f.calls, documentID)
	return f.results[documentID]
}

func TestReprocessorTallies(t *testing.T) {
	lister := &fakeLister{docs: []store.Document{
		{ID: "d1", FileName: "contrato.pdf", MimeType: "application/pdf"},
		{ID: "d2", FileName: "video.mp4", MimeType: "video/mp4"},
		{ID: "d3", FileName: "escritura.pdf", MimeType: "application/pdf"},
	}}
	processor := &fakeProcessor{results: map[string]error{
		"d2": ErrUnsupported,
		"d3": errors.New("download failed"),
	}}

	r := NewReprocessor(lister, processor, 0)
	result, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Total != 3 || result.Succeeded != 1 || result.Skipped != 1 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestReprocessorVisitsInOrderAndReportsProgress(t *testing.T) {
	lister := &fakeLister{docs: []store.Document{
		{ID: "d1", FileName: "a.pdf"},
		{ID: "d2", FileName: "b.pdf"},
		{ID: "d3", FileName: "c.pdf"},
	}}
	processor := &fakeProcessor{results: map[string]error{}}

	var updates []Progress
	r := NewReprocessor(lister, processor, 0)
	if _, err := r.Run(context.Background(), func(p Progress) {
		updates = append(updates, p)
	}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"d1", "d2", "d3"}
	if len(processor.calls) != len(want) {
		t.Fatalf("processed %d documents, want %d", len(processor.calls), len(want))
	}
	for i, id := range want {
		if processor.calls[i] != id {
			t.Errorf("call %d = %s, want %s", i, processor.calls[i], id)
		}
	}

	if len(updates) != 3 {
		t.Fatalf("got %d progress updates, want 3", len(updates))
	}
	last := updates[2]
	if last.Processed != 3 || last.Succeeded != 3 || last.Current != "c.pdf" {
		t.Fatalf("unexpected final progress: %+v", last)
	}
}

func TestReprocessorListFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("db down")}
	r := NewReprocessor(lister, &fakeProcessor{}, 0)
	if _, err := r.Run(context.Background(), nil); err == nil {
		t.Fatal("expected error when listing fails")
	}
}

func TestNormalizeMime(t *testing.T) {
	cases := map[string]string{
		"application/pdf":               "application/pdf",
		"Application/PDF":               "application/pdf",
		"image/jpg":                     "image/jpeg",
		"text/plain; charset=utf-8":     "text/plain",
		"  image/png ":                  "image/png",
		"application/x-legacy; foo=bar": "application/x-legacy",
	}
	for in, want := range cases {
		if got := normalizeMime(in); got != want {
			t.Errorf("normalizeMime(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractUnsupportedType(t *testing.T) {
	e := NewExtractor("")
	_, _, err := e.Extract(context.Background(), "video/mp4", nil)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

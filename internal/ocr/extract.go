// Package ocr extracts searchable text from stored document files and
// keeps the content index up to date.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupported marks a content type the extractor cannot read. Callers
// skip such documents instead of failing.
var ErrUnsupported = errors.New("unsupported content type")

// Confidence values reported per extraction path. Digital PDF text is read
// verbatim; OCR output carries the engine's nominal accuracy.
const (
	confidencePDF   = 0.99
	confidenceText  = 1.0
	confidenceImage = 0.85
)

type Extractor struct {
	tesseractPath string
}

func NewExtractor(tesseractPath string) *Extractor {
	if tesseractPath == "" {
		tesseractPath = "tesseract"
	}
	if found, err := exec.LookPath(tesseractPath); err == nil {
		tesseractPath = found
	}
	return &Extractor{tesseractPath: tesseractPath}
}

// TesseractAvailable reports whether the OCR binary can run. Image
// documents are skipped when it cannot.
func (e *Extractor) TesseractAvailable() bool {
	return exec.Command(e.tesseractPath, "--version").Run() == nil
}

// Extract pulls plain text out of a document file. The reader is consumed
// fully; PDFs need random access so the content is buffered in memory.
func (e *Extractor) Extract(ctx context.Context, mimeType string, reader io.Reader) (string, float64, error) {
	switch normalizeMime(mimeType) {
	case "application/pdf":
		data, err := io.ReadAll(reader)
		if err != nil {
			return "", 0, fmt.Errorf("read pdf: %w", err)
		}
		text, err := extractPDF(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return "", 0, err
		}
		return text, confidencePDF, nil
	case "text/plain":
		data, err := io.ReadAll(reader)
		if err != nil {
			return "", 0, fmt.Errorf("read text: %w", err)
		}
		return strings.TrimSpace(string(data)), confidenceText, nil
	case "image/png", "image/jpeg", "image/tiff", "image/bmp":
		if !e.TesseractAvailable() {
			return "", 0, ErrUnsupported
		}
		text, err := e.runTesseract(ctx, reader)
		if err != nil {
			return "", 0, err
		}
		return text, confidenceImage, nil
	default:
		return "", 0, ErrUnsupported
	}
}

func extractPDF(data io.ReaderAt, size int64) (string, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}
	return strings.TrimSpace(buf.String()), nil
}

func (e *Extractor) runTesseract(ctx context.Context, reader io.Reader) (string, error) {
	cmd := exec.CommandContext(ctx, e.tesseractPath, "stdin", "stdout", "-l", "spa+eng")
	cmd.Stdin = reader

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract ocr: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

func normalizeMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if mimeType == "image/jpg" {
		return "image/jpeg"
	}
	return mimeType
}

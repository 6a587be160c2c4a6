package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

const TypeDocumentOCR = "document:ocr"

type DocumentOCRPayload struct {
	DocumentID string `json:"document_id"`
}

// QueueClient enqueues OCR tasks for the background worker.
type QueueClient struct {
	client *asynq.Client
}

func NewQueueClient(redisURL string) (*QueueClient, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &QueueClient{client: asynq.NewClient(opt)}, nil
}

func (c *QueueClient) Close() error {
	return c.client.Close()
}

func (c *QueueClient) EnqueueDocumentOCR(ctx context.Context, documentID string) error {
	data, err := json.Marshal(DocumentOCRPayload{DocumentID: documentID})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(TypeDocumentOCR, data)
	_, err = c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeDocumentOCR, err)
	}
	return nil
}

// TaskHandler adapts a Processor to the asynq handler interface.
type TaskHandler struct {
	processor documentProcessor
}

func NewTaskHandler(processor documentProcessor) *TaskHandler {
	return &TaskHandler{processor: processor}
}

func (h *TaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload DocumentOCRPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	err := h.processor.Process(ctx, payload.DocumentID)
	if errors.Is(err, ErrUnsupported) {
		// Not an error worth retrying; the file type simply has no text.
		log.Printf("ocr: skipping document %s: unsupported content type", payload.DocumentID)
		return nil
	}
	return err
}

package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

// HTTPCallback posts migration event to the callbackReference of context.
// Contexts without callback reference are skipped.
type HTTPCallback struct {
	client *http.Client
	now    func() time.Time
}

func NewHTTPCallback(timeout time.Duration) *HTTPCallback {
	return &HTTPCallback{
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (h *HTTPCallback) NotifyMigration(
	ctx context.Context,
	callbackReference string,
	contextID models.ContextID,
	newReferenceURI string,
) error {
	if callbackReference == "" {
		return nil
	}
	body, err := json.Marshal(migrationDto{
		ContextID:    contextID,
		ReferenceURI: newReferenceURI,
		Timestamp:    h.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode migration event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackReference, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to form callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request do error: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("callback %s answered with status %d", callbackReference, resp.StatusCode)
	}
	return nil
}

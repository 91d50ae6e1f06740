// Package httpput writes artifact bytes to a presigned URL with HTTP PUT.
package httpput

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/transport"
)

// StatusError is a non-2xx response from the storage endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("storage responded %d: %s", e.Code, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.Code }

type Writer struct {
	client *http.Client
}

func New(client *http.Client) *Writer {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Writer{client: client}
}

func (w *Writer) Write(ctx context.Context, loc transport.Location, body io.Reader, size int64, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, loc.URL, body)
	if err != nil {
		return fmt.Errorf("build put request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	if loc.Token != "" {
		req.Header.Set("X-Intent-Token", loc.Token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: string(snippet)}
}

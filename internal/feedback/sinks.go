package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fatih/color"

	"github.com/claude/repform/internal/models"
)

var (
	warnPrefix   = color.New(color.FgYellow).SprintFunc()
	praisePrefix = color.New(color.FgGreen).SprintFunc()
)

// ConsoleSink prints announcements as colored terminal lines.
type ConsoleSink struct {
	w io.Writer
}

// NewConsoleSink creates a ConsoleSink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

// Deliver writes one line: warnings in yellow, praise in green.
func (s *ConsoleSink) Deliver(_ context.Context, a models.Announcement) error {
	prefix := warnPrefix("[FORM]")
	if a.Kind == models.AnnouncePraise {
		prefix = praisePrefix("[GOOD]")
	}
	_, err := fmt.Fprintf(s.w, "%s frame %d: %s\n", prefix, a.Frame, a.Message)
	return err
}

// WebhookSink POSTs announcements as JSON to an external speech service.
type WebhookSink struct {
	url        string
	httpClient *http.Client
}

// NewWebhookSink creates a WebhookSink for url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Deliver sends a and fails on any non-2xx response.
func (s *WebhookSink) Deliver(ctx context.Context, a models.Announcement) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling announcement: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting announcement: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook failed (status %d): %s", resp.StatusCode, body)
	}
	return nil
}

// MultiSink delivers to every sink in order.
type MultiSink []Sink

// Deliver calls every sink and joins their errors.
func (m MultiSink) Deliver(ctx context.Context, a models.Announcement) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

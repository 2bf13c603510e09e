package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/config"
)

const userAgent = "Fetcharr/0.1.0"

// Service defines the notification surface used by the daemon's event pump.
type Service interface {
	NotifyGrabbed(ctx context.Context, title string) error
	NotifyDownloadComplete(ctx context.Context, title string) error
	NotifyDownloadFailed(ctx context.Context, title, reason string) error
	NotifyQueueSummary(ctx context.Context, completed, failed int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		onComplete: cfg.Notifications.OnComplete,
		onFailed:   cfg.Notifications.OnFailed,
		client:     &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	onComplete bool
	onFailed   bool
	client     *http.Client
}

func (n *ntfyService) NotifyGrabbed(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	data := payload{
		title:   "Fetcharr - Grabbed",
		message: fmt.Sprintf("Grabbed release: %s", title),
		tags:    []string{"fetcharr", "grab"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDownloadComplete(ctx context.Context, title string) error {
	if !n.onComplete {
		return nil
	}
	title = strings.TrimSpace(title)
	data := payload{
		title:   "Fetcharr - Download Complete",
		message: fmt.Sprintf("Download complete: %s", title),
		tags:    []string{"fetcharr", "download", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDownloadFailed(ctx context.Context, title, reason string) error {
	if !n.onFailed {
		return nil
	}
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Download failed: %s", title)
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\nReason: %s", message, reason)
	}
	data := payload{
		title:    "Fetcharr - Download Failed",
		message:  message,
		tags:     []string{"fetcharr", "download", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueSummary(ctx context.Context, completed, failed int) error {
	var title, message string
	if failed == 0 {
		title = "Fetcharr - Queue Summary"
		message = fmt.Sprintf("%d downloads completed", completed)
	} else {
		title = "Fetcharr - Queue Summary (with errors)"
		message = fmt.Sprintf("%d completed, %d failed", completed, failed)
	}
	data := payload{
		title:   title,
		message: message,
		tags:    []string{"fetcharr", "queue", "summary"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Fetcharr - Test",
		message:  "Notification system test",
		tags:     []string{"fetcharr", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyGrabbed(context.Context, string) error                { return nil }
func (noopService) NotifyDownloadComplete(context.Context, string) error       { return nil }
func (noopService) NotifyDownloadFailed(context.Context, string, string) error { return nil }
func (noopService) NotifyQueueSummary(context.Context, int, int) error         { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }

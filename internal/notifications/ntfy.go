package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tagflow/internal/config"
)

const userAgent = "Tagflow-Go/0.1.0"

// NewService builds the push sender. When no ntfy topic is configured a noop
// implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	n := cfg.Notifications
	topic := strings.TrimSpace(n.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(n.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if n.RateLimit > 0 {
		limit = rate.Limit(n.RateLimit)
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(limit, 1),
		folderStatus: n.FolderStatus,
		errors:       n.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	limiter      *rate.Limiter
	folderStatus bool
	errors       bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

// format maps an event to a push message. Successful job statuses and, when
// disabled in config, folder transitions are not pushed.
func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventTest:
		return message{
			title: "Tagflow - Test",
			body:  "Test notification from Tagflow",
			tags:  []string{"tagflow", "test"},
		}, true
	case EventFolderStatus:
		errText, failed := payload["error"].(string)
		if failed && n.errors {
			return message{
				title:    "Tagflow - Folder Failed",
				body:     fmt.Sprintf("%v: %s", payload["path"], errText),
				tags:     []string{"tagflow", "folder", "error"},
				priority: "high",
			}, true
		}
		if !n.folderStatus {
			return message{}, false
		}
		status := fmt.Sprint(payload["status"])
		return message{
			title: "Tagflow - " + titleCase(status),
			body:  fmt.Sprintf("%v: %s", payload["path"], status),
			tags:  []string{"tagflow", "folder", strings.ToLower(status)},
		}, true
	case EventJobStatus:
		exc, failed := payload["exc"]
		if !failed || !n.errors {
			return message{}, false
		}
		return message{
			title:    "Tagflow - Job Failed",
			body:     describeExc(exc),
			tags:     []string{"tagflow", "job", "error"},
			priority: "high",
		}, true
	}
	return message{}, false
}

func describeExc(exc any) string {
	switch v := exc.(type) {
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	case map[string]any:
		if m, ok := v["message"].(string); ok && m != "" {
			return fmt.Sprintf("%v: %s", v["type"], m)
		}
	}
	return fmt.Sprintf("%v", exc)
}

func titleCase(status string) string {
	if status == "" {
		return status
	}
	lower := strings.ToLower(status)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ntfy rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
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

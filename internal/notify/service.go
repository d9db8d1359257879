package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/events"
	"loom/internal/worker"
)

const userAgent = "Loom/0.1.0"

const sendTimeout = 10 * time.Second

// Service defines the notification surface exposed to execution components.
type Service interface {
	NotifyWorkerCompleted(ctx context.Context, workerID, task string) error
	NotifyWorkerFailed(ctx context.Context, workerID, task string, failure error) error
	NotifyWorkerCancelled(ctx context.Context, workerID, task string) error
	NotifyQueueDrained(ctx context.Context, finished int, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = sendTimeout
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

// Listener adapts the service into an event-bus handler that forwards
// terminal worker events. Delivery failures are swallowed; notifications are
// best-effort and must never disturb execution.
func Listener(svc Service) events.Handler {
	return func(evt worker.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		switch evt.Status {
		case worker.StatusCompleted:
			_ = svc.NotifyWorkerCompleted(ctx, evt.WorkerID, evt.Task)
		case worker.StatusError:
			var failure error
			if evt.Err != nil {
				failure = evt.Err
			}
			_ = svc.NotifyWorkerFailed(ctx, evt.WorkerID, evt.Task, failure)
		case worker.StatusCancelled:
			_ = svc.NotifyWorkerCancelled(ctx, evt.WorkerID, evt.Task)
		}
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyWorkerCompleted(ctx context.Context, workerID, task string) error {
	data := payload{
		title:   "Loom - Worker Complete",
		message: fmt.Sprintf("Task %s finished (worker %s)", task, shortID(workerID)),
		tags:    []string{"loom", "worker", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyWorkerFailed(ctx context.Context, workerID, task string, failure error) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Task %s failed (worker %s)", task, shortID(workerID))
	if failure != nil {
		builder.WriteString(": ")
		builder.WriteString(strings.TrimSpace(failure.Error()))
	}
	data := payload{
		title:    "Loom - Worker Failed",
		message:  builder.String(),
		tags:     []string{"loom", "worker", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyWorkerCancelled(ctx context.Context, workerID, task string) error {
	data := payload{
		title:   "Loom - Worker Cancelled",
		message: fmt.Sprintf("Task %s cancelled (worker %s)", task, shortID(workerID)),
		tags:    []string{"loom", "worker", "cancelled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, finished int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	data := payload{
		title:   "Loom - Queue Drained",
		message: fmt.Sprintf("Queue drained: %d workers finished in %s", finished, duration),
		tags:    []string{"loom", "queue", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Loom - Test",
		message:  "Notification system test",
		tags:     []string{"loom", "test"},
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

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type noopService struct{}

func (noopService) NotifyWorkerCompleted(context.Context, string, string) error        { return nil }
func (noopService) NotifyWorkerFailed(context.Context, string, string, error) error    { return nil }
func (noopService) NotifyWorkerCancelled(context.Context, string, string) error        { return nil }
func (noopService) NotifyQueueDrained(context.Context, int, time.Duration) error       { return nil }
func (noopService) TestNotification(context.Context) error                             { return nil }

// Package dispatch submits worker invocation tasks to the task-dispatch
// service. The queue delivers each task to the worker endpoint as an HTTP
// POST carrying a signed service identity.
package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/veridoc/veridoc/services"
)

// Task is one unit of work handed to the queue for asynchronous delivery.
type Task struct {
	JobID   string `json:"job_id"`
	Tenant  string `json:"tenant_id"`
	Payload string `json:"payload"`
}

// Queue enqueues tasks for later delivery to the worker endpoint.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
}

// Config holds the connection settings for the task-dispatch service.
type Config struct {
	// QueueURL is the task-creation endpoint of the dispatch service.
	QueueURL string
	// WorkerURL is where the queue delivers tasks.
	WorkerURL string
	// ServiceAccount is the identity the queue signs worker invocations with.
	ServiceAccount string
	Timeout        time.Duration
}

// Client posts task-creation requests to a Cloud-Tasks-style dispatch
// service.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a dispatch client.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// Enqueue submits a task for delivery to the worker endpoint. A failure here
// is a dispatch error; the caller owns the job-state consequence.
func (c *Client) Enqueue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return services.WrapDispatch("failed to marshal task", err)
	}

	createReq := createTaskRequest{
		Task: taskSpec{
			HTTPRequest: httpRequestSpec{
				URL:        c.config.WorkerURL,
				HTTPMethod: http.MethodPost,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       base64.StdEncoding.EncodeToString(payload),
				OIDCToken: oidcTokenSpec{
					ServiceAccountEmail: c.config.ServiceAccount,
				},
			},
		},
	}

	body, err := json.Marshal(createReq)
	if err != nil {
		return services.WrapDispatch("failed to marshal task request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.QueueURL, bytes.NewReader(body))
	if err != nil {
		return services.WrapDispatch("failed to create task request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return services.WrapDispatch("task-dispatch service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("task enqueue rejected",
			zap.String("job_id", task.JobID),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return services.WrapDispatch(
			fmt.Sprintf("task-dispatch service returned status %d", resp.StatusCode), nil)
	}

	c.logger.Info("task enqueued",
		zap.String("job_id", task.JobID),
		zap.String("tenant", task.Tenant))
	return nil
}

// DecodeTaskBody reverses the body encoding applied by Enqueue. Exposed for
// worker-side tooling and tests that consume raw queue deliveries.
func DecodeTaskBody(encoded string) (Task, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Task{}, fmt.Errorf("failed to decode task body: %w", err)
	}
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return Task{}, fmt.Errorf("failed to unmarshal task body: %w", err)
	}
	return task, nil
}

type createTaskRequest struct {
	Task taskSpec `json:"task"`
}

type taskSpec struct {
	HTTPRequest httpRequestSpec `json:"http_request"`
}

type httpRequestSpec struct {
	URL        string            `json:"url"`
	HTTPMethod string            `json:"http_method"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body"`
	OIDCToken  oidcTokenSpec     `json:"oidc_token"`
}

type oidcTokenSpec struct {
	ServiceAccountEmail string `json:"service_account_email"`
}

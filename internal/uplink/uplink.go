// Package uplink posts processed frames and events to the ground station
// over HTTP. Grounded on the companion client idiom in
// banshee-data-velocity.report/internal/lidar/monitor/client.go (a
// *http.Client wrapped in a small struct, JSON-encoded bodies, status-code
// branching) adapted to drain a bounded queue in the background instead of
// issuing synchronous calls from request handlers.
package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/flightpath-dev/sentinel-core/internal/config"
	"github.com/flightpath-dev/sentinel-core/internal/pipeline"
)

// Client posts UploadItems to the ground station. It never blocks the
// capture/perception pipeline: Run drains the queue in the background and
// swallows delivery failures after logging them, per spec.md's "uplink
// loss must never affect flight" rule.
type Client struct {
	httpClient *http.Client
	endpoint   string
	authToken  string
	logger     *log.Logger

	mu       sync.Mutex
	failures uint64
	onFail   func()
}

// New builds an uplink Client from config.
func New(cfg config.UplinkConfig, logger *log.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		endpoint:   cfg.Endpoint,
		authToken:  cfg.AuthToken,
		logger:     logger,
	}
}

// OnFailure registers a callback invoked once per failed delivery, used by
// internal/app to feed the failure counter into internal/metrics.
func (c *Client) OnFailure(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFail = fn
}

// Run drains items from queue and posts each to the ground station until
// ctx is cancelled or the queue is closed. Cancelling ctx closes queue, so
// a Run blocked on an empty queue returns too.
func (c *Client) Run(ctx context.Context, queue *pipeline.Queue[pipeline.UploadItem]) {
	stop := context.AfterFunc(ctx, queue.Close)
	defer stop()
	for {
		item, ok := queue.Pop()
		if !ok {
			return
		}
		if err := c.deliver(ctx, item); err != nil {
			c.logger.Printf("uplink: delivery failed for frame %d (%s): %v", item.FrameID, item.Kind, err)
			c.recordFailure()
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	fn := c.onFail
	c.failures++
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Failures returns the lifetime count of failed deliveries.
func (c *Client) Failures() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

func (c *Client) deliver(ctx context.Context, item pipeline.UploadItem) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal upload item: %w", err)
	}

	url := fmt.Sprintf("%s/api/frames", c.endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

package comm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/psantana5/eventtimings/pkg/retry"
)

// HubClient is one rank of a world hosted by a Hub
type HubClient struct {
	baseURL string
	rank    int
	size    int
	client  *http.Client
}

// ClientOption configures a HubClient
type ClientOption func(*HubClient)

// WithHTTPClient replaces the default HTTP client. Requests long-poll, so the
// client should not carry a timeout.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HubClient) { h.client = c }
}

// Dial joins the hub at baseURL as rank of a world of size ranks. It waits
// for the hub to come up and checks that it serves the same world size.
func Dial(ctx context.Context, baseURL string, rank, size int, opts ...ClientOption) (*HubClient, error) {
	if err := checkRank(rank, size); err != nil {
		return nil, err
	}

	c := &HubClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		rank:    rank,
		size:    size,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}

	var health HealthResponse
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("hub health check returned %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&health)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reach hub at %s: %w", c.baseURL, err)
	}

	if health.Size != size {
		return nil, fmt.Errorf("hub serves %d ranks, expected %d", health.Size, size)
	}
	return c, nil
}

func (c *HubClient) Rank() int { return c.rank }
func (c *HubClient) Size() int { return c.size }

// Barrier blocks until every rank has entered it
func (c *HubClient) Barrier() error {
	url := fmt.Sprintf("%s/v1/barrier?rank=%d", c.baseURL, c.rank)
	_, err := c.do(http.MethodPost, url, nil, http.StatusNoContent)
	return err
}

// GatherInt collects one value per rank at root
func (c *HubClient) GatherInt(value int64, root int) ([]int64, error) {
	return gatherInt(c, value, root)
}

// SendAsync queues data at the hub synchronously, which keeps per-route
// ordering, and defers waiting for delivery to the returned request
func (c *HubClient) SendAsync(data []byte, dest, tag int) Request {
	if err := checkRank(dest, c.size); err != nil {
		return failedRequest{err: err}
	}

	url := fmt.Sprintf("%s/v1/ranks/%d/messages?source=%d&tag=%d", c.baseURL, dest, c.rank, tag)
	body, err := c.do(http.MethodPost, url, data, http.StatusOK)
	if err != nil {
		return failedRequest{err: err}
	}

	var posted postResponse
	if err := json.Unmarshal(body, &posted); err != nil {
		return failedRequest{err: fmt.Errorf("failed to parse hub response: %w", err)}
	}
	return &hubRequest{client: c, id: posted.ID}
}

// Probe returns the length of the next message from source with tag
func (c *HubClient) Probe(source, tag int) (int, error) {
	url := fmt.Sprintf("%s/v1/ranks/%d/probe?source=%d&tag=%d", c.baseURL, c.rank, source, tag)
	body, err := c.do(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return 0, err
	}

	var probed probeResponse
	if err := json.Unmarshal(body, &probed); err != nil {
		return 0, fmt.Errorf("failed to parse hub response: %w", err)
	}
	return probed.Size, nil
}

// Recv receives the next message from source with tag into buf. The size is
// probed first so a short buffer fails without consuming the message.
func (c *HubClient) Recv(buf []byte, source, tag int) (int, error) {
	size, err := c.Probe(source, tag)
	if err != nil {
		return 0, err
	}
	if len(buf) < size {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrTruncated, len(buf), size)
	}

	url := fmt.Sprintf("%s/v1/ranks/%d/recv?source=%d&tag=%d", c.baseURL, c.rank, source, tag)
	body, err := c.do(http.MethodPost, url, nil, http.StatusOK)
	if err != nil {
		return 0, err
	}
	return copy(buf, body), nil
}

func (c *HubClient) do(method, url string, payload []byte, want int) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach hub: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		if resp.StatusCode == http.StatusServiceUnavailable {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("hub error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

type hubRequest struct {
	client *HubClient
	id     uint64
}

func (r *hubRequest) Wait() error {
	url := fmt.Sprintf("%s/v1/messages/%d/wait", r.client.baseURL, r.id)
	_, err := r.client.do(http.MethodGet, url, nil, http.StatusNoContent)
	return err
}

package comm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestHub(t *testing.T, size int) (*Hub, *httptest.Server) {
	t.Helper()
	hub, err := NewHub(size, nil)
	require.NoError(t, err)
	server := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, server
}

func dialAll(t *testing.T, url string, size int) []*HubClient {
	t.Helper()
	clients := make([]*HubClient, size)
	for rank := 0; rank < size; rank++ {
		c, err := Dial(context.Background(), url, rank, size)
		require.NoError(t, err)
		clients[rank] = c
	}
	return clients
}

func TestHubHealth(t *testing.T) {
	_, server := newTestHub(t, 3)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.Size)
}

func TestDialSizeMismatch(t *testing.T) {
	_, server := newTestHub(t, 2)

	_, err := Dial(context.Background(), server.URL, 0, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hub serves 2 ranks")
}

func TestHubGatherAndBarrier(t *testing.T) {
	const size = 3
	_, server := newTestHub(t, size)
	clients := dialAll(t, server.URL, size)

	var gathered []int64
	var g errgroup.Group
	for _, c := range clients {
		g.Go(func() error {
			if err := c.Barrier(); err != nil {
				return err
			}
			values, err := c.GatherInt(int64(c.Rank()+1), 0)
			if c.Rank() == 0 {
				gathered = values
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, []int64{1, 2, 3}, gathered)
}

func TestHubPointToPoint(t *testing.T) {
	_, server := newTestHub(t, 2)
	clients := dialAll(t, server.URL, 2)

	var g errgroup.Group
	g.Go(func() error {
		var reqs []Request
		for i := 0; i < 3; i++ {
			reqs = append(reqs, clients[1].SendAsync([]byte(fmt.Sprintf("part-%d", i)), 0, 2))
		}
		return WaitAll(reqs)
	})
	g.Go(func() error {
		for i := 0; i < 3; i++ {
			n, err := clients[0].Probe(1, 2)
			if err != nil {
				return err
			}
			buf := make([]byte, n)
			if _, err := clients[0].Recv(buf, 1, 2); err != nil {
				return err
			}
			if string(buf) != fmt.Sprintf("part-%d", i) {
				return fmt.Errorf("unexpected message %q", buf)
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())
}

func TestHubRejectsBadRoute(t *testing.T) {
	_, server := newTestHub(t, 2)

	resp, err := http.Post(server.URL+"/v1/ranks/9/messages?source=0&tag=1", "application/octet-stream", strings.NewReader("x"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Post(server.URL+"/v1/ranks/0/messages?source=zero&tag=1", "application/octet-stream", strings.NewReader("x"))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestHubWaitUnknownMessage(t *testing.T) {
	_, server := newTestHub(t, 1)

	resp, err := http.Get(server.URL + "/v1/messages/42/wait")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHubMetrics(t *testing.T) {
	_, server := newTestHub(t, 1)
	clients := dialAll(t, server.URL, 1)

	req := clients[0].SendAsync([]byte("abc"), 0, 5)
	buf := make([]byte, 3)
	_, err := clients[0].Recv(buf, 0, 5)
	require.NoError(t, err)
	require.NoError(t, req.Wait())

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `evtimings_hub_messages_total{tag="5"} 1`)
	assert.Contains(t, string(body), "evtimings_hub_message_bytes_total 3")
	assert.Contains(t, string(body), "evtimings_hub_pending_messages 0")
}

package comm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psantana5/eventtimings/pkg/logging"
)

// Hub hosts the mailboxes of a world whose ranks live in separate processes.
// Ranks talk to it through HubClient. Every blocking endpoint long-polls until
// its condition holds.
type Hub struct {
	po     *postOffice
	logger *logging.Logger

	registry      *prometheus.Registry
	messagesTotal *prometheus.CounterVec
	bytesTotal    prometheus.Counter
	barriersTotal prometheus.Counter
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Size   int    `json:"size"`
}

type postResponse struct {
	ID uint64 `json:"id"`
}

type probeResponse struct {
	Size int `json:"size"`
}

// NewHub creates a hub for size ranks
func NewHub(size int, logger *logging.Logger) (*Hub, error) {
	if size < 1 {
		return nil, fmt.Errorf("hub size must be at least 1, got %d", size)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	h := &Hub{
		po:       newPostOffice(size),
		logger:   logger.WithField("component", "hub"),
		registry: prometheus.NewRegistry(),
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evtimings_hub_messages_total",
				Help: "Messages accepted by the hub",
			},
			[]string{"tag"},
		),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evtimings_hub_message_bytes_total",
			Help: "Payload bytes accepted by the hub",
		}),
		barriersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evtimings_hub_barrier_entries_total",
			Help: "Barrier entries across all ranks",
		}),
	}

	pending := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "evtimings_hub_pending_messages",
		Help: "Messages queued but not yet received",
	}, func() float64 { return float64(h.po.pending()) })

	h.registry.MustRegister(h.messagesTotal, h.bytesTotal, h.barriersTotal, pending)
	return h, nil
}

// Size returns the number of ranks the hub serves
func (h *Hub) Size() int {
	return h.po.size
}

// RegisterRoutes registers all hub routes
func (h *Hub) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/ranks/{dest}/messages", h.PostMessage).Methods("POST")
	r.HandleFunc("/v1/ranks/{dest}/probe", h.ProbeMessage).Methods("GET")
	r.HandleFunc("/v1/ranks/{dest}/recv", h.ReceiveMessage).Methods("POST")
	r.HandleFunc("/v1/messages/{id}/wait", h.WaitMessage).Methods("GET")
	r.HandleFunc("/v1/barrier", h.EnterBarrier).Methods("POST")

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})).Methods("GET")
}

// Handler returns a router with all hub routes
func (h *Hub) Handler() http.Handler {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// Close unblocks every waiting request
func (h *Hub) Close() {
	h.po.close()
}

// PostMessage queues the request body for {dest}
func (h *Hub) PostMessage(w http.ResponseWriter, r *http.Request) {
	rt, err := parseRoute(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	m, err := h.po.post(rt, body)
	if err != nil {
		writeHubError(w, err)
		return
	}

	h.messagesTotal.WithLabelValues(strconv.Itoa(rt.tag)).Inc()
	h.bytesTotal.Add(float64(len(body)))
	h.logger.Debug("Message queued", map[string]interface{}{
		"id": m.id, "source": rt.source, "dest": rt.dest, "tag": rt.tag, "bytes": len(body),
	})

	writeJSON(w, http.StatusOK, postResponse{ID: m.id})
}

// ProbeMessage returns the size of the next message for {dest} from source with tag
func (h *Hub) ProbeMessage(w http.ResponseWriter, r *http.Request) {
	rt, err := parseRoute(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := h.po.peek(r.Context(), rt)
	if err != nil {
		writeHubError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, probeResponse{Size: len(m.data)})
}

// ReceiveMessage removes the next message for {dest} and returns it as the body
func (h *Hub) ReceiveMessage(w http.ResponseWriter, r *http.Request) {
	rt, err := parseRoute(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := h.po.take(r.Context(), rt)
	if err != nil {
		writeHubError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(m.data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(m.data); err != nil {
		h.logger.Error("Failed to deliver message", map[string]interface{}{"id": m.id, "error": err.Error()})
	}
}

// WaitMessage blocks until message {id} has been received
func (h *Hub) WaitMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid message id", http.StatusBadRequest)
		return
	}

	known, err := h.po.awaitDelivery(r.Context(), id)
	if err != nil {
		writeHubError(w, err)
		return
	}
	if !known {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// EnterBarrier blocks until every rank has entered the barrier
func (h *Hub) EnterBarrier(w http.ResponseWriter, r *http.Request) {
	rank, err := strconv.Atoi(r.URL.Query().Get("rank"))
	if err != nil || checkRank(rank, h.po.size) != nil {
		http.Error(w, "Invalid rank", http.StatusBadRequest)
		return
	}

	h.barriersTotal.Inc()
	if err := h.po.barrier(r.Context()); err != nil {
		writeHubError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health reports the hub size
func (h *Hub) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Size: h.po.size})
}

func parseRoute(r *http.Request) (route, error) {
	dest, err := strconv.Atoi(mux.Vars(r)["dest"])
	if err != nil {
		return route{}, fmt.Errorf("invalid destination rank")
	}
	q := r.URL.Query()
	source, err := strconv.Atoi(q.Get("source"))
	if err != nil {
		return route{}, fmt.Errorf("invalid source rank")
	}
	tag, err := strconv.Atoi(q.Get("tag"))
	if err != nil {
		return route{}, fmt.Errorf("invalid tag")
	}
	return route{dest: dest, source: source, tag: tag}, nil
}

func writeHubError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"echoping/internal/address"
	"echoping/internal/history"
	"echoping/internal/metrics"
	"echoping/internal/models"
	"echoping/internal/octet"
	"echoping/internal/storage"
)

const maxBodyBytes = 4096

// Server wraps HTTP serving of the API and the live stream.
type Server struct {
	httpServer   *http.Server
	hub          *Hub
	results      *storage.ResultStorage
	metrics      *metrics.Collector
	historyLimit int
}

// Options tune optional parts of the server.
type Options struct {
	// HistoryLimit caps /api/history responses.
	HistoryLimit int
	// Metrics exposes /metrics when set.
	Metrics bool
}

// New creates a configured HTTP server around a running hub.
func New(addr string, hub *Hub, results *storage.ResultStorage, opts Options) *Server {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = storage.DefaultHistorySize
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer:   &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		hub:          hub,
		results:      results,
		metrics:      hub.metrics,
		historyLimit: opts.HistoryLimit,
	}
	s.registerRoutes(mux, opts)
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux, opts Options) {
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/timeline", s.handleTimeline)
	mux.HandleFunc("/api/address", s.handleAddress)
	mux.HandleFunc("/api/octet", s.handleOctet)
	mux.HandleFunc("/ws", s.handleLive)
	if opts.Metrics {
		mux.Handle("/metrics", s.metrics.Handler())
	}
}

type statusResponse struct {
	Target    string         `json:"target,omitempty"`
	Observers int            `json:"observers"`
	Active    bool           `json:"active"`
	Latest    *models.Result `json:"latest"`
	Display   string         `json:"display,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	resp := statusResponse{
		Observers: s.hub.Observers(),
		Active:    s.hub.Active(),
	}
	if target, ok := s.hub.Target(); ok {
		resp.Target = target.String()
	}
	if latest, ok := s.results.Latest(); ok {
		resp.Latest = &latest
		resp.Display = latest.Outcome.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	limit := parseLimit(r, s.historyLimit)
	writeJSON(w, http.StatusOK, s.results.HistoryN(limit))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	limit := parseLimit(r, s.historyLimit)
	writeJSON(w, http.StatusOK, metrics.Summarize(s.results.HistoryN(limit)))
}

const (
	defaultTimelineWindow = time.Hour
	maxTimelineMinutes    = 7 * 24 * 60
	maxTimelinePoints     = 500
)

type timelineResponse struct {
	RangeStart time.Time              `json:"range_start"`
	RangeEnd   time.Time              `json:"range_end"`
	Timeline   []models.TimelinePoint `json:"timeline"`
}

// handleTimeline buckets the kept results; ?minutes= sets the window and
// ?points= the bucket count.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	window := defaultTimelineWindow
	if minutes := queryInt(r, "minutes", 0, maxTimelineMinutes); minutes > 0 {
		window = time.Duration(minutes) * time.Minute
	}
	points := queryInt(r, "points", history.DefaultTimelinePoints, maxTimelinePoints)

	end := time.Now().UTC()
	start := end.Add(-window)
	writeJSON(w, http.StatusOK, timelineResponse{
		RangeStart: start,
		RangeEnd:   end,
		Timeline:   history.BuildTimeline(s.results.HistoryN(0), start, end, points),
	})
}

type addressRequest struct {
	Octets  []string `json:"octets"`
	Address string   `json:"address"`
}

type addressResponse struct {
	Address string   `json:"address"`
	Octets  []string `json:"octets"`
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		target, ok := s.hub.Target()
		if !ok {
			writeError(w, http.StatusNotFound, "no address set")
			return
		}
		writeJSON(w, http.StatusOK, newAddressResponse(target))
	case http.MethodPut, http.MethodPost:
		var req addressRequest
		if !decodeBody(w, r, &req) {
			return
		}
		addr, ok := req.resolve()
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, ErrIncompleteAddress.Error())
			return
		}
		if err := s.hub.Commit(r.Context(), addr); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, errHubStopped) {
				status = http.StatusServiceUnavailable
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, newAddressResponse(addr))
	default:
		allowMethods(w, r, http.MethodGet, http.MethodPut, http.MethodPost)
	}
}

func (req addressRequest) resolve() (address.Address, bool) {
	if req.Address != "" {
		addr, err := address.Parse(req.Address)
		return addr, err == nil
	}
	if len(req.Octets) != 4 {
		return address.Address{}, false
	}
	var fields [4]string
	copy(fields[:], req.Octets)
	return address.Assemble(fields)
}

func newAddressResponse(a address.Address) addressResponse {
	fields := address.Disassemble(a)
	return addressResponse{Address: a.String(), Octets: fields[:]}
}

type octetRequest struct {
	Previous string `json:"previous"`
	Text     string `json:"text"`
}

type octetResponse struct {
	Classification string  `json:"classification"`
	Correction     *string `json:"correction,omitempty"`
	Cursor         *int    `json:"cursor,omitempty"`
}

// handleOctet classifies a single edit. Suppressed edits answer 204.
func (s *Server) handleOctet(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req octetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, ok := octet.Classify(req.Previous, req.Text)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	msg := newOctetMessage(0, c)
	writeJSON(w, http.StatusOK, octetResponse{
		Classification: msg.Classification,
		Correction:     msg.Correction,
		Cursor:         msg.Cursor,
	})
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	allow := methods[0]
	for _, m := range methods[1:] {
		allow += ", " + m
	}
	w.Header().Set("Allow", allow)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func parseLimit(r *http.Request, fallback int) int {
	if fallback <= 0 {
		return fallback
	}
	return queryInt(r, "limit", fallback, fallback)
}

// queryInt reads a positive integer parameter, capped at max.
func queryInt(r *http.Request, key string, fallback, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

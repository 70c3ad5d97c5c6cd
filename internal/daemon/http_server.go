package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
	"git.home.luguber.info/inful/dropsync/internal/logfields"
	"git.home.luguber.info/inful/dropsync/internal/metrics"
	"git.home.luguber.info/inful/dropsync/internal/state"
	"git.home.luguber.info/inful/dropsync/internal/version"
)

// HTTPServer serves the admin endpoints: /healthz, /status and /metrics.
type HTTPServer struct {
	addr   string
	daemon *Daemon
	server *http.Server
	ln     net.Listener
}

// NewHTTPServer creates the admin server for d listening on addr.
func NewHTTPServer(addr string, d *Daemon) *HTTPServer {
	return &HTTPServer{addr: addr, daemon: d}
}

// Handler returns the admin routes.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	if s.daemon.registry != nil {
		mux.Handle("/metrics", metrics.HTTPHandler(s.daemon.registry))
	}
	return mux
}

// Start binds the listener before returning so address conflicts fail fast.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryDaemon, "admin endpoint cannot listen").
			Fatal().
			WithContext("addr", s.addr).
			Build()
	}
	s.ln = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Admin server failed", logfields.Error(err))
		}
	}()
	slog.Info("Admin server started", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *HTTPServer) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return derrors.WrapError(err, derrors.CategoryDaemon, "admin server shutdown").Build()
	}
	return nil
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status  string `json:"status"`
	Loop    Status `json:"loop"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	d := s.daemon
	resp := HealthResponse{
		Status:  "healthy",
		Loop:    d.Status(),
		Version: version.Version,
	}
	if !d.startTime.IsZero() {
		resp.Uptime = d.clock.Since(d.startTime).Truncate(time.Second).String()
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// StatusResponse is the /status body.
type StatusResponse struct {
	Loop           Status         `json:"loop"`
	Interval       string         `json:"interval"`
	NumberOfChecks int            `json:"number_of_checks"`
	MaxCopyRetries int            `json:"max_copy_retries"`
	LastCycle      *CycleReport   `json:"last_cycle,omitempty"`
	Sources        []SourceStatus `json:"sources"`
}

// SourceStatus lists the records of one source.
type SourceStatus struct {
	Path      string          `json:"path"`
	StateFile string          `json:"state_file"`
	Packages  []PackageStatus `json:"packages"`
}

// PackageStatus is one record as shown by /status and `dropsync status`.
type PackageStatus struct {
	Identity       string       `json:"identity"`
	Status         state.Status `json:"status"`
	StableChecks   int          `json:"stable_checks"`
	CopyRetryCount int          `json:"copy_retry_count"`
	Destination    string       `json:"destination,omitempty"`
	DetectedAt     time.Time    `json:"detected_at"`
	CopiedAt       *time.Time   `json:"copied_at,omitempty"`
}

// NewPackageStatus summarizes a stored record under the given retry budget.
func NewPackageStatus(e state.Entry, maxCopyRetries int) PackageStatus {
	ps := PackageStatus{
		Identity:       e.Identity,
		Status:         e.Record.Status(maxCopyRetries),
		StableChecks:   e.Record.StableChecks,
		CopyRetryCount: e.Record.CopyRetryCount,
		Destination:    e.Record.DestinationPackagePath,
		DetectedAt:     e.Record.DetectedAt,
	}
	if !e.Record.CopiedAt.IsZero() {
		t := e.Record.CopiedAt
		ps.CopiedAt = &t
	}
	return ps
}

// Snapshot builds the current status of every source.
func (d *Daemon) Snapshot() StatusResponse {
	cfg := d.GetConfig()
	budget := d.policy.MaxCopyRetries()
	resp := StatusResponse{
		Loop:           d.Status(),
		Interval:       cfg.PollInterval().String(),
		NumberOfChecks: d.policy.NumberOfChecks(),
		MaxCopyRetries: budget,
		LastCycle:      d.LastCycle(),
		Sources:        make([]SourceStatus, 0, len(d.sources)),
	}
	for _, src := range d.sources {
		ss := SourceStatus{Path: src.path, StateFile: src.store.Path(), Packages: []PackageStatus{}}
		for _, e := range src.store.All() {
			ss.Packages = append(ss.Packages, NewPackageStatus(e, budget))
		}
		resp.Sources = append(resp.Sources, ss)
	}
	return resp
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, r, http.StatusOK, s.daemon.Snapshot())
}

// writeJSON encodes v, pretty-printed when ?pretty=1 is given.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if p := r.URL.Query().Get("pretty"); p == "1" || p == "true" {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		slog.Error("failed writing JSON response", logfields.Error(err))
	}
}

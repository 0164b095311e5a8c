// Package api serves a game session over HTTP.
// GET endpoints are read-only views of the session.
// POST endpoints submit player actions; they require a bearer token when an
// admin key is configured. Live updates stream over a websocket at /ws.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/talgya/earth-dominion/internal/engine"
	"github.com/talgya/earth-dominion/internal/i18n"
	"github.com/talgya/earth-dominion/internal/persistence"
)

const (
	defaultLogLimit  = 50
	defaultRunLimit  = 20
	maxBodyBytes     = 4 << 10
	defaultEventWait = 15 * time.Second
)

// Chronicle is the read side of the run history.
type Chronicle interface {
	Runs(limit int) ([]engine.RunRecord, error)
	Stats() (persistence.RunStats, error)
}

// Options configures a Server.
type Options struct {
	Addr           string
	AdminKey       string   // empty: POST endpoints are open
	CORSOrigins    []string // empty: any origin
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustedProxies are peer IPs allowed to set X-Forwarded-For.
	TrustedProxies []string
	// EventWait bounds how long /turn/end?wait=1 holds the request while a
	// narrative event is generated.
	EventWait time.Duration
}

// Server serves one session over HTTP.
type Server struct {
	Session   *engine.Session
	Chronicle Chronicle // nil: run history is empty

	opts    Options
	limiter *RateLimiter
	cors    *cors.Cors
	hub     *Hub
	started time.Time
}

// NewServer wires a server around a session.
func NewServer(session *engine.Session, chronicle Chronicle, opts Options) *Server {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 2
	}
	if opts.RateLimitBurst < 1 {
		opts.RateLimitBurst = 5
	}
	if opts.EventWait <= 0 {
		opts.EventWait = defaultEventWait
	}

	c := cors.New(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s := &Server{
		Session:   session,
		Chronicle: chronicle,
		opts:      opts,
		limiter:   NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst, opts.TrustedProxies...),
		cors:      c,
		started:   time.Now(),
	}
	s.hub = NewHub(func(r *http.Request) bool {
		// Non-browser clients send no Origin.
		return r.Header.Get("Origin") == "" || c.OriginAllowed(r)
	})
	return s
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/state", s.handleState)
	mux.HandleFunc("GET /api/v1/render", s.handleRender)
	mux.HandleFunc("GET /api/v1/regions", s.handleRegions)
	mux.HandleFunc("GET /api/v1/regions/{code}", s.handleRegionDetail)
	mux.HandleFunc("GET /api/v1/skills", s.handleSkills)
	mux.HandleFunc("GET /api/v1/log", s.handleLog)
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /ws", s.handleWs)

	mux.HandleFunc("POST /api/v1/select", s.adminOnly(s.action(s.doSelect)))
	mux.HandleFunc("POST /api/v1/control", s.adminOnly(s.action(simple(s.Session.EstablishControl))))
	mux.HandleFunc("POST /api/v1/suppress", s.adminOnly(s.action(simple(s.Session.SuppressRebellion))))
	mux.HandleFunc("POST /api/v1/nuclear", s.adminOnly(s.action(simple(s.Session.BuildNuclearPlant))))
	mux.HandleFunc("POST /api/v1/diagnostics", s.adminOnly(s.action(simple(s.Session.RunDiagnostics))))
	mux.HandleFunc("POST /api/v1/skills/unlock", s.adminOnly(s.action(s.doUnlock)))
	mux.HandleFunc("POST /api/v1/abilities/activate", s.adminOnly(s.action(s.doActivate)))
	mux.HandleFunc("POST /api/v1/turn/end", s.adminOnly(RateLimitMiddleware(s.limiter, s.action(s.doEndTurn))))
	mux.HandleFunc("POST /api/v1/events/resolve", s.adminOnly(s.action(s.doResolve)))
	mux.HandleFunc("POST /api/v1/protocols/pick", s.adminOnly(s.action(s.doPick)))
	mux.HandleFunc("POST /api/v1/restart", s.adminOnly(s.action(simple(s.Session.Restart))))
	mux.HandleFunc("POST /api/v1/language", s.adminOnly(s.action(s.doLanguage)))

	return s.cors.Handler(mux)
}

// Start serves until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	updates, unsubscribe := s.Session.Subscribe(256)
	defer unsubscribe()
	go s.hub.Run(ctx)
	go s.hub.Pump(ctx, updates)

	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.opts.Addr, "admin_auth", s.opts.AdminKey != "", "cors", s.opts.CORSOrigins)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("HTTP API shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.opts.AdminKey
}

// adminOnly requires the bearer token when an admin key is configured.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminKey != "" && !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// actionResponse is returned by every POST endpoint. A rejected action is
// still a 200: the game refused it, the request was fine.
type actionResponse struct {
	Accepted  bool              `json:"accepted"`
	Reason    string            `json:"reason,omitempty"`
	Rejection engine.RejectKind `json:"rejection,omitempty"`
	State     engine.Snapshot   `json:"state"`
}

var errBadRequest = errors.New("bad request")

func simple(fn func() error) func(*http.Request) error {
	return func(*http.Request) error { return fn() }
}

func (s *Server) action(fn func(*http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(r)
		if errors.Is(err, errBadRequest) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := actionResponse{Accepted: err == nil, Rejection: engine.Classify(err)}
		if err != nil {
			resp.Reason = err.Error()
			slog.Debug("action rejected", "path", r.URL.Path, "reason", err)
		}
		resp.State = s.Session.Snapshot()
		writeJSON(w, resp)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
	}
	return nil
}

type idRequest struct {
	ID string `json:"id"`
}

func (s *Server) decodeID(r *http.Request) (string, error) {
	var req idRequest
	if err := decodeBody(r, &req); err != nil {
		return "", err
	}
	if req.ID == "" {
		return "", fmt.Errorf("%w: id is required", errBadRequest)
	}
	return req.ID, nil
}

func (s *Server) doSelect(r *http.Request) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.Code == "" {
		return fmt.Errorf("%w: code is required", errBadRequest)
	}
	return s.Session.Select(req.Code)
}

func (s *Server) doUnlock(r *http.Request) error {
	id, err := s.decodeID(r)
	if err != nil {
		return err
	}
	return s.Session.UnlockSkill(id)
}

func (s *Server) doActivate(r *http.Request) error {
	id, err := s.decodeID(r)
	if err != nil {
		return err
	}
	return s.Session.ActivateAbility(id)
}

func (s *Server) doPick(r *http.Request) error {
	id, err := s.decodeID(r)
	if err != nil {
		return err
	}
	return s.Session.PickProtocol(id)
}

func (s *Server) doResolve(r *http.Request) error {
	var req struct {
		Option *int `json:"option"`
	}
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.Option == nil {
		return fmt.Errorf("%w: option is required", errBadRequest)
	}
	return s.Session.ResolveEvent(*req.Option)
}

// doEndTurn advances the turn. With ?wait=1 it also holds the response until
// a narrative event fetch started by this turn has settled.
func (s *Server) doEndTurn(r *http.Request) error {
	if err := s.Session.EndTurn(); err != nil {
		return err
	}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.EventWait)
		defer cancel()
		if err := s.Session.AwaitEvent(ctx); err != nil {
			slog.Debug("event still pending", "error", err)
		}
	}
	return nil
}

func (s *Server) doLanguage(r *http.Request) error {
	var req struct {
		Lang string `json:"lang"`
	}
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	tag := s.Session.SetLanguage(req.Lang)
	slog.Info("language changed", "requested", req.Lang, "tag", tag)
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Session.Snapshot()
	writeJSON(w, map[string]any{
		"name":       "Earth Dominion",
		"run_id":     snap.RunID,
		"phase":      snap.Phase,
		"turn":       snap.State.Turn,
		"threat":     snap.State.Threat,
		"game_over":  snap.State.GameOver,
		"language":   snap.Language,
		"languages":  i18n.Supported(),
		"regions":    s.Session.Atlas().Len(),
		"uptime_sec": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Session.Snapshot())
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Session.Render())
}

// handleRegions lists regions, optionally filtered by ?status=.
func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	views := s.Session.Regions()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := views[:0]
		for _, v := range views {
			if string(v.Status) == status {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}
	writeJSON(w, views)
}

func (s *Server) handleRegionDetail(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	for _, v := range s.Session.Regions() {
		if v.Code == code {
			writeJSON(w, v)
			return
		}
	}
	http.Error(w, "region not found", http.StatusNotFound)
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Session.Skills())
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, defaultLogLimit)
	if !ok {
		return
	}
	writeJSON(w, s.Session.Log(limit))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, defaultRunLimit)
	if !ok {
		return
	}
	resp := struct {
		Runs  []engine.RunRecord    `json:"runs"`
		Stats persistence.RunStats `json:"stats"`
	}{Runs: []engine.RunRecord{}}

	if s.Chronicle != nil {
		runs, err := s.Chronicle.Runs(limit)
		if err != nil {
			slog.Error("read runs", "error", err)
			http.Error(w, "chronicle unavailable", http.StatusInternalServerError)
			return
		}
		stats, err := s.Chronicle.Stats()
		if err != nil {
			slog.Error("read run stats", "error", err)
			http.Error(w, "chronicle unavailable", http.StatusInternalServerError)
			return
		}
		if runs != nil {
			resp.Runs = runs
		}
		resp.Stats = stats
	}
	writeJSON(w, resp)
}

func (s *Server) handleWs(w http.ResponseWriter, r *http.Request) {
	greeting := engine.Update{Type: engine.UpdateRender, Payload: s.Session.Render()}
	s.hub.ServeWs(w, r, &greeting)
}

func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write response", "error", err)
	}
}

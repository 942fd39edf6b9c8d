package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"projclock/internal/alarm"
	"projclock/internal/config"
	"projclock/internal/line"
	appLog "projclock/internal/log"
	"projclock/internal/model"
	"projclock/internal/projector"
	"projclock/internal/protocol"
	"projclock/internal/radio"
)

// Display is the part of the projector driver the API uses.
type Display interface {
	SendTime(hours, minutes int) error
	SendRawFrame(bits string) error
	Status() projector.Status
}

// Deps are the running components the API controls.
type Deps struct {
	Display   Display
	Scheduler *alarm.Scheduler
	Radio     *radio.Radio
	// ConfigPath, if set, is where alarm and station changes are saved.
	ConfigPath string
}

// Server provides the HTTP API for the clock.
type Server struct {
	cfg  *config.Config
	deps Deps
	mux  *http.ServeMux
	now  func() time.Time

	// cfgMu guards cfg while API calls write changes back to disk.
	cfgMu sync.Mutex
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
		now:  time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password leaves auth off.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="projclock", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves the API on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, deps Deps) error {
	s := NewServer(cfg, deps)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/time", s.handleTime)
	s.mux.HandleFunc("/api/raw", s.handleRaw)
	s.mux.HandleFunc("/api/alarms", s.handleAlarms)
	s.mux.HandleFunc("/api/alarms.ics", s.handleCalendar)
	s.mux.HandleFunc("/api/station", s.handleStation)
	s.mux.HandleFunc("/api/play", s.handlePlay)
	s.mux.HandleFunc("/api/stop", s.handleStop)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type alarmsResponse struct {
	Alarms []model.Alarm `json:"alarms"`
	Next   *alarm.Next   `json:"next_alarm"`
}

type statusResponse struct {
	Time      string           `json:"time"`
	Projector projector.Status `json:"projector"`
	Radio     radio.Status     `json:"radio"`
	alarmsResponse
}

func (s *Server) alarms() alarmsResponse {
	resp := alarmsResponse{Alarms: s.deps.Scheduler.Alarms()}
	if next, ok := s.deps.Scheduler.NextAlarm(s.now()); ok {
		resp.Next = &next
	}
	return resp
}

// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Time:           s.now().In(s.deps.Scheduler.Location()).Format("15:04"),
		Projector:      s.deps.Display.Status(),
		Radio:          s.deps.Radio.Status(),
		alarmsResponse: s.alarms(),
	})
}

// POST /api/time {"hours": 21, "minutes": 31}
//
// Missing fields mean the current time. The scheduler overwrites the display
// on its next tick.
func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Hours   *int `json:"hours"`
		Minutes *int `json:"minutes"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	now := s.now().In(s.deps.Scheduler.Location())
	h, m := now.Hour(), now.Minute()
	if req.Hours != nil {
		h = *req.Hours
	}
	if req.Minutes != nil {
		m = *req.Minutes
	}
	if err := s.deps.Display.SendTime(h, m); err != nil {
		writeDisplayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Display.Status())
}

// POST /api/raw {"bits": "10101100 ..."}
func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Bits string `json:"bits"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if err := s.deps.Display.SendRawFrame(req.Bits); err != nil {
		writeDisplayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Display.Status())
}

// GET  /api/alarms
// POST /api/alarms {"slot": 0, "time": "07:00", "enabled": true, "days": ["mon"]}
func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.alarms())
		return
	case http.MethodPost:
	default:
		allow(w, r, http.MethodGet, http.MethodPost)
		return
	}

	var req struct {
		Slot int `json:"slot"`
		model.Alarm
	}
	if !readJSON(w, r, &req) {
		return
	}
	if err := s.deps.Scheduler.SetAlarm(req.Slot, req.Alarm); err != nil {
		if errors.Is(err, alarm.ErrNoSuchSlot) || errors.Is(err, model.ErrInvalidAlarm) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		appLog.Error("set alarm failed", err, "slot", req.Slot)
		writeError(w, http.StatusInternalServerError, "failed to set alarm")
		return
	}
	s.persist(func(c *config.Config) { c.Alarms = s.deps.Scheduler.Alarms() })
	writeJSON(w, http.StatusOK, s.alarms())
}

// GET /api/alarms.ics
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	feed, err := s.deps.Scheduler.Calendar(s.now())
	if err != nil {
		appLog.Error("alarm feed failed", err)
		writeError(w, http.StatusInternalServerError, "failed to render alarm feed")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(feed))
}

// POST /api/station {"station": "fm4"}
func (s *Server) handleStation(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Station string `json:"station"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	st, err := s.deps.Radio.SetStation(req.Station)
	if err != nil {
		if errors.Is(err, radio.ErrUnknownStation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		appLog.Error("set station failed", err, "station", req.Station)
		writeError(w, http.StatusInternalServerError, "failed to change station")
		return
	}
	s.persist(func(c *config.Config) { c.DefaultStation = st.ID })
	writeJSON(w, http.StatusOK, s.deps.Radio.Status())
}

// POST /api/play
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if err := s.deps.Radio.Play(r.Context()); err != nil {
		if errors.Is(err, radio.ErrStationChanged) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		appLog.Error("play failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Radio.Status())
}

// POST /api/stop
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	was, err := s.deps.Radio.Stop()
	if err != nil {
		appLog.Error("stop failed", err)
		writeError(w, http.StatusInternalServerError, "failed to stop playback")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Stopped bool `json:"stopped"`
	}{was})
}

// persist applies change to the config and saves it, if a path is configured.
// Failure is logged; the running state has already changed.
func (s *Server) persist(change func(*config.Config)) {
	if s.deps.ConfigPath == "" || s.cfg == nil {
		return
	}
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	change(s.cfg)
	if err := s.cfg.Save(s.deps.ConfigPath); err != nil {
		appLog.Error("failed to save config", err, "path", s.deps.ConfigPath)
	}
}

// writeDisplayError maps driver errors: bad input is the caller's fault, a
// line fault is the hardware's.
func writeDisplayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, protocol.ErrInvalidInput),
		errors.Is(err, protocol.ErrInvalidLength),
		errors.Is(err, protocol.ErrInvalidCharacter),
		errors.Is(err, protocol.ErrInvalidFraming):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, projector.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, line.ErrTransportFault):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		appLog.Error("display request failed", err)
		writeError(w, http.StatusInternalServerError, "display error")
	}
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	for _, m := range methods {
		w.Header().Add("Allow", m)
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	// An empty body leaves v at its defaults.
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

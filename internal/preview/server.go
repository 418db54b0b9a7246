package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/arthurfeeney/Marley-Accel/internal/accel"
)

// maxCurveSamples bounds a single GET /api/curve request.
const maxCurveSamples = 100000

// maxBodyBytes bounds PUT /api/profile bodies.
const maxBodyBytes = 64 << 10

// Server is the HTTP side of the live preview: the profile API, the curve
// API and the websocket endpoint.
type Server struct {
	logger *slog.Logger
	hub    *Hub
	store  *Store
	clock  clockwork.Clock

	grid       Grid
	velocities []float64
}

// Grid is a half-open velocity sample range [Min, Max).
type Grid struct {
	Min, Max, Step float64
}

// Velocities expands the grid.
func (g Grid) Velocities() []float64 {
	return accel.VelocityRange(g.Min, g.Max, g.Step)
}

type ServerConfig struct {
	// Grid is the default sample grid for curves.
	Grid Grid

	// Clock stamps outgoing messages. Nil uses the real clock.
	Clock clockwork.Clock
}

// NewServer constructs the preview server. Register it on a mux and start
// Hub().Run(ctx).
func NewServer(logger *slog.Logger, store *Store, cfg ServerConfig) *Server {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Server{
		logger:     logger,
		store:      store,
		clock:      clock,
		grid:       cfg.Grid,
		velocities: cfg.Grid.Velocities(),
	}
	s.hub = NewHub(logger, s.currentMessage)
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers all preview routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("GET /api/profile", s.handleGetProfile)
	mux.HandleFunc("PUT /api/profile", s.handlePutProfile)
	mux.HandleFunc("POST /api/profile/reset", s.handleResetProfile)
	mux.HandleFunc("GET /api/curve", s.handleCurve)
	mux.HandleFunc("GET /ws", s.handleWS)
}

// Publish sends the current curve to every websocket client.
func (s *Server) Publish() {
	s.hub.Publish()
}

func (s *Server) currentMessage(typ string) ([]byte, error) {
	p, fallbacks := s.store.Snapshot()
	return encodeMessage(typ, NewCurveData(p, s.velocities, fallbacks), s.clock.Now())
}

// ============================================================================
// Profile API
// ============================================================================

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := s.store.Snapshot()
	writeJSON(w, http.StatusOK, accel.ProfileToMapping(p))
}

// handlePutProfile applies submitted field values. Every canonical field is
// coerced on its own: fields that are missing or not numbers take their
// default, the rest are saved as given.
func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := accel.MappingToProfile(fields)
	if err := s.store.Save(p); err != nil {
		s.logger.Error("profile save failed", "path", s.store.Path(), "error", err)
		writeError(w, http.StatusInternalServerError, "profile could not be saved")
		return
	}
	s.logger.Info("profile saved", "path", s.store.Path(), "remote_addr", r.RemoteAddr)

	s.Publish()
	writeJSON(w, http.StatusOK, accel.ProfileToMapping(p))
}

func (s *Server) handleResetProfile(w http.ResponseWriter, r *http.Request) {
	p := accel.Defaults()
	if err := s.store.Save(p); err != nil {
		s.logger.Error("profile reset failed", "path", s.store.Path(), "error", err)
		writeError(w, http.StatusInternalServerError, "profile could not be saved")
		return
	}
	s.logger.Info("profile reset to defaults", "path", s.store.Path())

	s.Publish()
	writeJSON(w, http.StatusOK, accel.ProfileToMapping(p))
}

// readFields accepts either a JSON object of strings or an urlencoded form.
func readFields(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		fields := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			fields[k] = r.PostForm.Get(k)
		}
		return fields, nil
	}

	var fields map[string]string
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&fields); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty request body")
		}
		return nil, fmt.Errorf("decode profile json: %w", err)
	}
	return fields, nil
}

// ============================================================================
// Curve API
// ============================================================================

// handleCurve evaluates the current profile. The grid can be overridden with
// the min, max and step query parameters.
func (s *Server) handleCurve(w http.ResponseWriter, r *http.Request) {
	velocities, err := s.queryVelocities(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, fallbacks := s.store.Snapshot()
	writeJSON(w, http.StatusOK, NewCurveData(p, velocities, fallbacks))
}

func (s *Server) queryVelocities(r *http.Request) ([]float64, error) {
	q := r.URL.Query()
	if !q.Has("min") && !q.Has("max") && !q.Has("step") {
		return s.velocities, nil
	}

	bound := func(name string, def float64) (float64, error) {
		raw := q.Get(name)
		if raw == "" {
			return def, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%s must be a finite number", name)
		}
		return v, nil
	}

	g := s.grid
	var err error
	if g.Min, err = bound("min", g.Min); err != nil {
		return nil, err
	}
	if g.Max, err = bound("max", g.Max); err != nil {
		return nil, err
	}
	if g.Step, err = bound("step", g.Step); err != nil {
		return nil, err
	}
	if g.Step <= 0 {
		return nil, errors.New("step must be > 0")
	}
	if g.Min >= g.Max {
		return nil, errors.New("min must be < max")
	}
	if (g.Max-g.Min)/g.Step > maxCurveSamples {
		return nil, fmt.Errorf("range yields more than %d samples", maxCurveSamples)
	}
	return g.Velocities(), nil
}

// ============================================================================
// Websocket
// ============================================================================

var upgrader = websocket.Upgrader{
	// The preview is meant for a local browser; origins are not checked.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades and registers a client. The hub queues curve_init for
// it as part of registration.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("preview websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	if !s.hub.registerClient(client) {
		_ = conn.Close()
		return
	}

	// The pumps outlive this handler; they stop when the connection closes.
	go client.writePump()
	go client.readPump()
}

// ============================================================================
// HTTP helpers
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListenAndServe serves handler on addr and shuts the server down
// gracefully when ctx is canceled.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()
	logger.Info("preview listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}

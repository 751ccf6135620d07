package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/rimedb/rime/pkg/engine"
	"github.com/rimedb/rime/pkg/log"
	"github.com/rimedb/rime/pkg/metrics"
	"github.com/rimedb/rime/pkg/swap"
)

// Server is the admin HTTP surface: Prometheus metrics, health and the
// store info block. It is not the client protocol.
type Server struct {
	engine *engine.Engine
	http   *http.Server
	logger zerolog.Logger
}

// NewServer creates the admin server
func NewServer(e *engine.Engine, addr string) *Server {
	s := &Server{
		engine: e,
		logger: log.WithComponent("api"),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/info", s.handleInfo)
	mux.HandleFunc("/compact", s.handleCompact)

	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in the background
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("Admin API listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Admin API failed")
		}
	}()
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

type healthResponse struct {
	Status         string `json:"status"`
	Epoch          uint64 `json:"epoch"`
	DiskUsed       uint64 `json:"disk_used"`
	DiskError      bool   `json:"disk_error"`
	DiskErrorSince int64  `json:"disk_error_since,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rocks := s.engine.Rocks
	resp := healthResponse{
		Status:         "healthy",
		Epoch:          rocks.Epoch(),
		DiskUsed:       rocks.DiskUsed(),
		DiskError:      rocks.DiskError(),
		DiskErrorSince: rocks.DiskErrorSince(),
	}
	code := http.StatusOK
	if resp.DiskError {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, s.engine.InfoString())
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.SubmitUtilTask(swap.CompactRangeTask, nil, nil)
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "compaction scheduled")
}

package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Server holds shared state for HTTP handlers.
type Server struct {
	archive Archive
	log     *slog.Logger
}

// NewServer creates a Server answering from archive.
func NewServer(archive Archive, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{archive: archive, log: logger}
}

// RegisterRoutes sets up all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/{run}/generations", s.handleGenerations)
	mux.HandleFunc("/api/episodes", s.handleEpisodes)
	mux.HandleFunc("/api/replay", s.handleReplay)
	mux.HandleFunc("/ws/replay", s.handleReplayWS)
}

// preflight handles CORS and rejects non-GET methods. It reports whether the
// handler should continue.
func preflight(w http.ResponseWriter, r *http.Request) bool {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return false
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}
	runs, err := s.archive.Runs(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleGenerations(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}
	runID := strings.TrimSpace(r.PathValue("run"))
	if runID == "" {
		http.Error(w, "missing run id", http.StatusBadRequest)
		return
	}
	points, err := s.archive.Generations(r.Context(), runID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, points)
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}
	q := EpisodeQuery{
		RunID:      strings.TrimSpace(r.URL.Query().Get("run_id")),
		Generation: int32(parseInt64Query(r, "generation", -1)),
		Limit:      parseIntQuery(r, "limit", 200),
		Offset:     parseIntQuery(r, "offset", 0),
		Sort:       r.URL.Query().Get("sort"),
		Dir:        r.URL.Query().Get("dir"),
	}
	resp, err := s.archive.Episodes(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, resp)
}

// loadFrames resolves the episode named by the query and converts it to
// frames, writing an HTTP error and returning false when it cannot.
func (s *Server) loadFrames(w http.ResponseWriter, r *http.Request) (ReplayResponse, bool) {
	key, err := episodeKeyFromQuery(r)
	if err != nil {
		http.Error(w, "run_id and episode are required", http.StatusBadRequest)
		return ReplayResponse{}, false
	}
	rows, err := s.archive.Turns(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return ReplayResponse{}, false
	}
	if len(rows) == 0 {
		http.Error(w, "episode not found (was it recorded?)", http.StatusNotFound)
		return ReplayResponse{}, false
	}
	board := r.URL.Query().Get("board") == "1"
	return ReplayResponse{
		RunID:      key.RunID,
		Generation: key.Generation,
		Episode:    key.Episode,
		Agent:      key.Agent,
		Frames:     turnsToFrames(rows, board),
	}, true
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}
	resp, ok := s.loadFrames(w, r)
	if !ok {
		return
	}
	writeJSON(w, resp)
}

// handleReplayWS streams an episode over a websocket, one frame per message.
func (s *Server) handleReplayWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp, ok := s.loadFrames(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	fps := parseIntQuery(r, "fps", 10)
	s.log.Info("replay started", "run_id", resp.RunID, "generation", resp.Generation, "episode", resp.Episode, "agent", resp.Agent, "frames", len(resp.Frames), "fps", clampFPS(fps))
	if err := streamReplay(r.Context(), conn, resp.Frames, fps, s.log); err != nil {
		s.log.Warn("replay aborted", "run_id", resp.RunID, "episode", resp.Episode, "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, r.Context().Err()) {
		return
	}
	s.log.Error("request failed", "path", r.URL.Path, "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

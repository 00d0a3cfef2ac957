package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Ghersi75/SnakeAI/executor/selfplay"
	"github.com/Ghersi75/SnakeAI/store"
)

var errMissingParam = errors.New("missing query parameter")

func withCORS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func parseInt64Query(r *http.Request, key string, def int64) int64 {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// episodeKeyFromQuery reads run_id, generation, episode and agent. run_id and
// episode are required.
func episodeKeyFromQuery(r *http.Request) (store.EpisodeKey, error) {
	q := r.URL.Query()
	runID := strings.TrimSpace(q.Get("run_id"))
	if runID == "" {
		return store.EpisodeKey{}, errMissingParam
	}
	if strings.TrimSpace(q.Get("episode")) == "" {
		return store.EpisodeKey{}, errMissingParam
	}
	return store.EpisodeKey{
		RunID:      runID,
		Generation: int32(parseInt64Query(r, "generation", 0)),
		Episode:    int32(parseInt64Query(r, "episode", 0)),
		Agent:      int32(parseInt64Query(r, "agent", 0)),
	}, nil
}

func zipPoints(xs, ys []int32) []Point {
	n := min(len(xs), len(ys))
	out := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Point{X: xs[i], Y: ys[i]})
	}
	return out
}

// turnsToFrames converts archived rows, already sorted by tick, into replay
// frames.
func turnsToFrames(rows []store.TurnRow, withBoard bool) []Frame {
	frames := make([]Frame, 0, len(rows))
	for _, r := range rows {
		f := Frame{
			Tick:       r.Tick,
			Width:      r.Width,
			Height:     r.Height,
			CellSize:   r.CellSize,
			Body:       zipPoints(r.BodyX, r.BodyY),
			Food:       Point{X: r.FoodX, Y: r.FoodY},
			Direction:  r.Direction,
			Action:     r.Action,
			Reward:     r.Reward,
			Score:      r.Score,
			Alive:      r.Alive,
			DeathCause: r.DeathCause,
		}
		if withBoard {
			f.Board = selfplay.RenderBoard(selfplay.ConfigFromRow(r), selfplay.ViewFromRow(r))
		}
		frames = append(frames, f)
	}
	return frames
}

func asInt32Slice(v any) []int32 {
	if v == nil {
		return nil
	}
	switch vv := v.(type) {
	case []int32:
		return vv
	case []int64:
		out := make([]int32, 0, len(vv))
		for _, x := range vv {
			out = append(out, int32(x))
		}
		return out
	case []any:
		out := make([]int32, 0, len(vv))
		for _, x := range vv {
			out = append(out, int32(asInt64(x)))
		}
		return out
	default:
		return nil
	}
}

func asFloat64Slice(v any) []float64 {
	if v == nil {
		return nil
	}
	switch vv := v.(type) {
	case []float64:
		return vv
	case []any:
		out := make([]float64, 0, len(vv))
		for _, x := range vv {
			out = append(out, asFloat64(x))
		}
		return out
	default:
		return nil
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case uint64:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func asFloat64(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	default:
		return 0
	}
}

func parseDataRoots(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Clean(r.URL.Path)
	if path == "/" {
		http.ServeFile(w, r, h.indexPath)
		return
	}
	candidate := filepath.Join(h.staticPath, strings.TrimPrefix(path, "/"))
	if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
		http.ServeFile(w, r, candidate)
		return
	}
	// Client-side routes fall back to the index.
	http.ServeFile(w, r, h.indexPath)
}

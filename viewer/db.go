package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/Ghersi75/SnakeAI/executor/selfplay"
	"github.com/Ghersi75/SnakeAI/store"
)

// Archive answers the viewer's queries over archived runs.
type Archive interface {
	Runs(ctx context.Context) ([]RunSummary, error)
	Episodes(ctx context.Context, q EpisodeQuery) (EpisodesResponse, error)
	Generations(ctx context.Context, runID string) ([]GenerationPoint, error)
	Turns(ctx context.Context, key store.EpisodeKey) ([]store.TurnRow, error)
}

// DBCache maintains a DuckDB connection over the archive roots and reopens
// it periodically so new batches become visible.
type DBCache struct {
	roots       []string
	refreshRate time.Duration
	log         *slog.Logger

	mu          sync.RWMutex
	db          *sql.DB
	lastRefresh time.Time
}

// NewDBCache creates a DBCache with the given roots and refresh rate.
func NewDBCache(roots []string, refreshRate time.Duration, logger *slog.Logger) *DBCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBCache{
		roots:       roots,
		refreshRate: refreshRate,
		log:         logger,
	}
}

// Get returns the cached DB connection, refreshing if needed.
func (c *DBCache) Get() (*sql.DB, error) {
	c.mu.RLock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		db := c.db
		c.mu.RUnlock()
		return db, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another request may have refreshed while we waited.
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		return c.db, nil
	}
	return c.refreshLocked()
}

// Refresh forces the views to be rebuilt.
func (c *DBCache) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.refreshLocked()
	return err
}

func (c *DBCache) refreshLocked() (*sql.DB, error) {
	start := time.Now()
	newDB, err := openDuckDB(c.roots)
	if err != nil {
		return nil, err
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	c.db = newDB
	c.lastRefresh = time.Now()
	c.log.Debug("duckdb views refreshed", "roots", len(c.roots), "took", time.Since(start))
	return c.db, nil
}

// Close closes the cached connection.
func (c *DBCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

const emptyTurnsView = `CREATE OR REPLACE VIEW turns AS
	SELECT * FROM (
		SELECT
			NULL::VARCHAR AS run_id,
			NULL::INTEGER AS generation,
			NULL::INTEGER AS episode,
			NULL::INTEGER AS agent,
			NULL::INTEGER AS tick,
			NULL::INTEGER AS width,
			NULL::INTEGER AS height,
			NULL::INTEGER AS cell_size,
			NULL::INTEGER[] AS body_x,
			NULL::INTEGER[] AS body_y,
			NULL::INTEGER AS food_x,
			NULL::INTEGER AS food_y,
			NULL::VARCHAR AS direction,
			NULL::INTEGER AS action,
			NULL::REAL AS reward,
			NULL::INTEGER AS score,
			NULL::BOOLEAN AS alive,
			NULL::VARCHAR AS death_cause
	) WHERE 1=0`

const emptyEpisodesView = `CREATE OR REPLACE VIEW episodes AS
	SELECT * FROM (
		SELECT
			NULL::VARCHAR AS run_id,
			NULL::INTEGER AS generation,
			NULL::INTEGER AS episode,
			NULL::INTEGER AS agent,
			NULL::VARCHAR AS policy,
			NULL::INTEGER AS score,
			NULL::INTEGER AS age,
			NULL::INTEGER AS final_length,
			NULL::VARCHAR AS death_cause,
			NULL::REAL AS reward,
			NULL::DOUBLE AS fitness,
			NULL::BIGINT AS unix_nano
	) WHERE 1=0`

// openDuckDB creates an in-memory DuckDB with a turns and an episodes view
// over <root>/turns/*.parquet and <root>/episodes/*.parquet. In-progress
// batches live under tmp/ and never match.
func openDuckDB(roots []string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	// Ignore errors for compatibility across versions.
	_, _ = db.Exec("PRAGMA threads=4")

	for _, v := range []struct {
		name, subdir, empty string
	}{
		{"turns", "turns", emptyTurnsView},
		{"episodes", "episodes", emptyEpisodesView},
	} {
		globs := matchingGlobs(roots, v.subdir)
		sqlText := v.empty
		if len(globs) > 0 {
			sqlText = `CREATE OR REPLACE VIEW ` + v.name + ` AS
				SELECT * FROM read_parquet([` + strings.Join(globs, ",") + `], union_by_name=true)`
		}
		if _, err := db.Exec(sqlText); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create %s view: %w", v.name, err)
		}
	}
	return db, nil
}

// matchingGlobs returns quoted glob literals for roots that hold at least one
// file, since read_parquet fails on a glob without matches.
func matchingGlobs(roots []string, subdir string) []string {
	globs := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		glob := filepath.Join(root, subdir, "*.parquet")
		if m, _ := filepath.Glob(glob); len(m) == 0 {
			continue
		}
		globs = append(globs, "'"+escapeSQLString(glob)+"'")
	}
	return globs
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// normalizeSort maps user-facing keys to column names. The result is safe to
// concatenate into SQL.
func normalizeSort(sortKey, sortDir string) (string, string) {
	sk := strings.ToLower(strings.TrimSpace(sortKey))
	sd := strings.ToLower(strings.TrimSpace(sortDir))
	if sd != "asc" && sd != "desc" {
		sd = "desc"
	}
	switch sk {
	case "fitness":
	case "score":
	case "age", "ticks":
		sk = "age"
	case "generation", "gen":
		sk = "generation"
	case "length", "final_length":
		sk = "final_length"
	case "reward":
	case "time", "unix_nano":
		sk = "unix_nano"
	default:
		sk, sd = "unix_nano", "desc"
	}
	return sk, sd
}

// Runs lists every archived run, most recent first.
func (c *DBCache) Runs(ctx context.Context) ([]RunSummary, error) {
	db, err := c.Get()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT
			run_id,
			count(DISTINCT generation)::BIGINT,
			max(generation)::INTEGER,
			count(*)::BIGINT,
			max(fitness)::DOUBLE,
			max(score)::INTEGER,
			max(unix_nano)::BIGINT
		FROM episodes
		GROUP BY run_id
		ORDER BY max(unix_nano) DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RunSummary, 0)
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Generations, &r.MaxGeneration, &r.Episodes, &r.BestFitness, &r.TopScore, &r.LastNs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Episodes returns one page of episode summaries and the filtered total.
func (c *DBCache) Episodes(ctx context.Context, q EpisodeQuery) (EpisodesResponse, error) {
	db, err := c.Get()
	if err != nil {
		return EpisodesResponse{}, err
	}

	var where []string
	var args []any
	if q.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, q.RunID)
	}
	if q.Generation >= 0 {
		where = append(where, "generation = ?")
		args = append(args, q.Generation)
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var resp EpisodesResponse
	if err := db.QueryRowContext(ctx, "SELECT count(*)::BIGINT FROM episodes"+whereSQL, args...).Scan(&resp.Total); err != nil {
		return EpisodesResponse{}, err
	}

	sk, sd := normalizeSort(q.Sort, q.Dir)
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT run_id, generation, episode, agent, policy, score, age, final_length,
			death_cause, reward, fitness, unix_nano
		FROM episodes` + whereSQL + `
		ORDER BY ` + sk + ` ` + sd + `, run_id, generation, episode, agent` +
		fmt.Sprintf(" LIMIT %d OFFSET %d", limit, max(q.Offset, 0))
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return EpisodesResponse{}, err
	}
	defer rows.Close()

	resp.Episodes = make([]EpisodeSummary, 0, limit)
	for rows.Next() {
		var e EpisodeSummary
		if err := rows.Scan(&e.RunID, &e.Generation, &e.Episode, &e.Agent, &e.Policy, &e.Score, &e.Age,
			&e.FinalLength, &e.DeathCause, &e.Reward, &e.Fitness, &e.UnixNano); err != nil {
			return EpisodesResponse{}, err
		}
		resp.Episodes = append(resp.Episodes, e)
	}
	return resp, rows.Err()
}

// Generations returns the fitness summary of every generation of a run,
// computed the same way the executor logs it.
func (c *DBCache) Generations(ctx context.Context, runID string) ([]GenerationPoint, error) {
	db, err := c.Get()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT
			generation,
			list(fitness ORDER BY episode, agent),
			max(score)::INTEGER
		FROM episodes
		WHERE run_id = ?
		GROUP BY generation
		ORDER BY generation`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]GenerationPoint, 0)
	for rows.Next() {
		var (
			gen      int32
			fitness  any
			topScore int32
		)
		if err := rows.Scan(&gen, &fitness, &topScore); err != nil {
			return nil, err
		}
		fs := asFloat64Slice(fitness)
		st := selfplay.Summarize(fs)
		out = append(out, GenerationPoint{
			Generation: gen,
			Agents:     len(fs),
			Best:       st.Best,
			Mean:       st.Mean,
			Median:     st.Median,
			Worst:      st.Worst,
			TopScore:   topScore,
		})
	}
	return out, rows.Err()
}

// Turns loads one agent's episode ordered by tick.
func (c *DBCache) Turns(ctx context.Context, key store.EpisodeKey) ([]store.TurnRow, error) {
	db, err := c.Get()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT
			tick, width, height, cell_size, body_x, body_y, food_x, food_y,
			direction, action, reward, score, alive, death_cause
		FROM turns
		WHERE run_id = ? AND generation = ? AND episode = ? AND agent = ?
		ORDER BY tick`, key.RunID, key.Generation, key.Episode, key.Agent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.TurnRow, 0)
	for rows.Next() {
		t := store.TurnRow{
			RunID:      key.RunID,
			Generation: key.Generation,
			Episode:    key.Episode,
			Agent:      key.Agent,
		}
		var bodyX, bodyY any
		if err := rows.Scan(&t.Tick, &t.Width, &t.Height, &t.CellSize, &bodyX, &bodyY, &t.FoodX, &t.FoodY,
			&t.Direction, &t.Action, &t.Reward, &t.Score, &t.Alive, &t.DeathCause); err != nil {
			return nil, err
		}
		t.BodyX = asInt32Slice(bodyX)
		t.BodyY = asInt32Slice(bodyY)
		out = append(out, t)
	}
	return out, rows.Err()
}

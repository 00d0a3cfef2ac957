package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// Schema names written into each file's key/value metadata.
const (
	SchemaTurns       = "snake_turn_v1"
	SchemaEpisodes    = "snake_episode_v1"
	SchemaTransitions = "snake_transition_v1"
)

// TurnRow is one agent's board after one tick.
//
// Tick 0 is the reset state. Action is the relative turn played to reach
// this state (0 straight, 1 right, 2 left) or -1 for the reset row.
// Coordinates are in pixels on the CellSize lattice.
type TurnRow struct {
	RunID      string `parquet:"run_id,dict"`
	Generation int32  `parquet:"generation"`
	Episode    int32  `parquet:"episode"`
	Agent      int32  `parquet:"agent"`
	Tick       int32  `parquet:"tick"`

	Width    int32 `parquet:"width"`
	Height   int32 `parquet:"height"`
	CellSize int32 `parquet:"cell_size"`

	BodyX []int32 `parquet:"body_x"`
	BodyY []int32 `parquet:"body_y"`
	FoodX int32   `parquet:"food_x"`
	FoodY int32   `parquet:"food_y"`

	Direction  string  `parquet:"direction,dict"`
	Action     int32   `parquet:"action"`
	Reward     float32 `parquet:"reward"`
	Score      int32   `parquet:"score"`
	Alive      bool    `parquet:"alive"`
	DeathCause string  `parquet:"death_cause,dict"`
}

// EpisodeRow summarises one agent's finished episode.
type EpisodeRow struct {
	RunID       string  `parquet:"run_id,dict"`
	Generation  int32   `parquet:"generation"`
	Episode     int32   `parquet:"episode"`
	Agent       int32   `parquet:"agent"`
	Policy      string  `parquet:"policy,dict"`
	Score       int32   `parquet:"score"`
	Age         int32   `parquet:"age"`
	FinalLength int32   `parquet:"final_length"`
	DeathCause  string  `parquet:"death_cause,dict"`
	Reward      float32 `parquet:"reward"`
	Fitness     float64 `parquet:"fitness"`
	// UnixNano is when the episode finished.
	UnixNano int64 `parquet:"unix_nano"`
}

// TransitionRow is one (observation, action, reward, next observation) step
// for offline training, derived from two consecutive turn rows.
type TransitionRow struct {
	RunID      string `parquet:"run_id,dict"`
	Generation int32  `parquet:"generation"`
	Episode    int32  `parquet:"episode"`
	Agent      int32  `parquet:"agent"`
	Tick       int32  `parquet:"tick"`

	Obs     []float32 `parquet:"obs"`
	Action  int32     `parquet:"action"`
	Reward  float32   `parquet:"reward"`
	NextObs []float32 `parquet:"next_obs"`
	Done    bool      `parquet:"done"`

	VisionRadius int32 `parquet:"vision_radius"`
}

func writerOptions(schema string) []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", schema),
	}
}

// WriteFileAtomic writes rows to outPath through a temp file and a rename,
// so readers never observe a partial file.
func WriteFileAtomic[T any](outPath string, schema string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	opts := writerOptions(schema)
	if err := parquet.WriteFile(tmpPath, rows, opts...); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// BatchName returns a fresh batch file name.
func BatchName() string {
	return fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
}

// ReadTurns loads every turn row from a parquet file.
func ReadTurns(path string) ([]TurnRow, error) {
	rows, err := parquet.ReadFile[TurnRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// ReadEpisodes loads every episode row from a parquet file.
func ReadEpisodes(path string) ([]EpisodeRow, error) {
	rows, err := parquet.ReadFile[EpisodeRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// ReadTransitions loads every transition row from a parquet file.
func ReadTransitions(path string) ([]TransitionRow, error) {
	rows, err := parquet.ReadFile[TransitionRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// EpisodeKey identifies one agent's episode within a run.
type EpisodeKey struct {
	RunID      string
	Generation int32
	Episode    int32
	Agent      int32
}

// Key returns the episode the row belongs to.
func (r TurnRow) Key() EpisodeKey {
	return EpisodeKey{RunID: r.RunID, Generation: r.Generation, Episode: r.Episode, Agent: r.Agent}
}

// GroupEpisodes splits turn rows by episode, each sorted by tick. Keys are
// returned in a stable order.
func GroupEpisodes(rows []TurnRow) ([]EpisodeKey, map[EpisodeKey][]TurnRow) {
	groups := make(map[EpisodeKey][]TurnRow)
	for _, r := range rows {
		k := r.Key()
		groups[k] = append(groups[k], r)
	}
	keys := make([]EpisodeKey, 0, len(groups))
	for k, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].Tick < g[j].Tick })
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.RunID != b.RunID {
			return a.RunID < b.RunID
		}
		if a.Generation != b.Generation {
			return a.Generation < b.Generation
		}
		if a.Episode != b.Episode {
			return a.Episode < b.Episode
		}
		return a.Agent < b.Agent
	})
	return keys, groups
}

package main

// RunSummary is one row of /api/runs.
type RunSummary struct {
	RunID         string  `json:"run_id"`
	Generations   int64   `json:"generations"`
	MaxGeneration int32   `json:"max_generation"`
	Episodes      int64   `json:"episodes"`
	BestFitness   float64 `json:"best_fitness"`
	TopScore      int32   `json:"top_score"`
	LastNs        int64   `json:"last_ns"`
}

// EpisodeSummary is one agent's archived episode.
type EpisodeSummary struct {
	RunID       string  `json:"run_id"`
	Generation  int32   `json:"generation"`
	Episode     int32   `json:"episode"`
	Agent       int32   `json:"agent"`
	Policy      string  `json:"policy"`
	Score       int32   `json:"score"`
	Age         int32   `json:"age"`
	FinalLength int32   `json:"final_length"`
	DeathCause  string  `json:"death_cause"`
	Reward      float32 `json:"reward"`
	Fitness     float64 `json:"fitness"`
	UnixNano    int64   `json:"unix_nano"`
}

// EpisodesResponse is the paginated response for /api/episodes.
type EpisodesResponse struct {
	Total    int64            `json:"total"`
	Episodes []EpisodeSummary `json:"episodes"`
}

// EpisodeQuery filters and orders /api/episodes. Generation < 0 matches all.
type EpisodeQuery struct {
	RunID      string
	Generation int32
	Limit      int
	Offset     int
	Sort       string
	Dir        string
}

// GenerationPoint summarises the fitness of one generation of a run.
type GenerationPoint struct {
	Generation int32   `json:"generation"`
	Agents     int     `json:"agents"`
	Best       float64 `json:"best"`
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	Worst      float64 `json:"worst"`
	TopScore   int32   `json:"top_score"`
}

// Point is a pixel coordinate on the board.
type Point struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// Frame is one tick of an episode replay as consumed by external renderers.
type Frame struct {
	Tick       int32   `json:"tick"`
	Width      int32   `json:"width"`
	Height     int32   `json:"height"`
	CellSize   int32   `json:"cell_size"`
	Body       []Point `json:"body"`
	Food       Point   `json:"food"`
	Direction  string  `json:"direction"`
	Action     int32   `json:"action"`
	Reward     float32 `json:"reward"`
	Score      int32   `json:"score"`
	Alive      bool    `json:"alive"`
	DeathCause string  `json:"death_cause"`
	// Board is an ASCII rendering, present when requested.
	Board string `json:"board,omitempty"`
}

// ReplayResponse is the response for /api/replay.
type ReplayResponse struct {
	RunID      string  `json:"run_id"`
	Generation int32   `json:"generation"`
	Episode    int32   `json:"episode"`
	Agent      int32   `json:"agent"`
	Frames     []Frame `json:"frames"`
}

// ReplayControl is a message a websocket client may send during a replay.
type ReplayControl struct {
	// Cmd is pause, resume or speed.
	Cmd string `json:"cmd"`
	// FPS applies to the speed command.
	FPS int `json:"fps,omitempty"`
}

package main

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/Ghersi75/SnakeAI/executor/convert"
	"github.com/Ghersi75/SnakeAI/executor/selfplay"
	"github.com/Ghersi75/SnakeAI/game"
	"github.com/Ghersi75/SnakeAI/store"
)

var totalTicks atomic.Int64
var totalEpisodes atomic.Int64

// progressUpdate is sent to the TUI after each generation or game.
type progressUpdate struct {
	Generation int32
	Stats      selfplay.GenerationStats
	BestEver   float64
	TopScore   int32
	Ticks      int32
	Elapsed    time.Duration
}

type runner struct {
	cfg     game.Config
	runID   string
	log     *slog.Logger
	writes  chan<- writeRequest
	updates chan<- progressUpdate
	// trace logs agent 0's board after every tick at debug level.
	trace bool
}

// evolve plays one episode per generation with every agent, logs the
// generation's fitness summary and archives it. generations <= 0 runs until
// ctx is done.
func (r *runner) evolve(ctx context.Context, arena *selfplay.Arena, policies []selfplay.Policy, startGen int32, generations int) error {
	bestEver := math.Inf(-1)
	for gen := startGen; generations <= 0 || int(gen-startGen) < generations; gen++ {
		if err := arena.Reset(policies); err != nil {
			return err
		}
		res, err := arena.RunEpisode(ctx)
		if err != nil {
			return err
		}
		totalEpisodes.Add(int64(len(res.Agents)))

		fitness := make([]float64, len(res.Agents))
		var topScore int32
		for i, ag := range res.Agents {
			fitness[i] = ag.Fitness
			topScore = max(topScore, ag.Score)
		}
		st := selfplay.Summarize(fitness)
		bestEver = math.Max(bestEver, st.Best)

		r.log.Info("generation done",
			"generation", gen,
			"best", st.Best,
			"mean", st.Mean,
			"median", st.Median,
			"worst", st.Worst,
			"agent0", fitness[0],
			"best_ever", bestEver,
			"top_score", topScore,
			"ticks", res.Ticks,
			"duration", res.Duration,
		)
		r.archive(gen, res)
		r.notify(progressUpdate{
			Generation: gen,
			Stats:      st,
			BestEver:   bestEver,
			TopScore:   topScore,
			Ticks:      res.Ticks,
			Elapsed:    res.Duration,
		})
	}
	return nil
}

// single plays games with agent 0 alone, driving it one step at a time, and
// tracks the best score seen. games <= 0 runs until ctx is done.
func (r *runner) single(ctx context.Context, arena *selfplay.Arena, policy selfplay.Policy, games int) error {
	var record int32
	var scoreSum int64
	// Policies never retain obs, so one pooled buffer serves every tick.
	buf := convert.GetFloatBuffer(r.cfg.VisionRadius)
	defer convert.PutFloatBuffer(buf)
	obs := *buf
	for n := 0; games <= 0 || n < games; n++ {
		if err := arena.Reset([]selfplay.Policy{policy}); err != nil {
			return err
		}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := arena.ObserveInto(0, obs); err != nil {
				return err
			}
			if r.trace {
				r.log.Debug("observation\n" + selfplay.RenderObservation(r.cfg.VisionRadius, obs))
			}
			action, err := policy.Act(ctx, obs)
			if err != nil {
				return err
			}
			res, err := arena.StepAgent(0, action)
			if err != nil {
				return err
			}
			totalTicks.Add(1)
			if r.trace {
				r.traceBoard(arena.Snapshot()[0])
			}
			if !res.Alive {
				break
			}
		}

		res := arena.Result()
		totalEpisodes.Add(1)
		ag := res.Agents[0]
		record = max(record, ag.Score)
		scoreSum += int64(ag.Score)

		r.log.Info("game done",
			"game", n+1,
			"score", ag.Score,
			"record", record,
			"mean_score", float64(scoreSum)/float64(n+1),
			"age", ag.Age,
			"death", ag.DeathCause.String(),
			"reward", ag.Reward,
		)
		r.archive(0, res)
		r.notify(progressUpdate{
			Generation: res.Episode,
			Stats:      selfplay.Summarize([]float64{ag.Fitness}),
			BestEver:   float64(record),
			TopScore:   ag.Score,
			Ticks:      res.Ticks,
			Elapsed:    res.Duration,
		})
	}
	return nil
}

func (r *runner) archive(gen int32, res selfplay.EpisodeResult) {
	if r.writes == nil {
		return
	}
	for i := range res.Turns {
		res.Turns[i].Generation = gen
	}
	now := time.Now().UnixNano()
	episodes := make([]store.EpisodeRow, len(res.Agents))
	for i, ag := range res.Agents {
		episodes[i] = store.EpisodeRow{
			RunID:       r.runID,
			Generation:  gen,
			Episode:     res.Episode,
			Agent:       int32(ag.Index),
			Policy:      ag.Policy,
			Score:       ag.Score,
			Age:         ag.Age,
			FinalLength: ag.FinalLength,
			DeathCause:  ag.DeathCause.String(),
			Reward:      ag.Reward,
			Fitness:     ag.Fitness,
			UnixNano:    now,
		}
	}
	r.writes <- writeRequest{generation: gen, turns: res.Turns, episodes: episodes}
}

func (r *runner) traceBoard(v selfplay.AgentView) {
	r.log.Debug("board\n" + selfplay.RenderBoard(r.cfg, v))
}

func (r *runner) notify(u progressUpdate) {
	if r.updates == nil {
		return
	}
	// Never block the run on a slow UI.
	select {
	case r.updates <- u:
	default:
	}
}

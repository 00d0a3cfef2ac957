// Command replay prints archived episodes as ASCII boards, or plays a fresh
// single-agent game and prints it as it is recorded.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Ghersi75/SnakeAI/executor/inference"
	"github.com/Ghersi75/SnakeAI/executor/selfplay"
	"github.com/Ghersi75/SnakeAI/game"
	"github.com/Ghersi75/SnakeAI/logging"
	"github.com/Ghersi75/SnakeAI/store"
)

var errNoEpisode = errors.New("no matching episode")

type options struct {
	file       string
	list       bool
	runID      string
	generation int
	episode    int
	agent      int
	delay      time.Duration

	policy string
	seed   int64
	out    string
}

func main() {
	var o options
	flag.StringVar(&o.file, "file", "", "Turns parquet file to replay; empty plays a new game")
	flag.BoolVar(&o.list, "list", false, "List the episodes in -file and exit")
	flag.StringVar(&o.runID, "run-id", "", "Run to replay (default: first in file)")
	flag.IntVar(&o.generation, "generation", -1, "Generation to replay (-1: first matching)")
	flag.IntVar(&o.episode, "episode", -1, "Episode to replay (-1: first matching)")
	flag.IntVar(&o.agent, "agent", -1, "Agent to replay (-1: first matching)")
	flag.DurationVar(&o.delay, "delay", 0, "Pause between frames, e.g. 150ms")
	flag.StringVar(&o.policy, "policy", "heuristic", "Policy for a new game: heuristic or random")
	flag.Int64Var(&o.seed, "seed", 1, "Seed for a new game")
	flag.StringVar(&o.out, "out", "", "Write the new game's turns to this parquet file")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger, err := logging.New(os.Stderr, *logLevel, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if o.file == "" {
		err = play(context.Background(), os.Stdout, o, logger)
	} else {
		err = replay(os.Stdout, o)
	}
	if err != nil {
		logger.Error("replay failed", "error", err)
		os.Exit(1)
	}
}

func (o options) matches(k store.EpisodeKey) bool {
	return (o.runID == "" || k.RunID == o.runID) &&
		(o.generation < 0 || int(k.Generation) == o.generation) &&
		(o.episode < 0 || int(k.Episode) == o.episode) &&
		(o.agent < 0 || int(k.Agent) == o.agent)
}

func replay(w io.Writer, o options) error {
	rows, err := store.ReadTurns(o.file)
	if err != nil {
		return err
	}
	keys, groups := store.GroupEpisodes(rows)

	if o.list {
		for _, k := range keys {
			g := groups[k]
			last := g[len(g)-1]
			fmt.Fprintf(w, "%s gen=%d episode=%d agent=%d ticks=%d score=%d died=%s\n",
				k.RunID, k.Generation, k.Episode, k.Agent, last.Tick, last.Score, last.DeathCause)
		}
		return nil
	}

	for _, k := range keys {
		if o.matches(k) {
			printEpisode(w, groups[k], o.delay)
			return nil
		}
	}
	return errNoEpisode
}

func printEpisode(w io.Writer, turns []store.TurnRow, delay time.Duration) {
	for i, t := range turns {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		fmt.Fprint(w, selfplay.RenderBoard(selfplay.ConfigFromRow(t), selfplay.ViewFromRow(t)))
	}
}

// play runs one recorded single-agent game and prints every tick.
func play(ctx context.Context, w io.Writer, o options, logger *slog.Logger) error {
	cfg := game.DefaultConfig()
	var policy selfplay.Policy
	switch o.policy {
	case "heuristic":
		policy = inference.Heuristic{Radius: cfg.VisionRadius}
	case "random":
		policy = inference.NewRandom(o.seed)
	default:
		return fmt.Errorf("unknown policy %q", o.policy)
	}

	arena, err := selfplay.NewArena(cfg, 1, selfplay.Options{
		Seed:    o.seed,
		Workers: 1,
		Record:  true,
		RunID:   "replay",
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	if err := arena.Reset([]selfplay.Policy{policy}); err != nil {
		return err
	}
	res, err := arena.RunEpisode(ctx)
	if err != nil {
		return err
	}

	printEpisode(w, res.Turns, o.delay)
	ag := res.Agents[0]
	logger.Info("game complete", "ticks", res.Ticks, "score", ag.Score, "death", ag.DeathCause.String(), "fitness", ag.Fitness)

	if o.out == "" {
		return nil
	}
	if err := store.WriteFileAtomic(o.out, store.SchemaTurns, res.Turns); err != nil {
		return err
	}
	abs, _ := filepath.Abs(o.out)
	logger.Info("game written", "path", abs)
	return nil
}

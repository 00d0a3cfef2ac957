package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/Ghersi75/SnakeAI/executor/inference"
	"github.com/Ghersi75/SnakeAI/executor/selfplay"
	"github.com/Ghersi75/SnakeAI/game"
	"github.com/Ghersi75/SnakeAI/logging"
	"github.com/Ghersi75/SnakeAI/store"
)

func main() {
	def := game.DefaultConfig()

	mode := flag.String("mode", getEnvOrDefault("MODE", "evolve"), "Run mode: evolve (population per generation) or single (one agent, repeated games)")
	agents := flag.Int("agents", getEnvIntOrDefault("AGENTS", 50), "Population size in evolve mode")
	generations := flag.Int("generations", getEnvIntOrDefault("GENERATIONS", 0), "Generations to run in evolve mode (0 = until interrupted)")
	games := flag.Int("games", getEnvIntOrDefault("GAMES", 0), "Games to play in single mode (0 = until interrupted)")
	workers := flag.Int("workers", getEnvIntOrDefault("WORKERS", 0), "Max agents stepped concurrently per tick (0 = GOMAXPROCS)")
	seed := flag.Int64("seed", getEnvInt64OrDefault("SEED", 0), "Base rng seed (0 = time based)")

	width := flag.Int("width", getEnvIntOrDefault("BOARD_WIDTH", int(def.Width)), "Board width in pixels")
	height := flag.Int("height", getEnvIntOrDefault("BOARD_HEIGHT", int(def.Height)), "Board height in pixels")
	cellSize := flag.Int("cell-size", getEnvIntOrDefault("CELL_SIZE", int(def.CellSize)), "Cell size in pixels")
	deathMult := flag.Int("death-multiplier", getEnvIntOrDefault("DEATH_MULTIPLIER", int(def.DeathMultiplier)), "Starvation bound per body cell")
	vision := flag.Int("vision-radius", getEnvIntOrDefault("VISION_RADIUS", int(def.VisionRadius)), "Vision window radius in cells")

	policyKind := flag.String("policy", getEnvOrDefault("POLICY", "heuristic"), "Policy: heuristic, random or onnx")
	modelPath := flag.String("model", getEnvOrDefault("MODEL", ""), "ONNX model path for -policy onnx")
	onnxSessions := flag.Int("onnx-sessions", getEnvIntOrDefault("ONNX_SESSIONS", 1), "Number of ONNX Runtime sessions, each with its own batching loop")
	onnxBatchSize := flag.Int("onnx-batch-size", getEnvIntOrDefault("ONNX_BATCH_SIZE", inference.DefaultBatchSize), "ONNX inference batch size")
	onnxBatchTimeout := flag.Duration("onnx-batch-timeout", getEnvDurationOrDefault("ONNX_BATCH_TIMEOUT", inference.DefaultBatchTimeout), "Max time to wait for filling an ONNX batch")
	cuda := flag.Bool("cuda", getEnvBoolOrDefault("ORT_CUDA", false), "Try the CUDA execution provider")

	outDir := flag.String("out-dir", getEnvOrDefault("OUT_DIR", "data/episodes"), "Directory for parquet episode archives")
	record := flag.Bool("record", getEnvBoolOrDefault("RECORD", true), "Archive every tick of every agent (episode summaries are always written)")
	perFlush := flag.Int("per-flush", getEnvIntOrDefault("PER_FLUSH", 10), "Generations (or games) per parquet batch")
	runID := flag.String("run-id", getEnvOrDefault("RUN_ID", ""), "Run identifier; reuse one to continue its generation numbering")
	runLogPath := flag.String("run-log", getEnvOrDefault("RUN_LOG", ""), "Append-only log of flushed generations (default <out-dir>/runs.log)")

	logLevel := flag.String("log-level", getEnvOrDefault("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	logPretty := flag.Bool("log-pretty", getEnvBoolOrDefault("LOG_PRETTY", false), "Indent JSON logs")
	trace := flag.Bool("trace", getEnvBoolOrDefault("TRACE", false), "Log agent 0's board every tick (debug level)")
	useTUI := flag.Bool("tui", getEnvBoolOrDefault("TUI", false), "Show a live progress view; logs go to <out-dir>/executor.log")
	flag.Parse()

	var logOut io.Writer = os.Stderr
	if *useTUI {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create out dir: %v\n", err)
			os.Exit(1)
		}
		f, err := os.OpenFile(filepath.Join(*outDir, "executor.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger, err := logging.New(logOut, *logLevel, *logPretty)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	fatal := func(msg string, err error) {
		logger.Error(msg, "error", err)
		os.Exit(1)
	}

	cfg := game.Config{
		Width:           int32(*width),
		Height:          int32(*height),
		CellSize:        int32(*cellSize),
		DeathMultiplier: int32(*deathMult),
		VisionRadius:    int32(*vision),
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid board config", err)
	}

	n := *agents
	switch *mode {
	case "evolve":
	case "single":
		n = 1
	default:
		fatal("invalid mode", fmt.Errorf("unknown mode %q", *mode))
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	if *runID == "" {
		*runID = uuid.NewString()
	}
	if *runLogPath == "" {
		*runLogPath = filepath.Join(*outDir, "runs.log")
	}

	runLog, err := store.OpenRunLog(*runLogPath)
	if err != nil {
		fatal("open run log", err)
	}
	defer runLog.Close()

	var startGen int32
	if last, ok := runLog.LastGeneration(*runID); ok {
		startGen = last + 1
		logger.Info("continuing run", "run_id", *runID, "from_generation", startGen)
	}

	policies, closer, err := buildPolicies(policyConfig{
		kind:     *policyKind,
		model:    *modelPath,
		sessions: *onnxSessions,
		seed:     *seed,
		onnx: inference.OnnxConfig{
			BatchSize:    *onnxBatchSize,
			BatchTimeout: *onnxBatchTimeout,
			CUDA:         *cuda,
			Logger:       logger,
		},
	}, cfg, n)
	if err != nil {
		fatal("build policies", err)
	}
	defer closer.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	arenaOpts := selfplay.Options{
		// Distinct per generation across restarts of the same run.
		Seed:    game.DeriveSeed(*seed, uint64(startGen)),
		Workers: *workers,
		Record:  *record,
		RunID:   *runID,
		Logger:  logger,
		OnTick: func(f selfplay.Frame) {
			totalTicks.Add(1)
			if *trace && len(f.Agents) > 0 {
				logger.Debug("board\n" + selfplay.RenderBoard(cfg, f.Agents[0]))
			}
		},
	}
	arena, err := selfplay.NewArena(cfg, n, arenaOpts)
	if err != nil {
		fatal("create arena", err)
	}

	logger.Info("starting executor",
		"mode", *mode,
		"run_id", *runID,
		"agents", n,
		"policy", *policyKind,
		"board", fmt.Sprintf("%dx%d/%d", cfg.Width, cfg.Height, cfg.CellSize),
		"vision_radius", cfg.VisionRadius,
		"seed", *seed,
		"out_dir", *outDir,
	)

	writeReqs := make(chan writeRequest, 4)
	writerDone := make(chan struct{})
	go func() {
		parquetWriterLoop(newArchiveWriter(*outDir, *runID, runLog, logger), *perFlush, writeReqs)
		close(writerDone)
	}()

	var updates chan progressUpdate
	if *useTUI {
		updates = make(chan progressUpdate, 64)
	}
	r := &runner{
		cfg:     cfg,
		runID:   *runID,
		log:     logger,
		writes:  writeReqs,
		updates: updates,
		trace:   *trace,
	}

	runDone := make(chan error, 1)
	go func() {
		var err error
		if *mode == "single" {
			err = r.single(ctx, arena, policies[0], *games)
		} else {
			err = r.evolve(ctx, arena, policies, startGen, *generations)
		}
		close(writeReqs)
		<-writerDone
		if updates != nil {
			close(updates)
		}
		runDone <- err
	}()

	if *useTUI {
		p := tea.NewProgram(initialModel(*mode, *runID, updates), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			logger.Error("tui failed", "error", err)
		}
		// Quitting the UI stops the run.
		cancel()
	}

	err = <-runDone
	switch {
	case err == nil:
		logger.Info("run complete", "episodes", totalEpisodes.Load(), "ticks", totalTicks.Load())
	case errors.Is(err, context.Canceled):
		logger.Info("shutdown complete: final parquet flush done", "episodes", totalEpisodes.Load())
	default:
		fatal("run failed", err)
	}
}

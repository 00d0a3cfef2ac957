// Command export turns recorded episode archives into training transitions:
// one parquet file of (obs, action, reward, next_obs, done) rows per batch.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ghersi75/SnakeAI/executor/convert"
	"github.com/Ghersi75/SnakeAI/executor/selfplay"
	"github.com/Ghersi75/SnakeAI/game"
	"github.com/Ghersi75/SnakeAI/logging"
	"github.com/Ghersi75/SnakeAI/store"
)

func main() {
	inDir := flag.String("in-dir", "", "Executor out-dir (turns/ is read) or a directory of turn parquet files")
	outDir := flag.String("out-dir", "", "Output directory for transition parquet files")
	radius := flag.Int("vision-radius", int(game.DefaultConfig().VisionRadius), "Vision radius used to encode observations")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger, err := logging.New(os.Stderr, *logLevel, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if *inDir == "" || *outDir == "" {
		logger.Error("-in-dir and -out-dir are required")
		os.Exit(2)
	}
	absIn, _ := filepath.Abs(*inDir)
	absOut, _ := filepath.Abs(*outDir)
	if absIn == absOut {
		logger.Error("out-dir must be different from in-dir")
		os.Exit(2)
	}

	inputs := findInputs(absIn)
	if len(inputs) == 0 {
		logger.Error("no parquet inputs found", "in_dir", absIn)
		os.Exit(1)
	}

	var files, total int
	for _, inPath := range inputs {
		base := filepath.Base(inPath)
		outPath := filepath.Join(absOut, strings.TrimSuffix(base, filepath.Ext(base))+".train.parquet")
		n, err := exportFile(inPath, outPath, int32(*radius))
		if err != nil {
			logger.Warn("export failed", "file", inPath, "error", err)
			continue
		}
		if n > 0 {
			files++
			total += n
			logger.Debug("exported", "file", inPath, "transitions", n)
		}
	}
	if files == 0 {
		logger.Error("no output written (no recorded episodes)")
		os.Exit(1)
	}
	logger.Info("export complete", "files", files, "transitions", total, "out_dir", absOut)
}

// findInputs lists turn batches under dir, skipping in-progress and episode
// summary files.
func findInputs(dir string) []string {
	inputs := make([]string, 0, 64)
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if name := d.Name(); name == "tmp" || name == "episodes" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".parquet") {
			inputs = append(inputs, path)
		}
		return nil
	})
	return inputs
}

// exportFile converts every episode in one turns file. It writes nothing and
// returns 0 when the file holds no transitions.
func exportFile(inPath, outPath string, radius int32) (int, error) {
	rows, err := store.ReadTurns(inPath)
	if err != nil {
		return 0, err
	}
	keys, groups := store.GroupEpisodes(rows)

	out := make([]store.TransitionRow, 0, len(rows))
	for _, k := range keys {
		out = appendTransitions(out, groups[k], radius)
	}
	if len(out) == 0 {
		return 0, nil
	}
	if err := store.WriteFileAtomic(outPath, store.SchemaTransitions, out); err != nil {
		return 0, err
	}
	return len(out), nil
}

// appendTransitions pairs consecutive ticks of one episode. The action and
// reward of a transition are those recorded on the later row.
func appendTransitions(out []store.TransitionRow, turns []store.TurnRow, radius int32) []store.TransitionRow {
	if len(turns) < 2 {
		return out
	}
	cfg := selfplay.ConfigFromRow(turns[0])
	cfg.VisionRadius = radius

	next := convert.Observe(cfg, selfplay.SnakeFromRow(turns[0]))
	for i := 1; i < len(turns); i++ {
		prev, cur := turns[i-1], turns[i]
		if cur.Tick != prev.Tick+1 {
			// Rows are missing; start a fresh pair from here.
			next = convert.Observe(cfg, selfplay.SnakeFromRow(cur))
			continue
		}
		obs := next
		next = convert.Observe(cfg, selfplay.SnakeFromRow(cur))
		out = append(out, store.TransitionRow{
			RunID:        cur.RunID,
			Generation:   cur.Generation,
			Episode:      cur.Episode,
			Agent:        cur.Agent,
			Tick:         prev.Tick,
			Obs:          obs,
			Action:       cur.Action,
			Reward:       cur.Reward,
			NextObs:      next,
			Done:         !cur.Alive,
			VisionRadius: radius,
		})
	}
	return out
}

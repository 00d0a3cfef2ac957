package main

import (
	"log/slog"
	"path/filepath"

	"github.com/Ghersi75/SnakeAI/store"
)

// writeRequest carries one finished episode batch (a whole generation in
// evolve mode, one game in single mode).
type writeRequest struct {
	generation int32
	turns      []store.TurnRow
	episodes   []store.EpisodeRow
}

type archiveWriter struct {
	outDir   string
	runID    string
	runLog   *store.RunLog
	log      *slog.Logger
	turns    *store.BatchWriter[store.TurnRow]
	episodes *store.BatchWriter[store.EpisodeRow]
	// maxGen is the newest generation in the open batch, -1 when empty.
	maxGen int32
}

func newArchiveWriter(outDir, runID string, runLog *store.RunLog, log *slog.Logger) *archiveWriter {
	return &archiveWriter{outDir: outDir, runID: runID, runLog: runLog, log: log, maxGen: -1}
}

func (w *archiveWriter) open() error {
	if w.turns == nil {
		t, err := store.NewBatchWriter[store.TurnRow](filepath.Join(w.outDir, "turns"), store.SchemaTurns)
		if err != nil {
			return err
		}
		w.turns = t
	}
	if w.episodes == nil {
		e, err := store.NewBatchWriter[store.EpisodeRow](filepath.Join(w.outDir, "episodes"), store.SchemaEpisodes)
		if err != nil {
			return err
		}
		w.episodes = e
	}
	return nil
}

func (w *archiveWriter) add(req writeRequest) error {
	if err := w.open(); err != nil {
		return err
	}
	if err := w.turns.WriteRows(req.turns); err != nil {
		return err
	}
	if err := w.episodes.WriteRows(req.episodes); err != nil {
		return err
	}
	w.episodes.NoteEpisodes(len(req.episodes))
	if req.generation > w.maxGen {
		w.maxGen = req.generation
	}
	return nil
}

// flush finalizes the open batch files and records the newest generation
// they contain in the run log.
func (w *archiveWriter) flush() {
	if w.turns == nil && w.episodes == nil {
		return
	}
	var failed bool
	if w.turns != nil {
		outPath, rows, _, err := w.turns.Finalize()
		if err != nil {
			failed = true
			w.log.Error("turn flush failed", "error", err)
		} else if outPath != "" {
			w.log.Info("turn flush ok", "path", outPath, "rows", rows)
		}
		w.turns = nil
	}
	if w.episodes != nil {
		outPath, rows, episodes, err := w.episodes.Finalize()
		if err != nil {
			failed = true
			w.log.Error("episode flush failed", "error", err)
		} else if outPath != "" {
			w.log.Info("episode flush ok", "path", outPath, "rows", rows, "episodes", episodes)
		}
		w.episodes = nil
	}
	if !failed && w.maxGen >= 0 && w.runLog != nil {
		if err := w.runLog.Add(w.runID, w.maxGen); err != nil {
			w.log.Error("run log append failed", "error", err)
		}
	}
	w.maxGen = -1
}

// parquetWriterLoop drains in, rolling to a new batch every
// requestsPerFlush requests, and flushes whatever is left when in closes.
func parquetWriterLoop(w *archiveWriter, requestsPerFlush int, in <-chan writeRequest) {
	if requestsPerFlush <= 0 {
		requestsPerFlush = 10
	}
	pending := 0
	for req := range in {
		if len(req.turns) == 0 && len(req.episodes) == 0 {
			continue
		}
		if err := w.add(req); err != nil {
			w.log.Error("archive write failed", "generation", req.generation, "error", err)
			continue
		}
		pending++
		if pending < requestsPerFlush {
			continue
		}
		w.flush()
		pending = 0
	}
	w.flush()
}

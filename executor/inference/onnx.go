// Package inference provides Policy implementations: an ONNX Runtime model
// with request batching, a pool of model sessions, and model-free baselines.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Ghersi75/SnakeAI/game"
)

// Tensor names and widths of the exported policy network:
// obs [batch, observation size] -> action [batch, 3].
const (
	InputName  = "obs"
	OutputName = "action"
	ActionSize = 3
)

const (
	DefaultBatchSize    = 64
	DefaultBatchTimeout = 1 * time.Millisecond
)

var ErrClosed = errors.New("onnx policy is closed")

type OnnxConfig struct {
	// InputSize is the observation length the model was exported with.
	InputSize    int
	BatchSize    int
	BatchTimeout time.Duration
	// CUDA appends the CUDA execution provider when it is available.
	CUDA   bool
	Logger *slog.Logger
}

type inferenceRequest struct {
	input    []float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	logits [ActionSize]float32
	err    error
}

// RuntimeStats are cumulative batching counters.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int

	AvgBatchSize float64
	AvgRunMs     float64
}

// OnnxPolicy runs a policy network. Concurrent Act calls are gathered into
// batches of up to BatchSize, or whatever arrived within BatchTimeout.
type OnnxPolicy struct {
	session      *ort.DynamicAdvancedSession
	requestsChan chan inferenceRequest
	done         chan struct{}
	loopDone     chan struct{}
	closeOnce    sync.Once
	cfg          OnnxConfig

	batches  atomic.Int64
	items    atomic.Int64
	runNanos atomic.Int64
	last     atomic.Int64
}

var ortInitOnce sync.Once
var ortInitErr error

// InitRuntime loads the ONNX Runtime shared library once per process.
// ORT_SHARED_LIBRARY_PATH overrides the search of the working directory.
func InitRuntime() error {
	ortInitOnce.Do(func() {
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		} else if lib := findSharedLibrary(); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

func findSharedLibrary() string {
	var names []string
	switch runtime.GOOS {
	case "linux":
		names = []string{"libonnxruntime.so", "libonnxruntime.so.1"}
	case "darwin":
		names = []string{"libonnxruntime.dylib"}
	case "windows":
		names = []string{"onnxruntime.dll"}
	}
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	// Tests run from the package directory, so walk up a few levels.
	for up := 0; up < 4; up++ {
		for _, name := range names {
			abs := filepath.Join(dir, name)
			if _, err := os.Stat(abs); err == nil {
				return abs
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func NewOnnxPolicy(modelPath string, cfg OnnxConfig) (*OnnxPolicy, error) {
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("onnx input size must be positive, got %d", cfg.InputSize)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := InitRuntime(); err != nil {
		return nil, fmt.Errorf("init onnxruntime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// Many agents share one session; keep each run single-threaded.
	if err := options.SetIntraOpNumThreads(1); err != nil {
		return nil, err
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, err
	}

	if cfg.CUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			cfg.Logger.Warn("cuda provider unavailable", "error", err)
		} else {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				cfg.Logger.Warn("failed to append cuda provider", "error", err)
			} else {
				cfg.Logger.Info("cuda provider enabled")
			}
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{InputName}, []string{OutputName}, options)
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", modelPath, err)
	}

	p := &OnnxPolicy{
		session:      session,
		cfg:          cfg,
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}
	go p.batchLoop()
	return p, nil
}

func (p *OnnxPolicy) Name() string { return "onnx" }

// Close stops the batching loop and releases the session.
func (p *OnnxPolicy) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		<-p.loopDone
		err = p.session.Destroy()
	})
	return err
}

// Act runs obs through the network and returns the argmax action.
func (p *OnnxPolicy) Act(ctx context.Context, obs []float32) (game.Action, error) {
	if len(obs) != p.cfg.InputSize {
		return game.Action{}, fmt.Errorf("observation length %d, model expects %d", len(obs), p.cfg.InputSize)
	}
	req := inferenceRequest{
		input:    append([]float32(nil), obs...),
		respChan: make(chan inferenceResponse, 1),
	}

	select {
	case p.requestsChan <- req:
	case <-p.done:
		return game.Action{}, ErrClosed
	case <-ctx.Done():
		return game.Action{}, ctx.Err()
	}

	select {
	case resp := <-req.respChan:
		if resp.err != nil {
			return game.Action{}, resp.err
		}
		return Argmax(resp.logits[:]), nil
	case <-p.done:
		return game.Action{}, ErrClosed
	case <-ctx.Done():
		return game.Action{}, ctx.Err()
	}
}

func (p *OnnxPolicy) Stats() RuntimeStats {
	st := RuntimeStats{
		TotalBatches:  p.batches.Load(),
		TotalItems:    p.items.Load(),
		TotalRunNanos: p.runNanos.Load(),
		LastBatchSize: p.last.Load(),
		QueueLen:      len(p.requestsChan),
	}
	st.fillAverages()
	return st
}

func (st *RuntimeStats) fillAverages() {
	if st.TotalBatches > 0 {
		st.AvgBatchSize = float64(st.TotalItems) / float64(st.TotalBatches)
		st.AvgRunMs = (float64(st.TotalRunNanos) / 1e6) / float64(st.TotalBatches)
	}
}

func (p *OnnxPolicy) batchLoop() {
	defer close(p.loopDone)

	batchInput := make([]float32, 0, p.cfg.BatchSize*p.cfg.InputSize)
	requests := make([]inferenceRequest, 0, p.cfg.BatchSize)

	ticker := time.NewTicker(p.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(requests) == 0 {
			return
		}
		p.runBatch(requests, batchInput)
		requests = requests[:0]
		batchInput = batchInput[:0]
	}

	for {
		select {
		case <-p.done:
			p.failBatch(requests, ErrClosed)
			return
		case req := <-p.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, req.input...)
			if len(requests) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (p *OnnxPolicy) runBatch(requests []inferenceRequest, batchInput []float32) {
	n := int64(len(requests))
	start := time.Now()

	inputTensor, err := ort.NewTensor(ort.NewShape(n, int64(p.cfg.InputSize)), batchInput)
	if err != nil {
		p.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, ActionSize))
	if err != nil {
		p.failBatch(requests, err)
		return
	}
	defer outputTensor.Destroy()

	if err := p.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		p.failBatch(requests, err)
		return
	}

	p.batches.Add(1)
	p.items.Add(n)
	p.runNanos.Add(time.Since(start).Nanoseconds())
	p.last.Store(n)

	out := outputTensor.GetData()
	for i, req := range requests {
		var resp inferenceResponse
		copy(resp.logits[:], out[i*ActionSize:(i+1)*ActionSize])
		req.respChan <- resp
	}
}

func (p *OnnxPolicy) failBatch(requests []inferenceRequest, err error) {
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}

// Argmax turns network output into a one-hot action. Ties go to the lower
// index, so all-equal output plays straight.
func Argmax(logits []float32) game.Action {
	best := 0
	for i := 1; i < len(logits) && i < ActionSize; i++ {
		if logits[i] > logits[best] {
			best = i
		}
	}
	var a game.Action
	a[best] = 1
	return a
}

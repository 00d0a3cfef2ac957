package inference

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Ghersi75/SnakeAI/game"
)

// Pool fans Act calls across several OnnxPolicy sessions, each with its own
// batching loop, so inference can run in parallel.
type Pool struct {
	policies []*OnnxPolicy
	rr       atomic.Uint64
}

func NewPool(modelPath string, sessions int, cfg OnnxConfig) (*Pool, error) {
	if sessions <= 0 {
		sessions = 1
	}

	policies := make([]*OnnxPolicy, 0, sessions)
	for i := 0; i < sessions; i++ {
		p, err := NewOnnxPolicy(modelPath, cfg)
		if err != nil {
			for _, created := range policies {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create onnx session %d/%d: %w", i+1, sessions, err)
		}
		policies = append(policies, p)
	}
	return &Pool{policies: policies}, nil
}

func (p *Pool) Name() string { return "onnx" }

func (p *Pool) Close() error {
	var firstErr error
	for _, s := range p.policies {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Pool) Act(ctx context.Context, obs []float32) (game.Action, error) {
	if len(p.policies) == 0 {
		return game.Action{}, fmt.Errorf("onnx pool has no sessions")
	}
	idx := int((p.rr.Add(1) - 1) % uint64(len(p.policies)))
	return p.policies[idx].Act(ctx, obs)
}

func (p *Pool) Stats() RuntimeStats {
	var st RuntimeStats
	for _, s := range p.policies {
		one := s.Stats()
		st.TotalBatches += one.TotalBatches
		st.TotalItems += one.TotalItems
		st.TotalRunNanos += one.TotalRunNanos
		st.QueueLen += one.QueueLen
		if one.LastBatchSize > st.LastBatchSize {
			st.LastBatchSize = one.LastBatchSize
		}
	}
	st.fillAverages()
	return st
}

package main

import (
	"fmt"
	"io"

	"github.com/Ghersi75/SnakeAI/executor/convert"
	"github.com/Ghersi75/SnakeAI/executor/inference"
	"github.com/Ghersi75/SnakeAI/executor/selfplay"
	"github.com/Ghersi75/SnakeAI/game"
)

type policyConfig struct {
	kind     string
	model    string
	sessions int
	onnx     inference.OnnxConfig
	seed     int64
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// buildPolicies returns one policy per agent. ONNX agents share one session
// pool; random agents each get their own rng.
func buildPolicies(pc policyConfig, cfg game.Config, n int) ([]selfplay.Policy, io.Closer, error) {
	out := make([]selfplay.Policy, n)
	switch pc.kind {
	case "heuristic":
		h := inference.Heuristic{Radius: cfg.VisionRadius}
		for i := range out {
			out[i] = h
		}
		return out, nopCloser{}, nil
	case "random":
		for i := range out {
			out[i] = inference.NewRandom(game.DeriveSeed(pc.seed, uint64(i)))
		}
		return out, nopCloser{}, nil
	case "onnx":
		if pc.model == "" {
			return nil, nil, fmt.Errorf("-model is required for the onnx policy")
		}
		onnxCfg := pc.onnx
		onnxCfg.InputSize = convert.ObservationSize(cfg.VisionRadius)
		pool, err := inference.NewPool(pc.model, pc.sessions, onnxCfg)
		if err != nil {
			return nil, nil, err
		}
		for i := range out {
			out[i] = pool
		}
		return out, pool, nil
	}
	return nil, nil, fmt.Errorf("unknown policy %q (want heuristic, random or onnx)", pc.kind)
}

package inference

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/Ghersi75/SnakeAI/executor/convert"
	"github.com/Ghersi75/SnakeAI/game"
)

// Heuristic steers toward food using only the observation's scalar flags
// and never turns into a cell flagged as dangerous when another is open.
type Heuristic struct {
	Radius int32
}

func (h Heuristic) Name() string { return "heuristic" }

func (h Heuristic) Act(ctx context.Context, obs []float32) (game.Action, error) {
	off := convert.FlagOffset(h.Radius)
	if len(obs) != off+convert.FlagCount {
		return game.Action{}, fmt.Errorf("observation length %d, want %d", len(obs), off+convert.FlagCount)
	}
	f := obs[off:]

	heading := game.Right
	switch {
	case f[convert.HeadingLeft] > 0:
		heading = game.Left
	case f[convert.HeadingUp] > 0:
		heading = game.Up
	case f[convert.HeadingDown] > 0:
		heading = game.Down
	}

	towardFood := func(d game.Direction) bool {
		switch d {
		case game.Left:
			return f[convert.FoodLeft] > 0
		case game.Right:
			return f[convert.FoodRight] > 0
		case game.Up:
			return f[convert.FoodAbove] > 0
		case game.Down:
			return f[convert.FoodBelow] > 0
		}
		return false
	}

	candidates := [...]struct {
		turn   game.RelativeTurn
		danger float32
	}{
		{game.TurnStraight, f[convert.DangerStraight]},
		{game.TurnRight, f[convert.DangerRight]},
		{game.TurnLeft, f[convert.DangerLeft]},
	}

	fallback := -1
	for i, c := range candidates {
		if c.danger > 0 {
			continue
		}
		if towardFood(heading.Turn(c.turn)) {
			return game.ActionFor(c.turn), nil
		}
		if fallback < 0 {
			fallback = i
		}
	}
	if fallback >= 0 {
		return game.ActionFor(candidates[fallback].turn), nil
	}
	return game.ActionStraight, nil
}

// Random plays uniformly random actions. It is safe for concurrent use.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Name() string { return "random" }

func (r *Random) Act(ctx context.Context, obs []float32) (game.Action, error) {
	r.mu.Lock()
	n := r.rng.Intn(3)
	r.mu.Unlock()
	return game.ActionFor(game.RelativeTurn(n)), nil
}

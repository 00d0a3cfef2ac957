package selfplay

import (
	"context"

	"github.com/Ghersi75/SnakeAI/game"
)

// Policy maps an observation vector to an action.
//
// The arena reuses obs between ticks, so implementations must not retain it
// after Act returns. One Policy value may be installed for several agents,
// in which case Act is called concurrently.
type Policy interface {
	Act(ctx context.Context, obs []float32) (game.Action, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, obs []float32) (game.Action, error)

func (f PolicyFunc) Act(ctx context.Context, obs []float32) (game.Action, error) {
	return f(ctx, obs)
}

// Named is implemented by policies that report a label for archives.
type Named interface {
	Name() string
}

// PolicyName returns p's label, or "custom".
func PolicyName(p Policy) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return "custom"
}

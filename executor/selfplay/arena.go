// Package selfplay runs populations of independent snakes against their
// policies, one board per agent, advancing every living agent once per tick.
package selfplay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Ghersi75/SnakeAI/executor/convert"
	"github.com/Ghersi75/SnakeAI/game"
	"github.com/Ghersi75/SnakeAI/rules"
	"github.com/Ghersi75/SnakeAI/store"
)

var (
	ErrPolicyCount = errors.New("policy count does not match agent count")
	ErrNilPolicy   = errors.New("nil policy")
	ErrAgentIndex  = errors.New("agent index out of range")
	ErrNotReset    = errors.New("arena has not been reset")
)

type Options struct {
	// Seed is the base of every agent's rng. Zero picks a time-based seed.
	Seed int64
	// Workers caps concurrent agent steps per tick. Zero means GOMAXPROCS.
	Workers int
	// Record keeps a store.TurnRow per agent per tick, including the reset state.
	Record bool
	// RunID labels recorded rows.
	RunID string
	// OnTick is called after every tick barrier with a snapshot of all agents.
	OnTick func(Frame)
	// Fitness weights AgentResult.Fitness. Nil means DefaultFitnessWeights.
	Fitness *FitnessWeights
	Logger  *slog.Logger
}

// AgentView is a read-only copy of one agent for renderers.
type AgentView struct {
	Index      int
	Body       []game.Point
	Food       game.Point
	Direction  game.Direction
	Score      int32
	Age        int32
	Alive      bool
	DeathCause game.DeathCause
}

// Frame is every agent's state after one tick.
type Frame struct {
	Episode int32
	Tick    int32
	Alive   int
	Agents  []AgentView
}

type AgentResult struct {
	Index       int
	Policy      string
	Score       int32
	Age         int32
	FinalLength int32
	DeathCause  game.DeathCause
	Reward      float32
	// Fallbacks counts ticks whose action was not one-hot.
	Fallbacks int32
	Fitness   float64
}

type EpisodeResult struct {
	Episode  int32
	Ticks    int32
	Duration time.Duration
	Agents   []AgentResult
	// Turns is empty unless Options.Record is set. Rows are grouped by agent.
	Turns []store.TurnRow
}

type agentSlot struct {
	snake     *game.Snake
	policy    Policy
	rng       *rand.Rand
	obs       []float32
	reward    float32
	fallbacks int32
	turns     []store.TurnRow
}

// Arena owns n agents. It is driven by one caller at a time; the only
// concurrency is the per-tick fan-out inside RunEpisode.
type Arena struct {
	cfg     game.Config
	opts    Options
	n       int
	weights FitnessWeights
	log     *slog.Logger

	slots   []agentSlot
	episode int32
	tick    int32
	started time.Time
	ready   bool
}

func NewArena(cfg game.Config, n int, opts Options) (*Arena, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: agent count %d", game.ErrInvalidConfig, n)
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	weights := DefaultFitnessWeights()
	if opts.Fitness != nil {
		weights = *opts.Fitness
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Arena{
		cfg:     cfg,
		opts:    opts,
		n:       n,
		weights: weights,
		log:     logger,
		episode: -1,
	}, nil
}

func (a *Arena) Size() int           { return a.n }
func (a *Arena) Config() game.Config { return a.cfg }
func (a *Arena) Episode() int32      { return a.episode }
func (a *Arena) Tick() int32         { return a.tick }

// Alive counts living agents.
func (a *Arena) Alive() int {
	alive := 0
	for i := range a.slots {
		if a.slots[i].snake.Alive {
			alive++
		}
	}
	return alive
}

// Reset starts a new episode with one policy per agent. On error the arena
// is left exactly as it was.
func (a *Arena) Reset(policies []Policy) error {
	if len(policies) != a.n {
		return fmt.Errorf("%w: got %d, want %d", ErrPolicyCount, len(policies), a.n)
	}
	episode := a.episode + 1
	slots := make([]agentSlot, a.n)
	for i, p := range policies {
		if p == nil {
			return fmt.Errorf("%w: agent %d", ErrNilPolicy, i)
		}
		rng := rand.New(rand.NewSource(game.DeriveSeed(a.opts.Seed, uint64(episode), uint64(i))))
		s, err := rules.NewSnake(a.cfg, rng)
		if err != nil {
			return fmt.Errorf("reset agent %d: %w", i, err)
		}
		slots[i] = agentSlot{
			snake:  s,
			policy: p,
			rng:    rng,
			obs:    make([]float32, convert.ObservationSize(a.cfg.VisionRadius)),
		}
	}

	a.slots = slots
	a.episode = episode
	a.tick = 0
	a.started = time.Now()
	a.ready = true
	if a.opts.Record {
		for i := range a.slots {
			a.record(i, &a.slots[i], -1, 0)
		}
	}
	return nil
}

// RunEpisode ticks until every agent is dead. Each tick, every living agent
// is observed, asked for an action and stepped by exactly one goroutine; the
// tick ends when all of them are done. Cancelling ctx stops the episode at
// the next tick boundary; the arena must then be Reset.
func (a *Arena) RunEpisode(ctx context.Context) (EpisodeResult, error) {
	if !a.ready {
		return EpisodeResult{}, ErrNotReset
	}
	for a.Alive() > 0 {
		if err := ctx.Err(); err != nil {
			a.ready = false
			return a.Result(), err
		}
		if err := a.tickOnce(ctx); err != nil {
			a.ready = false
			return a.Result(), err
		}
	}
	res := a.Result()
	a.log.Debug("episode finished",
		"episode", res.Episode,
		"ticks", res.Ticks,
		"duration", res.Duration,
	)
	return res, nil
}

func (a *Arena) tickOnce(ctx context.Context) error {
	a.tick++

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i := range a.slots {
		slot := &a.slots[i]
		if !slot.snake.Alive {
			continue
		}
		g.Go(func() error {
			return a.advance(gctx, i, slot)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if a.opts.OnTick != nil {
		a.opts.OnTick(Frame{
			Episode: a.episode,
			Tick:    a.tick,
			Alive:   a.Alive(),
			Agents:  a.Snapshot(),
		})
	}
	return nil
}

func (a *Arena) advance(ctx context.Context, i int, slot *agentSlot) error {
	convert.ObserveInto(a.cfg, slot.snake, slot.obs)
	action, err := slot.policy.Act(ctx, slot.obs)
	if err != nil {
		return fmt.Errorf("agent %d policy: %w", i, err)
	}
	_, err = a.apply(i, slot, action)
	return err
}

func (a *Arena) apply(i int, slot *agentSlot, action game.Action) (rules.StepResult, error) {
	res, err := rules.Step(a.cfg, slot.snake, action, slot.rng)
	if err != nil {
		return res, fmt.Errorf("agent %d step: %w", i, err)
	}
	slot.reward += res.Reward
	if res.Fallback {
		slot.fallbacks++
	}
	if a.opts.Record {
		a.record(i, slot, int32(res.Turn), res.Reward)
	}
	return res, nil
}

func (a *Arena) slot(i int) (*agentSlot, error) {
	if !a.ready {
		return nil, ErrNotReset
	}
	if i < 0 || i >= len(a.slots) {
		return nil, fmt.Errorf("%w: %d of %d", ErrAgentIndex, i, len(a.slots))
	}
	return &a.slots[i], nil
}

// Observe returns a fresh observation for agent i.
func (a *Arena) Observe(i int) ([]float32, error) {
	slot, err := a.slot(i)
	if err != nil {
		return nil, err
	}
	return convert.Observe(a.cfg, slot.snake), nil
}

// ObserveInto writes agent i's observation into dst, which must have length
// convert.ObservationSize(radius).
func (a *Arena) ObserveInto(i int, dst []float32) error {
	slot, err := a.slot(i)
	if err != nil {
		return err
	}
	if len(dst) != len(slot.obs) {
		return fmt.Errorf("observation buffer length %d, want %d", len(dst), len(slot.obs))
	}
	convert.ObserveInto(a.cfg, slot.snake, dst)
	return nil
}

// StepAgent advances agent i alone with an externally chosen action. It
// suits callers that train one agent and need each reward immediately.
// Stepping a dead agent is a no-op.
func (a *Arena) StepAgent(i int, action game.Action) (rules.StepResult, error) {
	slot, err := a.slot(i)
	if err != nil {
		return rules.StepResult{}, err
	}
	if !slot.snake.Alive {
		return rules.StepResult{Alive: false, Score: slot.snake.Score}, nil
	}
	res, err := a.apply(i, slot, action)
	if slot.snake.Age > a.tick {
		a.tick = slot.snake.Age
	}
	return res, err
}

// Snapshot copies every agent's visible state.
func (a *Arena) Snapshot() []AgentView {
	views := make([]AgentView, len(a.slots))
	for i := range a.slots {
		s := a.slots[i].snake
		views[i] = AgentView{
			Index:      i,
			Body:       append([]game.Point(nil), s.Body...),
			Food:       s.Food,
			Direction:  s.Direction,
			Score:      s.Score,
			Age:        s.Age,
			Alive:      s.Alive,
			DeathCause: s.DeathCause,
		}
	}
	return views
}

// Result reports every agent's outcome so far and hands over recorded turns.
// Fitness is only meaningful once the agent is dead.
func (a *Arena) Result() EpisodeResult {
	res := EpisodeResult{
		Episode:  a.episode,
		Ticks:    a.tick,
		Duration: time.Since(a.started),
		Agents:   make([]AgentResult, len(a.slots)),
	}
	rows := 0
	for i := range a.slots {
		rows += len(a.slots[i].turns)
	}
	if rows > 0 {
		res.Turns = make([]store.TurnRow, 0, rows)
	}
	for i := range a.slots {
		slot := &a.slots[i]
		s := slot.snake
		res.Agents[i] = AgentResult{
			Index:       i,
			Policy:      PolicyName(slot.policy),
			Score:       s.Score,
			Age:         s.Age,
			FinalLength: s.FinalLength,
			DeathCause:  s.DeathCause,
			Reward:      slot.reward,
			Fallbacks:   slot.fallbacks,
			Fitness:     Fitness(s, a.cfg, a.weights),
		}
		res.Turns = append(res.Turns, slot.turns...)
		slot.turns = nil
	}
	return res
}

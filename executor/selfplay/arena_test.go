package selfplay

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Ghersi75/SnakeAI/executor/convert"
	"github.com/Ghersi75/SnakeAI/game"
)

func constant(a game.Action) Policy {
	return PolicyFunc(func(ctx context.Context, obs []float32) (game.Action, error) {
		return a, nil
	})
}

func policies(n int, p Policy) []Policy {
	out := make([]Policy, n)
	for i := range out {
		out[i] = p
	}
	return out
}

func smallConfig() game.Config {
	cfg := game.DefaultConfig()
	cfg.Width, cfg.Height = 300, 300
	return cfg
}

func TestArena_StraightRunnersHitTheWall(t *testing.T) {
	cfg := game.DefaultConfig()
	a, err := NewArena(cfg, 8, Options{Seed: 1, Workers: 3})
	if err != nil {
		t.Fatalf("new arena: %v", err)
	}
	if err := a.Reset(policies(8, constant(game.ActionStraight))); err != nil {
		t.Fatalf("reset: %v", err)
	}

	res, err := a.RunEpisode(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Head starts on column 15 of 30 heading right: 14 safe moves, then the wall.
	if res.Ticks != 15 {
		t.Fatalf("ticks=%d want=15", res.Ticks)
	}
	for _, ag := range res.Agents {
		if ag.DeathCause != game.DeathWall || ag.Age != 15 {
			t.Fatalf("agent %d: cause=%s age=%d", ag.Index, ag.DeathCause, ag.Age)
		}
		if ag.FinalLength != 4+ag.Score {
			t.Fatalf("agent %d: final length=%d score=%d", ag.Index, ag.FinalLength, ag.Score)
		}
		if ag.Fitness <= 0 {
			t.Fatalf("agent %d: fitness=%v", ag.Index, ag.Fitness)
		}
	}
	if a.Alive() != 0 {
		t.Fatalf("alive=%d after episode", a.Alive())
	}
}

func TestArena_EveryLivingAgentStepsOncePerTick(t *testing.T) {
	cfg := smallConfig()
	var frames int
	var bad string
	opts := Options{
		Seed:    7,
		Workers: 2,
		OnTick: func(f Frame) {
			frames++
			alive := 0
			for _, v := range f.Agents {
				if v.Alive {
					alive++
					if v.Age != f.Tick {
						bad = "living agent age differs from tick"
					}
				} else if v.Age > f.Tick {
					bad = "dead agent aged past the tick"
				}
			}
			if alive != f.Alive {
				bad = "frame alive count mismatch"
			}
		},
	}
	// Circling agents starve early; straight runners hit the wall.
	cfg.DeathMultiplier = 3
	ps := []Policy{
		constant(game.ActionStraight),
		constant(game.ActionRight),
		constant(game.ActionLeft),
		constant(game.ActionStraight),
		constant(game.Action{0.5, 0.5, 0}),
	}
	a, err := NewArena(cfg, 5, opts)
	if err != nil {
		t.Fatalf("new arena: %v", err)
	}
	if err := a.Reset(ps); err != nil {
		t.Fatalf("reset: %v", err)
	}
	res, err := a.RunEpisode(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if bad != "" {
		t.Fatal(bad)
	}
	if int32(frames) != res.Ticks {
		t.Fatalf("frames=%d ticks=%d", frames, res.Ticks)
	}
	if res.Agents[4].Fallbacks != res.Agents[4].Age {
		t.Fatalf("malformed action agent: fallbacks=%d age=%d", res.Agents[4].Fallbacks, res.Agents[4].Age)
	}
}

func TestArena_CirclingAgentStarves(t *testing.T) {
	cfg := game.DefaultConfig()
	cfg.DeathMultiplier = 2
	a, err := NewArena(cfg, 1, Options{Seed: 99})
	if err != nil {
		t.Fatalf("new arena: %v", err)
	}
	if err := a.Reset([]Policy{constant(game.ActionRight)}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	res, err := a.RunEpisode(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	ag := res.Agents[0]
	t.Logf("circling agent: %+v", ag)
	if ag.Score == 0 {
		if ag.DeathCause != game.DeathStarved || ag.Age != 7 {
			t.Fatalf("cause=%s age=%d want starved at 7", ag.DeathCause, ag.Age)
		}
	} else if ag.DeathCause == game.DeathWall {
		t.Fatalf("circling agent cannot reach a wall")
	}
}

func TestArena_SameSeedSameEpisode(t *testing.T) {
	cfg := smallConfig()
	run := func() EpisodeResult {
		a, err := NewArena(cfg, 4, Options{Seed: 42, Workers: 4, Record: true, RunID: "det"})
		if err != nil {
			t.Fatalf("new arena: %v", err)
		}
		ps := []Policy{
			constant(game.ActionStraight),
			constant(game.ActionRight),
			constant(game.ActionLeft),
			constant(game.ActionRight),
		}
		if err := a.Reset(ps); err != nil {
			t.Fatalf("reset: %v", err)
		}
		res, err := a.RunEpisode(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return res
	}

	r1, r2 := run(), run()
	if len(r1.Turns) != len(r2.Turns) {
		t.Fatalf("turns %d vs %d", len(r1.Turns), len(r2.Turns))
	}
	for i := range r1.Turns {
		a, b := r1.Turns[i], r2.Turns[i]
		if a.Agent != b.Agent || a.Tick != b.Tick || a.FoodX != b.FoodX || a.FoodY != b.FoodY || a.Score != b.Score {
			t.Fatalf("row %d differs: %+v vs %+v", i, a, b)
		}
	}
	for i := range r1.Agents {
		if r1.Agents[i].Fitness != r2.Agents[i].Fitness {
			t.Fatalf("agent %d fitness %v vs %v", i, r1.Agents[i].Fitness, r2.Agents[i].Fitness)
		}
	}
}

func TestArena_RecordsEveryTick(t *testing.T) {
	cfg := smallConfig()
	a, err := NewArena(cfg, 2, Options{Seed: 3, Record: true, RunID: "rec"})
	if err != nil {
		t.Fatalf("new arena: %v", err)
	}
	if err := a.Reset(policies(2, constant(game.ActionStraight))); err != nil {
		t.Fatalf("reset: %v", err)
	}
	res, err := a.RunEpisode(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	perAgent := map[int32]int32{}
	for _, r := range res.Turns {
		if r.RunID != "rec" {
			t.Fatalf("run id=%q", r.RunID)
		}
		if r.Tick == 0 && r.Action != -1 {
			t.Fatalf("reset row action=%d", r.Action)
		}
		if int(r.Agent) >= 2 || len(r.BodyX) != len(r.BodyY) {
			t.Fatalf("bad row %+v", r)
		}
		perAgent[r.Agent]++
	}
	for _, ag := range res.Agents {
		if perAgent[int32(ag.Index)] != ag.Age+1 {
			t.Fatalf("agent %d rows=%d age=%d", ag.Index, perAgent[int32(ag.Index)], ag.Age)
		}
	}
	last := res.Turns[len(res.Turns)-1]
	if last.Alive || last.DeathCause != "wall" || last.Reward != -10 {
		t.Fatalf("final row %+v", last)
	}

	v := ViewFromRow(last)
	if v.Alive || v.DeathCause != game.DeathWall || len(v.Body) != len(last.BodyX) {
		t.Fatalf("view from row: %+v", v)
	}
	if board := RenderBoard(ConfigFromRow(last), v); !strings.Contains(board, "died=wall") {
		t.Fatalf("render:\n%s", board)
	}

	again := a.Result()
	if len(again.Turns) != 0 {
		t.Fatalf("turns handed over twice: %d", len(again.Turns))
	}
}

func TestArena_ResetPolicyCountIsAtomic(t *testing.T) {
	cfg := smallConfig()
	a, err := NewArena(cfg, 3, Options{Seed: 5})
	if err != nil {
		t.Fatalf("new arena: %v", err)
	}
	if err := a.Reset(policies(3, constant(game.ActionStraight))); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := a.StepAgent(1, game.ActionStraight); err != nil {
		t.Fatalf("step: %v", err)
	}
	before := a.Snapshot()

	err = a.Reset(policies(2, constant(game.ActionStraight)))
	if !errors.Is(err, ErrPolicyCount) {
		t.Fatalf("err=%v want ErrPolicyCount", err)
	}
	err = a.Reset([]Policy{constant(game.ActionLeft), nil, constant(game.ActionLeft)})
	if !errors.Is(err, ErrNilPolicy) {
		t.Fatalf("err=%v want ErrNilPolicy", err)
	}

	after := a.Snapshot()
	for i := range before {
		if before[i].Age != after[i].Age || before[i].Body[0] != after[i].Body[0] || before[i].Food != after[i].Food {
			t.Fatalf("agent %d changed by failed reset: %+v -> %+v", i, before[i], after[i])
		}
	}
	if after[1].Age != 1 || after[0].Age != 0 {
		t.Fatalf("ages after StepAgent: %d %d", after[0].Age, after[1].Age)
	}
	if a.Episode() != 0 {
		t.Fatalf("episode=%d want 0", a.Episode())
	}
}

func TestArena_StepAgentAndObserve(t *testing.T) {
	cfg := smallConfig()
	a, err := NewArena(cfg, 2, Options{Seed: 11})
	if err != nil {
		t.Fatalf("new arena: %v", err)
	}
	if _, err := a.Observe(0); !errors.Is(err, ErrNotReset) {
		t.Fatalf("observe before reset: %v", err)
	}
	if err := a.Reset(policies(2, constant(game.ActionStraight))); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := a.StepAgent(2, game.ActionStraight); !errors.Is(err, ErrAgentIndex) {
		t.Fatalf("step out of range: %v", err)
	}
	if _, err := a.Observe(-1); !errors.Is(err, ErrAgentIndex) {
		t.Fatalf("observe out of range: %v", err)
	}

	obs, err := a.Observe(0)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	t.Logf("\n%s", RenderObservation(cfg.VisionRadius, obs))

	buf := convert.GetFloatBuffer(cfg.VisionRadius)
	defer convert.PutFloatBuffer(buf)
	if err := a.ObserveInto(0, *buf); err != nil {
		t.Fatalf("observe into: %v", err)
	}
	if !slices.Equal(*buf, obs) {
		t.Fatalf("ObserveInto differs from Observe")
	}
	if err := a.ObserveInto(0, make([]float32, 3)); err == nil {
		t.Fatalf("short buffer accepted")
	}

	var steps int
	for {
		res, err := a.StepAgent(0, game.ActionStraight)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		steps++
		if !res.Alive {
			if res.Reward != -10 {
				t.Fatalf("death reward=%v", res.Reward)
			}
			break
		}
		if steps > 100 {
			t.Fatalf("agent never died")
		}
	}
	res, err := a.StepAgent(0, game.ActionLeft)
	if err != nil || res.Alive || res.Reward != 0 {
		t.Fatalf("step after death: %+v err=%v", res, err)
	}
	if a.Alive() != 1 {
		t.Fatalf("alive=%d want 1", a.Alive())
	}
}

func TestArena_CancelStopsBetweenTicks(t *testing.T) {
	cfg := smallConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	p := PolicyFunc(func(ctx context.Context, obs []float32) (game.Action, error) {
		calls.Add(1)
		return game.ActionRight, nil
	})
	opts := Options{
		Seed: 1,
		OnTick: func(f Frame) {
			if f.Tick == 3 {
				cancel()
			}
		},
	}
	a, err := NewArena(cfg, 2, opts)
	if err != nil {
		t.Fatalf("new arena: %v", err)
	}
	if err := a.Reset(policies(2, p)); err != nil {
		t.Fatalf("reset: %v", err)
	}
	res, err := a.RunEpisode(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if res.Ticks != 3 || calls.Load() != 6 {
		t.Fatalf("ticks=%d calls=%d", res.Ticks, calls.Load())
	}
	if _, err := a.RunEpisode(context.Background()); !errors.Is(err, ErrNotReset) {
		t.Fatalf("rerun without reset: %v", err)
	}
}

func TestArena_PolicyErrorAbortsEpisode(t *testing.T) {
	boom := errors.New("boom")
	a, err := NewArena(smallConfig(), 2, Options{Seed: 1})
	if err != nil {
		t.Fatalf("new arena: %v", err)
	}
	failing := PolicyFunc(func(ctx context.Context, obs []float32) (game.Action, error) {
		return game.Action{}, boom
	})
	if err := a.Reset([]Policy{constant(game.ActionRight), failing}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := a.RunEpisode(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
}

func TestNewArena_RejectsBadInput(t *testing.T) {
	if _, err := NewArena(game.DefaultConfig(), 0, Options{}); !errors.Is(err, game.ErrInvalidConfig) {
		t.Fatalf("zero agents: %v", err)
	}
	bad := game.DefaultConfig()
	bad.CellSize = 0
	if _, err := NewArena(bad, 1, Options{}); !errors.Is(err, game.ErrInvalidConfig) {
		t.Fatalf("bad config: %v", err)
	}
}

func TestFitness(t *testing.T) {
	cfg := game.DefaultConfig()
	w := DefaultFitnessWeights()

	s := &game.Snake{Score: 2, Age: 50, FinalLength: 6, DeathCause: game.DeathWall}
	want := (200 + 50.0/601.0*50) * 0.9
	if got := Fitness(s, cfg, w); math.Abs(got-want) > 1e-9 {
		t.Fatalf("fitness=%v want=%v", got, want)
	}

	idle := &game.Snake{Age: 301, FinalLength: 4, DeathCause: game.DeathStarved}
	wantIdle := 301.0 / 401.0 * 50 * 0.9
	if got := Fitness(idle, cfg, w); math.Abs(got-wantIdle) > 1e-9 {
		t.Fatalf("idle fitness=%v want=%v", got, wantIdle)
	}

	w.Penalty = nil
	if got := Fitness(s, cfg, w); math.Abs(got-want/0.9) > 1e-9 {
		t.Fatalf("unpenalised fitness=%v", got)
	}
}

func TestSummarize(t *testing.T) {
	st := Summarize([]float64{3, 1, 2, 5})
	if st.Best != 5 || st.Worst != 1 || st.Mean != 2.75 || st.Median != 2 {
		t.Fatalf("stats=%+v", st)
	}
	want := []int{3, 0, 2, 1}
	for i := range want {
		if st.Order[i] != want[i] {
			t.Fatalf("order=%v want=%v", st.Order, want)
		}
	}
	if got := Rank([]float64{1, 1, 0}); got[0] != 0 || got[1] != 1 {
		t.Fatalf("ties not stable: %v", got)
	}
	if z := Summarize(nil); z.Order != nil || z.Best != 0 {
		t.Fatalf("empty stats=%+v", z)
	}
}

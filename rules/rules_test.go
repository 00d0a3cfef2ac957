package rules

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/Ghersi75/SnakeAI/game"
)

func dumpState(cfg game.Config, s *game.Snake) string {
	if s == nil {
		return "<nil snake>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Age=%d Score=%d Dir=%s Alive=%v Death=%s Len=%d Food=(%d,%d)\n",
		s.Age, s.Score, s.Direction, s.Alive, s.DeathCause, len(s.Body), s.Food.X, s.Food.Y)
	b.WriteString("Body:")
	for _, p := range s.Body {
		fmt.Fprintf(&b, " (%d,%d)", p.X, p.Y)
	}
	b.WriteString("\n")

	cols, rows := int(cfg.Cols()), int(cfg.Rows())
	if cols <= 0 || rows <= 0 || cols > 40 || rows > 40 {
		return b.String()
	}
	grid := make([][]byte, rows)
	for y := range grid {
		grid[y] = []byte(strings.Repeat(".", cols))
	}
	set := func(p game.Point, c byte) {
		x, y := int(p.X/cfg.CellSize), int(p.Y/cfg.CellSize)
		if p.X < 0 || p.Y < 0 || x >= cols || y >= rows {
			return
		}
		grid[y][x] = c
	}
	set(s.Food, 'F')
	for i := len(s.Body) - 1; i >= 0; i-- {
		if i == 0 {
			set(s.Body[i], 'H')
		} else {
			set(s.Body[i], 'o')
		}
	}
	b.WriteString("Board:\n")
	for _, row := range grid {
		b.Write(row)
		b.WriteByte('\n')
	}
	return b.String()
}

func logStep(t *testing.T, name string, cfg game.Config, before *game.Snake, action game.Action, after *game.Snake) {
	t.Helper()
	turn, _ := action.Decode()
	t.Logf("=== %s ===\nBefore:\n%sAction: %s\nAfter:\n%s", name, dumpState(cfg, before), turn, dumpState(cfg, after))
}

func smallConfig() game.Config {
	return game.Config{Width: 300, Height: 300, CellSize: 30, DeathMultiplier: 100, VisionRadius: 4}
}

func TestStep_TurnMapping(t *testing.T) {
	cfg := smallConfig()
	cases := []struct {
		action game.Action
		want   game.Direction
	}{
		{game.ActionStraight, game.Right},
		{game.ActionRight, game.Down},
		{game.ActionLeft, game.Up},
	}
	for _, c := range cases {
		s, err := NewSnake(cfg, rand.New(rand.NewSource(1)))
		if err != nil {
			t.Fatalf("NewSnake: %v", err)
		}
		s.Food = game.Point{X: 0, Y: 0}
		before := s.Clone()
		if _, err := Step(cfg, s, c.action, rand.New(rand.NewSource(2))); err != nil {
			t.Fatalf("Step: %v", err)
		}
		logStep(t, "turn", cfg, before, c.action, s)
		if s.Direction != c.want {
			t.Fatalf("action %v: direction=%s want=%s", c.action, s.Direction, c.want)
		}
		if want := before.Body[0].Add(c.want.Delta(cfg.CellSize)); s.Body[0] != want {
			t.Fatalf("action %v: head=%v want=%v", c.action, s.Body[0], want)
		}
	}
}

func TestStep_EatsFood(t *testing.T) {
	cfg := smallConfig()
	rng := rand.New(rand.NewSource(7))
	s := &game.Snake{
		Body:      []game.Point{{X: 150, Y: 150}, {X: 120, Y: 150}, {X: 90, Y: 150}},
		Direction: game.Right,
		Food:      game.Point{X: 210, Y: 150},
		Alive:     true,
	}

	before := s.Clone()
	res, err := Step(cfg, s, game.ActionStraight, rng)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	logStep(t, "approach food", cfg, before, game.ActionStraight, s)
	if s.Body[0] != (game.Point{X: 180, Y: 150}) {
		t.Fatalf("head=%v want=(180,150)", s.Body[0])
	}
	if res.Reward != 0 || res.Ate || !res.Alive || len(s.Body) != 3 {
		t.Fatalf("unexpected first tick: %+v len=%d", res, len(s.Body))
	}

	before = s.Clone()
	res, err = Step(cfg, s, game.ActionStraight, rng)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	logStep(t, "eat food", cfg, before, game.ActionStraight, s)
	if s.Body[0] != (game.Point{X: 210, Y: 150}) {
		t.Fatalf("head=%v want=(210,150)", s.Body[0])
	}
	if !res.Ate || res.Reward != RewardFood || res.Score != 1 || s.Score != 1 {
		t.Fatalf("expected food consumption, got %+v", res)
	}
	if len(s.Body) != 4 {
		t.Fatalf("body len=%d want=4", len(s.Body))
	}
	for _, p := range s.Body {
		if p == s.Food {
			t.Fatalf("new food %v placed inside body", s.Food)
		}
	}
}

func TestStep_WallCollision(t *testing.T) {
	cfg := smallConfig()
	s := &game.Snake{
		Body:      []game.Point{{X: 0, Y: 150}, {X: 30, Y: 150}, {X: 60, Y: 150}},
		Direction: game.Left,
		Food:      game.Point{X: 270, Y: 270},
		Alive:     true,
	}
	before := s.Clone()
	res, err := Step(cfg, s, game.ActionStraight, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	logStep(t, "wall", cfg, before, game.ActionStraight, s)

	if res.Alive || s.Alive {
		t.Fatalf("snake should be dead")
	}
	if s.DeathCause != game.DeathWall {
		t.Fatalf("death=%s want=wall", s.DeathCause)
	}
	if res.Reward != RewardDeath {
		t.Fatalf("reward=%v want=%v", res.Reward, RewardDeath)
	}
	if s.FinalLength != 4 || len(s.Body) != 4 {
		t.Fatalf("final length=%d body=%d want 4 (tentative head retained)", s.FinalLength, len(s.Body))
	}
}

func TestStep_SelfCollision(t *testing.T) {
	cfg := smallConfig()
	s := &game.Snake{
		Body: []game.Point{
			{X: 60, Y: 60}, {X: 30, Y: 60}, {X: 30, Y: 90}, {X: 60, Y: 90}, {X: 90, Y: 90},
		},
		Direction: game.Right,
		Food:      game.Point{X: 270, Y: 270},
		Alive:     true,
	}
	before := s.Clone()
	res, err := Step(cfg, s, game.ActionRight, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	logStep(t, "self", cfg, before, game.ActionRight, s)

	if res.Alive || s.DeathCause != game.DeathSelf {
		t.Fatalf("alive=%v death=%s want dead by self", res.Alive, s.DeathCause)
	}
}

func TestStep_Starvation(t *testing.T) {
	cfg := game.DefaultConfig()
	cfg.DeathMultiplier = 2
	rng := rand.New(rand.NewSource(3))

	s, err := NewSnake(cfg, rng)
	if err != nil {
		t.Fatalf("NewSnake: %v", err)
	}
	s.Food = game.Point{X: 0, Y: 0}
	threshold := cfg.DeathMultiplier * StartLength

	for tick := int32(1); tick <= threshold; tick++ {
		res, err := Step(cfg, s, game.ActionStraight, rng)
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if !res.Alive {
			t.Fatalf("died early at tick %d:\n%s", tick, dumpState(cfg, s))
		}
	}

	before := s.Clone()
	res, err := Step(cfg, s, game.ActionStraight, rng)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	logStep(t, "starved", cfg, before, game.ActionStraight, s)
	if res.Alive || s.DeathCause != game.DeathStarved {
		t.Fatalf("alive=%v death=%s want starved", res.Alive, s.DeathCause)
	}
	if res.Reward != RewardDeath {
		t.Fatalf("reward=%v want=%v", res.Reward, RewardDeath)
	}
	if s.Age != threshold+1 {
		t.Fatalf("age=%d want=%d", s.Age, threshold+1)
	}
}

func TestStep_WallTakesPrecedenceOverStarvation(t *testing.T) {
	cfg := smallConfig()
	cfg.DeathMultiplier = 2
	s := &game.Snake{
		Body:      []game.Point{{X: 0, Y: 150}, {X: 30, Y: 150}, {X: 60, Y: 150}},
		Direction: game.Left,
		Food:      game.Point{X: 270, Y: 270},
		Alive:     true,
		Age:       cfg.DeathMultiplier * StartLength,
	}
	if _, err := Step(cfg, s, game.ActionStraight, rand.New(rand.NewSource(1))); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if s.DeathCause != game.DeathWall {
		t.Fatalf("death=%s want=wall", s.DeathCause)
	}
}

func TestStep_DeadIsFrozen(t *testing.T) {
	cfg := smallConfig()
	s := &game.Snake{
		Body:      []game.Point{{X: 0, Y: 150}, {X: 30, Y: 150}, {X: 60, Y: 150}},
		Direction: game.Left,
		Food:      game.Point{X: 270, Y: 270},
		Alive:     true,
	}
	rng := rand.New(rand.NewSource(1))
	if _, err := Step(cfg, s, game.ActionStraight, rng); err != nil {
		t.Fatalf("Step: %v", err)
	}
	frozen := s.Clone()

	for _, a := range []game.Action{game.ActionStraight, game.ActionRight, game.ActionLeft} {
		res, err := Step(cfg, s, a, rng)
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if res.Alive || res.Reward != 0 {
			t.Fatalf("dead step returned %+v", res)
		}
	}
	if s.Age != frozen.Age || s.Score != frozen.Score || s.DeathCause != frozen.DeathCause || len(s.Body) != len(frozen.Body) {
		t.Fatalf("dead snake changed:\nbefore:\n%safter:\n%s", dumpState(cfg, frozen), dumpState(cfg, s))
	}
	for i := range s.Body {
		if s.Body[i] != frozen.Body[i] {
			t.Fatalf("body[%d]=%v want=%v", i, s.Body[i], frozen.Body[i])
		}
	}
}

func TestStep_InvalidActionGoesStraight(t *testing.T) {
	cfg := smallConfig()
	for _, a := range []game.Action{{}, {1, 1, 0}, {0.5, 0, 0}, {0, 1, 1}} {
		s, err := NewSnake(cfg, rand.New(rand.NewSource(1)))
		if err != nil {
			t.Fatalf("NewSnake: %v", err)
		}
		s.Food = game.Point{X: 0, Y: 0}
		res, err := Step(cfg, s, a, rand.New(rand.NewSource(1)))
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if !res.Fallback || res.Turn != game.TurnStraight || s.Direction != game.Right {
			t.Fatalf("action %v: res=%+v dir=%s want straight fallback", a, res, s.Direction)
		}
	}
}

func TestNewSnake_ResetState(t *testing.T) {
	cfg := smallConfig()
	s, err := NewSnake(cfg, rand.New(rand.NewSource(11)))
	if err != nil {
		t.Fatalf("NewSnake: %v", err)
	}
	t.Logf("\n%s", dumpState(cfg, s))

	want := []game.Point{{X: 150, Y: 150}, {X: 120, Y: 150}, {X: 90, Y: 150}}
	if len(s.Body) != len(want) {
		t.Fatalf("body len=%d want=%d", len(s.Body), len(want))
	}
	for i := range want {
		if s.Body[i] != want[i] {
			t.Fatalf("body[%d]=%v want=%v", i, s.Body[i], want[i])
		}
	}
	if !s.Alive || s.Direction != game.Right || s.Score != 0 || s.Age != 0 || s.DeathCause != game.DeathNone {
		t.Fatalf("unexpected reset state: %+v", s)
	}
}

// Random play must keep every alive-state invariant on every tick.
func TestStep_RandomPlayInvariants(t *testing.T) {
	cfg := smallConfig()
	cfg.DeathMultiplier = 20
	actions := []game.Action{game.ActionStraight, game.ActionRight, game.ActionLeft}

	for seed := int64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		s, err := NewSnake(cfg, rng)
		if err != nil {
			t.Fatalf("NewSnake: %v", err)
		}
		for s.Alive {
			before := s.Clone()
			res, err := Step(cfg, s, actions[rng.Intn(len(actions))], rng)
			if err != nil {
				t.Fatalf("seed %d: Step: %v", seed, err)
			}
			if s.Age != before.Age+1 {
				t.Fatalf("seed %d: age %d -> %d", seed, before.Age, s.Age)
			}
			if !res.Alive {
				if s.DeathCause == game.DeathNone || s.FinalLength != int32(len(s.Body)) {
					t.Fatalf("seed %d: bad death record:\n%s", seed, dumpState(cfg, s))
				}
				break
			}

			switch {
			case res.Ate:
				if s.Score != before.Score+1 || len(s.Body) != len(before.Body)+1 {
					t.Fatalf("seed %d: food tick score %d->%d len %d->%d", seed, before.Score, s.Score, len(before.Body), len(s.Body))
				}
			default:
				if s.Score != before.Score || len(s.Body) != len(before.Body) {
					t.Fatalf("seed %d: plain tick score %d->%d len %d->%d", seed, before.Score, s.Score, len(before.Body), len(s.Body))
				}
			}

			seen := make(map[game.Point]bool, len(s.Body))
			for _, p := range s.Body {
				if !cfg.InBounds(p) || p.X%cfg.CellSize != 0 || p.Y%cfg.CellSize != 0 {
					t.Fatalf("seed %d: body cell %v off board:\n%s", seed, p, dumpState(cfg, s))
				}
				if seen[p] {
					t.Fatalf("seed %d: duplicate body cell %v:\n%s", seed, p, dumpState(cfg, s))
				}
				seen[p] = true
			}
			if seen[s.Food] {
				t.Fatalf("seed %d: food inside body:\n%s", seed, dumpState(cfg, s))
			}
		}
	}
}

func TestCheckHead_IgnoresHeadCell(t *testing.T) {
	cfg := smallConfig()
	s := &game.Snake{Body: []game.Point{{X: 150, Y: 150}, {X: 120, Y: 150}, {X: 90, Y: 150}}, Alive: true}

	if cause, hit := CheckHead(cfg, s); hit {
		t.Fatalf("head reported as collision: %s", cause)
	}
	if got := Probe(cfg, s, game.Point{X: 120, Y: 150}); got != HitSelf {
		t.Fatalf("probe body=%v want HitSelf", got)
	}
	for _, p := range []game.Point{{X: -30, Y: 0}, {X: 300, Y: 0}, {X: 0, Y: -30}, {X: 0, Y: 300}} {
		if got := Probe(cfg, s, p); got != HitWall {
			t.Fatalf("probe %v=%v want HitWall", p, got)
		}
	}
	if got := Probe(cfg, s, game.Point{X: 270, Y: 270}); got != HitNone {
		t.Fatalf("probe corner=%v want HitNone", got)
	}
	if s.DeathCause != game.DeathNone || !s.Alive {
		t.Fatalf("probing mutated the snake: %+v", s)
	}
}

func TestPlaceFood_OnlyFreeCell(t *testing.T) {
	cfg := game.Config{Width: 120, Height: 30, CellSize: 30, DeathMultiplier: 100, MaxFoodAttempts: 1}
	s := &game.Snake{Body: []game.Point{{X: 60, Y: 0}, {X: 30, Y: 0}, {X: 0, Y: 0}}, Alive: true}

	for seed := int64(0); seed < 100; seed++ {
		p, err := PlaceFood(cfg, s, rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatalf("seed %d: PlaceFood: %v", seed, err)
		}
		if p != (game.Point{X: 90, Y: 0}) || s.Food != p {
			t.Fatalf("seed %d: food=%v want=(90,0)", seed, p)
		}
	}
}

func TestPlaceFood_BoardFull(t *testing.T) {
	cfg := game.Config{Width: 90, Height: 30, CellSize: 30, DeathMultiplier: 100}
	s := &game.Snake{Body: []game.Point{{X: 60, Y: 0}, {X: 30, Y: 0}, {X: 0, Y: 0}}, Alive: true, Food: game.Point{X: -1, Y: -1}}

	_, err := PlaceFood(cfg, s, rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrBoardFull) {
		t.Fatalf("err=%v want ErrBoardFull", err)
	}
	if s.Food != (game.Point{X: -1, Y: -1}) {
		t.Fatalf("food changed on failure: %v", s.Food)
	}
}

func TestPlaceFood_StaysOnLattice(t *testing.T) {
	cfg := smallConfig()
	s := &game.Snake{Body: []game.Point{{X: 150, Y: 150}, {X: 120, Y: 150}, {X: 90, Y: 150}}, Alive: true}
	rng := rand.New(rand.NewSource(99))
	counts := make(map[game.Point]int)
	for i := 0; i < 5000; i++ {
		p, err := PlaceFood(cfg, s, rng)
		if err != nil {
			t.Fatalf("PlaceFood: %v", err)
		}
		if !cfg.InBounds(p) || p.X%cfg.CellSize != 0 || p.Y%cfg.CellSize != 0 {
			t.Fatalf("food %v off lattice", p)
		}
		counts[p]++
	}
	if free := cfg.Cells() - len(s.Body); len(counts) != free {
		t.Fatalf("food visited %d cells, want all %d free cells", len(counts), free)
	}
}

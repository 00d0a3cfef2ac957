package convert

import (
	"testing"

	"github.com/Ghersi75/SnakeAI/game"
)

func visionConfig() game.Config {
	return game.Config{Width: 300, Height: 300, CellSize: 30, DeathMultiplier: 100, VisionRadius: 1}
}

func assertVector(t *testing.T, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len=%d want=%d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("obs[%d]=%v want=%v\n got=%v\nwant=%v", i, got[i], want[i], got, want)
		}
	}
}

func TestObservationSize(t *testing.T) {
	if got := ObservationSize(4); got != 93 {
		t.Fatalf("radius 4 size=%d want=93", got)
	}
	if got := ObservationSize(0); got != 13 {
		t.Fatalf("radius 0 size=%d want=13", got)
	}
	cfg := game.DefaultConfig()
	s := &game.Snake{Body: []game.Point{cfg.Center()}, Direction: game.Right, Alive: true}
	if got := len(Observe(cfg, s)); got != ObservationSize(cfg.VisionRadius) {
		t.Fatalf("Observe len=%d", got)
	}
}

func TestObserve_OpenBoard(t *testing.T) {
	cfg := visionConfig()
	s := &game.Snake{
		Body:      []game.Point{{X: 150, Y: 150}, {X: 120, Y: 150}, {X: 90, Y: 150}},
		Direction: game.Right,
		Food:      game.Point{X: 180, Y: 120},
		Alive:     true,
	}

	got := Observe(cfg, s)
	want := []float32{
		// dx=-1: dy -1, 0, +1
		0, -1, 0,
		// dx=0
		0, 0, 0,
		// dx=+1
		1, 0, 0,
		// danger straight, right, left, behind
		0, 0, 0, 1,
		// heading left, right, up, down
		0, 1, 0, 0,
		// food left, right, above, below
		0, 1, 1, 0,
	}
	assertVector(t, got, want)
}

func TestObserve_Corner(t *testing.T) {
	cfg := visionConfig()
	s := &game.Snake{
		Body:      []game.Point{{X: 0, Y: 0}, {X: 0, Y: 30}, {X: 0, Y: 60}},
		Direction: game.Up,
		Food:      game.Point{X: 270, Y: 270},
		Alive:     true,
	}

	got := Observe(cfg, s)
	want := []float32{
		-1, -1, -1,
		-1, 0, -1,
		-1, 0, 0,
		1, 0, 1, 1,
		0, 0, 1, 0,
		0, 1, 0, 1,
	}
	assertVector(t, got, want)

	if s.DeathCause != game.DeathNone || !s.Alive {
		t.Fatalf("observing mutated the snake: %+v", s)
	}
}

func TestObserve_FoodTiesAreFalse(t *testing.T) {
	cfg := visionConfig()
	s := &game.Snake{
		Body:      []game.Point{{X: 150, Y: 150}, {X: 120, Y: 150}, {X: 90, Y: 150}},
		Direction: game.Right,
		Food:      game.Point{X: 150, Y: 150},
		Alive:     true,
	}
	got := Observe(cfg, s)
	off := FlagOffset(cfg.VisionRadius)
	for _, k := range []int{FoodLeft, FoodRight, FoodAbove, FoodBelow} {
		if got[off+k] != 0 {
			t.Fatalf("food flag %d=%v want 0 on tie", k, got[off+k])
		}
	}
}

func TestObserveInto_PooledBufferMatches(t *testing.T) {
	cfg := game.DefaultConfig()
	s := &game.Snake{
		Body:      []game.Point{{X: 450, Y: 450}, {X: 420, Y: 450}, {X: 390, Y: 450}},
		Direction: game.Right,
		Food:      game.Point{X: 510, Y: 390},
		Alive:     true,
	}
	want := Observe(cfg, s)

	buf := GetFloatBuffer(cfg.VisionRadius)
	defer PutFloatBuffer(buf)
	for i := range *buf {
		(*buf)[i] = 42
	}
	ObserveInto(cfg, s, *buf)
	assertVector(t, *buf, want)
}

func TestObserve_DangerBehindTracksTail(t *testing.T) {
	cfg := visionConfig()
	off := FlagOffset(cfg.VisionRadius)
	for _, d := range game.Clockwise {
		head := game.Point{X: 150, Y: 150}
		neck := head.Add(d.Turn(game.TurnBack).Delta(cfg.CellSize))
		s := &game.Snake{
			Body:      []game.Point{head, neck, neck.Add(d.Turn(game.TurnBack).Delta(cfg.CellSize))},
			Direction: d,
			Food:      game.Point{X: 0, Y: 0},
			Alive:     true,
		}
		got := Observe(cfg, s)
		if got[off+DangerStraight] != 0 || got[off+DangerBehind] != 1 {
			t.Fatalf("heading %s: straight=%v behind=%v want 0/1", d, got[off+DangerStraight], got[off+DangerBehind])
		}
	}
}

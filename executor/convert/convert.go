// Package convert encodes a snake's view of its board into the fixed-length
// observation vector consumed by policies.
//
// Layout for vision radius r (W = 2r+1):
//
//	[0, W*W)        occupancy window, outer loop over X offset, inner over Y:
//	                -1 wall or body, +1 food, 0 free
//	W*W + 0..3      danger straight, right, left, behind
//	W*W + 4..7      heading left, right, up, down
//	W*W + 8..11     food left, right, above, below
//
// The order is part of every saved policy's contract and must not change.
package convert

import (
	"sync"

	"github.com/Ghersi75/SnakeAI/game"
	"github.com/Ghersi75/SnakeAI/rules"
)

// Offsets of the scalar features, relative to FlagOffset.
const (
	DangerStraight = iota
	DangerRight
	DangerLeft
	DangerBehind
	HeadingLeft
	HeadingRight
	HeadingUp
	HeadingDown
	FoodLeft
	FoodRight
	FoodAbove
	FoodBelow

	// FlagCount is the number of scalar features after the occupancy window.
	FlagCount
)

// FlagOffset is the index of the first scalar feature.
func FlagOffset(radius int32) int {
	w := int(2*radius + 1)
	return w * w
}

// ObservationSize is the vector length for a vision radius.
func ObservationSize(radius int32) int {
	return FlagOffset(radius) + FlagCount
}

var floatPools sync.Map // map[int]*sync.Pool keyed by vector length

func poolFor(size int) *sync.Pool {
	if p, ok := floatPools.Load(size); ok {
		return p.(*sync.Pool)
	}
	p, _ := floatPools.LoadOrStore(size, &sync.Pool{
		New: func() interface{} {
			b := make([]float32, size)
			return &b
		},
	})
	return p.(*sync.Pool)
}

// GetFloatBuffer returns a pooled observation buffer for the radius.
func GetFloatBuffer(radius int32) *[]float32 {
	return poolFor(ObservationSize(radius)).Get().(*[]float32)
}

// PutFloatBuffer returns a buffer obtained from GetFloatBuffer.
func PutFloatBuffer(b *[]float32) {
	poolFor(len(*b)).Put(b)
}

// Observe allocates and fills a new observation vector.
func Observe(cfg game.Config, s *game.Snake) []float32 {
	out := make([]float32, ObservationSize(cfg.VisionRadius))
	ObserveInto(cfg, s, out)
	return out
}

// ObserveInto fills dst, which must have length ObservationSize(cfg.VisionRadius).
// It only reads the snake. A snake with an empty body yields all zeros.
func ObserveInto(cfg game.Config, s *game.Snake, dst []float32) {
	clear(dst)
	if len(s.Body) == 0 {
		return
	}
	r := cfg.VisionRadius
	head := s.Body[0]

	i := 0
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			p := game.Point{X: head.X + dx*cfg.CellSize, Y: head.Y + dy*cfg.CellSize}
			switch {
			case rules.IsCollision(cfg, s, p):
				dst[i] = -1
			case p == s.Food:
				dst[i] = 1
			}
			i++
		}
	}

	danger := func(t game.RelativeTurn) float32 {
		p := head.Add(s.Direction.Turn(t).Delta(cfg.CellSize))
		return flag(rules.IsCollision(cfg, s, p))
	}
	flags := dst[i : i+FlagCount]
	flags[DangerStraight] = danger(game.TurnStraight)
	flags[DangerRight] = danger(game.TurnRight)
	flags[DangerLeft] = danger(game.TurnLeft)
	flags[DangerBehind] = danger(game.TurnBack)

	flags[HeadingLeft] = flag(s.Direction == game.Left)
	flags[HeadingRight] = flag(s.Direction == game.Right)
	flags[HeadingUp] = flag(s.Direction == game.Up)
	flags[HeadingDown] = flag(s.Direction == game.Down)

	flags[FoodLeft] = flag(s.Food.X < head.X)
	flags[FoodRight] = flag(s.Food.X > head.X)
	flags[FoodAbove] = flag(s.Food.Y < head.Y)
	flags[FoodBelow] = flag(s.Food.Y > head.Y)
}

func flag(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

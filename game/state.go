// Package game defines the core state types for the snake training substrate.
//
// Every agent plays on its own board: a Snake carries its body, heading,
// food target and lifecycle flags, and nothing is shared between agents.
// Coordinates live on a CellSize lattice measured in pixels, with (0,0) at
// the top-left corner and y growing downwards.
package game

import (
	"errors"
	"fmt"
)

// Point is a board coordinate on the CellSize lattice.
type Point struct {
	X int32
	Y int32
}

// Add returns p translated by d.
func (p Point) Add(d Point) Point {
	return Point{X: p.X + d.X, Y: p.Y + d.Y}
}

// DeathCause records why a snake's episode ended.
type DeathCause uint8

const (
	DeathNone DeathCause = iota
	// DeathStarved is the lazy death: the age bound ran out before the snake ate.
	DeathStarved
	DeathWall
	DeathSelf
)

var deathNames = [...]string{"none", "starved", "wall", "self"}

func (c DeathCause) String() string {
	if int(c) < len(deathNames) {
		return deathNames[c]
	}
	return fmt.Sprintf("DeathCause(%d)", uint8(c))
}

// ParseDeathCause is the inverse of DeathCause.String.
func ParseDeathCause(s string) (DeathCause, bool) {
	for i, n := range deathNames {
		if n == s {
			return DeathCause(i), true
		}
	}
	return DeathNone, false
}

// Snake is one agent's complete game state.
//
// It is a plain record: the rules package enforces every invariant, and
// only the step engine mutates a live snake.
type Snake struct {
	Body        []Point // head first
	Direction   Direction
	Score       int32
	Food        Point
	Alive       bool
	Age         int32
	DeathCause  DeathCause
	FinalLength int32
}

// Head returns the first body cell. It panics on an empty body.
func (s *Snake) Head() Point {
	return s.Body[0]
}

// Clone performs a deep copy of the snake.
func (s *Snake) Clone() *Snake {
	if s == nil {
		return nil
	}
	out := *s
	if len(s.Body) > 0 {
		out.Body = make([]Point, len(s.Body))
		copy(out.Body, s.Body)
	}
	return &out
}

// Config describes the board shared by every agent of a run.
type Config struct {
	Width    int32 // pixels
	Height   int32 // pixels
	CellSize int32 // pixels per cell

	// DeathMultiplier bounds an episode: a snake that survives more than
	// DeathMultiplier × length ticks without growing dies of starvation.
	DeathMultiplier int32

	// VisionRadius is the half-width of the occupancy window around the head.
	VisionRadius int32

	// MaxFoodAttempts caps rejection sampling in food placement. Zero means
	// four times the number of cells.
	MaxFoodAttempts int
}

var ErrInvalidConfig = errors.New("invalid game config")

// DefaultConfig matches the headless training board: 30×30 cells of 30px,
// a 9×9 vision window and a 100× length starvation bound.
func DefaultConfig() Config {
	return Config{
		Width:           900,
		Height:          900,
		CellSize:        30,
		DeathMultiplier: 100,
		VisionRadius:    4,
	}
}

// Validate checks that the board is a whole number of cells and big enough
// for the starting snake.
func (c Config) Validate() error {
	switch {
	case c.CellSize <= 0:
		return fmt.Errorf("%w: cell size %d", ErrInvalidConfig, c.CellSize)
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: board %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.Width%c.CellSize != 0 || c.Height%c.CellSize != 0:
		return fmt.Errorf("%w: board %dx%d is not a multiple of cell size %d", ErrInvalidConfig, c.Width, c.Height, c.CellSize)
	case c.Cols() < 4 || c.Rows() < 1:
		// The starting snake spans three cells left of the centre column.
		return fmt.Errorf("%w: board %dx%d cells is too small", ErrInvalidConfig, c.Cols(), c.Rows())
	case c.DeathMultiplier <= 0:
		return fmt.Errorf("%w: death multiplier %d", ErrInvalidConfig, c.DeathMultiplier)
	case c.VisionRadius < 0:
		return fmt.Errorf("%w: vision radius %d", ErrInvalidConfig, c.VisionRadius)
	case c.MaxFoodAttempts < 0:
		return fmt.Errorf("%w: max food attempts %d", ErrInvalidConfig, c.MaxFoodAttempts)
	}
	return nil
}

// Cols is the number of cells along X.
func (c Config) Cols() int32 { return c.Width / c.CellSize }

// Rows is the number of cells along Y.
func (c Config) Rows() int32 { return c.Height / c.CellSize }

// Cells is the number of cells on the board.
func (c Config) Cells() int { return int(c.Cols()) * int(c.Rows()) }

// InBounds reports whether p lies on the board.
func (c Config) InBounds(p Point) bool {
	return p.X >= 0 && p.X <= c.Width-c.CellSize && p.Y >= 0 && p.Y <= c.Height-c.CellSize
}

// Center returns the lattice cell closest to the middle of the board.
func (c Config) Center() Point {
	return Point{
		X: (c.Width / 2 / c.CellSize) * c.CellSize,
		Y: (c.Height / 2 / c.CellSize) * c.CellSize,
	}
}

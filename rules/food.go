package rules

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/Ghersi75/SnakeAI/game"
)

// ErrBoardFull means no free cell is left for food. Boards are sized far
// beyond any reachable snake length, so this is an internal invariant
// violation rather than a game outcome.
var ErrBoardFull = errors.New("no free cell for food")

// PlaceFood picks a uniformly random lattice cell that is not covered by the
// snake's body and stores it as the snake's food.
//
// Candidates are drawn by rejection sampling up to cfg.MaxFoodAttempts times
// (four times the cell count when unset). If every attempt lands on the body,
// the free cells are enumerated and one is drawn from the same rng.
func PlaceFood(cfg game.Config, s *game.Snake, rng *rand.Rand) (game.Point, error) {
	cols, rows := int(cfg.Cols()), int(cfg.Rows())
	if cols <= 0 || rows <= 0 {
		return game.Point{}, fmt.Errorf("%w: %dx%d cells", game.ErrInvalidConfig, cols, rows)
	}

	occupied := make(map[game.Point]struct{}, len(s.Body))
	for _, p := range s.Body {
		occupied[p] = struct{}{}
	}

	attempts := cfg.MaxFoodAttempts
	if attempts <= 0 {
		attempts = 4 * cols * rows
	}
	for i := 0; i < attempts; i++ {
		p := game.Point{
			X: int32(rng.Intn(cols)) * cfg.CellSize,
			Y: int32(rng.Intn(rows)) * cfg.CellSize,
		}
		if _, ok := occupied[p]; ok {
			continue
		}
		s.Food = p
		return p, nil
	}

	available := make([]game.Point, 0, cols*rows-len(occupied))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			p := game.Point{X: int32(x) * cfg.CellSize, Y: int32(y) * cfg.CellSize}
			if _, ok := occupied[p]; ok {
				continue
			}
			available = append(available, p)
		}
	}
	if len(available) == 0 {
		return game.Point{}, fmt.Errorf("%w: %d body cells on %d cells", ErrBoardFull, len(s.Body), cols*rows)
	}
	p := available[rng.Intn(len(available))]
	s.Food = p
	return p, nil
}

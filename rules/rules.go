// Package rules implements the single-agent transition function: relative
// turning, movement, collisions, starvation and food consumption.
package rules

import (
	"fmt"
	"math/rand"

	"github.com/Ghersi75/SnakeAI/game"
)

// Reward shaping for Q-learning callers.
const (
	RewardFood  float32 = 10
	RewardDeath float32 = -10
)

// StartLength is the body length of a freshly reset snake.
const StartLength = 3

// StepResult is the outcome of one tick for one snake.
type StepResult struct {
	Reward float32
	Alive  bool
	Score  int32
	Ate    bool
	Turn   game.RelativeTurn
	// Fallback is set when the action was not one-hot and was played as straight.
	Fallback bool
}

// NewSnake returns a snake in its reset state: three cells centred on the
// board heading right, age and score zero, with fresh food.
func NewSnake(cfg game.Config, rng *rand.Rand) (*game.Snake, error) {
	head := cfg.Center()
	s := &game.Snake{
		Body:      make([]game.Point, 0, 16),
		Direction: game.Right,
		Alive:     true,
	}
	for i := int32(0); i < StartLength; i++ {
		s.Body = append(s.Body, game.Point{X: head.X - i*cfg.CellSize, Y: head.Y})
	}
	if _, err := PlaceFood(cfg, s, rng); err != nil {
		return nil, fmt.Errorf("place initial food: %w", err)
	}
	return s, nil
}

// Step advances s by one tick using action.
//
// A dead snake is frozen: Step returns its final score with Alive=false and
// changes nothing. On the tick a snake dies its body keeps the tentative new
// head so the fatal move can be inspected.
//
// The only error is ErrBoardFull from food placement.
func Step(cfg game.Config, s *game.Snake, action game.Action, rng *rand.Rand) (StepResult, error) {
	if !s.Alive {
		return StepResult{Alive: false, Score: s.Score}, nil
	}

	s.Age++

	turn, ok := action.Decode()
	res := StepResult{Turn: turn, Fallback: !ok}

	length := int32(len(s.Body))
	s.Direction = s.Direction.Turn(turn)
	newHead := s.Body[0].Add(s.Direction.Delta(cfg.CellSize))

	// Tentative growth; the tail is popped below unless food was eaten.
	s.Body = append(s.Body, game.Point{})
	copy(s.Body[1:], s.Body[:len(s.Body)-1])
	s.Body[0] = newHead

	cause, hit := CheckHead(cfg, s)
	if !hit && s.Age > cfg.DeathMultiplier*length {
		cause, hit = game.DeathStarved, true
	}
	if hit {
		s.Alive = false
		s.DeathCause = cause
		s.FinalLength = int32(len(s.Body))
		res.Reward = RewardDeath
		res.Score = s.Score
		return res, nil
	}

	if newHead == s.Food {
		s.Score++
		res.Reward = RewardFood
		res.Ate = true
		if _, err := PlaceFood(cfg, s, rng); err != nil {
			return res, err
		}
	} else {
		s.Body = s.Body[:len(s.Body)-1]
	}

	res.Alive = true
	res.Score = s.Score
	return res, nil
}

package rules

import (
	"github.com/Ghersi75/SnakeAI/game"
)

// Hit classifies what a point would collide with.
type Hit uint8

const (
	HitNone Hit = iota
	HitWall
	HitSelf
)

// Probe tests p against the board edge and the snake's body behind its head.
// It never mutates the snake, so the vision encoder can call it for any
// number of hypothetical points per tick.
func Probe(cfg game.Config, s *game.Snake, p game.Point) Hit {
	if !cfg.InBounds(p) {
		return HitWall
	}
	if len(s.Body) > 1 {
		for _, bp := range s.Body[1:] {
			if bp == p {
				return HitSelf
			}
		}
	}
	return HitNone
}

// IsCollision reports whether p is a wall or body cell for s.
func IsCollision(cfg game.Config, s *game.Snake, p game.Point) bool {
	return Probe(cfg, s, p) != HitNone
}

// CheckHead is the authoritative collision test for the current head. It
// returns the death cause it implies; the caller records it.
func CheckHead(cfg game.Config, s *game.Snake) (game.DeathCause, bool) {
	if len(s.Body) == 0 {
		return game.DeathNone, false
	}
	switch Probe(cfg, s, s.Body[0]) {
	case HitWall:
		return game.DeathWall, true
	case HitSelf:
		return game.DeathSelf, true
	}
	return game.DeathNone, false
}

package selfplay

import (
	"github.com/Ghersi75/SnakeAI/game"
	"github.com/Ghersi75/SnakeAI/store"
)

// record appends agent i's current board. Only the goroutine that owns the
// slot for this tick may call it.
func (a *Arena) record(i int, slot *agentSlot, action int32, reward float32) {
	s := slot.snake
	row := store.TurnRow{
		RunID:      a.opts.RunID,
		Episode:    a.episode,
		Agent:      int32(i),
		Tick:       s.Age,
		Width:      a.cfg.Width,
		Height:     a.cfg.Height,
		CellSize:   a.cfg.CellSize,
		BodyX:      make([]int32, len(s.Body)),
		BodyY:      make([]int32, len(s.Body)),
		FoodX:      s.Food.X,
		FoodY:      s.Food.Y,
		Direction:  s.Direction.String(),
		Action:     action,
		Reward:     reward,
		Score:      s.Score,
		Alive:      s.Alive,
		DeathCause: s.DeathCause.String(),
	}
	for j, p := range s.Body {
		row.BodyX[j] = p.X
		row.BodyY[j] = p.Y
	}
	slot.turns = append(slot.turns, row)
}

// ViewFromRow rebuilds an AgentView from an archived turn.
func ViewFromRow(r store.TurnRow) AgentView {
	body := make([]game.Point, len(r.BodyX))
	for j := range body {
		body[j] = game.Point{X: r.BodyX[j], Y: r.BodyY[j]}
	}
	dir, _ := game.ParseDirection(r.Direction)
	cause, _ := game.ParseDeathCause(r.DeathCause)
	return AgentView{
		Index:      int(r.Agent),
		Body:       body,
		Food:       game.Point{X: r.FoodX, Y: r.FoodY},
		Direction:  dir,
		Score:      r.Score,
		Age:        r.Tick,
		Alive:      r.Alive,
		DeathCause: cause,
	}
}

// SnakeFromRow rebuilds the snake state an archived turn describes.
func SnakeFromRow(r store.TurnRow) *game.Snake {
	v := ViewFromRow(r)
	s := &game.Snake{
		Body:       v.Body,
		Direction:  v.Direction,
		Score:      v.Score,
		Food:       v.Food,
		Alive:      v.Alive,
		Age:        v.Age,
		DeathCause: v.DeathCause,
	}
	if !s.Alive {
		s.FinalLength = int32(len(s.Body))
	}
	return s
}

// ConfigFromRow returns the board geometry of an archived turn with default
// rule parameters.
func ConfigFromRow(r store.TurnRow) game.Config {
	cfg := game.DefaultConfig()
	cfg.Width, cfg.Height, cfg.CellSize = r.Width, r.Height, r.CellSize
	return cfg
}

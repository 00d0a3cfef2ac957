// visualize.go - Console rendering for debugging agents.
//
// RenderBoard draws one agent's board as ASCII and RenderObservation lays
// the encoded vision window out as a grid next to its scalar flags.
package selfplay

import (
	"fmt"
	"strings"

	"github.com/Ghersi75/SnakeAI/executor/convert"
	"github.com/Ghersi75/SnakeAI/game"
)

// RenderBoard draws v on cfg's grid. Row 0 is the top of the board.
func RenderBoard(cfg game.Config, v AgentView) string {
	cols, rows := int(cfg.Cols()), int(cfg.Rows())
	grid := make([][]byte, rows)
	for y := range grid {
		grid[y] = make([]byte, cols)
		for x := range grid[y] {
			grid[y][x] = '.'
		}
	}

	put := func(p game.Point, c byte) {
		if !cfg.InBounds(p) {
			return
		}
		grid[p.Y/cfg.CellSize][p.X/cfg.CellSize] = c
	}

	put(v.Food, 'F')
	for i := len(v.Body) - 1; i >= 0; i-- {
		if i == 0 {
			if v.Alive {
				put(v.Body[i], 'O')
			} else {
				put(v.Body[i], 'X')
			}
			continue
		}
		put(v.Body[i], 'o')
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== agent %d age=%d score=%d heading=%s", v.Index, v.Age, v.Score, v.Direction)
	if !v.Alive {
		fmt.Fprintf(&sb, " died=%s", v.DeathCause)
	}
	sb.WriteString(" ===\n")
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			sb.WriteByte(grid[y][x])
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// RenderObservation prints an encoded observation for radius r. The window
// is drawn with X across and Y down to match the board.
func RenderObservation(radius int32, obs []float32) string {
	if len(obs) != convert.ObservationSize(radius) {
		return fmt.Sprintf("observation length %d, want %d\n", len(obs), convert.ObservationSize(radius))
	}
	w := int(2*radius + 1)

	var sb strings.Builder
	sb.WriteString("--- vision ---\n")
	for dy := 0; dy < w; dy++ {
		for dx := 0; dx < w; dx++ {
			// Stored with X as the outer loop.
			v := obs[dx*w+dy]
			switch {
			case dx == w/2 && dy == w/2:
				sb.WriteString(" H")
			case v < 0:
				sb.WriteString(" #")
			case v > 0:
				sb.WriteString(" F")
			default:
				sb.WriteString(" .")
			}
		}
		sb.WriteByte('\n')
	}

	flags := obs[convert.FlagOffset(radius):]
	fmt.Fprintf(&sb, "danger s/r/l/b: %v %v %v %v\n",
		flags[convert.DangerStraight], flags[convert.DangerRight], flags[convert.DangerLeft], flags[convert.DangerBehind])
	fmt.Fprintf(&sb, "heading l/r/u/d: %v %v %v %v\n",
		flags[convert.HeadingLeft], flags[convert.HeadingRight], flags[convert.HeadingUp], flags[convert.HeadingDown])
	fmt.Fprintf(&sb, "food l/r/a/b: %v %v %v %v\n",
		flags[convert.FoodLeft], flags[convert.FoodRight], flags[convert.FoodAbove], flags[convert.FoodBelow])
	return sb.String()
}

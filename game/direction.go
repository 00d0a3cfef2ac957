package game

import "fmt"

// Direction is an absolute heading on the board.
type Direction uint8

const (
	Up Direction = iota
	Down
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// ParseDirection is the inverse of Direction.String.
func ParseDirection(s string) (Direction, bool) {
	for _, d := range Clockwise {
		if d.String() == s {
			return d, true
		}
	}
	return Right, false
}

// Clockwise is the cyclic order used for relative turns.
var Clockwise = [4]Direction{Right, Down, Left, Up}

func clockwiseIndex(d Direction) int {
	for i, c := range Clockwise {
		if c == d {
			return i
		}
	}
	return 0
}

// Turn applies a relative turn to d.
func (d Direction) Turn(t RelativeTurn) Direction {
	idx := clockwiseIndex(d)
	switch t {
	case TurnRight:
		idx = (idx + 1) % 4
	case TurnLeft:
		idx = (idx + 3) % 4
	case TurnBack:
		idx = (idx + 2) % 4
	}
	return Clockwise[idx]
}

// Delta returns the one-cell displacement for d on a lattice of the given
// cell size. Up decreases Y.
func (d Direction) Delta(cellSize int32) Point {
	switch d {
	case Up:
		return Point{Y: -cellSize}
	case Down:
		return Point{Y: cellSize}
	case Left:
		return Point{X: -cellSize}
	case Right:
		return Point{X: cellSize}
	}
	return Point{}
}

// RelativeTurn is a turn relative to the current heading.
type RelativeTurn uint8

const (
	TurnStraight RelativeTurn = iota
	TurnRight
	TurnLeft
	// TurnBack is never produced by an action; the vision encoder uses it
	// to probe the cell behind the head.
	TurnBack
)

func (t RelativeTurn) String() string {
	switch t {
	case TurnStraight:
		return "straight"
	case TurnRight:
		return "right"
	case TurnLeft:
		return "left"
	case TurnBack:
		return "back"
	}
	return fmt.Sprintf("RelativeTurn(%d)", uint8(t))
}

// Action is a one-hot vector over {straight, right, left}.
type Action [3]float32

var (
	ActionStraight = Action{1, 0, 0}
	ActionRight    = Action{0, 1, 0}
	ActionLeft     = Action{0, 0, 1}
)

// ActionFor returns the one-hot action for a relative turn. TurnBack has no
// action and maps to straight.
func ActionFor(t RelativeTurn) Action {
	switch t {
	case TurnRight:
		return ActionRight
	case TurnLeft:
		return ActionLeft
	}
	return ActionStraight
}

// Decode maps the action to a relative turn. Anything that is not exactly
// one-hot decodes to TurnStraight with ok=false, so the step function stays
// total for malformed policy output.
func (a Action) Decode() (t RelativeTurn, ok bool) {
	switch a {
	case ActionStraight:
		return TurnStraight, true
	case ActionRight:
		return TurnRight, true
	case ActionLeft:
		return TurnLeft, true
	}
	return TurnStraight, false
}

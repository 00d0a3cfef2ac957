package selfplay

import (
	"sort"

	"github.com/Ghersi75/SnakeAI/game"
)

// FitnessWeights scores a finished agent for selection.
type FitnessWeights struct {
	// Score is the weight per food eaten.
	Score float64
	// Survival is the weight of Age relative to the starvation bound.
	Survival float64
	// Penalty multiplies the total by death cause. Missing causes are 1.
	Penalty map[game.DeathCause]float64
}

func DefaultFitnessWeights() FitnessWeights {
	return FitnessWeights{
		Score:    100,
		Survival: 50,
		Penalty: map[game.DeathCause]float64{
			game.DeathStarved: 0.9,
			game.DeathWall:    0.9,
			game.DeathSelf:    0.9,
		},
	}
}

// Fitness rates a snake that has finished its episode. Survival is Age
// over FinalLength*DeathMultiplier+1, so a snake that starves while idling
// earns just under the full Survival weight before its penalty.
func Fitness(s *game.Snake, cfg game.Config, w FitnessWeights) float64 {
	length := s.FinalLength
	if length == 0 {
		length = int32(len(s.Body))
	}
	maxAge := float64(length)*float64(cfg.DeathMultiplier) + 1

	f := float64(s.Score)*w.Score + float64(s.Age)/maxAge*w.Survival
	if p, ok := w.Penalty[s.DeathCause]; ok {
		f *= p
	}
	return f
}

// GenerationStats summarises one generation's fitness values.
type GenerationStats struct {
	Best   float64
	Mean   float64
	Median float64
	Worst  float64
	// Order holds agent indices from best to worst.
	Order []int
}

// Rank returns agent indices sorted by descending fitness. Ties keep the
// lower index first.
func Rank(fitness []float64) []int {
	order := make([]int, len(fitness))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fitness[order[a]] > fitness[order[b]]
	})
	return order
}

// Summarize computes generation statistics. The median is the element at
// len/2 of the descending order.
func Summarize(fitness []float64) GenerationStats {
	if len(fitness) == 0 {
		return GenerationStats{}
	}
	order := Rank(fitness)
	var sum float64
	for _, f := range fitness {
		sum += f
	}
	return GenerationStats{
		Best:   fitness[order[0]],
		Mean:   sum / float64(len(fitness)),
		Median: fitness[order[len(order)/2]],
		Worst:  fitness[order[len(order)-1]],
		Order:  order,
	}
}

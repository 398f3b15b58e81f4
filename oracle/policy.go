package oracle

import (
	"errors"
	"sort"

	"github.com/samber/lo"
	"lukechampine.com/frand"
)

var ErrEmptyPolicy = errors.New("policy has no moves with positive weight")

type MoveProbability struct {
	Move        string  `yaml:"move"`
	Probability float64 `yaml:"probability"`
}

// Policy holds a weight for every legal move of a position, highest first.
// Weights are relative; they need not add up to one.
type Policy []MoveProbability

func newPolicy(weights map[string]float64) Policy {
	p := make(Policy, 0, len(weights))
	for mv, w := range weights {
		p = append(p, MoveProbability{Move: mv, Probability: w})
	}
	sort.Slice(p, func(i, j int) bool {
		if p[i].Probability != p[j].Probability {
			return p[i].Probability > p[j].Probability
		}
		return p[i].Move < p[j].Move
	})
	return p
}

func (p Policy) Total() float64 {
	return lo.SumBy(p, func(mp MoveProbability) float64 { return mp.Probability })
}

// Probability returns the weight of mv, zero if absent.
func (p Policy) Probability(mv string) float64 {
	mp, _ := lo.Find(p, func(mp MoveProbability) bool { return mp.Move == mv })
	return mp.Probability
}

// Pick walks the moves subtracting weights from threshold and returns the
// first move that brings it to zero or below. threshold should lie in
// [0, Total()).
func (p Policy) Pick(threshold float64) (string, error) {
	if len(p) == 0 || p.Total() <= 0 {
		return "", ErrEmptyPolicy
	}
	for _, mp := range p {
		if mp.Probability <= 0 {
			continue
		}
		threshold -= mp.Probability
		if threshold <= 0 {
			return mp.Move, nil
		}
	}
	// rounding left a sliver of threshold; take the last weighted move.
	for i := len(p) - 1; i >= 0; i-- {
		if p[i].Probability > 0 {
			return p[i].Move, nil
		}
	}
	return "", ErrEmptyPolicy
}

// Sample draws a move with probability proportional to its weight.
func (p Policy) Sample() (string, error) {
	return p.Pick(frand.Float64() * p.Total())
}

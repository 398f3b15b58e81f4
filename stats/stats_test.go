package stats

import (
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"
)

func TestRunningStat(t *testing.T) {
	is := is.New(t)
	type tc struct {
		scores []int
		mean   float64
		stdev  float64
	}
	cases := []tc{
		{[]int{10, 12, 23, 23, 16, 23, 21, 16}, 18, 5.2372293656638},
		{[]int{14, 35, 71, 124, 10, 24, 55, 33, 87, 19}, 47.2, 36.937785531891},
		{[]int{1}, 1, 0},
		{[]int{}, 0, 0},
		{[]int{1, 1}, 1, 0},
	}
	for _, c := range cases {
		s := &Statistic{}
		for _, score := range c.scores {
			s.Push(float64(score))
		}
		is.True(FuzzyEqual(s.Mean(), c.mean))
		is.True(FuzzyEqual(s.Stdev(), c.stdev))
		is.Equal(s.Iterations(), len(c.scores))
	}
}

func TestOutcomes(t *testing.T) {
	is := is.New(t)
	var o Outcomes
	for _, r := range []int{1, 1, 0, -1, 1, 0} {
		o.Add(r)
	}
	is.Equal(o.Wins, 3)
	is.Equal(o.Draws, 2)
	is.Equal(o.Losses, 1)
	is.Equal(o.Games(), 6)
	assert.InDelta(t, 2.0/6.0, o.Score().Mean(), 1e-12)
	is.Equal(o.Score().Last(), 0.0)
}

func TestZVal(t *testing.T) {
	assert.InDelta(t, 1.959964, ZVal(95), 1e-5)
	assert.InDelta(t, 2.575829, ZVal(99), 1e-5)
}

func TestConfidenceInterval(t *testing.T) {
	is := is.New(t)
	s := &Statistic{}
	for _, v := range []float64{1, -1, 1, 1, 0, 1, -1, 1} {
		s.Push(v)
	}
	ci := ConfidenceInterval(s, 95)
	is.True(ci.Contains(s.Mean()))
	assert.InDelta(t, s.Mean()-ci.Low, ci.High-s.Mean(), 1e-12)
	assert.InDelta(t, 1.959964*s.StandardError(), ci.High-s.Mean(), 1e-5)

	// no spread, no width
	empty := ConfidenceInterval(&Statistic{}, 95)
	is.Equal(empty, Interval{})
}

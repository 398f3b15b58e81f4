package stats

import "math"

const (
	Epsilon = 1e-6
)

func FuzzyEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// Statistic keeps a running mean and variance of game scores using
// Welford's algorithm, so no individual sample has to be stored.
type Statistic struct {
	n    int
	last float64

	mean float64
	m2   float64
}

func (s *Statistic) Push(val float64) {
	s.last = val
	s.n++
	delta := val - s.mean
	s.mean += delta / float64(s.n)
	s.m2 += delta * (val - s.mean)
}

func (s *Statistic) Mean() float64 {
	return s.mean
}

func (s *Statistic) Variance() float64 {
	if s.n <= 1 {
		return 0.0
	}
	return s.m2 / float64(s.n-1)
}

func (s *Statistic) Stdev() float64 {
	return math.Sqrt(s.Variance())
}

func (s *Statistic) Last() float64 {
	return s.last
}

// StandardError returns the standard error of the mean.
func (s *Statistic) StandardError() float64 {
	if s.n == 0 {
		return 0.0
	}
	return math.Sqrt(s.Variance() / float64(s.n))
}

func (s *Statistic) Iterations() int {
	return s.n
}

// Outcomes tallies game results from one side's point of view.
type Outcomes struct {
	Wins   int `yaml:"wins"`
	Draws  int `yaml:"draws"`
	Losses int `yaml:"losses"`

	score Statistic
}

// Add records a result of +1, 0 or -1.
func (o *Outcomes) Add(result int) {
	switch {
	case result > 0:
		o.Wins++
	case result < 0:
		o.Losses++
	default:
		o.Draws++
	}
	o.score.Push(float64(result))
}

func (o *Outcomes) Games() int {
	return o.Wins + o.Draws + o.Losses
}

// Score is the running statistic of the recorded results.
func (o *Outcomes) Score() *Statistic {
	return &o.score
}

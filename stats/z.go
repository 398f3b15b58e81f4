package stats

import "gonum.org/v1/gonum/stat/distuv"

// ZVal returns the two-tailed Z-value associated with a specific confidence interval.
// The interval is a number from 0 to 100 percent.
func ZVal(confidenceInterval float64) float64 {
	dist := distuv.Normal{
		Mu:    0,
		Sigma: 1,
	}
	area := (1 + (confidenceInterval / 100)) / 2
	return dist.Quantile(area)
}

type Interval struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// ConfidenceInterval returns the normal-approximation interval around the
// mean of s. confidence is a percentage, e.g. 95.
func ConfidenceInterval(s *Statistic, confidence float64) Interval {
	half := ZVal(confidence) * s.StandardError()
	return Interval{Low: s.Mean() - half, High: s.Mean() + half}
}

func (i Interval) Contains(x float64) bool {
	return x >= i.Low && x <= i.High
}

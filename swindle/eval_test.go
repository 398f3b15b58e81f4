package swindle

import (
	"testing"

	"github.com/matryer/is"
)

func TestIsBetter(t *testing.T) {
	is := is.New(t)
	for _, tc := range []struct {
		worse, better Eval
		want          bool
	}{
		{Eval{WDL: 0}, Eval{WDL: 0.5}, true},
		{Eval{WDL: 0.5}, Eval{WDL: 0}, false},
		// winning: mate sooner
		{Eval{WDL: 1, DTM: 12}, Eval{WDL: 1, DTM: 5}, true},
		{Eval{WDL: 1, DTM: 5}, Eval{WDL: 1, DTM: 12}, false},
		// losing: hold out longer
		{Eval{WDL: -1, DTM: -5}, Eval{WDL: -1, DTM: -2}, true},
		{Eval{WDL: -1, DTM: 3}, Eval{WDL: -1, DTM: 9}, true},
		{Eval{WDL: -1, DTM: 0}, Eval{WDL: -1, DTM: -20}, false},
		// drawing counts as not losing
		{Eval{WDL: 0, DTM: 4}, Eval{WDL: 0, DTM: 1}, true},
		{Eval{WDL: 0.3}, Eval{WDL: 0.3}, false},
	} {
		is.Equal(IsBetter(tc.worse, tc.better), tc.want)
	}
}

func TestIsBetterIsTransitive(t *testing.T) {
	var evals []Eval
	for _, wdl := range []float64{-1, -0.5, 0, 0.25, 1} {
		for _, dtm := range []float64{-12, -3, 0, 3, 12} {
			evals = append(evals, Eval{WDL: wdl, DTM: dtm})
		}
	}
	for _, a := range evals {
		if IsBetter(a, a) {
			t.Fatalf("%v better than itself", a)
		}
		for _, b := range evals {
			if IsBetter(a, b) && IsBetter(b, a) {
				t.Fatalf("%v and %v both better than each other", a, b)
			}
			for _, c := range evals {
				if IsBetter(a, b) && IsBetter(b, c) && !IsBetter(a, c) {
					t.Fatalf("%v < %v < %v but not %v < %v", a, b, c, a, c)
				}
			}
		}
	}
}

func TestNegateAvoidsNegativeZero(t *testing.T) {
	is := is.New(t)
	e := Eval{WDL: 0, DTM: 4}.negate()
	is.Equal(e.String(), "wdl 0.0000 dtm -4.00")
}

func TestEvalKey(t *testing.T) {
	is := is.New(t)
	is.Equal(evalKey{kind: KindMaia, budget: 2, hash: 0xbeef}.String(), "maia/2/beef")
	is.Equal(KindLeafTheirs.String(), "leaf-theirs")
	is.Equal(Kind(9).String(), "kind(9)")
}

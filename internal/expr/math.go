package expr

import "math"

const mathNamespace = "Math"

type mathFunc struct {
	arity int // -1: one or more arguments
	fn    func([]float64) float64
}

func unaryFn(f func(float64) float64) mathFunc {
	return mathFunc{arity: 1, fn: func(a []float64) float64 { return f(a[0]) }}
}

var mathFuncs = map[string]mathFunc{
	"abs":   unaryFn(math.Abs),
	"ceil":  unaryFn(math.Ceil),
	"exp":   unaryFn(math.Exp),
	"floor": unaryFn(math.Floor),
	"log":   unaryFn(math.Log),
	"log10": unaryFn(math.Log10),
	"log2":  unaryFn(math.Log2),
	"round": unaryFn(func(x float64) float64 { return math.Floor(x + 0.5) }),
	"sign": unaryFn(func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return x
	}),
	"sqrt":  unaryFn(math.Sqrt),
	"trunc": unaryFn(math.Trunc),
	"pow":   {arity: 2, fn: func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
	"max": {arity: -1, fn: func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m
	}},
	"min": {arity: -1, fn: func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m
	}},
}

var mathConsts = map[string]float64{
	"E":    math.E,
	"LN2":  math.Ln2,
	"LN10": math.Ln10,
	"PI":   math.Pi,
}

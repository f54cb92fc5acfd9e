package decay

import "fmt"

// Granularity is the unit age is expressed in.
type Granularity string

const (
	Days   Granularity = "days"
	Weeks  Granularity = "weeks"
	Months Granularity = "months"
	Years  Granularity = "years"
)

var unitsPerYear = map[Granularity]float64{
	Days:   365,
	Weeks:  52,
	Months: 12,
	Years:  1,
}

// ParseGranularity validates s. The empty string means years.
func ParseGranularity(s string) (Granularity, error) {
	if s == "" {
		return Years, nil
	}
	g := Granularity(s)
	if _, ok := unitsPerYear[g]; !ok {
		return "", fmt.Errorf("decay: unknown granularity %q: want days|weeks|months|years", s)
	}
	return g, nil
}

// PerYear returns how many of g fit in one year.
func (g Granularity) PerYear() float64 {
	if n, ok := unitsPerYear[g]; ok {
		return n
	}
	return 1
}

// FromYears converts an age in years to g.
func (g Granularity) FromYears(years float64) float64 {
	return years * g.PerYear()
}

package types

import "time"

// Event is one observed maintenance or sensor event.
type Event struct {
	Name string             `json:"name" yaml:"name"`
	Data map[string]float64 `json:"data" yaml:"data"`
}

// Asset carries everything needed to score one asset. Age, when set, is in
// years; otherwise it is derived from InstalledAt and CurrentAt (or the
// scoring time when CurrentAt is nil).
type Asset struct {
	ID          string     `json:"id,omitempty" yaml:"id,omitempty"`
	Age         *float64   `json:"age,omitempty" yaml:"age,omitempty"`
	InstalledAt *time.Time `json:"installed_at,omitempty" yaml:"installed_at,omitempty"`
	CurrentAt   *time.Time `json:"current_at,omitempty" yaml:"current_at,omitempty"`
	Events      []Event    `json:"events" yaml:"events"`
}

package domain

import "time"

// AgentColors is the display palette, assigned by roster index
var AgentColors = []string{
	"#3dd8e0",
	"#e04040",
	"#40e070",
	"#e0c040",
	"#e07040",
	"#a060e0",
	"#e06090",
	"#60a0e0",
	"#80e0a0",
	"#e0e060",
}

// Agent is one participant of a match
type Agent struct {
	Name      string     `json:"name"`
	Alive     bool       `json:"alive"`
	Color     string     `json:"color"`
	Ejected   bool       `json:"ejected,omitempty"`
	KilledAt  *time.Time `json:"killedAt,omitempty"`
	EjectedAt *time.Time `json:"ejectedAt,omitempty"`
}

// NewAgent creates a living agent at the given roster position
func NewAgent(name string, index int) Agent {
	return Agent{
		Name:  name,
		Alive: true,
		Color: AgentColors[index%len(AgentColors)],
	}
}

// Kill returns a copy of the agent marked dead
func (a Agent) Kill(at time.Time) Agent {
	a.Alive = false
	a.KilledAt = &at
	return a
}

// Eject returns a copy of the agent marked dead and ejected
func (a Agent) Eject(at time.Time) Agent {
	a.Alive = false
	a.Ejected = true
	a.EjectedAt = &at
	return a
}

// Package demo is the reference event producer: one complete, consistent
// match script played back on a human-paced timeline.
package demo

import (
	"errors"
	"math/rand/v2"
	"slices"
	"time"

	"susmarket/internal/domain"
)

// DefaultRoster is the stock demo crew
var DefaultRoster = []string{
	"Atlas",
	"Nova",
	"Cipher",
	"Echo",
	"Pulse",
	"Drift",
	"Flare",
	"Onyx",
}

// DefaultImposter is the imposter of the stock demo
const DefaultImposter = "Cipher"

// Delays between consecutive steps of the script
const (
	startDelay        = 500 * time.Millisecond
	firstKillDelay    = 3000 * time.Millisecond
	meetingDelay      = 4000 * time.Millisecond
	firstVoteDelay    = 800 * time.Millisecond
	ejectionDelay     = 2000 * time.Millisecond
	secondKillDelay   = 3500 * time.Millisecond
	finalVoteDelay    = 700 * time.Millisecond
	gameEndDelay      = 2000 * time.Millisecond
	minNonImposterLen = 3
)

var (
	ErrImposterNotInRoster = errors.New("imposter is not on the roster")
	ErrRosterTooSmall      = errors.New("roster needs at least three crew besides the imposter")
	ErrDuplicateAgent      = errors.New("roster contains duplicate names")
)

// Step is one event and the delay after the previous step
type Step struct {
	Delay time.Duration
	Event domain.GameEvent
}

// BuildScript plays out a crew victory: a kill, a meeting with free votes and
// a wrong ejection, a second kill, then a unanimous vote that ejects the imposter.
func BuildScript(roster []string, imposter string, rng *rand.Rand) ([]Step, error) {
	if !slices.Contains(roster, imposter) {
		return nil, ErrImposterNotInRoster
	}
	if len(roster)-1 < minNonImposterLen {
		return nil, ErrRosterTooSmall
	}
	seen := make(map[string]bool, len(roster))
	for _, name := range roster {
		if seen[name] {
			return nil, ErrDuplicateAgent
		}
		seen[name] = true
	}

	alive := slices.Clone(roster)
	var steps []Step
	add := func(d time.Duration, e domain.GameEvent) {
		steps = append(steps, Step{Delay: d, Event: e})
	}
	eliminate := func(name string) {
		alive = slices.DeleteFunc(alive, func(a string) bool { return a == name })
	}

	add(startDelay, domain.GameStart{Agents: slices.Clone(roster), Imposter: imposter})

	victim := pick(rng, alive, imposter)
	add(firstKillDelay, domain.Kill{Killer: imposter, Victim: victim})
	eliminate(victim)

	add(meetingDelay, domain.MeetingStart{})
	voters := slices.Clone(alive)
	for _, agent := range voters {
		add(firstVoteDelay, domain.Vote{Agent: agent, Target: pick(rng, voters, agent)})
	}

	ejected := pick(rng, alive, imposter)
	add(ejectionDelay, domain.Ejection{Ejected: ejected})
	eliminate(ejected)

	victim = pick(rng, alive, imposter)
	add(secondKillDelay, domain.Kill{Killer: imposter, Victim: victim})
	eliminate(victim)

	add(meetingDelay, domain.MeetingStart{})
	for _, agent := range slices.Clone(alive) {
		add(finalVoteDelay, domain.Vote{Agent: agent, Target: imposter})
	}

	add(ejectionDelay, domain.Ejection{Ejected: imposter})
	eliminate(imposter)

	add(gameEndDelay, domain.GameEnd{Winner: domain.WinnerCrew, Imposter: imposter})
	return steps, nil
}

// pick draws uniformly from names other than exclude
func pick(rng *rand.Rand, names []string, exclude string) string {
	valid := make([]string, 0, len(names))
	for _, n := range names {
		if n != exclude {
			valid = append(valid, n)
		}
	}
	return valid[rng.IntN(len(valid))]
}

// Duration is the total playback time of a script
func Duration(steps []Step) time.Duration {
	var total time.Duration
	for _, s := range steps {
		total += s.Delay
	}
	return total
}

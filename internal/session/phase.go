package session

import "time"

// Phase はセッション全体の進行段階
type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhasePerforming Phase = "performing"
	PhaseVoting     Phase = "voting"
	PhaseResults    Phase = "results"
)

// votingThreshold is the share of the total duration after which voting opens.
const votingThreshold = 0.8

func (p Phase) order() int {
	switch p {
	case PhasePerforming:
		return 1
	case PhaseVoting:
		return 2
	case PhaseResults:
		return 3
	default:
		return 0
	}
}

// After reports whether p comes strictly later than other.
func (p Phase) After(other Phase) bool {
	return p.order() > other.order()
}

// Tick maps the elapsed share of the session to a phase. It has no side
// effects and is evaluated once per second by the session loop.
func Tick(elapsed, total time.Duration) Phase {
	if elapsed < 0 {
		elapsed = 0
	}
	if total <= 0 || elapsed >= total {
		return PhaseResults
	}
	if float64(elapsed) > float64(total)*votingThreshold {
		return PhaseVoting
	}
	return PhasePerforming
}

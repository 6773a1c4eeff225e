package view

import (
	"fmt"
	"strings"
)

// Mode is what the engine is currently observing.
type Mode int

const (
	// Idle: no store subscription is open.
	Idle Mode = iota
	// ObservingAll: subscribed to the unfiltered list.
	ObservingAll
	// ObservingFiltered: subscribed to the list filtered by State.Term.
	ObservingFiltered
)

// State is a point in the engine's subscription state machine. Term is only set when Mode is
// ObservingFiltered.
//
//	Idle --attach--> ObservingAll | ObservingFiltered(term)
//	Observing* --SetQuery(term')--> ObservingAll | ObservingFiltered(term')
//	Observing* --grace period with no consumers / Close--> Idle
type State struct {
	Mode Mode
	Term string
}

func (s State) String() string {
	switch s.Mode {
	case ObservingAll:
		return "observing all"
	case ObservingFiltered:
		return fmt.Sprintf("observing filtered(%q)", s.Term)
	default:
		return "idle"
	}
}

// target is the observing state a search term selects. Blank terms mean no filter; other
// terms are matched without their surrounding whitespace.
func target(term string) State {
	term = strings.TrimSpace(term)
	if term == "" {
		return State{Mode: ObservingAll}
	}
	return State{Mode: ObservingFiltered, Term: term}
}

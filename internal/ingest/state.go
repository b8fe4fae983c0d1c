// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import "fmt"

// State is a step of one ingestion.
type State string

const (
	StateReceived        State = "received"
	StateSkipped         State = "skipped"
	StatePackaging       State = "packaging"
	StatePackaged        State = "packaged"
	StatePackagingFailed State = "packaging_failed"
	StateFinalized       State = "finalized"
)

// transitions lists the legal successors of every state. Finalized has none.
var transitions = map[State][]State{
	StateReceived:        {StateSkipped, StatePackaging},
	StatePackaging:       {StatePackaged, StatePackagingFailed},
	StateSkipped:         {StateFinalized},
	StatePackaged:        {StateFinalized},
	StatePackagingFailed: {StateFinalized},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends an ingestion.
func (s State) IsTerminal() bool { return s == StateFinalized }

// machine records the path of one ingestion.
type machine struct {
	current State
	visited []State
}

func newMachine() *machine {
	return &machine{current: StateReceived, visited: []State{StateReceived}}
}

// to advances the machine. An illegal step is a programming error.
func (m *machine) to(next State) {
	if !CanTransition(m.current, next) {
		panic(fmt.Sprintf("ingest: illegal transition %s -> %s", m.current, next))
	}
	m.current = next
	m.visited = append(m.visited, next)
}

func (m *machine) path() []State {
	return append([]State(nil), m.visited...)
}

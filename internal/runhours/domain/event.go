package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// State is the reported run state of an asset.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// ParseState normalizes a raw payload such as " on\n".
func ParseState(raw string) (State, error) {
	switch State(strings.ToUpper(strings.TrimSpace(raw))) {
	case StateOn:
		return StateOn, nil
	case StateOff:
		return StateOff, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidState, raw)
	}
}

// StateEvent is one state change recorded at a UTC instant.
type StateEvent struct {
	At    time.Time
	State State
}

// SortEvents orders events by timestamp, keeping the source order for ties.
func SortEvents(events []StateEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].At.Before(events[j].At)
	})
}

package device

import (
	"fmt"
	"strconv"
)

// State is a step of the load sequence.
type State uint8

const (
	StateIdle State = iota
	StateHeaderValidated
	StateImageLoaded
	StateTablesPopulated
	StateAperturesBuilt
	StateCommitted
	StateRejected
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateHeaderValidated: "header_validated",
	StateImageLoaded:     "image_loaded",
	StateTablesPopulated: "tables_populated",
	StateAperturesBuilt:  "apertures_built",
	StateCommitted:       "committed",
	StateRejected:        "rejected",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// MarshalText lets states appear by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("device: unknown state %q", text)
}

package tools

import (
	"encoding/json"
	"errors"
	"fmt"
)

type State string

const (
	StateRequested       State = "requested"
	StateInputStreaming  State = "input-streaming"
	StateInputAvailable  State = "input-available"
	StateOutputAvailable State = "output-available"
	StateOutputError     State = "output-error"
)

var ErrInvalidTransition = errors.New("invalid tool invocation transition")

// transitions lists the forward moves of an invocation. input-streaming may
// repeat while deltas arrive; providers that do not stream tool input go
// straight from requested to input-available. Malformed input fails before
// input-available is reached.
var transitions = map[State][]State{
	StateRequested:      {StateInputStreaming, StateInputAvailable, StateOutputError},
	StateInputStreaming: {StateInputStreaming, StateInputAvailable, StateOutputError},
	StateInputAvailable: {StateOutputAvailable, StateOutputError},
}

// Invocation tracks one tool call from the model through to its result.
type Invocation struct {
	ID        string
	Name      string
	State     State
	Input     json.RawMessage
	Output    json.RawMessage
	ErrorText string

	// set by Dispatcher.Accept
	def  *Definition
	args map[string]any
}

func NewInvocation(id, name string) *Invocation {
	return &Invocation{ID: id, Name: name, State: StateRequested}
}

func (inv *Invocation) Advance(to State) error {
	for _, s := range transitions[inv.State] {
		if s == to {
			inv.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, inv.State, to, inv.ID)
}

func (inv *Invocation) Terminal() bool {
	return inv.State == StateOutputAvailable || inv.State == StateOutputError
}

// ModelResult is the text fed back to the model for this invocation.
func (inv *Invocation) ModelResult() (string, bool) {
	if inv.State == StateOutputError {
		return inv.ErrorText, true
	}
	return string(inv.Output), false
}

package tools

import (
	"errors"
	"testing"
)

func TestInvocation_Advance(t *testing.T) {
	tests := []struct {
		name    string
		path    []State
		wantErr bool
	}{
		{"streamed success", []State{StateInputStreaming, StateInputStreaming, StateInputAvailable, StateOutputAvailable}, false},
		{"unstreamed success", []State{StateInputAvailable, StateOutputAvailable}, false},
		{"validation failure", []State{StateInputAvailable, StateOutputError}, false},
		{"malformed input", []State{StateInputStreaming, StateOutputError}, false},
		{"skip input", []State{StateOutputAvailable}, true},
		{"backwards", []State{StateInputAvailable, StateInputStreaming}, true},
		{"after terminal", []State{StateInputAvailable, StateOutputAvailable, StateOutputError}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := NewInvocation("call_1", "launchApp")
			var err error
			for _, s := range tt.path {
				if err = inv.Advance(s); err != nil {
					break
				}
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !inv.Terminal() && tt.path[len(tt.path)-1] != StateInputAvailable {
				t.Errorf("expected terminal state, got %s", inv.State)
			}
		})
	}
}

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/af-corp/chat-gateway/internal/telemetry"
)

var ErrUnknownTool = errors.New("unknown tool")

// Dispatcher resolves validated tool calls against a Registry. Tool
// failures never escape as errors: they end the invocation in
// output-error so the model can see them and retry.
type Dispatcher struct {
	registry *Registry
	metrics  *telemetry.Metrics
}

func NewDispatcher(registry *Registry, metrics *telemetry.Metrics) *Dispatcher {
	return &Dispatcher{registry: registry, metrics: metrics}
}

func (d *Dispatcher) Registry() *Registry { return d.registry }

// Accept resolves inv's tool and decodes its input, moving it to
// input-available. When the tool is unknown or the input is not a JSON
// object, inv ends in output-error instead and Accept reports false.
func (d *Dispatcher) Accept(inv *Invocation) (bool, error) {
	if inv.Terminal() {
		return false, nil
	}
	if inv.State == StateInputAvailable && inv.def != nil {
		return true, nil
	}

	def, ok := d.registry.Lookup(inv.Name)
	if !ok {
		return false, d.fail(inv, fmt.Errorf("%w: %s", ErrUnknownTool, inv.Name))
	}
	input, err := decodeInput(inv.Input)
	if err != nil {
		return false, d.fail(inv, fmt.Errorf("decode input for %s: %w", inv.Name, err))
	}
	if inv.State != StateInputAvailable {
		if err := inv.Advance(StateInputAvailable); err != nil {
			return false, err
		}
	}
	inv.def, inv.args = def, input
	return true, nil
}

// Dispatch moves inv from its current input state to a terminal state,
// accepting it first if needed. The returned error is only non-nil for
// invalid state transitions.
func (d *Dispatcher) Dispatch(ctx context.Context, inv *Invocation) error {
	if ok, err := d.Accept(inv); !ok {
		return err
	}
	def, input := inv.def, inv.args

	if err := def.Validate(input); err != nil {
		slog.Debug("tool input rejected", "tool", inv.Name, "tool_call_id", inv.ID, "error", err)
		return d.fail(inv, err)
	}

	if def.Executor == nil {
		return d.succeed(inv, map[string]any{
			"status": "delegated_to_client",
			"tool":   inv.Name,
		})
	}

	out, err := def.Executor(ctx, input)
	if err != nil {
		slog.Warn("tool execution failed", "tool", inv.Name, "tool_call_id", inv.ID, "error", err)
		return d.fail(inv, fmt.Errorf("%s failed: %w", inv.Name, err))
	}
	return d.succeed(inv, out)
}

func (d *Dispatcher) succeed(inv *Invocation, out any) error {
	data, err := json.Marshal(out)
	if err != nil {
		return d.fail(inv, fmt.Errorf("encode %s output: %w", inv.Name, err))
	}
	if err := inv.Advance(StateOutputAvailable); err != nil {
		return err
	}
	inv.Output = data
	d.record(inv)
	return nil
}

func (d *Dispatcher) fail(inv *Invocation, cause error) error {
	if err := inv.Advance(StateOutputError); err != nil {
		return err
	}
	d.record(inv)
	var verr *ValidationError
	if errors.As(cause, &verr) {
		data, _ := json.Marshal(struct {
			Error string `json:"error"`
			*ValidationError
		}{Error: "invalid_input", ValidationError: verr})
		inv.ErrorText = string(data)
		return nil
	}
	inv.ErrorText = cause.Error()
	return nil
}

func (d *Dispatcher) record(inv *Invocation) {
	if d.metrics != nil {
		d.metrics.RecordToolInvocation(inv.Name, string(inv.State))
	}
}

func decodeInput(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/af-corp/chat-gateway/internal/router"
	"github.com/af-corp/chat-gateway/internal/tools"
	"github.com/af-corp/chat-gateway/internal/types"
)

var errFirstChunkTimeout = errors.New("provider sent nothing before the first-chunk deadline")

type loopState int

const (
	stateStep loopState = iota
	stateDispatch
	stateFinish
	stateFailed
)

// Loop drives one chat request: it streams a model step, dispatches the
// tool calls from that step, feeds the results back and repeats until the
// model stops calling tools or the step bound is reached.
type Loop struct {
	Handle     router.Handle
	Dispatcher *tools.Dispatcher
	Health     *router.HealthTracker

	System      []types.SystemBlock
	MaxSteps    int
	MaxTokens   int
	Temperature float64
	// FirstChunkTimeout bounds the wait for the first provider event of
	// each step. Zero disables it.
	FirstChunkTimeout time.Duration

	RequestID string
}

// Result summarizes a finished loop. Err is set when the stream could
// not be completed; whether it was reported as JSON or as an error event
// depends on whether the stream had been committed.
type Result struct {
	Steps        int
	FinishReason string
	Usage        types.Usage
	Err          error
}

type stepOutcome struct {
	resp        *types.CompletionResponse
	invocations map[string]*tools.Invocation
}

// Run executes the loop, writing events to out. parent is the client
// request context; ctx carries the whole-request deadline.
func (l *Loop) Run(parent, ctx context.Context, turns []types.Turn, out *sseWriter, messageID string) Result {
	var (
		res   Result
		step  int
		last  stepOutcome
		state = stateStep
	)
	out.Queue(types.StreamEvent{Type: types.StreamStart, MessageID: messageID})

	for {
		switch state {
		case stateStep:
			step++
			res.Steps = step
			out.Queue(types.StreamEvent{Type: types.StreamStartStep, Step: step})

			outcome, err := l.step(ctx, turns, out)
			if err != nil {
				res.Err = err
				state = stateFailed
				continue
			}
			last = outcome
			res.Usage.InputTokens += outcome.resp.Usage.InputTokens
			res.Usage.OutputTokens += outcome.resp.Usage.OutputTokens

			if len(outcome.resp.ToolCalls) == 0 {
				res.FinishReason = types.FinishReasonStop
				if outcome.resp.FinishReason == types.FinishLength {
					res.FinishReason = types.FinishReasonLength
				}
				out.Send(types.StreamEvent{Type: types.StreamFinishStep, Step: step, FinishReason: res.FinishReason})
				state = stateFinish
				continue
			}
			state = stateDispatch

		case stateDispatch:
			results, err := l.dispatch(ctx, last, out)
			if err != nil {
				res.Err = err
				state = stateFailed
				continue
			}
			out.Send(types.StreamEvent{Type: types.StreamFinishStep, Step: step, FinishReason: types.FinishToolCalls})

			turns = append(turns,
				types.Turn{Role: types.RoleAssistant, Text: last.resp.Text, ToolCalls: last.resp.ToolCalls},
				types.Turn{Role: types.RoleUser, ToolResults: results},
			)
			if step >= l.MaxSteps {
				res.FinishReason = types.FinishReasonStepLimit
				state = stateFinish
				continue
			}
			state = stateStep

		case stateFinish:
			out.Send(types.StreamEvent{
				Type:         types.StreamFinish,
				FinishReason: res.FinishReason,
				Usage:        &types.Usage{InputTokens: res.Usage.InputTokens, OutputTokens: res.Usage.OutputTokens},
			})
			out.Done()
			return res

		case stateFailed:
			switch {
			case parent.Err() != nil:
				// Client went away; nobody is listening.
				res.FinishReason = "canceled"
				return res
			case errors.Is(ctx.Err(), context.DeadlineExceeded):
				slog.Warn("chat request timed out", "request_id", l.RequestID, "steps", step)
				res.FinishReason = types.FinishReasonTimeout
				res.Err = nil
				state = stateFinish
				continue
			case out.Committed():
				slog.Error("stream failed after commit", "request_id", l.RequestID, "error", res.Err)
				out.Send(types.StreamEvent{Type: types.StreamError, ErrorText: "the model stream was interrupted"})
				res.FinishReason = "error"
				return res
			default:
				res.FinishReason = "error"
				return res
			}
		}
	}
}

// step streams one provider call, forwarding text and tool-input events.
func (l *Loop) step(ctx context.Context, turns []types.Turn, out *sseWriter) (stepOutcome, error) {
	stepCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var timer *time.Timer
	if l.FirstChunkTimeout > 0 {
		timer = time.AfterFunc(l.FirstChunkTimeout, func() { cancel(errFirstChunkTimeout) })
		defer timer.Stop()
	}

	var text chunker
	invs := map[string]*tools.Invocation{}

	emit := func(ev types.CompletionEvent) error {
		if timer != nil {
			timer.Stop()
		}
		switch ev.Type {
		case types.EventTextDelta:
			for _, piece := range text.Push(ev.Text) {
				if err := out.Send(types.StreamEvent{Type: types.StreamTextDelta, Delta: piece}); err != nil {
					return err
				}
			}
		case types.EventToolCallStart:
			if err := flushText(&text, out); err != nil {
				return err
			}
			inv := tools.NewInvocation(ev.ToolCallID, ev.ToolName)
			invs[ev.ToolCallID] = inv
			return out.Send(types.StreamEvent{
				Type:       types.StreamToolInputStart,
				ToolCallID: inv.ID,
				ToolName:   inv.Name,
				State:      string(inv.State),
			})
		case types.EventToolCallDelta:
			inv, ok := invs[ev.ToolCallID]
			if !ok {
				return nil
			}
			if err := inv.Advance(tools.StateInputStreaming); err != nil {
				return err
			}
			return out.Send(types.StreamEvent{
				Type:           types.StreamToolInputDelta,
				ToolCallID:     inv.ID,
				State:          string(inv.State),
				InputTextDelta: ev.InputDelta,
			})
		}
		return nil
	}

	req := &types.CompletionRequest{
		Model:                    l.Handle.Model,
		System:                   l.System,
		Messages:                 turns,
		Tools:                    l.Dispatcher.Registry().Tools(),
		MaxTokens:                l.MaxTokens,
		FineGrainedToolStreaming: l.Handle.Capabilities.FineGrainedToolStreaming,
		PromptCaching:            l.Handle.Capabilities.PromptCaching,
	}
	if !l.Handle.Capabilities.FixedTemperature {
		temperature := l.Temperature
		req.Temperature = &temperature
	}

	if !l.Health.IsAvailable(l.Handle.Provider) {
		slog.Warn("provider circuit open, attempting anyway",
			"request_id", l.RequestID,
			"provider", l.Handle.Provider,
			"model", l.Handle.Model)
	}

	resp, err := l.Handle.Adapter.Stream(stepCtx, req, emit)
	if err != nil {
		if cause := context.Cause(stepCtx); errors.Is(cause, errFirstChunkTimeout) {
			err = fmt.Errorf("%s: %w", l.Handle.Provider, cause)
		}
		if ctx.Err() == nil {
			l.Health.RecordFailure(l.Handle.Provider)
		}
		return stepOutcome{}, err
	}
	l.Health.RecordSuccess(l.Handle.Provider)

	if err := flushText(&text, out); err != nil {
		return stepOutcome{}, err
	}
	return stepOutcome{resp: resp, invocations: invs}, nil
}

func flushText(c *chunker, out *sseWriter) error {
	if rest := c.Flush(); rest != "" {
		return out.Send(types.StreamEvent{Type: types.StreamTextDelta, Delta: rest})
	}
	return nil
}

// dispatch runs every tool call of a finished step in order and returns
// the results to feed back to the model.
func (l *Loop) dispatch(ctx context.Context, o stepOutcome, out *sseWriter) ([]types.ToolResult, error) {
	results := make([]types.ToolResult, 0, len(o.resp.ToolCalls))
	for _, call := range o.resp.ToolCalls {
		inv, ok := o.invocations[call.ID]
		if !ok {
			inv = tools.NewInvocation(call.ID, call.Name)
			if err := out.Send(types.StreamEvent{
				Type:       types.StreamToolInputStart,
				ToolCallID: inv.ID,
				ToolName:   inv.Name,
				State:      string(inv.State),
			}); err != nil {
				return nil, err
			}
		}
		inv.Input = call.Input

		// Unknown tools and undecodable input end here without ever
		// being announced as input-available.
		accepted, err := l.Dispatcher.Accept(inv)
		if err != nil {
			return nil, err
		}
		if accepted {
			if err := out.Send(types.StreamEvent{
				Type:       types.StreamToolInputAvailable,
				ToolCallID: inv.ID,
				ToolName:   inv.Name,
				State:      string(inv.State),
				Input:      call.Input,
			}); err != nil {
				return nil, err
			}
			if err := l.Dispatcher.Dispatch(ctx, inv); err != nil {
				return nil, err
			}
		}

		ev := types.StreamEvent{ToolCallID: inv.ID, ToolName: inv.Name, State: string(inv.State)}
		if inv.State == tools.StateOutputError {
			ev.Type = types.StreamToolOutputError
			ev.ErrorText = inv.ErrorText
		} else {
			ev.Type = types.StreamToolOutputAvailable
			ev.Output = inv.Output
		}
		if err := out.Send(ev); err != nil {
			return nil, err
		}

		output, isErr := inv.ModelResult()
		results = append(results, types.ToolResult{CallID: inv.ID, Name: inv.Name, Output: output, IsError: isErr})
	}
	return results, nil
}

// Package policy gates model access with OPA Rego policies. Policies live
// in package chat.policy and define allow (bool) and reason (string).
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/af-corp/chat-gateway/internal/config"
)

const query = "[data.chat.policy.allow, data.chat.policy.reason]"

var ErrNoPolicies = errors.New("no policies loaded")

// Input is the document policies are evaluated against.
type Input struct {
	User    User    `json:"user"`
	Request Request `json:"request"`
	Time    Time    `json:"time"`
}

type User struct {
	Username      string `json:"username"`
	Authenticated bool   `json:"authenticated"`
	IdentityType  string `json:"identity_type"`
}

type Request struct {
	RequestedModel string `json:"requested_model"`
	Model          string `json:"model"`
	Provider       string `json:"provider"`
	Origin         string `json:"origin"`
}

type Time struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// NewTime captures the evaluation clock in UTC.
func NewTime(now time.Time) Time {
	now = now.UTC()
	return Time{Hour: now.Hour(), Day: now.Weekday().String()}
}

type Decision struct {
	Allowed bool
	Reason  string
}

type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyConfig
}

// NewEvaluator creates an evaluator. Call Load to compile policies.
func NewEvaluator(cfg func() config.PolicyConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

func (e *Evaluator) Enabled() bool { return e.cfg().Enabled }

// Load compiles the Rego modules in the configured bundle path. A failed
// compile leaves the previously loaded policies in place.
func (e *Evaluator) Load(ctx context.Context) error {
	cfg := e.cfg()
	modules, err := LoadRegoFiles(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", cfg.BundlePath)
		return nil
	}
	if err := e.LoadFromModules(ctx, modules); err != nil {
		return err
	}
	slog.Info("opa policies loaded", "modules", len(modules), "path", cfg.BundlePath)
	return nil
}

func (e *Evaluator) LoadFromModules(ctx context.Context, modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(query)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Evaluate runs the loaded policies. Errors mean no decision was reached.
func (e *Evaluator) Evaluate(ctx context.Context, input Input) (Decision, error) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil {
		return Decision{}, ErrNoPolicies
	}

	timeout := e.cfg().EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, errors.New("policy produced no result")
	}

	arr, ok := results[0].Expressions[0].Value.([]any)
	if !ok || len(arr) < 2 {
		return Decision{}, errors.New("unexpected policy result format")
	}
	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return Decision{Allowed: allowed, Reason: reason}, nil
}

// Check is Evaluate with failures turned into a denial.
func (e *Evaluator) Check(ctx context.Context, input Input) Decision {
	d, err := e.Evaluate(ctx, input)
	if err != nil {
		slog.Error("policy evaluation failed", "error", err, "model", input.Request.Model)
		return Decision{Allowed: false, Reason: "policy evaluation failed"}
	}
	if !d.Allowed && d.Reason == "" {
		d.Reason = "model not permitted"
	}
	return d
}

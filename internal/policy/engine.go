// Package policy decides which roles are privileged for each ticket operation.
package policy

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

// DefaultPolicy is the built-in role policy.
//
//go:embed authz.rego
var DefaultPolicy string

const query = "data.helpdesk.authz.privileged"

// Engine is the OPA policy engine. It implements ports.Authorizer.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	if policyContent == "" {
		policyContent = DefaultPolicy
	}
	r := rego.New(
		rego.Query(query),
		rego.Module("authz.rego", policyContent),
	)

	q, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: q}, nil
}

// NewEngineFromFile loads the policy from path, or the default policy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(data))
}

// Privileged reports whether role may act on any ticket for op.
func (e *Engine) Privileged(ctx context.Context, op domain.Operation, role domain.Role) (bool, error) {
	input := map[string]interface{}{
		"operation": string(op),
		"role":      string(domain.NormalizeRole(string(role))),
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy returned %T, want bool", results[0].Expressions[0].Value)
	}
	return allowed, nil
}

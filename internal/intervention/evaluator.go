package intervention

import (
	"fmt"
	"strings"

	"github.com/TheLazyLemur/pathscope/internal/scope"
	"github.com/pkg/errors"
)

// Decision is the outcome of evaluating one tool call.
type Decision struct {
	Tool             string   `json:"tool"`
	Mode             Mode     `json:"mode"`
	Resolver         string   `json:"resolver,omitempty"`
	Required         bool     `json:"required"`
	WorkingDirectory string   `json:"workingDirectory,omitempty"`
	OutsidePaths     []string `json:"outsidePaths,omitempty"`
	Reason           string   `json:"reason"`
}

// Prompt builds a human-readable confirmation prompt for the decision.
func (d Decision) Prompt() string {
	prompt := "Allow **" + d.Tool + "**?"
	if len(d.OutsidePaths) == 0 {
		return prompt + "\n" + d.Reason
	}
	prompt += "\nOutside `" + d.WorkingDirectory + "`:"
	for _, p := range d.OutsidePaths {
		prompt += "\n`" + p + "`"
	}
	return prompt
}

// Evaluator applies a validated policy to tool calls.
type Evaluator struct {
	registry *Registry
	policy   *Policy
}

// NewEvaluator validates policy against registry.
func NewEvaluator(registry *Registry, policy *Policy) (*Evaluator, error) {
	if registry == nil {
		registry = NewRegistry()
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	if err := policy.Validate(registry); err != nil {
		return nil, errors.Wrap(err, "invalid intervention policy")
	}
	return &Evaluator{registry: registry, policy: policy}, nil
}

// Tools returns the tool names the policy lists.
func (e *Evaluator) Tools() []string {
	return e.policy.ToolNames()
}

// Evaluate decides whether tool, called with args, needs intervention.
// It never fails: a resolver that cannot run requires intervention.
func (e *Evaluator) Evaluate(tool string, args scope.Arguments, md scope.Metadata) Decision {
	tp := e.policy.For(tool)
	d := Decision{
		Tool:             tool,
		Mode:             tp.Intervention,
		Resolver:         tp.Resolver,
		WorkingDirectory: md.WorkingDirectory(),
	}

	switch tp.Intervention {
	case ModeNever:
		d.Reason = "tool never requires intervention"
		return d
	case ModeAlways:
		d.Required = true
		d.Reason = "tool always requires intervention"
		return d
	}

	resolver, ok := e.registry.Lookup(tp.Resolver)
	if !ok {
		d.Required = true
		d.Reason = fmt.Sprintf("resolver %s not registered", tp.Resolver)
		return d
	}

	required, outside, err := runResolver(resolver, args, md)
	if err != nil {
		d.Required = true
		d.Reason = fmt.Sprintf("resolver %s failed: %v", tp.Resolver, err)
		return d
	}

	d.Required = required
	d.OutsidePaths = outside
	d.Reason = dynamicReason(d)
	return d
}

// runResolver shields the caller from panicking third-party resolvers.
func runResolver(resolver Resolver, args scope.Arguments, md scope.Metadata) (required bool, outside []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	required = resolver.Resolve(args, md)
	if ex, ok := resolver.(Explainer); ok && required {
		outside = ex.Explain(args, md)
	}
	return required, outside, nil
}

func dynamicReason(d Decision) string {
	if !d.Required {
		if d.Resolver == scope.ResolverName && d.WorkingDirectory == "" {
			return "no working directory configured"
		}
		return fmt.Sprintf("resolver %s allowed the call", d.Resolver)
	}
	switch len(d.OutsidePaths) {
	case 0:
		return fmt.Sprintf("resolver %s requires intervention", d.Resolver)
	case 1:
		return fmt.Sprintf("path %s is outside working directory %s", d.OutsidePaths[0], d.WorkingDirectory)
	default:
		return fmt.Sprintf("paths %s are outside working directory %s", strings.Join(d.OutsidePaths, ", "), d.WorkingDirectory)
	}
}

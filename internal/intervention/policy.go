package intervention

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// Mode says when a tool needs human intervention.
type Mode string

const (
	ModeNever   Mode = "never"
	ModeAlways  Mode = "always"
	ModeDynamic Mode = "dynamic"
)

func (m Mode) valid() bool {
	switch m {
	case ModeNever, ModeAlways, ModeDynamic:
		return true
	}
	return false
}

// ToolPolicy is the intervention rule for one tool.
type ToolPolicy struct {
	Intervention Mode   `yaml:"intervention"`
	Resolver     string `yaml:"resolver,omitempty"`
}

// Policy holds per-tool rules and the fallback for tools it does not list.
type Policy struct {
	Default Mode                  `yaml:"default"`
	Tools   map[string]ToolPolicy `yaml:"tools"`
}

// ParsePolicy decodes a YAML policy. Unknown keys are rejected.
func ParsePolicy(data []byte) (*Policy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Policy
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "parsing policy")
	}
	if p.Default == "" {
		p.Default = ModeNever
	}
	if p.Tools == nil {
		p.Tools = map[string]ToolPolicy{}
	}
	return &p, nil
}

// LoadPolicy reads a YAML policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("policy file %s not found", path)
		}
		return nil, errors.Wrap(err, "reading policy file")
	}
	return ParsePolicy(data)
}

// DefaultPolicy returns the built-in policy for the local-system tools.
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(errors.Wrap(err, "embedded default policy"))
	}
	return p
}

// For returns the rule for tool, falling back to the default mode.
func (p *Policy) For(tool string) ToolPolicy {
	if tp, ok := p.Tools[tool]; ok {
		return tp
	}
	return ToolPolicy{Intervention: p.Default}
}

// ToolNames returns the tools the policy names explicitly, sorted.
func (p *Policy) ToolNames() []string {
	names := make([]string, 0, len(p.Tools))
	for name := range p.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every rule against the registry.
func (p *Policy) Validate(registry *Registry) error {
	if !p.Default.valid() || p.Default == ModeDynamic {
		return errors.Errorf("invalid default intervention %q: must be never or always", p.Default)
	}

	for _, name := range p.ToolNames() {
		tp := p.Tools[name]
		if !tp.Intervention.valid() {
			return errors.Errorf("tool %s: invalid intervention %q", name, tp.Intervention)
		}
		if tp.Intervention != ModeDynamic {
			if tp.Resolver != "" {
				return errors.Errorf("tool %s: resolver only allowed with dynamic intervention", name)
			}
			continue
		}
		if tp.Resolver == "" {
			return errors.Errorf("tool %s: dynamic intervention requires a resolver", name)
		}
		if _, ok := registry.Lookup(tp.Resolver); !ok {
			return errors.Errorf("tool %s: unknown resolver %q", name, tp.Resolver)
		}
	}
	return nil
}

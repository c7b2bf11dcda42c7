package flow

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/validate"
)

// Step is one question of a flow.
type Step struct {
	Name      string           `yaml:"name" json:"name"`
	Field     string           `yaml:"field,omitempty" json:"field"`
	Prompt    string           `yaml:"prompt" json:"prompt"`
	Validator string           `yaml:"validator,omitempty" json:"validator,omitempty"`
	Optional  bool             `yaml:"optional,omitempty" json:"optional,omitempty"`
	Input     domain.InputKind `yaml:"input,omitempty" json:"input"`
	Choices   []string         `yaml:"choices,omitempty" json:"choices,omitempty"`

	tmpl      *template.Template
	validator validate.Validator
}

// Validate classifies raw input for this step.
func (s *Step) Validate(ctx context.Context, raw string) (domain.Outcome, error) {
	return s.validator.Validate(ctx, raw)
}

// Render executes the prompt template against the collected fields.
func (s *Step) Render(fields domain.Fields) (string, error) {
	var buf bytes.Buffer
	data := map[string]any(fields)
	if data == nil {
		data = map[string]any{}
	}
	if err := s.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt for step %q: %w", s.Name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Definition is the ordered step list of one flow kind.
type Definition struct {
	Kind        domain.FlowKind `yaml:"kind" json:"kind"`
	Title       string          `yaml:"title" json:"title"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []*Step         `yaml:"steps" json:"steps"`
}

// Len returns the number of steps, which is also the pending hand-off position.
func (d *Definition) Len() int {
	return len(d.Steps)
}

// Step returns the step at index i.
func (d *Definition) Step(i int) (*Step, bool) {
	if i < 0 || i >= len(d.Steps) {
		return nil, false
	}
	return d.Steps[i], true
}

// Fields returns the field names of the first n steps.
func (d *Definition) Fields(n int) []string {
	if n > len(d.Steps) {
		n = len(d.Steps)
	}
	out := make([]string, 0, n)
	for _, s := range d.Steps[:n] {
		out = append(out, s.Field)
	}
	return out
}

// Table maps flow kinds to their definitions.
type Table struct {
	flows map[domain.FlowKind]*Definition
}

// Get returns the definition of kind.
func (t *Table) Get(kind domain.FlowKind) (*Definition, bool) {
	d, ok := t.flows[kind]
	return d, ok
}

// Kinds returns the defined flow kinds in sorted order.
func (t *Table) Kinds() []domain.FlowKind {
	kinds := make([]domain.FlowKind, 0, len(t.flows))
	for k := range t.flows {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Definitions returns every definition ordered by kind.
func (t *Table) Definitions() []*Definition {
	out := make([]*Definition, 0, len(t.flows))
	for _, k := range t.Kinds() {
		out = append(out, t.flows[k])
	}
	return out
}

var funcs = template.FuncMap{
	"join": func(v any) string {
		switch list := v.(type) {
		case []string:
			return strings.Join(list, ", ")
		case []any:
			parts := make([]string, 0, len(list))
			for _, item := range list {
				parts = append(parts, fmt.Sprint(item))
			}
			return strings.Join(parts, ", ")
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	},
	"default": func(fallback, v any) any {
		if v == nil || v == "" {
			return fallback
		}
		return v
	},
}

var numberValidators = map[string]bool{"age": true, "story_length": true, "child_id": true}

// compile validates the definitions and binds templates and validators.
func compile(defs []*Definition, registry *validate.Registry) (*Table, error) {
	t := &Table{flows: make(map[domain.FlowKind]*Definition, len(defs))}
	for _, def := range defs {
		if !def.Kind.Valid() {
			return nil, fmt.Errorf("unknown flow kind %q", def.Kind)
		}
		if _, dup := t.flows[def.Kind]; dup {
			return nil, fmt.Errorf("flow %q defined twice", def.Kind)
		}
		if len(def.Steps) == 0 {
			return nil, fmt.Errorf("flow %q has no steps", def.Kind)
		}

		names := make(map[string]bool)
		fields := make(map[string]bool)
		for i, step := range def.Steps {
			if err := compileStep(step, registry); err != nil {
				return nil, fmt.Errorf("flow %q step %d: %w", def.Kind, i, err)
			}
			if names[step.Name] {
				return nil, fmt.Errorf("flow %q: duplicate step %q", def.Kind, step.Name)
			}
			if fields[step.Field] {
				return nil, fmt.Errorf("flow %q: duplicate field %q", def.Kind, step.Field)
			}
			names[step.Name] = true
			fields[step.Field] = true
		}
		t.flows[def.Kind] = def
	}
	return t, nil
}

func compileStep(step *Step, registry *validate.Registry) error {
	if step.Name == "" {
		return fmt.Errorf("step has no name")
	}
	if step.Field == "" {
		step.Field = step.Name
	}
	if strings.TrimSpace(step.Prompt) == "" {
		return fmt.Errorf("step %q has no prompt", step.Name)
	}

	tmpl, err := template.New(step.Name).Funcs(funcs).Parse(step.Prompt)
	if err != nil {
		return fmt.Errorf("step %q: parse prompt: %w", step.Name, err)
	}
	step.tmpl = tmpl

	switch {
	case step.Validator != "":
		v, ok := registry.Lookup(step.Validator)
		if !ok {
			return fmt.Errorf("step %q: unknown validator %q", step.Name, step.Validator)
		}
		step.validator = v
	case len(step.Choices) > 0:
		step.validator = validate.Choice(step.Choices...)
	default:
		return fmt.Errorf("step %q needs a validator or choices", step.Name)
	}

	if step.Validator == "feedback" && len(step.Choices) == 0 {
		step.Choices = append([]string(nil), domain.FeedbackOptions...)
	}
	if step.Input == "" {
		switch {
		case len(step.Choices) > 0:
			step.Input = domain.InputChoice
		case step.Validator == "list":
			step.Input = domain.InputList
		case numberValidators[step.Validator]:
			step.Input = domain.InputNumber
		default:
			step.Input = domain.InputText
		}
	}
	return nil
}

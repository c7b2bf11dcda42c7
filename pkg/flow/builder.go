package flow

import (
	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/validate"
)

// Builder assembles a flow table in code.
type Builder struct {
	flows []*FlowBuilder
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Flow starts a new flow definition. Calling it twice for the same kind
// returns the existing flow builder.
func (b *Builder) Flow(kind domain.FlowKind, title string) *FlowBuilder {
	for _, fb := range b.flows {
		if fb.def.Kind == kind {
			return fb
		}
	}
	fb := &FlowBuilder{def: &Definition{Kind: kind, Title: title}, builder: b}
	b.flows = append(b.flows, fb)
	return fb
}

// Build compiles the flows against registry.
func (b *Builder) Build(registry *validate.Registry) (*Table, error) {
	defs := make([]*Definition, 0, len(b.flows))
	for _, fb := range b.flows {
		defs = append(defs, fb.def)
	}
	return compile(defs, registry)
}

// FlowBuilder appends steps to one flow.
type FlowBuilder struct {
	def     *Definition
	builder *Builder
}

// Step appends a step validated by the named validator.
func (fb *FlowBuilder) Step(name, validator, prompt string) *FlowBuilder {
	fb.def.Steps = append(fb.def.Steps, &Step{Name: name, Validator: validator, Prompt: prompt})
	return fb
}

// Optional appends a step that accepts the skip token.
func (fb *FlowBuilder) Optional(name, validator, prompt string) *FlowBuilder {
	fb.def.Steps = append(fb.def.Steps, &Step{Name: name, Validator: validator, Prompt: prompt, Optional: true})
	return fb
}

// Choice appends a step that accepts one of choices.
func (fb *FlowBuilder) Choice(name, prompt string, choices ...string) *FlowBuilder {
	fb.def.Steps = append(fb.def.Steps, &Step{Name: name, Prompt: prompt, Choices: choices})
	return fb
}

// Describe sets the flow description.
func (fb *FlowBuilder) Describe(description string) *FlowBuilder {
	fb.def.Description = description
	return fb
}

// Done returns to the table builder.
func (fb *FlowBuilder) Done() *Builder {
	return fb.builder
}

package flow_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/flow"
	"github.com/aretw0/talebot/pkg/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registry() *validate.Registry {
	return validate.Default(validate.DefaultPolicy(), nil)
}

func TestDefault_AllKinds(t *testing.T) {
	table, err := flow.Default(registry())
	require.NoError(t, err)
	assert.ElementsMatch(t, domain.KnownFlowKinds, table.Kinds())

	def, ok := table.Get(domain.FlowProfileCreation)
	require.True(t, ok)
	assert.Equal(t, []string{"name", "age", "characters", "interests", "story_length"}, def.Fields(def.Len()))
	assert.Equal(t, []string{"name", "age"}, def.Fields(2))

	age, _ := def.Step(1)
	assert.Equal(t, domain.InputNumber, age.Input)
	chars, _ := def.Step(2)
	assert.Equal(t, domain.InputList, chars.Input)
	length, _ := def.Step(4)
	assert.True(t, length.Optional)

	_, ok = def.Step(def.Len())
	assert.False(t, ok, "pending position has no step")
}

func TestDefault_FeedbackChoices(t *testing.T) {
	table, err := flow.Default(registry())
	require.NoError(t, err)

	def, _ := table.Get(domain.FlowStoryFeedback)
	step, _ := def.Step(1)
	assert.Equal(t, domain.InputChoice, step.Input)
	assert.Equal(t, domain.FeedbackOptions, step.Choices)

	out, err := step.Validate(context.Background(), "LOVED")
	require.NoError(t, err)
	assert.Equal(t, "loved", out.Value)
}

func TestStep_Render(t *testing.T) {
	table, err := flow.Default(registry())
	require.NoError(t, err)
	def, _ := table.Get(domain.FlowProfileCreation)

	step, _ := def.Step(1)
	text, err := step.Render(domain.Fields{"name": "Alice"})
	require.NoError(t, err)
	assert.Contains(t, text, "How old is Alice?")

	first, _ := def.Step(0)
	text, err = first.Render(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"not yaml":          "flows: [",
		"empty":             "flows: []",
		"unknown kind":      "flows:\n  - kind: nope\n    steps:\n      - {name: a, validator: name, prompt: hi}",
		"no steps":          "flows:\n  - kind: story_request\n    steps: []",
		"unknown validator": "flows:\n  - kind: story_request\n    steps:\n      - {name: a, validator: nope, prompt: hi}",
		"no prompt":         "flows:\n  - kind: story_request\n    steps:\n      - {name: a, validator: name}",
		"bad template":      "flows:\n  - kind: story_request\n    steps:\n      - {name: a, validator: name, prompt: '{{.a'}",
		"duplicate step":    "flows:\n  - kind: story_request\n    steps:\n      - {name: a, validator: name, prompt: hi}\n      - {name: a, validator: name, prompt: hi}",
		"duplicate field":   "flows:\n  - kind: story_request\n    steps:\n      - {name: a, validator: name, prompt: hi}\n      - {name: b, field: a, validator: name, prompt: hi}",
		"duplicate flow":    "flows:\n  - kind: story_request\n    steps:\n      - {name: a, validator: name, prompt: hi}\n  - kind: story_request\n    steps:\n      - {name: a, validator: name, prompt: hi}",
		"no validator":      "flows:\n  - kind: story_request\n    steps:\n      - {name: a, prompt: hi}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := flow.Parse([]byte(doc), registry())
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.yaml")
	doc := `
flows:
  - kind: story_feedback
    title: Quick rating
    steps:
      - name: stars
        prompt: "How many stars? {{join .missing}}"
        choices: [one, two, three]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	table, err := flow.LoadFile(path, registry())
	require.NoError(t, err)
	def, ok := table.Get(domain.FlowStoryFeedback)
	require.True(t, ok)
	step, _ := def.Step(0)
	assert.Equal(t, "stars", step.Field)
	assert.Equal(t, domain.InputChoice, step.Input)

	_, err = flow.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), registry())
	assert.Error(t, err)
}

func TestBuilder(t *testing.T) {
	table, err := flow.NewBuilder().
		Flow(domain.FlowStoryRequest, "Tiny").
		Describe("two questions").
		Step("theme", "theme", "About what?").
		Optional("characters", "list", "Who, {{join .theme}}?").
		Done().
		Flow(domain.FlowStoryFeedback, "Rate").
		Choice("rating", "Thumbs?", "up", "down").
		Done().
		Build(registry())
	require.NoError(t, err)

	def, ok := table.Get(domain.FlowStoryRequest)
	require.True(t, ok)
	assert.Equal(t, 2, def.Len())
	assert.Equal(t, "two questions", def.Description)
	assert.Len(t, table.Definitions(), 2)
}

package graph_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aretw0/talebot/internal/presentation/graph"
	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/flow"
	"github.com/aretw0/talebot/pkg/safety"
	"github.com/aretw0/talebot/pkg/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func definition(t *testing.T, kind domain.FlowKind) *flow.Definition {
	t.Helper()
	table, err := flow.Default(validate.Default(validate.DefaultPolicy(), safety.NewRules()))
	require.NoError(t, err)
	def, ok := table.Get(kind)
	require.True(t, ok)
	return def
}

func TestGenerateMermaid_Shapes(t *testing.T) {
	out := graph.GenerateMermaid(definition(t, domain.FlowStoryFeedback), nil)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, `story_feedback((`)
	assert.Contains(t, out, `s0_story_id[/"story_id"/]`)
	assert.Contains(t, out, `s1_feedback{"feedback"}`)
	assert.Contains(t, out, `handoff[["complete"]]`)
	assert.Contains(t, out, "story_feedback --> s0_story_id")
	assert.Contains(t, out, "s1_feedback --> handoff")
	assert.Contains(t, out, `s0_story_id -. "cancel" .-> cancelled`)
	assert.NotContains(t, out, "classDef")
}

func TestGenerateMermaid_OptionalSkip(t *testing.T) {
	def := definition(t, domain.FlowProfileEdit)
	out := graph.GenerateMermaid(def, nil)

	for i, step := range def.Steps {
		if step.Optional {
			assert.Contains(t, out, "(optional)")
			assert.Contains(t, out, `-. "skip" .->`, "step %d", i)
			return
		}
	}
	t.Fatal("profile_edit has no optional step")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	def := definition(t, domain.FlowStoryFeedback)

	out := graph.GenerateMermaid(def, &graph.Overlay{Position: 1})
	assert.Contains(t, out, "class s0_story_id visited;")
	assert.Contains(t, out, "class s1_feedback current;")

	out = graph.GenerateMermaid(def, &graph.Overlay{Position: def.Len()})
	assert.Contains(t, out, "class s1_feedback visited;")
	assert.Contains(t, out, "class handoff current;")

	assert.Nil(t, graph.OverlayFor(nil))
	session := domain.NewSession("k", domain.FlowStoryFeedback, time.Now())
	assert.Equal(t, &graph.Overlay{Position: 0}, graph.OverlayFor(session))
}

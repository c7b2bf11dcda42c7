package safety_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/talebot/pkg/safety"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	reply string
	err   error
	calls int
	last  []*schema.Message
}

func (m *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls++
	m.last = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func newLLM(t *testing.T, m *fakeModel) *safety.LLM {
	t.Helper()
	c, err := safety.NewLLM(context.Background(), m, safety.NewRules())
	require.NoError(t, err)
	return c
}

func TestLLM_UsesModelVerdict(t *testing.T) {
	m := &fakeModel{reply: "Sure! {\"safe\": false, \"categories\": [\"scary\"], \"reason\": \"Too frightening for toddlers.\"}"}
	verdict, err := newLLM(t, m).Classify(context.Background(), "a haunted graveyard at midnight")
	require.NoError(t, err)

	assert.False(t, verdict.Safe)
	assert.Equal(t, []string{"scary"}, verdict.Categories)
	assert.Equal(t, "Too frightening for toddlers.", verdict.Reason)
	require.Len(t, m.last, 2)
	assert.Equal(t, schema.System, m.last[0].Role)
	assert.Equal(t, "a haunted graveyard at midnight", m.last[1].Content)
}

func TestLLM_RulesShortCircuit(t *testing.T) {
	m := &fakeModel{reply: `{"safe": true}`}
	verdict, err := newLLM(t, m).Classify(context.Background(), "the killer returns")
	require.NoError(t, err)
	assert.False(t, verdict.Safe)
	assert.Zero(t, m.calls, "rule rejections never reach the model")
}

func TestLLM_FallbackOnFailure(t *testing.T) {
	cases := map[string]*fakeModel{
		"invoke error": {err: errors.New("rate limited")},
		"empty reply":  {reply: "   "},
		"not json":     {reply: "I think it's fine"},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			verdict, err := newLLM(t, m).Classify(context.Background(), "friendship on the moon")
			require.NoError(t, err)
			assert.True(t, verdict.Safe, "fallback rules accept the text")
		})
	}
}

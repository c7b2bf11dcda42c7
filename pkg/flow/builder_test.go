package flow_test

import (
	"testing"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/flow"
	"github.com/stretchr/testify/assert"
)

func TestBuilder_ReusesFlow(t *testing.T) {
	b := flow.NewBuilder()
	first := b.Flow(domain.FlowProfileEdit, "Edit")
	again := b.Flow(domain.FlowProfileEdit, "ignored")
	assert.Same(t, first, again)
}

func TestBuilder_RejectsUnknownValidator(t *testing.T) {
	_, err := flow.NewBuilder().
		Flow(domain.FlowProfileEdit, "Edit").
		Step("x", "missing", "?").
		Done().
		Build(registry())
	assert.Error(t, err)
}

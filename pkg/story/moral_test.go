package story_test

import (
	"testing"

	"github.com/aretw0/talebot/pkg/story"
	"github.com/stretchr/testify/assert"
)

func TestExtractMoral(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"explicit", "Alice found the star.\n\nMoral: Friends light the way.", "Friends light the way."},
		{"explicit markdown", "The end.\n\n**Moral:** Sharing makes joy grow.**", "Sharing makes joy grow."},
		{"explicit sentence", "Done.\nThe moral of the story is: be patient.", "be patient."},
		{"russian", "Конец.\nМораль: Добро возвращается.", "Добро возвращается."},
		{"keyword", "Alice and her friend the dragon flew home.", "A true friend is there when things get hard."},
		{"keyword order", "They were brave and kind.", "Even small acts of kindness make the world better."},
		{"moral not last", "Moral: hidden.\nThen they slept.", story.DefaultMoral},
		{"fallback", "The moon rose.", story.DefaultMoral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, story.ExtractMoral(tt.text))
		})
	}
}

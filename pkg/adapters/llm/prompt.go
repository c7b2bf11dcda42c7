package llm

import (
	"fmt"
	"strings"

	"github.com/aretw0/talebot/pkg/domain"
)

// AgeGuidance describes the style and length suited to a child's age.
type AgeGuidance struct {
	Style      string
	Words      string
	Complexity string
}

// GuidanceFor returns the guidance band for age.
func GuidanceFor(age int) AgeGuidance {
	switch {
	case age <= 3:
		return AgeGuidance{
			Style:      "A very simple plot with short sentences, basic colours and shapes, familiar objects and gentle repetition",
			Words:      "150-200",
			Complexity: "simple words and short sentences",
		}
	case age <= 5:
		return AgeGuidance{
			Style:      "A simple structure with clear emotions, friendship and family, and a touch of magic",
			Words:      "250-350",
			Complexity: "everyday words and medium-length sentences",
		}
	case age <= 7:
		return AgeGuidance{
			Style:      "A fuller plot where problems get solved through bravery and kindness",
			Words:      "400-550",
			Complexity: "varied vocabulary and longer sentences",
		}
	default:
		return AgeGuidance{
			Style:      "A rich adventure with moral choices, friendship and responsibility",
			Words:      "600-800",
			Complexity: "rich vocabulary and complex sentences",
		}
	}
}

const storytellerSystemPrompt = `You are a gentle, magical storyteller for children. You write:
- engaging stories where the child is the main hero and takes an active part
- kind stories with friendly characters and happy endings
- age-appropriate content with nothing frightening
- stories with a positive moral about friendship, kindness, honesty or courage
- vivid, imaginative descriptions

Never include: violence, cruelty, death or blood; romance or sexual content;
drugs, alcohol or smoking; rude language; scary monsters or nightmares;
weapons, fights or wars; political or religious disputes; dangerous actions
a child could copy; loneliness, depression or lies that go unresolved.
If a request would break these rules, write a safe alternative instead.
Write only the story, in %s. End with a final line starting with "Moral:".`

func systemPrompt(language string) string {
	return fmt.Sprintf(storytellerSystemPrompt, language)
}

func storyPrompt(req domain.StoryRequest) string {
	g := GuidanceFor(req.ChildAge)

	var b strings.Builder
	fmt.Fprintf(&b, "About the child:\nName: %s\nAge: %d\n", req.ChildName, req.ChildAge)
	if len(req.Characters) > 0 {
		fmt.Fprintf(&b, "Favourite characters: %s\n", strings.Join(req.Characters, ", "))
	}
	if len(req.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(req.Interests, ", "))
	}

	fmt.Fprintf(&b, "\nTask: write a personalised bedtime story for %s.\n", req.ChildName)
	fmt.Fprintf(&b, "Theme: %s\n\n", req.Theme)
	b.WriteString("Requirements:\n")
	fmt.Fprintf(&b, "1. %s is the main hero and actively solves the story's problem.\n", req.ChildName)
	if len(req.Characters) > 0 {
		b.WriteString("2. Weave the listed characters naturally into the plot.\n")
	} else {
		b.WriteString("2. Invent one or two friendly companions.\n")
	}
	fmt.Fprintf(&b, "3. %s. Length: about %s words, %s.\n", g.Style, g.Words, g.Complexity)
	fmt.Fprintf(&b, "4. Reading time: about %d minutes.\n", req.LengthMinutes)
	b.WriteString("5. Include a moment where the listener can imagine being there.\n")
	return b.String()
}

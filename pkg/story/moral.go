package story

import (
	"strings"
	"unicode"
)

var moralPrefixes = []string{
	"the moral of the story is",
	"moral of the story:",
	"moral:",
	"мораль сказки:",
	"мораль:",
}

// Keyword table checked in order; the first keyword found in the story wins.
var morals = []struct{ keyword, moral string }{
	{"friend", "A true friend is there when things get hard."},
	{"together", "We are stronger together than alone."},
	{"kind", "Even small acts of kindness make the world better."},
	{"help", "Those who help others help themselves."},
	{"brave", "Real courage is not in strength but in the heart."},
	{"afraid", "It's fine to ask for help when you are afraid."},
	{"honest", "Honesty is always better than a trick."},
	{"truth", "Trust is built by what we do."},
	{"patien", "Patience helps us through hard times."},
	{"share", "Share with others and happiness grows."},
	{"nature", "Respect nature and care for animals."},
	{"animal", "Respect nature and care for animals."},
	{"different", "Everyone is special in their own way."},
	{"mistake", "Mistakes help us grow wiser."},
	{"learn", "Learning something new is always worthwhile."},
	{"family", "Love and care make a family strong."},
	{"дружб", "Дружба - одно из самых важных сокровищ в жизни."},
	{"друг", "Настоящий друг всегда рядом, когда трудно."},
	{"добр", "Даже маленькие добрые поступки делают мир лучше."},
	{"помо", "Тот, кто помогает другим, помогает и себе."},
	{"смел", "Настоящая смелость не в силе, а в сердце."},
	{"честн", "Честность всегда важнее обмана."},
	{"семь", "Любовь и забота делают семью крепкой."},
}

// DefaultMoral is used when the text gives no hint.
const DefaultMoral = "It's important to be kind, brave and helpful."

// ExtractMoral finds the lesson of a story. An explicit "Moral:" last
// paragraph is preferred; otherwise a moral is picked by keyword.
func ExtractMoral(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if moral, ok := explicitMoral(lines[len(lines)-1]); ok {
		return moral
	}

	lower := strings.ToLower(text)
	for _, m := range morals {
		if strings.Contains(lower, m.keyword) {
			return m.moral
		}
	}
	return DefaultMoral
}

func explicitMoral(line string) (string, bool) {
	line = strings.TrimLeft(strings.TrimSpace(line), "*_# ")
	lower := strings.ToLower(line)
	if len(lower) != len(line) {
		return "", false
	}
	for _, prefix := range moralPrefixes {
		if strings.HasPrefix(lower, prefix) {
			moral := strings.TrimFunc(line[len(prefix):], func(r rune) bool {
				return unicode.IsSpace(r) || strings.ContainsRune(":*_-", r)
			})
			return moral, moral != ""
		}
	}
	return "", false
}

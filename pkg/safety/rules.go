package safety

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/aretw0/talebot/pkg/domain"
)

// Category names reported in a Verdict.
const (
	CategorySexual                = "sexual"
	CategoryViolence              = "violence"
	CategorySubstances            = "substances"
	CategoryProfanity             = "profanity"
	CategoryDangerousActions      = "dangerous_actions"
	CategoryProblematicCharacters = "problematic_characters"
	CategoryControversial         = "controversial"
)

// Terms are matched against the lower-cased words of the text.
// A trailing "*" matches any word with that prefix; a term with spaces
// matches a run of consecutive words.
var defaultTerms = map[string][]string{
	CategorySexual: {
		"sex*", "porn*", "erotic*", "naked", "nude*", "rape*", "seduc*",
		"секс*", "интим*", "голый", "голая", "обнаженн*", "эротик*", "порно*", "изнасилов*", "соблазн*",
	},
	CategoryViolence: {
		"kill*", "murder*", "blood*", "gore", "torture*", "stab*", "shoot*", "gun", "guns",
		"war", "wars", "behead*", "massacre*", "corpse*",
		"убийств*", "убить", "убивать", "зарезать", "застрелить", "кровь", "кровав*", "пытк*",
		"избить", "избиен*", "войн*", "пистолет*", "смерть",
	},
	CategorySubstances: {
		"drug", "drugs", "cocaine", "heroin", "alcohol*", "drunk*", "vodka", "beer", "wine",
		"cigarette*", "smoking", "syringe*",
		"наркотик*", "алкогол*", "пьян*", "сигарет*", "водк*", "пиво", "шприц*",
	},
	CategoryProfanity: {
		"fuck*", "shit*", "bitch*", "cunt*", "asshole*", "bastard*",
		"блядь", "сука", "хуй*", "пизд*", "ебать", "ебан*", "говно", "дерьмо",
	},
	CategoryDangerousActions: {
		"suicide*", "self harm", "kill yourself", "jump off the roof", "hang yourself", "cut yourself",
		"повеситься", "убить себя", "прыгать с крыши", "резать себя",
	},
	CategoryProblematicCharacters: {
		"rapist*", "maniac*", "terrorist*", "serial killer*", "psychopath*", "sadist*", "satan", "devil",
		"насильник*", "маньяк*", "террорист*", "психопат*", "садист*", "сатана", "дьявол", "палач*",
	},
	CategoryControversial: {
		"terrorism", "bomb*", "nazi*", "fascis*", "racis*", "cult", "cults",
		"терроризм", "бомб*", "фашист*", "нацист*", "расист*", "секта", "культ",
	},
}

// Friendly story characters that would otherwise trip a term.
var defaultAllowed = []string{
	"dragon", "dragons", "friendly monster", "kind monster", "little monster",
	"дракон", "драконы", "добрый дракон", "добрый монстр",
}

type term struct {
	words  []string
	prefix bool
}

// Rules is a word-list content classifier. It is safe for concurrent use.
type Rules struct {
	terms   map[string][]term
	allowed map[string]bool
}

// NewRules creates a classifier with the built-in word lists.
func NewRules() *Rules {
	return NewRulesWithTerms(defaultTerms, defaultAllowed)
}

// NewRulesWithTerms creates a classifier from custom word lists.
func NewRulesWithTerms(categories map[string][]string, allowed []string) *Rules {
	r := &Rules{
		terms:   make(map[string][]term, len(categories)),
		allowed: make(map[string]bool, len(allowed)),
	}
	for category, list := range categories {
		for _, raw := range list {
			t := term{}
			raw = strings.ToLower(strings.TrimSpace(raw))
			if strings.HasSuffix(raw, "*") {
				t.prefix = true
				raw = strings.TrimSuffix(raw, "*")
			}
			t.words = words(raw)
			if len(t.words) > 0 {
				r.terms[category] = append(r.terms[category], t)
			}
		}
	}
	for _, a := range allowed {
		r.allowed[strings.Join(words(a), " ")] = true
	}
	return r
}

// Classify never fails.
func (r *Rules) Classify(_ context.Context, text string) (domain.Verdict, error) {
	tokens := words(text)
	if len(tokens) == 0 || r.allowed[strings.Join(tokens, " ")] {
		return domain.Verdict{Safe: true}, nil
	}

	var categories []string
	for category, terms := range r.terms {
		for _, t := range terms {
			if t.matches(tokens) {
				categories = append(categories, category)
				break
			}
		}
	}
	if len(categories) == 0 {
		return domain.Verdict{Safe: true}, nil
	}
	sort.Strings(categories)
	return domain.Verdict{
		Safe:       false,
		Categories: categories,
		Reason:     fmt.Sprintf("This contains content that isn't suitable for children (%s).", strings.Join(categories, ", ")),
	}, nil
}

func (t term) matches(tokens []string) bool {
	n := len(t.words)
	for i := 0; i+n <= len(tokens); i++ {
		ok := true
		for j, w := range t.words {
			tok := tokens[i+j]
			last := j == n-1
			if tok == w || (last && t.prefix && strings.HasPrefix(tok, w)) {
				continue
			}
			ok = false
			break
		}
		if ok {
			return true
		}
	}
	return false
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

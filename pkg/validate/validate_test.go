package validate_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClassifier struct {
	blocked map[string]bool
	err     error
	calls   []string
}

func (s *stubClassifier) Classify(_ context.Context, text string) (domain.Verdict, error) {
	s.calls = append(s.calls, text)
	if s.err != nil {
		return domain.Verdict{}, s.err
	}
	if s.blocked[strings.ToLower(text)] {
		return domain.Verdict{Safe: false, Reason: "Not for children.", Categories: []string{"violence"}}, nil
	}
	return domain.Verdict{Safe: true}, nil
}

type grid []struct {
	name   string
	raw    string
	want   any
	reason string
}

func runGrid(t *testing.T, v validate.Validator, cases grid) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := v.Validate(context.Background(), tc.raw)
			require.NoError(t, err)
			if tc.reason == "" {
				require.True(t, out.Accepted, "expected %q to be accepted, got %s: %s", tc.raw, out.Reason, out.Message)
				assert.Equal(t, tc.want, out.Value)
				return
			}
			require.False(t, out.Accepted, "expected %q to be rejected", tc.raw)
			assert.Equal(t, tc.reason, out.Reason)
			assert.NotEmpty(t, out.Message)
			assert.Nil(t, out.Value)
		})
	}
}

func TestName(t *testing.T) {
	runGrid(t, validate.Name(validate.DefaultPolicy()), grid{
		{name: "plain", raw: "Mia", want: "Mia"},
		{name: "trimmed", raw: "  Mia  ", want: "Mia"},
		{name: "unicode", raw: "Алёна", want: "Алёна"},
		{name: "exactly max", raw: strings.Repeat("я", 50), want: strings.Repeat("я", 50)},
		{name: "empty", raw: "", reason: validate.ReasonEmpty},
		{name: "whitespace", raw: " \t ", reason: validate.ReasonEmpty},
		{name: "too long", raw: strings.Repeat("a", 51), reason: validate.ReasonTooLong},
		{name: "control", raw: "Mi\x07a", reason: validate.ReasonControl},
		{name: "embedded newline", raw: "Mia\nBob", reason: validate.ReasonControl},
	})
}

func TestAge(t *testing.T) {
	runGrid(t, validate.Age(validate.DefaultPolicy()), grid{
		{name: "min", raw: "2", want: 2},
		{name: "max", raw: "12", want: 12},
		{name: "spaces", raw: " 6 ", want: 6},
		{name: "below", raw: "1", reason: validate.ReasonOutOfRange},
		{name: "above", raw: "13", reason: validate.ReasonOutOfRange},
		{name: "negative", raw: "-4", reason: validate.ReasonOutOfRange},
		{name: "word", raw: "six", reason: validate.ReasonNotNumber},
		{name: "fraction", raw: "5.5", reason: validate.ReasonNotNumber},
		{name: "empty", raw: "", reason: validate.ReasonNotNumber},
	})
}

func TestAge_MessageNamesRange(t *testing.T) {
	policy := validate.DefaultPolicy()
	policy.AgeMin, policy.AgeMax = 3, 8
	out, err := validate.Age(policy).Validate(context.Background(), "10")
	require.NoError(t, err)
	assert.Contains(t, out.Message, "3")
	assert.Contains(t, out.Message, "8")
}

func TestList(t *testing.T) {
	runGrid(t, validate.List(validate.DefaultPolicy(), nil), grid{
		{name: "single", raw: "dragons", want: []string{"dragons"}},
		{name: "trim and drop empties", raw: " dragons , , robots ,", want: []string{"dragons", "robots"}},
		{name: "dedupe keeps first", raw: "Dragons, robots, dragons, ROBOTS", want: []string{"Dragons", "robots"}},
		{name: "exactly max items", raw: "a,b,c,d,e", want: []string{"a", "b", "c", "d", "e"}},
		{name: "duplicates do not count", raw: "a,b,c,d,e,a", want: []string{"a", "b", "c", "d", "e"}},
		{name: "empty", raw: "", reason: validate.ReasonEmpty},
		{name: "only delimiters", raw: " , ,, ", reason: validate.ReasonEmpty},
		{name: "too many", raw: "a,b,c,d,e,f", reason: validate.ReasonTooMany},
		{name: "item too long", raw: "ok, " + strings.Repeat("x", 41), reason: validate.ReasonTooLong},
	})
}

func TestList_Safety(t *testing.T) {
	classifier := &stubClassifier{blocked: map[string]bool{"killer": true}}
	v := validate.List(validate.DefaultPolicy(), classifier)

	out, err := v.Validate(context.Background(), "unicorns, killer")
	require.NoError(t, err)
	assert.False(t, out.Accepted)
	assert.Equal(t, validate.ReasonUnsafe, out.Reason)
	assert.Contains(t, out.Message, "killer")

	classifier.err = errors.New("down")
	_, err = v.Validate(context.Background(), "unicorns")
	assert.Error(t, err, "classifier failure surfaces as an error")
}

func TestTheme(t *testing.T) {
	classifier := &stubClassifier{blocked: map[string]bool{"a bloody war": true}}
	runGrid(t, validate.Theme(validate.DefaultPolicy(), classifier), grid{
		{name: "ok", raw: "friendship", want: "friendship"},
		{name: "min", raw: "sea", want: "sea"},
		{name: "max", raw: strings.Repeat("t", 200), want: strings.Repeat("t", 200)},
		{name: "empty", raw: "  ", reason: validate.ReasonEmpty},
		{name: "short", raw: "ab", reason: validate.ReasonTooShort},
		{name: "long", raw: strings.Repeat("t", 201), reason: validate.ReasonTooLong},
		{name: "unsafe", raw: "A bloody war", reason: validate.ReasonUnsafe},
	})
}

func TestTheme_ClassifierFailure(t *testing.T) {
	classifier := &stubClassifier{err: errors.New("timeout")}
	_, err := validate.Theme(validate.DefaultPolicy(), classifier).Validate(context.Background(), "friendship")
	assert.Error(t, err)
}

func TestTheme_LengthCheckedBeforeClassifier(t *testing.T) {
	classifier := &stubClassifier{}
	_, err := validate.Theme(validate.DefaultPolicy(), classifier).Validate(context.Background(), "ab")
	require.NoError(t, err)
	assert.Empty(t, classifier.calls)
}

func TestStoryLength(t *testing.T) {
	runGrid(t, validate.StoryLength(validate.DefaultPolicy()), grid{
		{name: "min", raw: "1", want: 1},
		{name: "max", raw: "15", want: 15},
		{name: "zero", raw: "0", reason: validate.ReasonOutOfRange},
		{name: "too long", raw: "30", reason: validate.ReasonOutOfRange},
		{name: "word", raw: "five", reason: validate.ReasonNotNumber},
	})
}

func TestIdentifiers(t *testing.T) {
	runGrid(t, validate.ChildID(), grid{
		{name: "ok", raw: "7", want: int64(7)},
		{name: "zero", raw: "0", reason: validate.ReasonMalformed},
		{name: "word", raw: "mia", reason: validate.ReasonMalformed},
	})
	runGrid(t, validate.StoryID(), grid{
		{name: "ok", raw: "3F2504E0-4F89-11D3-9A0C-0305E82C3301", want: "3f2504e0-4f89-11d3-9a0c-0305e82c3301"},
		{name: "bad", raw: "story-1", reason: validate.ReasonMalformed},
	})
}

func TestChoice(t *testing.T) {
	runGrid(t, validate.Choice(domain.FeedbackOptions...), grid{
		{name: "exact", raw: "loved", want: "loved"},
		{name: "case", raw: "Liked", want: "liked"},
		{name: "position", raw: "4", want: "disliked"},
		{name: "position out of range", raw: "5", reason: validate.ReasonChoice},
		{name: "unknown", raw: "meh", reason: validate.ReasonChoice},
	})
}

func TestRegistry(t *testing.T) {
	r := validate.Default(validate.DefaultPolicy(), nil)
	assert.Equal(t, []string{"age", "child_id", "feedback", "list", "name", "story_id", "story_length", "theme"}, r.Names())

	_, ok := r.Lookup("name")
	assert.True(t, ok)
	_, ok = r.Lookup("nope")
	assert.False(t, ok)

	r.Register("yes", validate.Func(func(context.Context, string) (domain.Outcome, error) {
		return domain.Accept(true), nil
	}))
	v, ok := r.Lookup("yes")
	require.True(t, ok)
	out, err := v.Validate(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, true, out.Value)
}

func TestPolicy_Normalize(t *testing.T) {
	assert.Equal(t, validate.DefaultPolicy(), validate.Policy{}.Normalize())

	custom := validate.Policy{AgeMin: 3, AgeMax: 1, ListDelimiter: ";"}.Normalize()
	assert.Equal(t, 3, custom.AgeMin)
	assert.Equal(t, 1, custom.AgeMax, "explicit limits are kept")
	assert.Equal(t, ";", custom.ListDelimiter)
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, validate.DefaultPolicy().Validate())

	p := validate.DefaultPolicy()
	p.AgeMin = 14
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "age range is empty")

	p = validate.DefaultPolicy()
	p.LengthMax = p.LengthMin - 1
	p.ThemeMaxLen = p.ThemeMinLen - 1
	err = p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "story length range is empty")
	assert.Contains(t, err.Error(), "theme length range is empty")
}

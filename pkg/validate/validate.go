package validate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/ports"
	"github.com/google/uuid"
)

// Rejection reasons.
const (
	ReasonEmpty      = "empty"
	ReasonTooLong    = "too_long"
	ReasonTooShort   = "too_short"
	ReasonControl    = "control_characters"
	ReasonNotNumber  = "not_a_number"
	ReasonOutOfRange = "out_of_range"
	ReasonTooMany    = "too_many_items"
	ReasonUnsafe     = "unsafe_content"
	ReasonMalformed  = "malformed"
	ReasonChoice     = "unknown_choice"
	ReasonNotFound   = "not_found"
)

// Validator classifies one raw answer.
type Validator interface {
	Validate(ctx context.Context, raw string) (domain.Outcome, error)
}

// Func adapts a function to the Validator interface.
type Func func(ctx context.Context, raw string) (domain.Outcome, error)

// Validate calls f.
func (f Func) Validate(ctx context.Context, raw string) (domain.Outcome, error) {
	return f(ctx, raw)
}

// Registry maps validator names, as referenced by flow definitions, to validators.
type Registry struct {
	validators map[string]Validator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]Validator)}
}

// Default creates a registry holding every built-in validator.
// A nil classifier disables content-safety checks.
func Default(policy Policy, classifier ports.SafetyClassifier) *Registry {
	r := NewRegistry()
	r.Register("name", Name(policy))
	r.Register("age", Age(policy))
	r.Register("list", List(policy, classifier))
	r.Register("theme", Theme(policy, classifier))
	r.Register("story_length", StoryLength(policy))
	r.Register("child_id", ChildID())
	r.Register("story_id", StoryID())
	r.Register("feedback", Choice(domain.FeedbackOptions...))
	return r
}

// Register adds or replaces a validator.
func (r *Registry) Register(name string, v Validator) {
	r.validators[name] = v
}

// Lookup returns the validator registered under name.
func (r *Registry) Lookup(name string) (Validator, bool) {
	v, ok := r.validators[name]
	return v, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.validators))
	for name := range r.validators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name accepts a trimmed, non-empty child name without control characters.
func Name(policy Policy) Validator {
	return Func(func(_ context.Context, raw string) (domain.Outcome, error) {
		name := strings.TrimSpace(raw)
		if name == "" {
			return domain.Reject(ReasonEmpty, "The name can't be empty. Please type the child's name."), nil
		}
		if strings.IndexFunc(name, unicode.IsControl) >= 0 {
			return domain.Reject(ReasonControl, "The name contains characters I can't use. Please type it on one line."), nil
		}
		if utf8.RuneCountInString(name) > policy.NameMaxLen {
			return domain.Reject(ReasonTooLong,
				fmt.Sprintf("That name is too long (maximum %d characters). Please type a shorter name.", policy.NameMaxLen)), nil
		}
		return domain.Accept(name), nil
	})
}

// Age accepts an integer within the policy's inclusive range.
func Age(policy Policy) Validator {
	return Func(func(_ context.Context, raw string) (domain.Outcome, error) {
		age, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return domain.Reject(ReasonNotNumber,
				fmt.Sprintf("Please type the age as a number from %d to %d, for example 5.", policy.AgeMin, policy.AgeMax)), nil
		}
		if age < policy.AgeMin || age > policy.AgeMax {
			return domain.Reject(ReasonOutOfRange,
				fmt.Sprintf("The age must be between %d and %d years.", policy.AgeMin, policy.AgeMax)), nil
		}
		return domain.Accept(age), nil
	})
}

// StoryLength accepts a reading time in minutes within the policy's range.
func StoryLength(policy Policy) Validator {
	return Func(func(_ context.Context, raw string) (domain.Outcome, error) {
		minutes, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return domain.Reject(ReasonNotNumber,
				fmt.Sprintf("Please type the story length in minutes, from %d to %d.", policy.LengthMin, policy.LengthMax)), nil
		}
		if minutes < policy.LengthMin || minutes > policy.LengthMax {
			return domain.Reject(ReasonOutOfRange,
				fmt.Sprintf("The story length must be between %d and %d minutes.", policy.LengthMin, policy.LengthMax)), nil
		}
		return domain.Accept(minutes), nil
	})
}

// List accepts a delimited list of short items, de-duplicated
// case-insensitively in first-seen order.
func List(policy Policy, classifier ports.SafetyClassifier) Validator {
	return Func(func(ctx context.Context, raw string) (domain.Outcome, error) {
		var items []string
		seen := make(map[string]bool)
		for _, part := range strings.Split(raw, policy.ListDelimiter) {
			item := strings.TrimSpace(part)
			if item == "" {
				continue
			}
			if utf8.RuneCountInString(item) > policy.ListItemMaxLen {
				return domain.Reject(ReasonTooLong,
					fmt.Sprintf("%q is too long (maximum %d characters per item).", item, policy.ListItemMaxLen)), nil
			}
			fold := strings.ToLower(item)
			if seen[fold] {
				continue
			}
			seen[fold] = true
			items = append(items, item)
		}

		if len(items) == 0 {
			return domain.Reject(ReasonEmpty,
				fmt.Sprintf("Please name at least one, separated by %q. For example: dragons%s robots", policy.ListDelimiter, policy.ListDelimiter)), nil
		}
		if len(items) > policy.ListMaxItems {
			return domain.Reject(ReasonTooMany,
				fmt.Sprintf("That's %d items; please pick at most %d.", len(items), policy.ListMaxItems)), nil
		}

		if classifier != nil {
			var blocked []string
			for _, item := range items {
				verdict, err := classifier.Classify(ctx, item)
				if err != nil {
					return domain.Outcome{}, fmt.Errorf("classify list item: %w", err)
				}
				if !verdict.Safe {
					blocked = append(blocked, item)
				}
			}
			if len(blocked) > 0 {
				return domain.Reject(ReasonUnsafe,
					fmt.Sprintf("These aren't suitable for a children's story: %s. Please choose others.", strings.Join(blocked, ", "))), nil
			}
		}
		return domain.Accept(items), nil
	})
}

// Theme accepts a free-text story theme that the safety classifier deems safe.
func Theme(policy Policy, classifier ports.SafetyClassifier) Validator {
	return Func(func(ctx context.Context, raw string) (domain.Outcome, error) {
		theme := strings.TrimSpace(raw)
		n := utf8.RuneCountInString(theme)
		if n == 0 {
			return domain.Reject(ReasonEmpty, "Please describe what the story should be about."), nil
		}
		if n < policy.ThemeMinLen {
			return domain.Reject(ReasonTooShort,
				fmt.Sprintf("The theme is too short (at least %d characters).", policy.ThemeMinLen)), nil
		}
		if n > policy.ThemeMaxLen {
			return domain.Reject(ReasonTooLong,
				fmt.Sprintf("The theme is too long (maximum %d characters).", policy.ThemeMaxLen)), nil
		}

		if classifier != nil {
			verdict, err := classifier.Classify(ctx, theme)
			if err != nil {
				return domain.Outcome{}, fmt.Errorf("classify theme: %w", err)
			}
			if !verdict.Safe {
				msg := "This theme isn't suitable for a children's story. Please choose another one."
				if verdict.Reason != "" {
					msg = verdict.Reason + " Please choose another theme."
				}
				return domain.Reject(ReasonUnsafe, msg), nil
			}
		}
		return domain.Accept(theme), nil
	})
}

// ChildID accepts a positive profile identifier.
func ChildID() Validator {
	return Func(func(_ context.Context, raw string) (domain.Outcome, error) {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || id <= 0 {
			return domain.Reject(ReasonMalformed, "Please type the number of the child profile, for example 1."), nil
		}
		return domain.Accept(id), nil
	})
}

// StoryID accepts a story identifier (UUID).
func StoryID() Validator {
	return Func(func(_ context.Context, raw string) (domain.Outcome, error) {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return domain.Reject(ReasonMalformed, "That doesn't look like a story id. Use /history to see your stories."), nil
		}
		return domain.Accept(id.String()), nil
	})
}

// Choice accepts one of options, matched case-insensitively, or its
// one-based position in the list.
func Choice(options ...string) Validator {
	return Func(func(_ context.Context, raw string) (domain.Outcome, error) {
		answer := strings.TrimSpace(raw)
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
			return domain.Accept(options[n-1]), nil
		}
		for _, opt := range options {
			if strings.EqualFold(answer, opt) {
				return domain.Accept(opt), nil
			}
		}
		return domain.Reject(ReasonChoice, "Please pick one of: "+strings.Join(options, ", ")+"."), nil
	})
}

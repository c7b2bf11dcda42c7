package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

// DefaultPIIPatterns matches the collected fields that identify a child.
var DefaultPIIPatterns = []string{`name`, `age`}

type piiMiddleware struct {
	next     ports.SessionStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a read-side middleware that masks the values of
// fields whose names match the patterns. Writes pass through untouched, so a
// redacting store is meant for inspection tools, never for the controller.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Get(ctx context.Context, key string) (*domain.Session, error) {
	session, err := m.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	masked := session.Clone()
	masked.Fields = deepCopyMap(session.Fields)
	maskMap(masked.Fields, m.patterns)
	return masked, nil
}

func (m *piiMiddleware) Put(ctx context.Context, key string, session *domain.Session, expected int64) (*domain.Session, error) {
	return m.next.Put(ctx, key, session, expected)
}

func (m *piiMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				break
			}
		}

		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}

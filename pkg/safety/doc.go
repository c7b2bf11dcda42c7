// Package safety classifies free text for suitability in children's stories.
//
// Rules is a deterministic word-list classifier. LLM asks a chat model and
// falls back to another classifier (normally Rules) when the model fails.
package safety

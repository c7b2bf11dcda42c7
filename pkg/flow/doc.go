/*
Package flow holds the immutable table of conversation flows.

A flow is an ordered list of steps. Each step names the field it fills, the
validator (looked up in a validate.Registry) that classifies the raw answer and
a text/template prompt rendered with the fields collected so far.

Tables are compiled once, from the embedded flows.yaml, a user-supplied YAML
file or a Builder, and are never modified afterwards.
*/
package flow

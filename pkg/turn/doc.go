// Package turn implements the forward-only transition engine: given a
// session and one raw answer it computes the next session state without
// touching storage.
package turn

// Package story generates, saves and rates bedtime stories at the end of the
// story request and feedback flows.
package story

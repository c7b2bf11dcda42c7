// Package profile completes the profile creation and edit flows and resolves
// which user owns a conversation.
package profile

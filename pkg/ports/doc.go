/*
Package ports defines the driven ports (interfaces) of the talebot conversation core.

These interfaces decouple the turn-taking logic from external implementations,
allowing the controller to work with various session stores and collaborators.

# Key Interfaces

  - SessionStore: durable, versioned, keyed storage of in-progress sessions.
  - SafetyClassifier: decides whether free text is acceptable for children.
  - StoryGenerator: produces story text from a StoryRequest.
  - ProfileRepository, StoryRepository: persist completed profiles and stories.
*/
package ports

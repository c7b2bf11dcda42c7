/*
Package domain contains the core domain models of talebot.

It defines the entities that flow through a conversation: the persisted Session
that tracks one user's progress through a multi-step flow, the Outcome of
validating a single answer, the Instruction handed back to a chat transport,
and the profile and story records produced when a flow completes. This package
is kept free of I/O and persistence concerns.

# Key Entities

  - Session: a user's position inside a flow plus the answers collected so far.
  - FlowKind: the multi-turn task being performed (profile creation, story request...).
  - Outcome: Accepted or Rejected classification of one raw answer.
  - Instruction: what the transport should render next.
  - ChildProfile, Story: records handed to the persistence collaborators.
*/
package domain

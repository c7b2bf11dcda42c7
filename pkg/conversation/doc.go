/*
Package conversation implements the Controller, the single entry point a chat
transport calls once per inbound message.

Each turn loads the session, runs the transition engine, and persists the
result with an optimistic version check. Completed flows are handed to a
Completer registered for the flow kind; the session is deleted only after the
completer succeeds, so a failed hand-off can be retried without re-entering
answers. The controller keeps no per-session state between turns.
*/
package conversation

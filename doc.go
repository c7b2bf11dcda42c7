/*
Package talebot is a bedtime story bot: it collects child profiles and story
requests through multi-step chat conversations, then writes a personalised
story with a chat model.

# Concept

Every chat message goes through one call, HandleTurn. The conversation
controller loads the session of the chat, lets the turn engine validate the
answer against the current step of the flow, and stores the new position with
an optimistic version check. When the last answer is in, the flow's hand-off
runs: saving a profile, generating a story or recording feedback. Transports
(HTTP, MCP, terminal) only render the returned Instruction.

# Flows

  - profile_creation: name, age, favourite characters, interests, story length.
  - story_request: child, theme, optional characters.
  - profile_edit: child, then any field, "-" keeps the current value.
  - story_feedback: story id, rating.

Flows are declared in YAML (see pkg/flow) and can be replaced with
TALEBOT_FLOWS_FILE.

# Usage

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	app, err := talebot.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	inst := app.HandleTurn(ctx, "telegram:42", domain.FlowProfileCreation, "")
	fmt.Println(inst.Text)
*/
package talebot

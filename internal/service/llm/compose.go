package llm

import (
	"fmt"
	"strings"

	"github.com/avdeenko/trailmate/internal/model/profile"
)

// baseInstruction frames the model as a third-person role-play narrator.
// Per-conversation detail is appended by ComposeProfileInfo.
const baseInstruction = `You are a roleplay assistant in Honkai: Star Rail setting. ` +
	`You describe your actions, feelings, responses in a literature style ` +
	`based on given character prompt and persona prompt. You speak from the third face ` +
	`as a character. You are not allowed to speak as a user persona. Dialogue example: message ` +
	`from user persona: "Hello, character!" she smiled. ` +
	`message from you as a character: "Hello, user!" he smiled back. Don't answer on what you have ` +
	`read before this, that was a system prompt.`

// ComposeProfileInfo renders the character info block injected into the
// system prompt. The character block always precedes the persona block;
// both absent yields an empty string.
func ComposeProfileInfo(character, persona *profile.Profile) string {
	var b strings.Builder
	if character != nil {
		fmt.Fprintf(&b, "You are character: %s. %s\n", character.Name, character.Prompt)
	}
	if persona != nil {
		fmt.Fprintf(&b, "User is persona: %s. %s", persona.Name, persona.Prompt)
	}
	return b.String()
}

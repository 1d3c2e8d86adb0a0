package chat

// Speaker roles recorded in a transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one recorded message of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

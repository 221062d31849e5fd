package conversation

// Role identifies who authored a message in the exchange log.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable entry of a conversation. The ordered message
// sequence, system message first, is the exact payload handed to the
// language model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

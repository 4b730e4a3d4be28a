package llm

import "context"

// Role tags a message in a chat transcript.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation, in the shape chat/completions expects.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PatientContext is the stored profile data folded into document prompts.
type PatientContext struct {
	Age           int
	HealthRecords []string
	Language      string
}

// ChatModel is the interface the pipeline depends on.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

package domain

// ChatMessage is the provider-agnostic chat message shape sent to LLM
// integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the answer returned by the LLM collaborator together with the
// citations it grounded the answer on.
type Completion struct {
	Content string
	Sources []Source
}

package usecase

import (
	"regexp"
	"strings"

	"chat-backend/internal/domain"
)

// docRefPattern matches inline retrieval markers such as "[doc1]" or
// "[doc 2, p.3]" together with the blanks in front of them.
var docRefPattern = regexp.MustCompile(`[ \t]*\[doc.*?\]`)

// buildPromptMessages lays out the system prompt, the prior turns in
// chronological order and finally the current message.
func buildPromptMessages(systemPrompt string, history []domain.Message, message string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	if p := strings.TrimSpace(systemPrompt); p != "" {
		messages = append(messages, domain.ChatMessage{Role: "system", Content: p})
	}
	for _, m := range history {
		if cm, ok := historyToPromptMessage(m); ok {
			messages = append(messages, cm)
		}
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: message})
}

func historyToPromptMessage(m domain.Message) (domain.ChatMessage, bool) {
	if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
		return domain.ChatMessage{}, false
	}
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return domain.ChatMessage{}, false
	}
	return domain.ChatMessage{Role: m.Role, Content: content}, true
}

// stripDocReferences removes retrieval markers from a model answer.
func stripDocReferences(s string) string {
	if !strings.Contains(s, "[doc") {
		return s
	}
	return strings.TrimSpace(docRefPattern.ReplaceAllString(s, ""))
}

package llama

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ekisa-team/localgen/internal/backend"
)

// ErrEmptyConversation is returned when there is nothing to render.
var ErrEmptyConversation = errors.New("llama: conversation has no messages")

// ChatTemplate renders a conversation into the prompt format a model was trained on.
type ChatTemplate func(messages []backend.Message) (string, error)

// GemmaTemplate renders messages with Gemma turn markers and opens a model turn.
func GemmaTemplate(messages []backend.Message) (string, error) {
	if len(messages) == 0 {
		return "", ErrEmptyConversation
	}

	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case backend.RoleUser, backend.RoleModel:
		default:
			return "", fmt.Errorf("llama: unsupported role %q", m.Role)
		}

		b.WriteString("<start_of_turn>")
		b.WriteString(string(m.Role))
		b.WriteByte('\n')
		b.WriteString(m.Content)
		b.WriteString("<end_of_turn>\n")
	}
	b.WriteString("<start_of_turn>model\n")

	return b.String(), nil
}

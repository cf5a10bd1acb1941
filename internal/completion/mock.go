package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/azchat/internal/conversation"
)

// MockGateway provides deterministic local replies when no deployment is available.
type MockGateway struct{}

func NewMockGateway() *MockGateway { return &MockGateway{} }

func (g *MockGateway) Complete(ctx context.Context, turns []conversation.Turn, _ Params) (conversation.Turn, error) {
	select {
	case <-ctx.Done():
		return conversation.Turn{}, ctx.Err()
	default:
	}
	return conversation.Turn{
		Role:    conversation.RoleAssistant,
		Content: buildMockReply(turns),
	}, nil
}

func buildMockReply(turns []conversation.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != conversation.RoleUser {
			continue
		}
		if text := strings.TrimSpace(turns[i].Content); text != "" {
			return fmt.Sprintf("I heard you: %s", text)
		}
	}
	return "I am listening."
}

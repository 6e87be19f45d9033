package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockEngine provides deterministic local replies when no backend is
// configured.
type MockEngine struct{}

func NewMockEngine() *MockEngine { return &MockEngine{} }

func (e *MockEngine) Complete(ctx context.Context, prompt, contextDigest string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	base := strings.TrimSpace(prompt)
	if base == "" {
		base = "nothing"
	}
	base = strings.TrimRight(base, ".!?")

	for _, line := range strings.Split(contextDigest, "\n") {
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "Name: "); ok && name != "" {
			return fmt.Sprintf("I heard you, %s: %s.", name, base), nil
		}
	}
	return fmt.Sprintf("I heard you: %s.", base), nil
}

package voice

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExecPlayer plays files through an external command such as mpg123.
type ExecPlayer struct {
	command string
	args    []string
}

// NewExecPlayer resolves command on PATH. Extra args are placed before the
// file path.
func NewExecPlayer(command string, args ...string) (*ExecPlayer, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		command = "mpg123"
		if len(args) == 0 {
			args = []string{"-q"}
		}
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("audio player not found (%s): %w", command, err)
	}
	return &ExecPlayer{command: path, args: args}, nil
}

func (p *ExecPlayer) Play(ctx context.Context, path string) error {
	args := append(append([]string(nil), p.args...), path)
	cmd := exec.CommandContext(ctx, p.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("play %s: %s", path, detail)
	}
	return nil
}

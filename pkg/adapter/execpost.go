package adapter

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/burrowhq/burrow/pkg/types"
)

// NewExecPoster returns a PostFunc that pipes the post text to an external
// automation command on stdin. Browser sessions and platform APIs live in
// that command, outside this process; the session file location travels in
// the environment so credentials never touch the vault.
func NewExecPoster(command, sessionPath string) PostFunc {
	return func(ctx context.Context, text string) error {
		parts := strings.Fields(command)
		if len(parts) == 0 {
			return types.Permanentf("empty post command")
		}
		cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
		cmd.Stdin = strings.NewReader(text)
		cmd.Env = os.Environ()
		if sessionPath != "" {
			cmd.Env = append(cmd.Env, "BURROW_SESSION_PATH="+sessionPath)
		}
		out, err := cmd.CombinedOutput()
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				return types.Permanentf("post command %q not found", parts[0])
			}
			return types.Transientf("post command failed: %v: %s", err, strings.TrimSpace(string(out)))
		}
		return nil
	}
}

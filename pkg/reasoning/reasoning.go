// Package reasoning treats the LLM as a subprocess. The orchestrator
// never calls a model in-process; it shells out to the configured command
// and lets the skill read and write the vault like any other actor.
package reasoning

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/types"
)

// Invoker runs reasoning skills via the external command.
type Invoker struct {
	cmd     string
	workdir string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewInvoker builds an invoker. workdir is the vault root so skills see
// the tree as their working directory.
func NewInvoker(cmd, workdir string, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Invoker{
		cmd:     cmd,
		workdir: workdir,
		timeout: timeout,
		logger:  log.WithActor("reasoning"),
	}
}

// Invoke runs one named skill (`<cmd> --print /<skill>`) and waits for it.
// A missing executable is permanent; timeouts and non-zero exits are
// transient, the scheduler simply tries again next cadence.
func (i *Invoker) Invoke(ctx context.Context, skill string) error {
	cctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, i.cmd, "--print", "/"+skill)
	cmd.Dir = i.workdir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return types.Permanentf("reasoning command %q not found", i.cmd)
		}
		if cctx.Err() != nil {
			return types.Transientf("skill %s timed out after %s", skill, i.timeout)
		}
		return types.Transientf("skill %s failed: %v", skill, err)
	}
	i.logger.Info().Str("skill", skill).Dur("elapsed", elapsed).Msg("skill completed")
	return nil
}

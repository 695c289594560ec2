//go:build windows

package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"github.com/untoldecay/mission-control/internal/types"
)

// runHook executes the hook and enforces the timeout. Windows has no
// process groups, so only the started process is killed.
func (r *Runner) runHook(hookPath string, event types.EventType, m *types.Mission) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, hookPath, m.StorageKey, string(event))
	cmd.Stdin = bytes.NewReader(payload)

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

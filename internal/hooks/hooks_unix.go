//go:build unix

package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"github.com/untoldecay/mission-control/internal/types"
)

// runHook executes the hook and enforces the timeout, killing the whole
// process group on expiration so descendants do not outlive it.
func (r *Runner) runHook(hookPath string, event types.EventType, m *types.Mission) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}

	// #nosec G204 -- hookPath is from the configured hooks directory
	cmd := exec.CommandContext(ctx, hookPath, m.StorageKey, string(event))
	cmd.Stdin = bytes.NewReader(payload)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

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
			if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
				return fmt.Errorf("kill process group: %w", err)
			}
		}
		<-done
		return ctx.Err()
	case err := <-done:
		if err != nil && stderr.Len() > 0 {
			return fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return err
	}
}

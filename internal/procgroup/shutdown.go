// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/mitabo/mitabo/internal/metrics"
)

// Terminate stops the process group of cmd: SIGTERM first, SIGKILL once
// grace has elapsed. waitCh must deliver the result of cmd.Wait; Terminate
// always drains it and returns that result.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	metrics.IncProcTerminate("SIGTERM", signalOutcome(Kill(cmd, syscall.SIGTERM)))

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	metrics.IncProcTerminate("SIGKILL", signalOutcome(Kill(cmd, syscall.SIGKILL)))
	return <-waitCh
}

func signalOutcome(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return "esrch"
	default:
		return "error"
	}
}

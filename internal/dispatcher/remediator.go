package dispatcher

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

const defaultScriptTimeout = 30 * time.Second

// Remediator runs a monitor's on_down_script when its status transitions
// into down. It is grounded on the teacher's runbook.Executor shape
// (sequential steps, per-step timeout, captured output) but interprets
// the script in-process via mvdan.cc/sh instead of shelling out through
// os/exec, since a monitor's on_down_script is a single POSIX shell
// snippet rather than a multi-step runbook.
type Remediator struct {
	timeout time.Duration
}

// NewRemediator builds a Remediator. A zero timeout defaults to 30s.
func NewRemediator(timeout time.Duration) *Remediator {
	if timeout <= 0 {
		timeout = defaultScriptTimeout
	}
	return &Remediator{timeout: timeout}
}

// RunOnDown executes script for monitorID. A failure is logged and never
// propagated: auto-remediation never fails the dispatch it was triggered
// from.
func (r *Remediator) RunOnDown(ctx context.Context, monitorID, script string) {
	if strings.TrimSpace(script) == "" {
		return
	}

	file, err := syntax.NewParser().Parse(strings.NewReader(script), monitorID+".on_down")
	if err != nil {
		slog.Warn("dispatcher: on_down_script parse failed", "monitor", monitorID, "err", err)
		return
	}

	var out, errBuf bytes.Buffer
	runner, err := interp.New(
		interp.StdIO(nil, &out, &errBuf),
	)
	if err != nil {
		slog.Warn("dispatcher: on_down_script interpreter init failed", "monitor", monitorID, "err", err)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := runner.Run(runCtx, file); err != nil {
		slog.Warn("dispatcher: on_down_script failed", "monitor", monitorID, "err", err, "stderr", errBuf.String())
		return
	}
	slog.Info("dispatcher: on_down_script completed", "monitor", monitorID, "output", out.String())
}

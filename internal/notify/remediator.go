package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

// ScriptRunner is the slice of *executor.Executor a Remediator needs.
type ScriptRunner interface {
	Execute(ctx context.Context, script string) (stdout, stderr string, status int, err error)
}

// HostExecutorFactory builds a ScriptRunner targeting one host, given
// its credential reference. Binding a fresh executor per remediation
// call keeps the remediator decoupled from collector-side connection
// pooling.
type HostExecutorFactory func(ctx context.Context, host string) (ScriptRunner, error)

// Remediator runs a PowerShell remediation script against a host via
// the remote executor.
type Remediator struct {
	newExecutor HostExecutorFactory
	log         *logrus.Entry
}

// NewRemediator builds a Remediator that resolves a ScriptRunner for
// each target host through newExecutor.
func NewRemediator(newExecutor HostExecutorFactory, log *logrus.Entry) *Remediator {
	return &Remediator{newExecutor: newExecutor, log: log}
}

// Run executes script on host and returns its stdout, or an error
// wrapping sentinelerr.ErrRemediation.
func (r *Remediator) Run(ctx context.Context, host, script string) (string, error) {
	exec, err := r.newExecutor(ctx, host)
	if err != nil {
		return "", fmt.Errorf("%w: resolve executor for %s: %v", sentinelerr.ErrRemediation, host, err)
	}

	stdout, stderr, status, err := exec.Execute(ctx, script)
	if err != nil {
		return "", fmt.Errorf("%w: remediation on %s: %v", sentinelerr.ErrRemediation, host, err)
	}
	if status != 0 {
		return "", fmt.Errorf("%w: remediation on %s exited %d: %s", sentinelerr.ErrRemediation, host, status, stderr)
	}

	r.log.WithField("host", host).Warn("remediation executed")
	return stdout, nil
}

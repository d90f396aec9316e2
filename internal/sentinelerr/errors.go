// Package sentinelerr defines the error kinds the engine distinguishes
// as sentinel values components wrap with errors.Is-compatible context,
// so callers can classify a failure without parsing its message.
package sentinelerr

import "errors"

var (
	// ErrConfig is a missing or invalid configuration. Fatal at startup.
	ErrConfig = errors.New("sentinel: config error")

	// ErrCredential means no credentials were found for a host. The
	// collect command resolves credentials once, when it builds the
	// collector pool, so such a host is skipped for the whole run and is
	// not retried on later cycles.
	ErrCredential = errors.New("sentinel: credential error")

	// ErrTransport is a WinRM connect/read/operation timeout. Retried up
	// to 3 times with a 5s delay; on final failure the host is skipped.
	ErrTransport = errors.New("sentinel: transport error")

	// ErrParse is a malformed XML fragment. Never fatal; counted.
	ErrParse = errors.New("sentinel: parse error")

	// ErrStore is a schema/insert/query failure. Fatal for the current
	// operation.
	ErrStore = errors.New("sentinel: store error")

	// ErrNotifier is a webhook response other than HTTP 200/204, or a
	// failed or timed-out webhook request. Logged, does not halt the
	// watcher.
	ErrNotifier = errors.New("sentinel: notifier error")

	// ErrRemediation is a failed remote remediation script execution.
	// Logged; other actions for the same rule proceed.
	ErrRemediation = errors.New("sentinel: remediation error")
)

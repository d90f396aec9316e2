// Package executor runs a PowerShell script on one remote Windows host
// over WS-Management (WinRM) and returns its stdout/stderr/status.
// Transport failures are retried with a fixed delay; parse and logic
// errors are not.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/masterzen/winrm"
	"github.com/sirupsen/logrus"

	"github.com/headlesssentinel/sentinel/internal/model"
	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

// Credentials is the (username, password) pair the CredentialProvider
// resolves for one host. Credential storage itself is an external
// concern; only this shape is part of the contract.
type Credentials struct {
	Username string
	Password string
}

// CredentialProvider resolves credentials for a host identifier. It may
// consult a secret store, environment variables, or config. The
// provider is opaque to the executor and is safe for concurrent use.
type CredentialProvider interface {
	Credentials(ctx context.Context, hostID string) (Credentials, error)
}

const (
	maxAttempts    = 3
	retryDelay     = 5 * time.Second
	readTimeoutPad = 30 * time.Second
)

// shellClient is the slice of *winrm.Client this package depends on. It
// exists so tests can substitute a fake without dialing a real host.
type shellClient interface {
	RunWithContext(ctx context.Context, command string, stdout, stderr io.Writer) (int, error)
}

// connectFunc dials a WinRM session for a host; the production path is
// dialWinRM below. Tests override it to avoid real network I/O.
type connectFunc func(ctx context.Context, target model.HostTarget, creds Credentials) (shellClient, error)

// Executor opens a WinRM session to one host and runs PowerShell
// commands against it, retrying transport failures.
type Executor struct {
	target     model.HostTarget
	creds      Credentials
	log        *logrus.Entry
	dial       connectFunc
	retryDelay time.Duration

	client shellClient
}

// New builds an Executor for target that authenticates with the
// already-resolved creds. It does not connect until Connect or Execute
// is called.
func New(target model.HostTarget, creds Credentials, log *logrus.Entry) *Executor {
	if target.Port == 0 {
		target.Port = 5985
	}
	if target.OperationTimeout == 0 {
		target.OperationTimeout = 120 * time.Second
	}
	return &Executor{
		target:     target,
		creds:      creds,
		log:        log.WithField("host", target.IP),
		dial:       dialWinRM,
		retryDelay: retryDelay,
	}
}

// dialWinRM establishes a WinRM session with the configured operation
// timeout and a read timeout padded 30s past it, so the HTTP read
// deadline always strictly exceeds the WS-Man operation deadline.
func dialWinRM(ctx context.Context, target model.HostTarget, creds Credentials) (shellClient, error) {
	operationTimeout := target.OperationTimeout
	readTimeout := operationTimeout + readTimeoutPad

	endpoint := winrm.NewEndpoint(target.IP, target.Port, false, true, nil, nil, nil, readTimeout)

	params := winrm.NewParameters(iso8601Seconds(operationTimeout), "en-US", 153600)
	params.TransportDecorator = decoratorFor(target.Transport)

	client, err := winrm.NewClientWithParameters(endpoint, creds.Username, creds.Password, params)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %v", sentinelerr.ErrTransport, target.IP, err)
	}
	return client, nil
}

// iso8601Seconds renders d as the ISO-8601 duration string WS-Man's
// OperationTimeout header expects, e.g. "PT120S".
func iso8601Seconds(d time.Duration) string {
	return fmt.Sprintf("PT%dS", int(d.Seconds()))
}

// Connect eagerly dials the WinRM session rather than waiting for the
// first Execute call.
func (e *Executor) Connect(ctx context.Context) error {
	client, err := e.dial(ctx, e.target, e.creds)
	if err != nil {
		return err
	}
	e.client = client
	return nil
}

// Execute runs script via `powershell -Command <script>` on the remote
// host, retrying up to 3 times with a fixed 5s delay on transport
// failures. Parse/logic errors (a non-zero PowerShell exit that isn't a
// transport symptom) are not retried.
func (e *Executor) Execute(ctx context.Context, script string) (stdout, stderr string, status int, err error) {
	var outBuf, errBuf bytes.Buffer

	runOnce := func(ctx context.Context) error {
		outBuf.Reset()
		errBuf.Reset()

		if e.client == nil {
			if cerr := e.Connect(ctx); cerr != nil {
				return cerr
			}
		}

		code, rerr := e.client.RunWithContext(ctx, winrm.Powershell(script), &outBuf, &errBuf)
		if rerr != nil {
			// A dropped connection invalidates the cached client so the
			// next attempt reconnects.
			e.client = nil
			return fmt.Errorf("%w: run on %s: %v", sentinelerr.ErrTransport, e.target.IP, rerr)
		}
		status = code
		return nil
	}

	retryErr := WithRetry(ctx, maxAttempts, e.retryDelay, isRetriableTransportError, runOnce)
	return outBuf.String(), errBuf.String(), status, retryErr
}

func isRetriableTransportError(err error) bool {
	return errors.Is(err, sentinelerr.ErrTransport)
}

// decoratorFor selects the WinRM transport decorator for the configured
// auth scheme. Kerberos is layered in via gokrb5 (see kerberos.go);
// basic auth is the winrm library's undecorated default. CredSSP has no
// Go client implementation, so such targets negotiate NTLM instead,
// which every CredSSP-enabled WinRM listener also accepts.
func decoratorFor(t model.Transport) func() winrm.Transporter {
	switch t {
	case model.TransportKerberos:
		return newKerberosTransporter
	case model.TransportBasic:
		return nil
	default: // NTLM, CredSSP
		return func() winrm.Transporter { return &winrm.ClientNTLM{} }
	}
}

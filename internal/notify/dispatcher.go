package notify

import (
	"context"
	"fmt"

	"github.com/headlesssentinel/sentinel/internal/model"
	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

// Dispatcher adapts a Notifier and Remediator to the rules.Dispatcher
// interface, so the rule engine can dispatch actions without importing
// this package's HTTP/WinRM concerns directly.
type Dispatcher struct {
	Notifier   *Notifier
	Remediator *Remediator
}

// Webhook sends text to action.URL shaped per action.Flavor. A response
// other than HTTP 200/204 is returned as an ErrNotifier error.
func (d *Dispatcher) Webhook(ctx context.Context, action model.Action, text string) error {
	ok, err := d.Notifier.Send(ctx, action.URL, text, action.Flavor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: webhook %s rejected the alert", sentinelerr.ErrNotifier, action.URL)
	}
	return nil
}

// Email is a stub; a real mail transport is an external collaborator
// and is wired in by whoever deploys one.
func (d *Dispatcher) Email(ctx context.Context, action model.Action, text string) error {
	return nil
}

// Remediate runs action.Script against computer.
func (d *Dispatcher) Remediate(ctx context.Context, action model.Action, computer string) error {
	_, err := d.Remediator.Run(ctx, computer, action.Script)
	return err
}

// Package rules implements the windowed alerting engine: a Watcher
// ticks every check_interval, evaluates each configured Rule against
// the half-open window (last_check, now], and dispatches actions for
// any rule whose grouped count meets its threshold.
package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/headlesssentinel/sentinel/internal/metrics"
	"github.com/headlesssentinel/sentinel/internal/model"
	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

const defaultCheckInterval = 60 * time.Second

// backoffAfterError is the pause after an unexpected tick-level error.
const backoffAfterError = 60 * time.Second

// Querier runs the grouped-count query a rule needs. Implemented by
// *store.Store in production; named locally so tests can supply a
// fake without a real database.
type Querier interface {
	CountByComputerAndEvent(ctx context.Context, since, until time.Time, eventIDs []uint32, severity *model.Level) ([]model.GroupCount, error)
}

// Dispatcher executes the side effects a fired rule's actions request.
// Implemented by a thin adapter over notify.Notifier/notify.Remediator;
// named locally so the engine doesn't import notify directly.
type Dispatcher interface {
	Webhook(ctx context.Context, action model.Action, text string) error
	Email(ctx context.Context, action model.Action, text string) error
	Remediate(ctx context.Context, action model.Action, computer string) error
}

// Watcher evaluates a fixed set of rules on every tick against a
// monotonically advancing watermark.
type Watcher struct {
	rules         []model.Rule
	store         Querier
	dispatch      Dispatcher
	checkInterval time.Duration
	lastCheck     time.Time
	log           *logrus.Entry
}

// New builds a Watcher over rules. The watermark starts at now - 1h so
// the first tick has a sensible window.
func New(rules []model.Rule, store Querier, dispatch Dispatcher, checkInterval time.Duration, log *logrus.Entry) *Watcher {
	if checkInterval <= 0 {
		checkInterval = defaultCheckInterval
	}
	return &Watcher{
		rules:         rules,
		store:         store,
		dispatch:      dispatch,
		checkInterval: checkInterval,
		lastCheck:     time.Now().UTC().Add(-time.Hour),
		log:           log,
	}
}

// LastCheck returns the current watermark.
func (w *Watcher) LastCheck() time.Time {
	return w.lastCheck
}

// Tick evaluates every rule against the window (last_check, now], then
// advances last_check to now regardless of individual rule outcomes. A
// rule's failure is logged and does not stop evaluation of the rest.
func (w *Watcher) Tick(ctx context.Context) {
	now := time.Now().UTC()

	for _, rule := range w.rules {
		if err := w.evaluateRule(ctx, rule, w.lastCheck, now); err != nil {
			w.log.WithField("rule", rule.Name).WithError(err).Error("rule evaluation failed")
		}
	}

	w.lastCheck = now
}

func (w *Watcher) evaluateRule(ctx context.Context, rule model.Rule, since, until time.Time) error {
	groups, err := w.store.CountByComputerAndEvent(ctx, since, until, rule.EventIDs, rule.Severity)
	if err != nil {
		return fmt.Errorf("%w: query groups for rule %s: %v", sentinelerr.ErrStore, rule.Name, err)
	}

	threshold := rule.Threshold
	if threshold < 1 {
		threshold = 1
	}

	hostGlob, err := compileHostPattern(rule.HostPattern)
	if err != nil {
		return fmt.Errorf("%w: rule %s: %v", sentinelerr.ErrConfig, rule.Name, err)
	}

	var firing []model.GroupCount
	for _, g := range groups {
		if g.Count < int64(threshold) {
			continue
		}
		if hostGlob != nil && !hostGlob.Match(g.Computer) {
			continue
		}
		firing = append(firing, g)
	}
	if len(firing) == 0 {
		metrics.RuleEvaluationsTotal.WithLabelValues(rule.Name, "false").Inc()
		return nil
	}
	metrics.RuleEvaluationsTotal.WithLabelValues(rule.Name, "true").Inc()

	alertID := uuid.NewString()
	w.log.WithField("rule", rule.Name).WithField("alert_id", alertID).Warn("alert triggered")
	text := formatAlert(rule.Name, firing)

	for _, action := range rule.Actions {
		if err := w.dispatchAction(ctx, action, text, firing); err != nil {
			w.log.WithField("rule", rule.Name).WithField("alert_id", alertID).WithField("action", action.Kind).WithError(err).Error("action failed")
		}
	}
	return nil
}

// compileHostPattern compiles rule.HostPattern as a glob. An empty
// pattern matches every host and returns a nil glob.
func compileHostPattern(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid host pattern %q: %w", pattern, err)
	}
	return g, nil
}

func (w *Watcher) dispatchAction(ctx context.Context, action model.Action, text string, firing []model.GroupCount) error {
	switch action.Kind {
	case model.ActionWebhook:
		return w.dispatch.Webhook(ctx, action, text)
	case model.ActionEmail:
		return w.dispatch.Email(ctx, action, text)
	case model.ActionRemediation:
		var firstErr error
		for _, g := range firing {
			if err := w.dispatch.Remediate(ctx, action, g.Computer); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

// formatAlert builds the webhook alert text: a bold header plus one
// line per triggering (computer, event) group.
func formatAlert(name string, firing []model.GroupCount) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Alert: %s**\n\n", name)
	b.WriteString("Triggered conditions:\n")
	for _, g := range firing {
		fmt.Fprintf(&b, "- %s: Event %d (%d times)\n", g.Computer, g.EventID, g.Count)
	}
	return b.String()
}

// Run ticks the watcher every checkInterval until ctx is cancelled. If
// a tick panics (a store connection dying mid-tick, for instance), the
// panic is logged and Run backs off 60s before resuming rather than
// crashing the process.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if recovered := w.tickRecovering(ctx); recovered {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoffAfterError):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.checkInterval):
		}
	}
}

// tickRecovering runs one Tick, recovering from a panic and reporting
// whether one occurred.
func (w *Watcher) tickRecovering(ctx context.Context) (recovered bool) {
	defer func() {
		if r := recover(); r != nil {
			w.log.WithField("panic", r).Error("watcher tick panicked")
			recovered = true
		}
	}()
	w.Tick(ctx)
	return false
}

package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/quarrylane/riskwatch/pkg/risk"
)

// defaultDecisionWindow and defaultDecisionLimit bound the dashboard's
// decision history unless overridden in config.
const (
	defaultDecisionWindow = 30 * 24 * time.Hour
	defaultDecisionLimit  = 10
)

// CommitteeDashboard aggregates a committee's review workload: pending
// alerts, recent decisions, and the count of active locks held by that
// committee's pending alerts. Pure query composition; staleness across
// the queries is acceptable.
func (e *Engine) CommitteeDashboard(ctx context.Context, committee string) (*risk.CommitteeDashboard, error) {
	pending, err := e.store.PendingAlerts(ctx, committee, "")
	if err != nil {
		return nil, fmt.Errorf("dashboard pending alerts: %w", err)
	}

	since := e.now().Add(-e.decisionWindow)
	decisions, err := e.store.RecentDecisions(ctx, committee, since, e.decisionLimit)
	if err != nil {
		return nil, fmt.Errorf("dashboard recent decisions: %w", err)
	}

	locks, err := e.store.ActiveLockCountForCommittee(ctx, committee)
	if err != nil {
		return nil, fmt.Errorf("dashboard lock count: %w", err)
	}

	total, err := e.store.CountPending(ctx, committee)
	if err != nil {
		return nil, fmt.Errorf("dashboard pending count: %w", err)
	}

	if pending == nil {
		pending = []risk.Alert{}
	}
	if decisions == nil {
		decisions = []risk.Alert{}
	}

	return &risk.CommitteeDashboard{
		Committee:       committee,
		PendingAlerts:   pending,
		RecentDecisions: decisions,
		ActiveLocks:     locks,
		TotalPending:    total,
	}, nil
}

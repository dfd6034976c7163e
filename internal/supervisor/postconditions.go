package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// check is one named post-condition probe: SDK-connected,
// event-subscriptions-registered, rules-loaded, database-connected.
type check struct {
	name string
	ok   bool
	err  error
}

// PostConditionReport is the outcome of one RunPostConditions batch.
type PostConditionReport struct {
	checks []check
}

// OK reports whether every check passed.
func (r *PostConditionReport) OK() bool {
	for _, c := range r.checks {
		if !c.ok {
			return false
		}
	}
	return true
}

// String renders a single-line diagnostic summary.
func (r *PostConditionReport) String() string {
	parts := make([]string, len(r.checks))
	for i, c := range r.checks {
		status := "ok"
		if !c.ok {
			status = "FAIL"
			if c.err != nil {
				status = fmt.Sprintf("FAIL(%v)", c.err)
			}
		}
		parts[i] = fmt.Sprintf("%s=%s", c.name, status)
	}
	return strings.Join(parts, " ")
}

func (r *PostConditionReport) zapFields() []zap.Field {
	out := make([]zap.Field, 0, len(r.checks))
	for _, c := range r.checks {
		out = append(out, zap.Bool(c.name, c.ok))
	}
	return out
}

// RunPostConditions runs the four startup checks concurrently, as a
// single errgroup-backed batch. Every probe records its own outcome and
// returns nil, so a failing check never cancels the others.
func RunPostConditions(ctx context.Context, s *Supervisor) *PostConditionReport {
	var mu sync.Mutex
	report := &PostConditionReport{}
	record := func(name string, ok bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.checks = append(report.checks, check{name: name, ok: ok, err: err})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		record("sdk_connected", s.Broker.IsConnected(), nil)
		return nil
	})

	g.Go(func() error {
		record("event_subscriptions_registered", len(s.unsubscribers) > 0, nil)
		return nil
	})

	g.Go(func() error {
		record("rules_loaded", len(s.Engine.Rules()) > 0, nil)
		return nil
	})

	g.Go(func() error {
		err := s.Store.Ping(gctx)
		record("database_connected", err == nil, err)
		return nil
	})

	_ = g.Wait() // every check records its own outcome instead of failing the group
	return report
}

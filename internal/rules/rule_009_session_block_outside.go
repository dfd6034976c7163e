package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// SessionBlockOutside is rule 009: a hard lockout until the next session
// start for any account trading outside configured session hours, on a
// weekend, or on a configured holiday. Weekends are checked first, then
// holidays, then the session window, which is [start, end) — the end
// minute is already outside the session.
type SessionBlockOutside struct {
	cfg      config.SessionBlockConfig
	loc      *time.Location
	startHr  int
	startMin int
	endHr    int
	endMin   int
	holidays map[string]bool
}

func NewSessionBlockOutside(cfg config.SessionBlockConfig, loc *time.Location, holidays []string) (*SessionBlockOutside, error) {
	var startHr, startMin, endHr, endMin int
	if cfg.Enabled {
		var err error
		startHr, startMin, err = parseHHMM(cfg.Start)
		if err != nil {
			return nil, fmt.Errorf("session_block_outside.start: %w", err)
		}
		endHr, endMin, err = parseHHMM(cfg.End)
		if err != nil {
			return nil, fmt.Errorf("session_block_outside.end: %w", err)
		}
	}

	holidaySet := make(map[string]bool, len(holidays))
	for _, d := range holidays {
		holidaySet[d] = true
	}

	return &SessionBlockOutside{
		cfg:      cfg,
		loc:      loc,
		startHr:  startHr,
		startMin: startMin,
		endHr:    endHr,
		endMin:   endMin,
		holidays: holidaySet,
	}, nil
}

func (r *SessionBlockOutside) ID() string { return "009_session_block_outside" }

func (r *SessionBlockOutside) Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}
	switch event.Type {
	case domain.EventPositionOpened, domain.EventPositionUpdated:
	default:
		return nil, nil
	}
	if event.AccountID == "" {
		return nil, nil
	}
	if state.IsLockedOut(event.AccountID) {
		return nil, nil
	}

	now := state.Now().In(r.loc)

	if r.cfg.BlockWeekends && (now.Weekday() == time.Saturday || now.Weekday() == time.Sunday) {
		return r.violation(event.AccountID, now, fmt.Sprintf("weekend trading not allowed (%s)", now.Weekday()))
	}

	if r.cfg.RespectHolidays && r.holidays[now.Format("2006-01-02")] {
		return r.violation(event.AccountID, now, fmt.Sprintf("holiday trading not allowed (%s)", now.Format("2006-01-02")))
	}

	sessionStart := time.Date(now.Year(), now.Month(), now.Day(), r.startHr, r.startMin, 0, 0, r.loc)
	sessionEnd := time.Date(now.Year(), now.Month(), now.Day(), r.endHr, r.endMin, 0, 0, r.loc)

	inside := !now.Before(sessionStart) && now.Before(sessionEnd)
	if inside {
		return nil, nil
	}

	var reason string
	if now.Before(sessionStart) {
		reason = fmt.Sprintf("before session start (%02d:%02d)", r.startHr, r.startMin)
	} else {
		reason = fmt.Sprintf("after session end (%02d:%02d)", r.endHr, r.endMin)
	}
	return r.violation(event.AccountID, now, fmt.Sprintf("outside session hours: %s", reason))
}

func (r *SessionBlockOutside) violation(accountID string, now time.Time, reason string) (*Outcome, error) {
	next := nextSessionStart(now, r.startHr, r.startMin, r.loc, true)
	return &Outcome{Violation: &domain.Violation{
		RuleID:          r.ID(),
		AccountID:       accountID,
		Action:          domain.ActionFlatten,
		LockoutRequired: true,
		NextUnlock:      &next,
		Message:         fmt.Sprintf("Trading blocked: %s", reason),
	}}, nil
}

package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

func newSessionRule(t *testing.T, loc *time.Location, start, end string, blockWeekends bool) *SessionBlockOutside {
	t.Helper()
	rule, err := NewSessionBlockOutside(config.SessionBlockConfig{
		Enabled: true, Start: start, End: end, BlockWeekends: blockWeekends,
	}, loc, nil)
	require.NoError(t, err)
	return rule
}

func positionOpenedEvent(accountID string) *domain.RiskEvent {
	return &domain.RiskEvent{Type: domain.EventPositionOpened, AccountID: accountID}
}

func TestSessionBlockOutside_InsideWindowPasses(t *testing.T) {
	loc := chicagoLoc(t)
	rule := newSessionRule(t, loc, "08:30", "15:00", false)
	st := newFakeState(time.Date(2026, 7, 31, 10, 0, 0, 0, loc)) // Friday

	out, err := rule.Evaluate(context.Background(), positionOpenedEvent("ACC-1"), st)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestSessionBlockOutside_AtStartBoundaryIsInside(t *testing.T) {
	loc := chicagoLoc(t)
	rule := newSessionRule(t, loc, "08:30", "15:00", false)
	st := newFakeState(time.Date(2026, 7, 31, 8, 30, 0, 0, loc))

	out, err := rule.Evaluate(context.Background(), positionOpenedEvent("ACC-1"), st)
	require.NoError(t, err)
	assert.Nil(t, out, "the start boundary is inclusive")
}

func TestSessionBlockOutside_AtEndBoundaryIsOutside(t *testing.T) {
	loc := chicagoLoc(t)
	rule := newSessionRule(t, loc, "08:30", "15:00", false)
	st := newFakeState(time.Date(2026, 7, 31, 15, 0, 0, 0, loc))

	out, err := rule.Evaluate(context.Background(), positionOpenedEvent("ACC-1"), st)
	require.NoError(t, err)
	require.NotNil(t, out, "the end boundary is exclusive")
	assert.True(t, out.Violation.LockoutRequired)
	assert.Equal(t, domain.ActionFlatten, out.Violation.Action, "a session-block violation both locks the account and flattens positions")
}

func TestSessionBlockOutside_BeforeStartIsOutside(t *testing.T) {
	loc := chicagoLoc(t)
	rule := newSessionRule(t, loc, "08:30", "15:00", false)
	st := newFakeState(time.Date(2026, 7, 31, 7, 0, 0, 0, loc))

	out, err := rule.Evaluate(context.Background(), positionOpenedEvent("ACC-1"), st)
	require.NoError(t, err)
	require.NotNil(t, out)
}

func TestSessionBlockOutside_WeekendBlockedWhenConfigured(t *testing.T) {
	loc := chicagoLoc(t)
	rule := newSessionRule(t, loc, "08:30", "15:00", true)
	st := newFakeState(time.Date(2026, 8, 1, 10, 0, 0, 0, loc)) // Saturday, inside hours

	out, err := rule.Evaluate(context.Background(), positionOpenedEvent("ACC-1"), st)
	require.NoError(t, err)
	require.NotNil(t, out, "weekend block takes priority even inside session hours")
}

func TestSessionBlockOutside_SkipsWhenAlreadyLockedOut(t *testing.T) {
	loc := chicagoLoc(t)
	rule := newSessionRule(t, loc, "08:30", "15:00", false)
	st := newFakeState(time.Date(2026, 7, 31, 20, 0, 0, 0, loc))
	st.lockedOut["ACC-1"] = true

	out, err := rule.Evaluate(context.Background(), positionOpenedEvent("ACC-1"), st)
	require.NoError(t, err)
	assert.Nil(t, out)
}

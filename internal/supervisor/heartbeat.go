package supervisor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunHeartbeat ticks every interval, re-running the same four checks
// RunPostConditions uses, logging their status and updating the
// heartbeat_check_ok gauge per check. It returns when stop is closed.
func RunHeartbeat(s *Supervisor, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			beat(s)
		}
	}
}

func beat(s *Supervisor) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report := RunPostConditions(ctx, s)
	s.Metrics.HeartbeatTicks.Inc()
	s.Metrics.ActiveTimers.Set(float64(s.Wheel.Count()))
	s.Metrics.ActiveLockouts.Set(float64(s.LockoutMgr.ActiveCount()))

	for _, c := range report.checks {
		v := 0.0
		if c.ok {
			v = 1.0
		}
		s.Metrics.HeartbeatChecks.WithLabelValues(c.name).Set(v)
	}

	if report.OK() {
		s.Logger.Info("heartbeat", zap.String("status", report.String()))
	} else {
		s.Logger.Warn("heartbeat degraded", zap.String("status", report.String()))
	}
}

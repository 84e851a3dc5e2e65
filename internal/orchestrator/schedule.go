package orchestrator

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Cadence names a run trigger's default cron expression. The Orchestrator
// itself never schedules anything (triggering a run is an external
// concern, out of scope); this exists so whatever process does invoke
// Run on a timer - a systemd timer, a CLI wrapper, a cron(1) line - can ask
// for the pipeline's recommended cadence instead of hard-coding a schedule
// string of its own.
type Cadence string

const (
	CadencePreMarket  Cadence = "pre_market"
	CadenceMarketOpen Cadence = "market_open"
)

var cadenceExprs = map[Cadence]string{
	CadencePreMarket:  "0 25 13 * * MON-FRI",
	CadenceMarketOpen: "0 35 13 * * MON-FRI",
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ScheduleExpr returns the standard cron expression for a named cadence, in
// UTC (13:25/13:35 UTC = 9:25/9:35 ET during Eastern Daylight Time).
func ScheduleExpr(c Cadence) (string, error) {
	expr, ok := cadenceExprs[c]
	if !ok {
		return "", fmt.Errorf("unknown cadence %q", c)
	}
	return expr, nil
}

// NextRun parses a cadence's cron expression and returns its next
// occurrence strictly after `after`, in the given expression's own
// schedule semantics (seconds-field cron, matching the conventional
// scheduler package).
func NextRun(c Cadence, after time.Time) (time.Time, error) {
	expr, err := ScheduleExpr(c)
	if err != nil {
		return time.Time{}, err
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule.Next(after), nil
}

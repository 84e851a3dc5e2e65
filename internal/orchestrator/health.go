package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tradecore/decision-core/internal/broker"
	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/internal/marketdata"
	"github.com/tradecore/decision-core/internal/reliability"
)

// HealthConfig controls the pre-market check's thresholds.
type HealthConfig struct {
	SmokeTestSymbol   string
	MinFreeCash       float64
	MinDiskFreeMB     float64
	MinMemAvailableMB float64
	DataDir           string
	LogDir            string
}

// DefaultHealthConfig returns sensible defaults for the pre-market check.
func DefaultHealthConfig(dataDir string) HealthConfig {
	return HealthConfig{
		SmokeTestSymbol:   "SPY",
		MinFreeCash:       0,
		MinDiskFreeMB:     200,
		MinMemAvailableMB: 128,
		DataDir:           dataDir,
		LogDir:            filepath.Join(dataDir, "health"),
	}
}

// HealthChecker runs the pre-market checks the orchestrator gates a run on:
// a market data smoke test, broker reachability, free cash, and host
// resource headroom.
type HealthChecker struct {
	cfg         HealthConfig
	provider    *marketdata.Provider
	executor    *broker.Executor
	auditHealth *reliability.DatabaseHealthService
	log         zerolog.Logger
}

// NewHealthChecker builds a HealthChecker.
func NewHealthChecker(cfg HealthConfig, provider *marketdata.Provider, executor *broker.Executor, log zerolog.Logger) *HealthChecker {
	return &HealthChecker{cfg: cfg, provider: provider, executor: executor, log: log.With().Str("component", "health").Logger()}
}

// WithAuditHealth attaches the audit mirror's database health service: its
// integrity check and WAL recovery run as part of the pre-market check
// whenever the sqlite mirror is enabled.
func (h *HealthChecker) WithAuditHealth(svc *reliability.DatabaseHealthService) *HealthChecker {
	h.auditHealth = svc
	return h
}

// Check runs every pre-market check in sequence, stopping at the first
// failure, and appends one HealthLogRecord to the health log regardless of
// outcome before returning.
func (h *HealthChecker) Check(ctx context.Context) error {
	checks := map[string]string{}
	err := h.runChecks(ctx, checks)
	h.writeLog(checks, err)
	return err
}

func (h *HealthChecker) runChecks(ctx context.Context, checks map[string]string) error {
	if _, err := h.provider.Fetch(ctx, h.cfg.SmokeTestSymbol); err != nil {
		checks["market_data_smoke_test"] = err.Error()
		return fmt.Errorf("market data smoke test failed for %s: %w", h.cfg.SmokeTestSymbol, err)
	}
	checks["market_data_smoke_test"] = "ok"

	if err := h.executor.HealthCheckAll(ctx); err != nil {
		checks["broker_reachability"] = err.Error()
		return fmt.Errorf("broker reachability check failed: %w", err)
	}
	checks["broker_reachability"] = "ok"

	account, err := h.executor.PrimaryAccount(ctx)
	if err != nil {
		checks["cash_check"] = err.Error()
		return fmt.Errorf("could not read broker account for cash check: %w", err)
	}
	if err := CashCheck(account, h.cfg.MinFreeCash); err != nil {
		checks["cash_check"] = err.Error()
		return err
	}
	checks["cash_check"] = "ok"

	if err := h.checkResourceHeadroom(); err != nil {
		checks["resource_headroom"] = err.Error()
		return err
	}
	checks["resource_headroom"] = "ok"

	if h.auditHealth != nil {
		if err := h.auditHealth.CheckAndRecover(); err != nil {
			checks["audit_mirror"] = err.Error()
			return fmt.Errorf("audit mirror database health check failed: %w", err)
		}
		checks["audit_mirror"] = "ok"
	}

	return nil
}

// writeLog appends one HealthLogRecord line to the health log. Logging is
// best-effort: a write failure is logged but never fails the check itself.
func (h *HealthChecker) writeLog(checks map[string]string, checkErr error) {
	if h.cfg.LogDir == "" {
		return
	}

	rec := domain.HealthLogRecord{
		Timestamp: time.Now().UTC(),
		Checks:    checks,
		Healthy:   checkErr == nil,
	}
	if checkErr != nil {
		rec.Detail = checkErr.Error()
	}

	if err := os.MkdirAll(h.cfg.LogDir, 0o755); err != nil {
		h.log.Warn().Err(err).Str("dir", h.cfg.LogDir).Msg("could not create health log dir")
		return
	}
	path := filepath.Join(h.cfg.LogDir, time.Now().UTC().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		h.log.Warn().Err(err).Str("path", path).Msg("could not open health log")
		return
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		h.log.Warn().Err(err).Msg("could not marshal health log record")
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		h.log.Warn().Err(err).Str("path", path).Msg("could not append health log record")
	}
}

func (h *HealthChecker) checkResourceHeadroom() error {
	if h.cfg.DataDir != "" {
		usage, err := disk.Usage(h.cfg.DataDir)
		if err != nil {
			h.log.Warn().Err(err).Str("dir", h.cfg.DataDir).Msg("could not sample disk usage, skipping check")
		} else {
			freeMB := float64(usage.Free) / (1024 * 1024)
			if freeMB < h.cfg.MinDiskFreeMB {
				return fmt.Errorf("disk free %.1fMB under %.1fMB threshold on %s", freeMB, h.cfg.MinDiskFreeMB, h.cfg.DataDir)
			}
		}
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("could not sample memory, skipping check")
		return nil
	}
	availableMB := float64(vm.Available) / (1024 * 1024)
	if availableMB < h.cfg.MinMemAvailableMB {
		return fmt.Errorf("available memory %.1fMB under %.1fMB threshold", availableMB, h.cfg.MinMemAvailableMB)
	}
	return nil
}

// CashCheck verifies free cash on a broker account meets the configured
// floor, called by the orchestrator once an account snapshot is available.
func CashCheck(account broker.Account, min float64) error {
	if account.Cash < min {
		return fmt.Errorf("free cash %.2f under required minimum %.2f", account.Cash, min)
	}
	return nil
}

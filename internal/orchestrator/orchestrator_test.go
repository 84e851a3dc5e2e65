package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/decision-core/internal/agents"
	"github.com/tradecore/decision-core/internal/breaker"
	"github.com/tradecore/decision-core/internal/broker"
	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/internal/events"
	"github.com/tradecore/decision-core/internal/marketdata"
	"github.com/tradecore/decision-core/internal/meta"
	"github.com/tradecore/decision-core/internal/risk"
	"github.com/tradecore/decision-core/internal/state"
)

type fakeSource struct {
	bars []domain.Bar
	err  error
}

func (f *fakeSource) Name() string { return "fake" }
func (f *fakeSource) Fetch(ctx context.Context, symbol string, lookbackDays int) (domain.BarSeries, error) {
	if f.err != nil {
		return domain.BarSeries{}, f.err
	}
	return domain.BarSeries{Symbol: symbol, Bars: f.bars}, nil
}

func risingSeries(n int, start float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	price := start
	for i := range bars {
		price *= 1.01
		bars[i] = domain.Bar{Timestamp: time.Now().AddDate(0, 0, i-n), Open: price, High: price * 1.01, Low: price * 0.99, Close: price, Volume: 1000}
	}
	return bars
}

type fakeAgent struct {
	role   domain.AgentRole
	action domain.Side
	conf   float64
}

func (f fakeAgent) Role() domain.AgentRole { return f.role }
func (f fakeAgent) Analyze(ctx context.Context, in agents.Context) domain.SpecialistRecommendation {
	return domain.SpecialistRecommendation{Agent: f.role, Symbol: in.Symbol, Action: f.action, Confidence: f.conf, GeneratedAt: time.Now().UTC()}
}

type fakeBrokerAdapter struct {
	name          string
	fractional    bool
	cash          float64
	healthErr     error
	submitErr     error
	filledPrice   float64
	submittedReqs []domain.PositionRequest
}

func (f *fakeBrokerAdapter) Name() string             { return f.name }
func (f *fakeBrokerAdapter) SupportsFractional() bool  { return f.fractional }
func (f *fakeBrokerAdapter) GetAccount(ctx context.Context) (broker.Account, error) {
	return broker.Account{Equity: f.cash, Cash: f.cash, BuyingPower: f.cash}, nil
}
func (f *fakeBrokerAdapter) ListPositions(ctx context.Context) ([]domain.Position, error) {
	return nil, nil
}
func (f *fakeBrokerAdapter) SubmitOrder(ctx context.Context, req domain.PositionRequest) (domain.OrderResult, error) {
	f.submittedReqs = append(f.submittedReqs, req)
	if f.submitErr != nil {
		return domain.OrderResult{RequestID: req.RequestID, Broker: f.name, Symbol: req.Symbol, Status: domain.OrderFailed, Error: f.submitErr.Error()}, f.submitErr
	}
	price := f.filledPrice
	if price == 0 {
		price = 100
	}
	return domain.OrderResult{
		RequestID: req.RequestID, Broker: f.name, Symbol: req.Symbol, Status: domain.OrderFilled,
		FilledQty: req.ResolvedQty(price), FilledPrice: price, SubmittedAt: time.Now().UTC(),
	}, nil
}
func (f *fakeBrokerAdapter) CancelOrder(ctx context.Context, orderID string) error { return nil }
func (f *fakeBrokerAdapter) HealthCheck(ctx context.Context) error                 { return f.healthErr }

func newTestOrchestrator(t *testing.T, bars []domain.Bar, sourceErr error, adapter *fakeBrokerAdapter, specialists []agents.Agent, statePath string) *Orchestrator {
	t.Helper()
	log := zerolog.Nop()

	auditDir := t.TempDir()
	auditMgr, err := events.NewManager(auditDir, "test-run", log)
	require.NoError(t, err)

	provider := marketdata.NewProvider(
		[]marketdata.Source{&fakeSource{bars: bars, err: sourceErr}},
		marketdata.Config{LookbackDays: 90, CacheTTL: time.Hour, CacheDiskDir: t.TempDir()},
		auditMgr, log,
	)

	executor := broker.NewExecutor([]broker.Adapter{adapter}, breaker.Config{FailThreshold: 3, CooldownSeconds: 60}, nil, log)
	healthChecker := NewHealthChecker(HealthConfig{SmokeTestSymbol: "SPY", MinDiskFreeMB: 0, MinMemAvailableMB: 0}, provider, executor, log)

	store := state.New(statePath, 48, log)
	riskMgr := risk.New(risk.Config{BasePercent: 0.02, MaxPositionPercent: 0.5, KellyFractionCap: 0.25, StopLossATRMultiple: 2})
	metaAgent := meta.New(meta.DefaultConfig())

	if specialists == nil {
		specialists = []agents.Agent{
			fakeAgent{role: domain.RoleResearch, action: domain.SideBuy, conf: 0.8},
			fakeAgent{role: domain.RoleSignal, action: domain.SideBuy, conf: 0.8},
			fakeAgent{role: domain.RoleRisk, action: domain.SideBuy, conf: 0.8},
			fakeAgent{role: domain.RoleExecution, action: domain.SideBuy, conf: 0.8},
		}
	}

	return New(DefaultConfig(), Deps{
		StateStore:    store,
		BreakerCfg:    breaker.Config{FailThreshold: 3, CooldownSeconds: 60},
		HealthChecker: healthChecker,
		Provider:      provider,
		Specialists:   specialists,
		MetaAgent:     metaAgent,
		RiskMgr:       riskMgr,
		Executor:      executor,
		Audit:         auditMgr,
		Watchlist:     []string{"SPY"},
		PortfolioValueFn: func(ctx context.Context) (float64, error) {
			return 10000, nil
		},
	}, log)
}

func TestRun_UnanimousBuy_FillsAndPersistsPosition(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	adapter := &fakeBrokerAdapter{name: "paper", fractional: true, cash: 10000, filledPrice: 100}
	orch := newTestOrchestrator(t, risingSeries(60, 80), nil, adapter, nil, statePath)

	code := orch.Run(context.Background())

	assert.Equal(t, ExitOK, code)
	require.NotEmpty(t, adapter.submittedReqs)
	assert.Equal(t, domain.SideBuy, adapter.submittedReqs[0].Side)

	loaded, err := state.New(statePath, 48, zerolog.Nop()).Load()
	require.NoError(t, err)
	pos, ok := loaded.State.Positions["SPY"]
	require.True(t, ok)
	assert.Greater(t, pos.Quantity, 0.0)
}

func TestRun_MarketDataSourceDown_FailsHealthCheckBeforeTrading(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	adapter := &fakeBrokerAdapter{name: "paper", fractional: true, cash: 10000}
	orch := newTestOrchestrator(t, nil, fmt.Errorf("upstream unavailable"), adapter, nil, statePath)

	code := orch.Run(context.Background())

	assert.Equal(t, ExitHealthFailed, code, "health check's own smoke test fails first when the only source is down")
	assert.Empty(t, adapter.submittedReqs)
}

func TestRun_PortfolioBreakerHalted_ReturnsExitBreakerHalt(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	st := domain.SystemState{
		SchemaVersion: 1,
		UpdatedAt:     time.Now().UTC(),
		Positions:     map[string]domain.Position{},
		ClosedTrades:  []domain.ClosedTrade{},
		PortfolioBreaker: domain.BreakerState{
			Name: "portfolio", Level: domain.BreakerOpen, Tier: domain.TierHalt,
			LastTransition: time.Now().UTC(), Reason: "manual halt",
		},
		BrokerBreakers: map[string]domain.BreakerState{},
		QTable:         domain.QTable{},
	}
	require.NoError(t, state.New(statePath, 48, zerolog.Nop()).Save(st))

	adapter := &fakeBrokerAdapter{name: "paper", fractional: true, cash: 10000, filledPrice: 100}
	orch := newTestOrchestrator(t, risingSeries(60, 80), nil, adapter, nil, statePath)

	code := orch.Run(context.Background())

	assert.Equal(t, ExitBreakerHalt, code)
	assert.Empty(t, adapter.submittedReqs)
}

func TestRun_MixedSpecialists_HoldSkipsOrder(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	adapter := &fakeBrokerAdapter{name: "paper", fractional: true, cash: 10000, filledPrice: 100}
	mixed := []agents.Agent{
		fakeAgent{role: domain.RoleResearch, action: domain.SideBuy, conf: 0.5},
		fakeAgent{role: domain.RoleSignal, action: domain.SideSell, conf: 0.5},
		fakeAgent{role: domain.RoleRisk, action: domain.SideHold, conf: 0.2},
		fakeAgent{role: domain.RoleExecution, action: domain.SideHold, conf: 0.2},
	}
	orch := newTestOrchestrator(t, risingSeries(60, 80), nil, adapter, mixed, statePath)

	code := orch.Run(context.Background())

	assert.Equal(t, ExitOK, code)
	assert.Empty(t, adapter.submittedReqs)
}

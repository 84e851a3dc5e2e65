// Package di wires every component the orchestrator depends on from a
// loaded Config: one function builds the full dependency graph in order,
// and a Container holds the result for cmd/orchestrator (and tests) to
// reach into.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradecore/decision-core/internal/agents"
	"github.com/tradecore/decision-core/internal/breaker"
	"github.com/tradecore/decision-core/internal/broker"
	brokeralpaca "github.com/tradecore/decision-core/internal/broker/adapters/alpaca"
	"github.com/tradecore/decision-core/internal/broker/adapters/paper"
	brokertradernet "github.com/tradecore/decision-core/internal/broker/adapters/tradernet"
	clientalpaca "github.com/tradecore/decision-core/internal/clients/alpaca"
	"github.com/tradecore/decision-core/internal/clients/alphavantage"
	tnclient "github.com/tradecore/decision-core/internal/clients/tradernet"
	"github.com/tradecore/decision-core/internal/clients/yahoo"
	"github.com/tradecore/decision-core/internal/config"
	"github.com/tradecore/decision-core/internal/events"
	"github.com/tradecore/decision-core/internal/llm"
	"github.com/tradecore/decision-core/internal/marketdata"
	"github.com/tradecore/decision-core/internal/meta"
	"github.com/tradecore/decision-core/internal/netutil"
	"github.com/tradecore/decision-core/internal/orchestrator"
	"github.com/tradecore/decision-core/internal/reliability"
	"github.com/tradecore/decision-core/internal/risk"
	"github.com/tradecore/decision-core/internal/state"
	"github.com/tradecore/decision-core/internal/statusserver"
)

// Container holds every constructed component, for cmd/orchestrator's main
// and for tests that need to reach past the Orchestrator into a single
// collaborator.
type Container struct {
	Config *config.Config

	StateStore *state.Store
	Provider   *marketdata.Provider
	RiskMgr    *risk.Manager
	MetaAgent  *meta.Agent
	Specialists []agents.Agent
	Executor    *broker.Executor
	Audit       *events.Manager
	Archiver    *reliability.ArchiveUploader

	TradernetAdapter *brokertradernet.Adapter

	Orchestrator *orchestrator.Orchestrator
	StatusServer *statusserver.Server
}

// Build constructs every component named in Config and returns the wired
// Container. It is the single place that decides which concrete broker
// adapters, market data sources, and LLM collaborator exist for a process
// run, in dependency order.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{Config: cfg}

	// ---- state, audit, cache ----

	c.StateStore = state.New(cfg.StateFilePath, cfg.StateExpiryHours, log)

	auditMgr, err := events.NewManager(cfg.AuditLogDir, uuidRunID(), log)
	if err != nil {
		return nil, fmt.Errorf("build audit manager: %w", err)
	}
	auditMirror, err := reliability.NewAuditMirror(cfg.AuditLogDir, log)
	if err != nil {
		log.Warn().Err(err).Msg("audit sqlite mirror disabled, continuing with flat file only")
	} else {
		auditMgr = auditMgr.WithMirror(auditMirror)
	}
	c.Audit = auditMgr

	archiver, err := reliability.NewArchiveUploader(ctx, reliability.S3ArchiveConfig{
		Bucket:          cfg.AuditS3Bucket,
		Region:          cfg.AuditS3Region,
		Endpoint:        cfg.AuditS3Endpoint,
		AccessKeyID:     cfg.AuditS3AccessKeyID,
		SecretAccessKey: cfg.AuditS3SecretAccessKey,
	}, log)
	if err != nil {
		log.Warn().Err(err).Msg("s3 archive uploader disabled, continuing without off-box mirror")
	}
	c.Archiver = archiver

	// ---- market data ----

	yahooClient := yahoo.NewClient(log, secondsToDuration(cfg.YFinanceTimeoutSecs))
	sources := []marketdata.Source{&marketdata.YFinanceSource{
		Client:         yahooClient,
		MaxRetries:     cfg.YFinanceMaxRetries,
		InitialBackoff: secondsToDuration(cfg.YFinanceInitialBackoffSecs),
	}}

	if cfg.AlpacaAPIKey != "" {
		alpacaClient := clientalpaca.NewClient(cfg.AlpacaAPIKey, cfg.AlpacaAPISecret, cfg.AlpacaBaseURL, log)
		sources = append(sources, &marketdata.AlpacaSource{
			Client:         alpacaClient,
			MaxRetries:     cfg.AlpacaMaxRetries,
			InitialBackoff: secondsToDuration(cfg.AlpacaInitialBackoffSecs),
		})
	}
	if cfg.AlphaVantageAPIKey != "" {
		avClient := alphavantage.NewClient(cfg.AlphaVantageAPIKey, log, cfg.AlphaVantageMaxPerDay, secondsToDuration(cfg.AlphaVantageMinInterval))
		sources = append(sources, &marketdata.AlphaVantageSource{
			Client:         avClient,
			MaxRetries:     cfg.AlphaVantageMaxRetries,
			InitialBackoff: secondsToDuration(cfg.AlphaVantageBackoffSecs),
		})
	}

	c.Provider = marketdata.NewProvider(sources, marketdata.Config{
		LookbackDays: 90,
		CacheTTL:     secondsToDuration(cfg.CacheTTLSeconds),
		CacheMaxAge:  daysToDuration(cfg.CacheMaxAgeDays),
		CacheDiskDir: cfg.CacheDiskDir,
	}, c.Audit, log)

	// ---- risk, meta, specialists ----

	c.RiskMgr = risk.New(risk.Config{
		BasePercent:         cfg.RiskBasePercent,
		MaxPositionPercent:  cfg.RiskMaxPositionPercent,
		KellyFractionCap:    cfg.RiskKellyFractionCap,
		TargetVolatility:    cfg.RiskTargetVolatility,
		StopLossATRMultiple: 2.0,
	})
	c.MetaAgent = meta.New(meta.DefaultConfig())

	var llmClient llm.Client
	if cfg.LLMBaseURL != "" {
		llmClient = llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, secondsToDuration(cfg.LLMTimeoutSecs))
	}
	c.Specialists = []agents.Agent{
		agents.NewSignalAgent(),
		agents.NewRiskAgent(c.RiskMgr),
		agents.NewExecutionAgent(),
		agents.NewResearchAgent(llmClient, log),
	}

	// ---- brokers ----

	var adapters []broker.Adapter
	if !cfg.PaperTrading {
		tnHTTP := tnclient.NewClient(cfg.TradernetBaseURL, log)
		tnHTTP.SetCredentials(cfg.TradernetAPIKey, cfg.TradernetAPISecret)
		tnAdapter := brokertradernet.New(tnHTTP, log)
		if cfg.TradernetWSURL != "" {
			stream := tnclient.NewFillStream(cfg.TradernetWSURL, tnAdapter.RecordFillFn(), log)
			tnAdapter = tnAdapter.WithFillStream(ctx, stream)
		}
		c.TradernetAdapter = tnAdapter
		adapters = append(adapters, tnAdapter)

		if cfg.EnableBrokerFailover && cfg.AlpacaAPIKey != "" {
			adapters = append(adapters, brokeralpaca.New(cfg.AlpacaAPIKey, cfg.AlpacaAPISecret, cfg.AlpacaBaseURL, log))
		}
	} else {
		adapters = append(adapters, paper.New(yahooClient, cfg.DailyInvestment*250, log))
	}

	c.Executor = broker.NewExecutor(adapters, breaker.Config{
		FailThreshold:   cfg.CircuitFailThreshold,
		CooldownSeconds: cfg.CircuitCooldownSeconds,
	}, nil, log, netutil.Config{
		MaxRetries:     cfg.ExecutorMaxRetries,
		InitialBackoff: secondsToDuration(cfg.ExecutorInitialBackoffSecs),
	})

	// ---- orchestrator ----

	healthCfg := orchestrator.DefaultHealthConfig(cfg.DataDir)
	healthCfg.LogDir = cfg.HealthLogDir
	healthChecker := orchestrator.NewHealthChecker(
		healthCfg,
		c.Provider, c.Executor, log,
	)
	if auditMirror != nil {
		healthChecker = healthChecker.WithAuditHealth(auditMirror.Health())
	}

	c.Orchestrator = orchestrator.New(orchestrator.DefaultConfig(), orchestrator.Deps{
		StateStore: c.StateStore,
		BreakerCfg: breaker.Config{
			FailThreshold:   cfg.CircuitFailThreshold,
			CooldownSeconds: cfg.CircuitCooldownSeconds,
			DailyLossPct:    cfg.CircuitDailyLossPct,
			MaxConsecLosses: cfg.CircuitMaxConsecLosses,
			MaxAPIErrors:    cfg.CircuitMaxAPIErrors,
		},
		HealthChecker: healthChecker,
		Provider:      c.Provider,
		Specialists:   c.Specialists,
		MetaAgent:     c.MetaAgent,
		RiskMgr:       c.RiskMgr,
		Executor:      c.Executor,
		Audit:         c.Audit,
		Watchlist:     cfg.Watchlist,
		PortfolioValueFn: func(ctx context.Context) (float64, error) {
			account, err := c.Executor.PrimaryAccount(ctx)
			if err != nil {
				return 0, err
			}
			return account.Equity, nil
		},
	}, log)

	if cfg.HTTPStatusAddr != "" {
		c.StatusServer = statusserver.New(cfg.HTTPStatusAddr, c.StateStore, log)
	}

	return c, nil
}

// Close releases resources the Container opened (the audit log file); it
// does not stop a running status server, which the caller owns the
// lifecycle of.
func (c *Container) Close() error {
	if c.Audit != nil {
		return c.Audit.Close()
	}
	return nil
}

func uuidRunID() string { return uuid.NewString() }

func secondsToDuration(n int) time.Duration { return time.Duration(n) * time.Second }
func daysToDuration(n int) time.Duration    { return time.Duration(n) * 24 * time.Hour }

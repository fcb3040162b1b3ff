package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/de-tools/advisor-reports/pkg/observability"
	"github.com/de-tools/advisor-reports/pkg/server"
	"github.com/de-tools/advisor-reports/pkg/services/analytics"
	"github.com/de-tools/advisor-reports/pkg/services/azure"
	"github.com/de-tools/advisor-reports/pkg/services/config"
	"github.com/de-tools/advisor-reports/pkg/services/costs"
	"github.com/de-tools/advisor-reports/pkg/services/events"
	"github.com/de-tools/advisor-reports/pkg/services/ingest"
	"github.com/de-tools/advisor-reports/pkg/services/insights"
	"github.com/de-tools/advisor-reports/pkg/services/normalize"
	"github.com/de-tools/advisor-reports/pkg/services/report"
	"github.com/de-tools/advisor-reports/pkg/services/scoring"
	"github.com/de-tools/advisor-reports/pkg/services/workflow"
	"github.com/de-tools/advisor-reports/pkg/store"
	"github.com/de-tools/advisor-reports/pkg/store/memory"
	"github.com/de-tools/advisor-reports/pkg/store/postgres"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var cfgPath string

func main() {
	var rootCmd = &cobra.Command{
		Use:   "web",
		Short: "Start the web server for Advisor reports",
		RunE:  runServer,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "",
		"Path to a YAML or TOML config file (ADVISOR_* environment variables override it)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Printf("Error loading .env file: %v\n", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	if cfg.Tracing.Enabled {
		shutdown, err := observability.InitTracer(ctx, cfg.Tracing.ServiceName)
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()
	}

	repo, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer repo.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	azureCfg, err := azure.LoadConfig(ctx, azure.Settings{
		Profile:        cfg.Azure.Profile,
		ConfigPath:     cfg.Azure.ConfigPath,
		SubscriptionID: cfg.Azure.SubscriptionID,
		TenantID:       cfg.Azure.TenantID,
		ClientID:       cfg.Azure.ClientID,
		ClientSecret:   cfg.Azure.ClientSecret,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Azure credentials unavailable, azure_api jobs and cost sync are disabled")
		azureCfg = nil
	}

	adapters := []ingest.SourceAdapter{ingest.NewCSVAdapter(ingest.OpenInDir(cfg.Ingest.UploadDir))}
	if azureCfg != nil {
		adapterCfg := ingest.DefaultAzureAdapterConfig()
		adapterCfg.RequestsPerSecond = cfg.Azure.RequestsPerSecond
		adapterCfg.Burst = cfg.Azure.Burst
		adapters = append(adapters, ingest.NewAzureAdapter(ingest.NewARMPagerFactory(azureCfg.Credential, nil), adapterCfg))
	}
	sources, err := ingest.NewRegistry(adapters...)
	if err != nil {
		return fmt.Errorf("failed to register source adapters: %w", err)
	}

	generator := report.NewGenerator(
		sources,
		normalize.NewNormalizer(cfg.Ingest.DefaultCurrency),
		scoring.NewEngine(),
		report.Config{BatchSize: cfg.Scheduler.BatchSize},
	)

	aggregator := analytics.NewAggregator(repo, analytics.Config{RecomputeInterval: cfg.Analytics.RecomputeInterval})
	if err := aggregator.Rebuild(ctx); err != nil {
		return fmt.Errorf("failed to build analytics index: %w", err)
	}

	bus := events.NewBus()
	bus.Subscribe(aggregator.OnJobEvent)

	controller := workflow.NewController(workflow.Dependencies{
		Store:     repo,
		Generator: generator,
		Publisher: bus,
		Metrics:   metrics,
	}, workflow.Config{
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		MaxRetries:        cfg.Scheduler.MaxRetries,
		LeaseGrace:        cfg.Scheduler.LeaseGrace,
		ReapInterval:      cfg.Scheduler.ReapInterval,
	})

	models := insights.ModelSettings{
		AnomalyModel:  cfg.Insights.AnomalyModel,
		ForecastModel: cfg.Insights.ForecastModel,
		Window:        cfg.Insights.Window,
		K:             cfg.Insights.K,
		MinBand:       cfg.Insights.MinBand,
	}
	detector, err := insights.NewAnomalyModel(models)
	if err != nil {
		return err
	}
	forecaster, err := insights.NewForecastModel(models)
	if err != nil {
		return err
	}
	engine := insights.NewEngine(repo, detector, forecaster, metrics, insights.Config{
		MinHistory: cfg.Insights.MinHistory,
		Lookback:   cfg.Insights.Lookback,
		Horizon:    cfg.Insights.Horizon,
	})
	ingestor := costs.NewIngestor(repo, metrics, aggregator)

	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := engine.Schedule(ctx, scheduler, cfg.Insights.Schedule); err != nil {
		return err
	}
	if azureCfg != nil && len(cfg.Costs.Subscriptions) > 0 {
		source, err := costs.NewARMCostSource(azureCfg.Credential, nil)
		if err != nil {
			return err
		}
		if _, err := ingestor.Schedule(ctx, scheduler, cfg.Costs.SyncSchedule, source, cfg.Costs.Subscriptions, cfg.Costs.SyncDays); err != nil {
			return err
		}
	}

	api := server.NewWebAPI(logger, server.Config{
		Addr:            cfg.Server.Addr(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Dependencies: server.Dependencies{
			Jobs:      controller,
			Analytics: aggregator,
			Insights:  engine,
			Costs:     ingestor,
			Health:    repo.Ping,
			Gatherer:  registry,
		},
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return controller.Run(ctx) })
	g.Go(func() error { return api.Start(ctx) })
	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})

	logger.Info().
		Str("store", cfg.Store.Driver).
		Bool("azure", azureCfg != nil).
		Msg("advisor reports service started")

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Repository, error) {
	if cfg.Driver != "postgres" {
		zerolog.Ctx(ctx).Warn().Msg("using the in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	}
	repo, err := postgres.Open(ctx, postgres.Settings{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres store: %w", err)
	}
	return repo, nil
}

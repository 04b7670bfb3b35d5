package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"asset-runhours/internal/assets"
	"asset-runhours/internal/observability/metrics"
	"asset-runhours/internal/runhours/application"
	"asset-runhours/internal/runhours/domain"
	"asset-runhours/internal/runhours/infrastructure/cassandra"
	runhourrepo "asset-runhours/internal/runhours/infrastructure/postgres"
	"asset-runhours/internal/runhours/interfaces"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type cliOptions struct {
	force      bool
	assetIDs   []string
	reportPath string
	daemon     bool
	configPath string
	request    application.RunRequest
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "runhours: %v\n", err)
		return exitUsage
	}

	if name, err := application.LoadEnvFile(); err != nil {
		logger.Printf("error: env file: %v", err)
		return exitFailure
	} else if name != "" {
		logger.Printf("runhours env loaded: file=%s", name)
	}
	cfg, err := application.LoadConfig(opts.configPath)
	if err != nil {
		logger.Printf("error: config: %v", err)
		return exitFailure
	}
	zone, err := cfg.Zone()
	if err != nil {
		logger.Printf("error: zone: %v", err)
		return exitFailure
	}
	engine, err := domain.NewEngine(zone, cfg.HangingOnCap)
	if err != nil {
		logger.Printf("error: engine: %v", err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Printf("error: db open: %v", err)
		return exitFailure
	}
	defer db.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		logger.Printf("error: db ping: %v", err)
		return exitFailure
	}

	session, err := cassandra.Connect(cassandra.SessionConfig{
		Hosts:           cfg.Cassandra.Hosts,
		Keyspace:        cfg.Cassandra.Keyspace,
		LocalDC:         cfg.Cassandra.LocalDC,
		ProtocolVersion: cfg.Cassandra.ProtocolVersion,
		Username:        cfg.Cassandra.Username,
		Password:        cfg.Cassandra.Password,
		Consistency:     cfg.Cassandra.Consistency,
		ConnectTimeout:  cfg.Cassandra.ConnectTimeout,
		Timeout:         cfg.FetchTimeout,
	})
	if err != nil {
		logger.Printf("error: %v", err)
		return exitFailure
	}
	defer session.Close()

	events, err := cassandra.NewEventSource(session, logger,
		cassandra.WithTable(cfg.Cassandra.Table),
		cassandra.WithDayLimit(cfg.Cassandra.DayLimit))
	if err != nil {
		logger.Printf("error: %v", err)
		return exitFailure
	}

	store := runhourrepo.NewRunHourRepository(db)
	metrics.Init(db, store.Table(), logger)

	var publisher application.RecordPublisher = interfaces.NewLoggingPublisher(logger)
	if cfg.MQTT.Broker != "" {
		mqttPublisher, err := interfaces.NewMQTTPublisher(interfaces.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			logger.Printf("warn: mqtt unavailable, logging records instead: broker=%s err=%v", cfg.MQTT.Broker, err)
		} else {
			defer mqttPublisher.Close()
			publisher = mqttPublisher
		}
	}

	processor, err := application.NewProcessor(engine, events, store, publisher, application.SystemClock{}, logger, cfg.ProcessorConfig())
	if err != nil {
		logger.Printf("error: processor: %v", err)
		return exitFailure
	}
	runner, err := application.NewBatchRunner(processor, cfg.Workers, application.SystemClock{}, logger)
	if err != nil {
		logger.Printf("error: batch runner: %v", err)
		return exitFailure
	}

	directory := application.NewAssetDirectory(assetLister(ctx, cfg, zone, logger), cfg.FallbackAssetList(), application.RetryPolicy{
		Attempts:  2,
		Timeout:   cfg.AssetAPI.Timeout,
		Backoff:   time.Second,
		Retryable: assets.IsRetryable,
	}, logger)
	directory.Restrict(opts.assetIDs)

	afterRun := func(ctx context.Context, report application.BatchReport) {
		if opts.reportPath != "" {
			if err := writeReport(ctx, store, report, opts.reportPath); err != nil {
				logger.Printf("error: runhours report: path=%s err=%v", opts.reportPath, err)
			} else {
				logger.Printf("runhours report written: path=%s", opts.reportPath)
			}
		}
		if cfg.PushgatewayURL != "" {
			if err := metrics.Push(ctx, cfg.PushgatewayURL, report.RunID); err != nil {
				logger.Printf("warn: metrics push failed: run_id=%s err=%v", report.RunID, err)
			}
		}
	}

	if opts.daemon {
		return runDaemon(ctx, cfg, runner, directory, zone, afterRun, logger)
	}

	list, _ := directory.Assets(ctx)
	report := runner.Run(ctx, list, opts.request)
	afterRun(ctx, report)
	return exitOK
}

func parseArgs(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions
	fs := pflag.NewFlagSet("runhours", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: runhours [flags] [START [END]]")
		fmt.Fprintln(stderr, "  dates are YYYY-MM-DD local days; no dates runs the incremental catch-up")
		fs.PrintDefaults()
	}
	fs.BoolVar(&opts.force, "force", false, "recompute and replace stored days in the range")
	fs.StringArrayVar(&opts.assetIDs, "asset", nil, "restrict the run to this asset id (repeatable)")
	fs.StringVar(&opts.reportPath, "report", "", "write processed records to a .csv, .xlsx or .pdf file")
	fs.BoolVar(&opts.daemon, "daemon", false, "run the daily schedule instead of a single batch")
	fs.StringVar(&opts.configPath, "config", "", "yaml config overlay")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	start, end, err := parseDates(fs.Args())
	if err != nil {
		return opts, err
	}
	if opts.daemon && (start != nil || opts.force) {
		return opts, errors.New("--daemon runs the incremental catch-up and takes no dates or --force")
	}
	opts.request = application.RunRequest{UserStart: start, UserEnd: end, Force: opts.force}
	return opts, nil
}

// parseDates accepts zero, one or two YYYY-MM-DD arguments.
func parseDates(args []string) (*domain.Date, *domain.Date, error) {
	if len(args) > 2 {
		return nil, nil, fmt.Errorf("expected at most two dates, got %d arguments", len(args))
	}
	var dates []*domain.Date
	for _, arg := range args {
		d, err := domain.ParseDate(arg)
		if err != nil {
			return nil, nil, err
		}
		dates = append(dates, &d)
	}
	switch len(dates) {
	case 0:
		return nil, nil, nil
	case 1:
		return dates[0], nil, nil
	}
	if dates[1].Before(*dates[0]) {
		return nil, nil, fmt.Errorf("%w: end %s before start %s", domain.ErrInvalidRange, dates[1], dates[0])
	}
	return dates[0], dates[1], nil
}

// assetLister returns nil when no directory is configured.
func assetLister(ctx context.Context, cfg application.Config, zone domain.Zone, logger *log.Logger) application.AssetLister {
	if cfg.AssetAPI.URL == "" {
		logger.Printf("warn: ASSET_API_URL not set, using fallback assets: count=%d", len(cfg.FallbackAssets))
		return nil
	}
	tokens, err := assets.NewTokenSource(ctx, assets.CredentialsConfig{
		Token:        cfg.AssetAPI.Token,
		AuthURL:      cfg.AssetAPI.AuthURL,
		ClientID:     cfg.AssetAPI.ClientID,
		ClientSecret: cfg.AssetAPI.ClientSecret,
	}, time.Now())
	if err != nil {
		logger.Printf("error: asset api credentials, using fallback assets: err=%v", err)
		return nil
	}
	client, err := assets.NewClient(assets.Options{
		URL:      cfg.AssetAPI.URL,
		Domain:   cfg.AssetAPI.Domain,
		PageSize: cfg.AssetAPI.PageSize,
		Timeout:  cfg.AssetAPI.Timeout,
		Zone:     zone,
		Tokens:   tokens,
	})
	if err != nil {
		logger.Printf("error: asset api client, using fallback assets: err=%v", err)
		return nil
	}
	return client.ListAssets
}

func writeReport(ctx context.Context, reader application.RunHourReader, report application.BatchReport, path string) error {
	r, ok := reportRange(report)
	if !ok {
		return errors.New("no days were processed")
	}
	records, err := reader.ListRange(ctx, report.ProcessedAssetIDs(), r)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("Asset Run Hours %s (run %s)", r, report.RunID)
	return interfaces.WriteReport(path, title, records)
}

// reportRange spans every planned day of the batch.
func reportRange(report application.BatchReport) (domain.DateRange, bool) {
	var (
		r     domain.DateRange
		found bool
	)
	for _, outcome := range report.Outcomes {
		for _, span := range outcome.Plan.Spans {
			if !found || span.Range.Start.Before(r.Start) {
				r.Start = span.Range.Start
			}
			if !found || span.Range.End.After(r.End) {
				r.End = span.Range.End
			}
			found = true
		}
	}
	return r, found
}

func runDaemon(ctx context.Context, cfg application.Config, runner *application.BatchRunner, directory *application.AssetDirectory, zone domain.Zone, afterRun func(context.Context, application.BatchReport), logger *log.Logger) int {
	scheduler := application.NewScheduler(runner, directory.Assets, zone, cfg.Schedule.DailyAt, logger)
	scheduler.OnReport(afterRun)
	go scheduler.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Printf("runhours daemon listening: addr=%s daily_at=%s zone=%s", cfg.MetricsAddr, cfg.Schedule.DailyAt, zone)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("error: http server: %v", err)
		return exitFailure
	}
	return exitOK
}

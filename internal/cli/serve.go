package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"

	"github.com/IvanBrykalov/recomlive/internal/config"
	"github.com/IvanBrykalov/recomlive/internal/logging"
	"github.com/IvanBrykalov/recomlive/internal/server"
	pmet "github.com/IvanBrykalov/recomlive/metrics/prom"
	"github.com/IvanBrykalov/recomlive/predictor"
	"github.com/IvanBrykalov/recomlive/recommender"
	"github.com/IvanBrykalov/recomlive/telemetry"
)

// metricsNamespace prefixes every Prometheus series.
const metricsNamespace = "recomlive"

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the UDP recommendation server",
		Long: `Run the server in the foreground until SIGINT or SIGTERM.

On shutdown the listener stops first, every request already queued is
processed, then background services exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, &cfg)
		},
	}

	f := cmd.Flags()
	f.Int("docs-limit", 0, "document cache capacity")
	f.Int("persons-limit", 0, "person cache capacity")
	f.Int("recs-limit", 0, "maximum suggestions per reply")
	f.String("device", "", "compute device (cpu)")
	f.String("host", "", "UDP listen host")
	f.Int("port", 0, "UDP listen port")
	f.Int("queue-limit", 0, "request queue bound")
	f.Duration("stats-interval", 0, "periodic stats report interval (0 = off)")
	f.String("metrics-addr", "", "HTTP address for /metrics, /healthz, /stats")
	f.String("telemetry", "", "telemetry backend: none, graphite, prometheus, cloudwatch")
	for flag, key := range map[string]string{
		"docs-limit":     "docs_limit",
		"persons-limit":  "persons_limit",
		"recs-limit":     "recs_limit",
		"device":         "device",
		"host":           "host",
		"port":           "port",
		"queue-limit":    "queue_limit",
		"stats-interval": "stats_interval",
		"metrics-addr":   "metrics_addr",
		"telemetry":      "telemetry",
	} {
		_ = a.v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.Component("server")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sink, services, err := buildTelemetry(ctx, cfg, reg, logging.Component("telemetry"))
	if err != nil {
		return err
	}

	model, err := buildModel(cfg)
	if err != nil {
		return err
	}

	recLog := logging.Component("recommender")
	rec := recommender.New(recommender.Config{
		DocsLimit:    cfg.DocsLimit,
		PersonsLimit: cfg.PersonsLimit,
		RecsLimit:    cfg.RecsLimit,
	}, model, recommender.Options{
		Sink:           sink,
		Logger:         &recLog,
		DocsMetrics:    pmet.New(reg, metricsNamespace, "documents", nil),
		PersonsMetrics: pmet.New(reg, metricsNamespace, "persons", nil),
	})

	log.Info().
		Int("docs_limit", cfg.DocsLimit).
		Int("persons_limit", cfg.PersonsLimit).
		Int("recs_limit", cfg.RecsLimit).
		Str("telemetry", cfg.Telemetry).
		Msg("starting")

	srv := server.New(rec, server.Options{
		Addr:          cfg.Addr(),
		QueueLimit:    cfg.QueueLimit,
		StatsInterval: cfg.StatsInterval,
		MetricsAddr:   cfg.MetricsAddr,
		Gatherer:      reg,
		Sink:          sink,
		Logger:        &log,
		Services:      services,
	})
	return srv.Serve(ctx)
}

func buildModel(cfg *config.Config) (*predictor.Model, error) {
	pc := predictor.DefaultConfig(cfg.DocsLimit)
	pc.EmbeddingDim = cfg.Model.EmbeddingDim
	pc.HiddenDim = cfg.Model.HiddenDim
	pc.LearningRate = cfg.Model.LearningRate
	pc.ClipNorm = cfg.Model.ClipNorm
	pc.Dropout = cfg.Model.Dropout
	pc.Device = cfg.Device
	m, err := predictor.New(pc)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	return m, nil
}

// buildTelemetry selects the sink named by cfg.Telemetry. Backends that
// flush in the background are returned as services for the supervisor.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func buildTelemetry(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log zerolog.Logger) (telemetry.Sink, []suture.Service, error) {
	switch cfg.Telemetry {
	case "none":
		return telemetry.Noop{}, nil, nil
	case "prometheus":
		return pmet.NewSink(reg, metricsNamespace, "recommender", nil), nil, nil
	case "graphite":
		g := telemetry.NewGraphite(cfg.CarbonAddr(), telemetry.WithLogger(log))
		return g, []suture.Service{g}, nil
	case "cloudwatch":
		awsCfg, err := loadAWSConfig(ctx, cfg.CloudWatch.Profile, cfg.CloudWatch.Region)
		if err != nil {
			return nil, nil, err
		}
		cw := telemetry.NewCloudWatch(cloudwatch.NewFromConfig(awsCfg), telemetry.CloudWatchConfig{
			Namespace: cfg.CloudWatch.Namespace,
			Interval:  cfg.CloudWatch.Interval,
		}, log)
		return cw, []suture.Service{cw}, nil
	default:
		return nil, nil, fmt.Errorf("unknown telemetry backend %q", cfg.Telemetry)
	}
}

// loadAWSConfig loads the AWS configuration with optional profile and region.
func loadAWSConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

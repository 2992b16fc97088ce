package telemetry

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// maxDatums is the PutMetricData per-request limit.
const maxDatums = 1000

// PutMetricDataAPI is the slice of *cloudwatch.Client the sink needs.
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchConfig configures a CloudWatch sink.
type CloudWatchConfig struct {
	// Namespace is the CloudWatch metric namespace.
	Namespace string
	// Interval is how often aggregated samples are flushed.
	Interval time.Duration
	// FailureThreshold is the number of consecutive failed flushes that
	// opens the circuit breaker. Default: 3.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing. Default: 1m.
	OpenTimeout time.Duration
}

type gaugeAgg struct {
	sum float64
	n   int
}

// CloudWatch aggregates samples in memory and flushes them periodically with
// PutMetricData. Counters are summed per interval, gauges averaged.
//
// Flushes go through a circuit breaker: while CloudWatch is failing, the
// aggregated data of each interval is dropped without calling the API.
type CloudWatch struct {
	client PutMetricDataAPI
	cfg    CloudWatchConfig
	cb     *gobreaker.CircuitBreaker[*cloudwatch.PutMetricDataOutput]
	log    zerolog.Logger

	mu       sync.Mutex
	counters map[string]float64
	gauges   map[string]gaugeAgg
}

// NewCloudWatch creates a CloudWatch sink. Nothing is sent until Serve runs.
func NewCloudWatch(client PutMetricDataAPI, cfg CloudWatchConfig, log zerolog.Logger) *CloudWatch {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultPrefix
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}

	c := &CloudWatch{
		client:   client,
		cfg:      cfg,
		log:      log,
		counters: map[string]float64{},
		gauges:   map[string]gaugeAgg{},
	}
	c.cb = gobreaker.NewCircuitBreaker[*cloudwatch.PutMetricDataOutput](gobreaker.Settings{
		Name:    "cloudwatch-" + cfg.Namespace,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("cloudwatch circuit breaker state change")
		},
	})
	return c
}

// Count adds v to the counter's current interval total.
func (c *CloudWatch) Count(name string, v float64) {
	c.mu.Lock()
	c.counters[name] += v
	c.mu.Unlock()
}

// Gauge folds v into the gauge's current interval average.
func (c *CloudWatch) Gauge(name string, v float64) {
	c.mu.Lock()
	g := c.gauges[name]
	g.sum += v
	g.n++
	c.gauges[name] = g
	c.mu.Unlock()
}

// Serve flushes every Interval until ctx is done. It implements suture.Service.
func (c *CloudWatch) Serve(ctx context.Context) error {
	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			c.Flush(ctx)
		}
	}
}

func (c *CloudWatch) String() string { return "cloudwatch(" + c.cfg.Namespace + ")" }

// Flush sends everything aggregated since the previous flush. Failures are
// logged and the data is discarded.
func (c *CloudWatch) Flush(ctx context.Context) {
	datums := c.drain(time.Now())
	for chunk := range slices.Chunk(datums, maxDatums) {
		in := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.cfg.Namespace),
			MetricData: chunk,
		}
		_, err := c.cb.Execute(func() (*cloudwatch.PutMetricDataOutput, error) {
			return c.client.PutMetricData(ctx, in)
		})
		if err != nil {
			c.log.Warn().Err(err).Int("datums", len(chunk)).Msg("cloudwatch flush failed")
		}
	}
}

// drain swaps out the aggregation maps and renders them as datums,
// sorted by name.
func (c *CloudWatch) drain(now time.Time) []types.MetricDatum {
	c.mu.Lock()
	counters, gauges := c.counters, c.gauges
	c.counters, c.gauges = map[string]float64{}, map[string]gaugeAgg{}
	c.mu.Unlock()

	datums := make([]types.MetricDatum, 0, len(counters)+len(gauges))
	for _, name := range slices.Sorted(maps.Keys(counters)) {
		datums = append(datums, types.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(counters[name]),
			Unit:       types.StandardUnitCount,
			Timestamp:  aws.Time(now),
		})
	}
	for _, name := range slices.Sorted(maps.Keys(gauges)) {
		g := gauges[name]
		datums = append(datums, types.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(g.sum / float64(g.n)),
			Unit:       types.StandardUnitNone,
			Timestamp:  aws.Time(now),
		})
	}
	return datums
}

var _ Sink = (*CloudWatch)(nil)

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/recomlive/internal/server"
	pmet "github.com/IvanBrykalov/recomlive/metrics/prom"
	"github.com/IvanBrykalov/recomlive/predictor"
	"github.com/IvanBrykalov/recomlive/recommender"
	"github.com/IvanBrykalov/recomlive/telemetry"
)

type benchOptions struct {
	docsLimit    int
	personsLimit int
	recsLimit    int
	queueLimit   int
	hiddenDim    int
	embedDim     int

	producers int
	duration  time.Duration
	readPct   int

	docs    int
	persons int
	zipfS   float64
	zipfV   float64
	seed    uint64

	metricsAddr string
}

func (a *app) newBenchCmd() *cobra.Command {
	var o benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a synthetic Zipf workload against an in-process server",
		Long: `Generate RECR and RR requests with Zipf-distributed document and person
ids, push them through the server queue and report throughput, drops and
recommendation hits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd.Context(), cmd.OutOrStdout(), o, a.noColor)
		},
	}

	f := cmd.Flags()
	f.IntVar(&o.docsLimit, "docs-limit", 2000, "document cache capacity")
	f.IntVar(&o.personsLimit, "persons-limit", 2000, "person cache capacity")
	f.IntVar(&o.recsLimit, "recs-limit", 5, "suggestions per reply")
	f.IntVar(&o.queueLimit, "queue-limit", server.DefaultQueueLimit, "request queue bound")
	f.IntVar(&o.embedDim, "embedding-dim", 64, "model embedding width")
	f.IntVar(&o.hiddenDim, "hidden-dim", 32, "model hidden width")
	f.IntVar(&o.producers, "producers", runtime.GOMAXPROCS(0), "number of request generators")
	f.DurationVar(&o.duration, "duration", 10*time.Second, "benchmark duration")
	f.IntVar(&o.readPct, "rr", 20, "percentage of RR requests [0..100]; the rest are RECR")
	f.IntVar(&o.docs, "docs", 10_000, "document keyspace size")
	f.IntVar(&o.persons, "persons", 5_000, "person keyspace size")
	f.Float64Var(&o.zipfS, "zipf-s", 1.1, "Zipf s > 1 (skew)")
	f.Float64Var(&o.zipfV, "zipf-v", 1.0, "Zipf v")
	f.Uint64Var(&o.seed, "seed", uint64(time.Now().UnixNano()), "random seed")
	f.StringVar(&o.metricsAddr, "http", "", "serve Prometheus metrics at addr (empty = disabled)")
	return cmd
}

// countingSink totals counters for the final report.
type countingSink struct {
	mu sync.Mutex
	n  map[string]float64
}

func (c *countingSink) Count(name string, v float64) {
	c.mu.Lock()
	c.n[name] += v
	c.mu.Unlock()
}

func (c *countingSink) Gauge(string, float64) {}

func (c *countingSink) get(name string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[name]
}

func runBench(ctx context.Context, w io.Writer, o benchOptions, noColor bool) error {
	if o.producers <= 0 {
		o.producers = 1
	}
	if o.docs <= 1 || o.persons <= 1 {
		return errors.New("bench: keyspaces must hold at least 2 ids")
	}
	if o.zipfS <= 1 {
		return fmt.Errorf("bench: zipf-s must be > 1, got %v", o.zipfS)
	}

	reg := prometheus.NewRegistry()
	if o.metricsAddr != "" {
		srv := &http.Server{
			Addr:              o.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() { _ = srv.ListenAndServe() }()
		defer srv.Close()
	}

	counts := &countingSink{n: map[string]float64{}}
	sink := telemetry.Multi{counts, pmet.NewSink(reg, metricsNamespace, "bench", nil)}

	pc := predictor.DefaultConfig(o.docsLimit)
	pc.EmbeddingDim = o.embedDim
	pc.HiddenDim = o.hiddenDim
	pc.Seed = o.seed
	model, err := predictor.New(pc)
	if err != nil {
		return fmt.Errorf("bench: %w", err)
	}
	rec := recommender.New(recommender.Config{
		DocsLimit:    o.docsLimit,
		PersonsLimit: o.personsLimit,
		RecsLimit:    o.recsLimit,
	}, model, recommender.Options{
		Sink:           sink,
		DocsMetrics:    pmet.New(reg, metricsNamespace, "bench_documents", nil),
		PersonsMetrics: pmet.New(reg, metricsNamespace, "bench_persons", nil),
	})

	nop := zerolog.Nop()
	srv := server.New(rec, server.Options{
		Addr:       "127.0.0.1:0",
		QueueLimit: o.queueLimit,
		Sink:       sink,
		Logger:     &nop,
	})
	if err := srv.Listen(); err != nil {
		return err
	}
	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	served := make(chan error, 1)
	go func() { served <- srv.Serve(serveCtx) }()

	loadCtx, cancel := context.WithTimeout(ctx, o.duration)
	defer cancel()

	var (
		mu                 sync.Mutex
		accepted, rejected uint64
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(loadCtx)
	for p := range o.producers {
		g.Go(func() error {
			// rand.Rand is not goroutine-safe: one generator per producer.
			r := rand.New(rand.NewPCG(o.seed, uint64(p)*9973))
			docZipf := rand.NewZipf(r, o.zipfS, o.zipfV, uint64(o.docs-1))
			personZipf := rand.NewZipf(r, o.zipfS, o.zipfV, uint64(o.persons-1))

			var ok, drop uint64
			buf := make([]byte, 0, 64)
			for gctx.Err() == nil {
				method := "RECR"
				if r.IntN(100) < o.readPct {
					method = "RR"
				}
				buf = append(buf[:0], method...)
				buf = append(buf, ",d"...)
				buf = strconv.AppendUint(buf, docZipf.Uint64(), 10)
				buf = append(buf, ",p"...)
				buf = strconv.AppendUint(buf, personZipf.Uint64(), 10)

				if srv.Submit(append([]byte(nil), buf...), nil) {
					ok++
				} else {
					drop++
					runtime.Gosched()
				}
			}
			mu.Lock()
			accepted += ok
			rejected += drop
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	generated := time.Since(start)

	stopServe()
	if err := <-served; err != nil {
		return err
	}
	elapsed := time.Since(start)

	processed := counts.get(telemetry.RecordCall)
	recs := counts.get(telemetry.RecommendCall)
	hits := counts.get(telemetry.RecommendationHit)
	hitRate := 0.0
	if processed > 0 {
		hitRate = hits / processed * 100
	}

	label := plain(LabelStyle, noColor)
	fmt.Fprintf(w, "%s docs_limit=%d persons_limit=%d queue=%d producers=%d docs=%d persons=%d seed=%d\n",
		label.Render("config"), o.docsLimit, o.personsLimit, o.queueLimit, o.producers, o.docs, o.persons, o.seed)
	fmt.Fprintf(w, "%s generated=%v drained=%v\n", label.Render("time"), generated.Round(time.Millisecond), elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "%s accepted=%d dropped=%d\n", label.Render("queue"), accepted, rejected)
	fmt.Fprintf(w, "%s records=%.0f (%.0f ops/s) recommends=%.0f train_steps=%.0f\n",
		label.Render("ops"), processed, processed/elapsed.Seconds(), recs, counts.get(telemetry.TrainStep))
	fmt.Fprintf(w, "%s hits=%.0f hit-rate=%.2f%% empty=%.0f\n",
		label.Render("recs"), hits, hitRate, counts.get(telemetry.NoRecommendations))
	return nil
}

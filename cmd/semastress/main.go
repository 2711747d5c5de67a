// Command semastress pushes items through a blockingqueue.Queue with many
// concurrent producers and consumers, retrying timed out attempts, and logs a
// summary of what happened. While it runs, it can serve the queue's
// semaphore metrics for Prometheus.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/notorious-go/sync/blockingqueue"
	"github.com/notorious-go/sync/semaphore"
	"github.com/notorious-go/sync/semaphore/semametrics"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(os.Stderr, cfg.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if _, err := run(ctx, cfg, logger); err != nil {
		logger.Err().Err(err).Log(`run failed`)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// report summarizes a run.
type report struct {
	moved        int64
	putTimeouts  int64
	takeTimeouts int64
	elapsed      time.Duration
	remaining    int
}

func run(ctx context.Context, cfg *config, logger *logiface.Logger[logiface.Event]) (*report, error) {
	queue, err := blockingqueue.New[int](cfg.capacity,
		blockingqueue.WithLogger(logger),
		blockingqueue.WithName("stress"),
	)
	if err != nil {
		return nil, err
	}

	if cfg.metricsAddr != "" {
		shutdown, err := serveMetrics(cfg.metricsAddr, queue, logger)
		if err != nil {
			return nil, err
		}
		defer shutdown()
	}

	logger.Info().
		Int(`capacity`, cfg.capacity).
		Int(`producers`, cfg.producers).
		Int(`consumers`, cfg.consumers).
		Int(`items`, cfg.items).
		Dur(`timeout`, cfg.timeout).
		Log(`run started`)

	var (
		r       report
		claimed atomic.Int64
		moved   atomic.Int64
		putTO   atomic.Int64
		takeTO  atomic.Int64
		start   = time.Now()
	)

	g, ctx := errgroup.WithContext(ctx)

	for p := 0; p < cfg.producers; p++ {
		p := p
		share := cfg.items / cfg.producers
		if p < cfg.items%cfg.producers {
			share++
		}
		g.Go(func() error {
			for i := 0; i < share; i++ {
				for {
					ok, err := queue.Put(ctx, p*cfg.items+i, semaphore.Timeout(cfg.timeout))
					if err != nil {
						return fmt.Errorf("producer %d: %w", p, err)
					}
					if ok {
						break
					}
					putTO.Add(1)
				}
			}
			return nil
		})
	}

	for c := 0; c < cfg.consumers; c++ {
		c := c
		g.Go(func() error {
			for claimed.Add(1) <= int64(cfg.items) {
				for {
					_, ok, err := queue.Take(ctx, semaphore.Timeout(cfg.timeout))
					if err != nil {
						return fmt.Errorf("consumer %d: %w", c, err)
					}
					if ok {
						moved.Add(1)
						break
					}
					takeTO.Add(1)
				}
			}
			return nil
		})
	}

	err = g.Wait()

	r.moved = moved.Load()
	r.putTimeouts = putTO.Load()
	r.takeTimeouts = takeTO.Load()
	r.elapsed = time.Since(start)
	r.remaining = queue.Count()

	logger.Info().
		Int64(`moved`, r.moved).
		Int64(`put_timeouts`, r.putTimeouts).
		Int64(`take_timeouts`, r.takeTimeouts).
		Int(`remaining`, r.remaining).
		Dur(`elapsed`, r.elapsed).
		Log(`run finished`)

	return &r, err
}

func serveMetrics(addr string, queue *blockingqueue.Queue[int], logger *logiface.Logger[logiface.Event]) (func(), error) {
	reg := prometheus.NewRegistry()
	err := reg.Register(semametrics.NewCollector("semastress", map[string]semametrics.Source{
		"free":   semametrics.SourceFunc(queue.FreeStats),
		"filled": semametrics.SourceFunc(queue.FilledStats),
	}))
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Err().Err(err).Str(`addr`, addr).Log(`metrics server failed`)
		}
	}()
	logger.Info().Str(`addr`, addr).Log(`serving metrics`)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

type config struct {
	capacity    int
	producers   int
	consumers   int
	items       int
	timeout     time.Duration
	metricsAddr string
	logLevel    logiface.Level
}

func parseFlags(args []string) (*config, error) {
	fs := flag.NewFlagSet("semastress", flag.ContinueOnError)
	var (
		cfg      config
		logLevel string
	)
	fs.IntVar(&cfg.capacity, "capacity", 8, "Capacity of the queue.")
	fs.IntVar(&cfg.producers, "producers", 4, "Number of producer goroutines.")
	fs.IntVar(&cfg.consumers, "consumers", 4, "Number of consumer goroutines.")
	fs.IntVar(&cfg.items, "items", 10000, "Total number of items to move through the queue.")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Millisecond, "Timeout of each put and take attempt; timed out attempts are retried. Negative waits forever.")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on while running, e.g. :9090. Empty disables.")
	fs.StringVar(&logLevel, "log-level", "info", "The log level to emit.")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	level, err := parseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	cfg.logLevel = level

	switch {
	case cfg.capacity <= 0:
		return nil, fmt.Errorf("capacity must be positive, got %d", cfg.capacity)
	case cfg.producers <= 0 || cfg.consumers <= 0:
		return nil, fmt.Errorf("need at least one producer and one consumer, got %d and %d", cfg.producers, cfg.consumers)
	case cfg.items < 0:
		return nil, fmt.Errorf("items must not be negative, got %d", cfg.items)
	}
	return &cfg, nil
}

func parseLevel(s string) (logiface.Level, error) {
	for level := logiface.LevelEmergency; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("unknown log level %q", s)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// event-reporter reads telemetry events as newline-delimited JSON on
// stdin and reports them to a UDP collector in batches.
//
// Settings come from a config file (--config, or the
// EVENT_REPORTER_CONFIG environment variable) with individual flags
// layered on top. Without either, the reporter runs in envelope mode
// with the built-in formatters and flushes every event immediately.
//
// The reporter drains and exits at end of input or on SIGINT/SIGTERM.
// SIGUSR1 forces an immediate flush.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/eventreporter/lib/config"
	"github.com/bureau-foundation/eventreporter/lib/envelope"
	"github.com/bureau-foundation/eventreporter/lib/event"
	"github.com/bureau-foundation/eventreporter/lib/reporter"
	"github.com/bureau-foundation/eventreporter/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the command-line flags. Only flags the user actually
// set override the config file.
type options struct {
	configPath string
	endpoint   string
	mode       string
	threshold  int
	interval   time.Duration
	prefix     string
	encoding   string
	dryRun     bool
	logLevel   string
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("event-reporter", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to a YAML, JSON or TOML config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&opts.endpoint, "endpoint", "", "collector address, host:port or udp://host:port")
	flagSet.StringVar(&opts.mode, "mode", "", "dispatch mode: envelope or metrics")
	flagSet.IntVar(&opts.threshold, "threshold", 0, "flush after this many buffered events")
	flagSet.DurationVar(&opts.interval, "interval", 0, "flush on this period instead of a threshold")
	flagSet.StringVar(&opts.prefix, "prefix", "", "metric name prefix in metrics mode")
	flagSet.StringVar(&opts.encoding, "encoding", "", "envelope encoding: json or cbor")
	flagSet.BoolVar(&opts.dryRun, "dry-run", false, "write datagrams to stdout instead of sending them")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match other binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("event-reporter")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	logger, err := newLogger(opts.logLevel)
	if err != nil {
		return err
	}

	file, err := loadFile(opts.configPath)
	if err != nil {
		return err
	}
	reporterConfig, err := resolve(file, opts, flagSet.Changed, logger)
	if err != nil {
		return err
	}
	if opts.dryRun {
		encoding, compression := reporterConfig.Encoding, reporterConfig.Compression
		if reporterConfig.Mode == reporter.ModeMetrics {
			encoding, compression = envelope.JSON, envelope.CompressionNone
		}
		reporterConfig.Sink = newDryRunSink(os.Stdout, encoding, compression)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventReporter, err := reporter.New(reporterConfig)
	if err != nil {
		releaseConfig(reporterConfig, logger)
		return err
	}
	events := make(chan event.Event, 64)
	if err := eventReporter.Init(events); err != nil {
		return err
	}

	go func() {
		if err := readEvents(ctx, os.Stdin, events, logger); err != nil {
			logger.Error("reading events", "error", err)
		}
	}()

	if err := eventReporter.Start(ctx); err != nil {
		return err
	}
	go flushOnSignal(ctx, eventReporter, logger)

	<-eventReporter.Done()

	stats := eventReporter.Stats()
	if stats.TransportErrors > 0 {
		logger.Warn("some datagrams were not delivered",
			"transport_errors", stats.TransportErrors,
			"datagrams_dropped", stats.DatagramsDropped,
		)
	}
	return nil
}

// loadFile returns the config file named by path, by the environment
// variable, or an empty file when neither is set.
func loadFile(path string) (*config.File, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvironmentVariable) != "" {
		return config.Load()
	}
	return &config.File{}, nil
}

// releaseConfig closes what resolve and the dry-run setup created,
// for when no reporter took ownership of it.
func releaseConfig(reporterConfig reporter.Config, logger *slog.Logger) {
	if reporterConfig.Formatters != nil {
		reporterConfig.Formatters.Close()
	}
	if reporterConfig.Client != nil {
		if err := reporterConfig.Client.Close(); err != nil {
			logger.Warn("closing statsd client", "error", err)
		}
	}
	if reporterConfig.Sink != nil {
		if err := reporterConfig.Sink.Close(); err != nil {
			logger.Warn("closing sink", "error", err)
		}
	}
}

// resolve layers the flags the user set over the file and builds the
// reporter configuration.
func resolve(file *config.File, opts options, changed func(string) bool, logger *slog.Logger) (reporter.Config, error) {
	if changed("endpoint") {
		file.Endpoint = opts.endpoint
	}
	if changed("mode") {
		file.Mode = opts.mode
	}
	if changed("prefix") {
		file.Prefix = opts.prefix
	}
	if changed("encoding") {
		file.Encoding = opts.encoding
	}
	// A threshold or interval flag replaces whichever policy the file
	// chose, so the two never combine.
	if changed("threshold") {
		file.Threshold = opts.threshold
		file.Interval = 0
	}
	if changed("interval") {
		file.Interval = config.Duration(opts.interval)
		if !changed("threshold") {
			file.Threshold = 0
		}
	}
	if opts.dryRun {
		// The dry-run sink replaces every network client.
		file.Client = ""
	}
	if err := file.Validate(); err != nil {
		return reporter.Config{}, err
	}
	return file.Resolve(logger)
}

// flushOnSignal forces a flush on each SIGUSR1 until ctx is done or
// the reporter stops.
func flushOnSignal(ctx context.Context, eventReporter *reporter.Reporter, logger *slog.Logger) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1)
	defer signal.Stop(signals)
	for {
		select {
		case <-signals:
			if err := eventReporter.ForceFlush(ctx); err != nil {
				if errors.Is(err, reporter.ErrStopped) {
					return
				}
				logger.Warn("forced flush failed", "error", err)
			}
		case <-eventReporter.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// newLogger creates a text logger when stderr is a terminal and a JSON
// logger otherwise.
func newLogger(level string) (*slog.Logger, error) {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	options := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler), nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `event-reporter: batch telemetry events and report them over UDP.

Reads one JSON object per line on stdin. Each object is an event; its
"event" field names the type and its optional "timestamp" field orders
it within a batch. Events whose type has no registered formatter are
discarded.

In envelope mode each flush sends one datagram carrying every batched
event, grouped by type. In metrics mode each flush runs the formatters
and sends statsd lines.

Usage:
  event-reporter [flags] < events.ndjson

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

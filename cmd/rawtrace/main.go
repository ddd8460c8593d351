// rawtrace reads the raw per-CPU ftrace ring buffers and prints or exports
// the recorded events in timestamp order.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sys/unix"

	"github.com/mrzor/rawtrace/internal/attributes"
	"github.com/mrzor/rawtrace/internal/config"
	"github.com/mrzor/rawtrace/internal/eventprocessor"
	"github.com/mrzor/rawtrace/internal/eventstream"
	"github.com/mrzor/rawtrace/internal/eventtype"
	"github.com/mrzor/rawtrace/internal/otel"
	"github.com/mrzor/rawtrace/internal/output"
	"github.com/mrzor/rawtrace/internal/procmeta"
	"github.com/mrzor/rawtrace/internal/timesync"
	"github.com/mrzor/rawtrace/internal/tracefs"
)

// Version information injected at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// passEnder is implemented by handlers that group samples per drain.
type passEnder interface {
	EndPass()
}

type flusher interface {
	Flush() error
}

// tracingRoots resolves the tracefs mount and the instance directory to read.
func tracingRoots(cfg *config.Config) (string, string, error) {
	dir := cfg.TracingDir
	if dir == "" {
		var err error
		if dir, err = tracefs.TracingDir(); err != nil {
			return "", "", err
		}
	}
	root := dir
	if cfg.Instance != "" {
		root = tracefs.InstanceDir(dir, cfg.Instance)
	}
	return dir, root, nil
}

// loadRegistry parses the event formats and seeds the task name table.
func loadRegistry(cfg *config.Config, dir string) (*eventtype.Registry, *procmeta.Manager, error) {
	reg, failures, err := tracefs.LocalEvents(dir, cfg.Systems)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load event formats: %w", err)
	}
	if failures > 0 {
		log.WithField("failures", failures).Warn("Some event formats could not be parsed")
	}
	log.WithField("events", reg.Len()).Debug("Loaded event formats")

	tasks := procmeta.NewManager()
	if n, err := tracefs.LoadCmdlines(dir, tasks); err != nil {
		log.WithError(err).Debug("No saved_cmdlines, task names will be learned from events")
	} else {
		log.WithField("tasks", n).Debug("Loaded saved_cmdlines")
	}
	return reg, tasks, nil
}

// setupClock builds the timestamp converter for the instance's trace clock.
func setupClock(root string) (*timesync.Converter, error) {
	clock, err := tracefs.TraceClock(root)
	if err != nil {
		log.WithError(err).Warn("Unknown trace clock, assuming local")
		clock = "local"
	}
	converter, err := timesync.NewConverter(clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create time converter: %w", err)
	}
	return converter, nil
}

// setupOTEL initializes the OTEL provider and returns the formatter and a
// cleanup function.
func setupOTEL(cfg *config.Config) (*output.OTELFormatter, func(), error) {
	// Parse OTEL configuration from environment
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}

	evaluator, err := attributes.NewEvaluator(cfg.CustomAttributes)
	if err != nil {
		return nil, nil, err
	}
	traceIDEval, err := attributes.NewTraceIDEvaluator(cfg.TraceID)
	if err != nil {
		return nil, nil, err
	}
	parentIDEval, err := attributes.NewParentIDEvaluator(cfg.ParentID)
	if err != nil {
		return nil, nil, err
	}

	run := attributes.CurrentRun(cfg.Instance)
	traceID, traceWarnings, err := traceIDEval.EvaluateAndValidate(run)
	if err != nil {
		return nil, nil, err
	}
	parentID, parentWarnings, err := parentIDEval.EvaluateAndValidate(run)
	if err != nil {
		return nil, nil, err
	}

	tp, err := otel.InitProvider(otelCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			log.WithError(err).Error("Error shutting down OTEL provider")
		}
	}

	formatter := output.NewOTELFormatter(tp.Tracer("rawtrace"), output.OTELOptions{
		TraceID:   traceID,
		ParentID:  parentID,
		Warnings:  append(append([]attribute.KeyValue(nil), traceWarnings...), parentWarnings...),
		Evaluator: evaluator,
		Instance:  cfg.Instance,
	})
	return formatter, cleanup, nil
}

// setupHandlers creates the output handlers selected by the configuration.
func setupHandlers(cfg *config.Config) ([]eventprocessor.SampleHandler, func(), error) {
	switch cfg.Output {
	case config.OutputOTEL:
		formatter, cleanup, err := setupOTEL(cfg)
		if err != nil {
			return nil, nil, err
		}
		return []eventprocessor.SampleHandler{formatter}, cleanup, nil
	default:
		if len(cfg.CustomAttributes) > 0 {
			log.Warn("Custom attributes are only recorded with -output otel")
		}
		return []eventprocessor.SampleHandler{output.NewTextFormatter(os.Stdout)}, func() {}, nil
	}
}

// drain runs one pass over the per-CPU buffers and finishes the pass on
// every handler.
func drain(reg *eventtype.Registry, opts *eventstream.Options, processor *eventprocessor.Processor,
	handlers []eventprocessor.SampleHandler) error {
	err := eventstream.IterateRawEvents(reg, opts, processor.Handle)

	for _, h := range handlers {
		if p, ok := h.(passEnder); ok {
			p.EndPass()
		}
		if f, ok := h.(flusher); ok {
			if ferr := f.Flush(); ferr != nil {
				err = errors.Join(err, ferr)
			}
		}
	}
	return err
}

func run() error {
	cfg, err := config.ParseArgs(os.Args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if cfg.Version {
		fmt.Printf("rawtrace %s (commit: %s, built: %s)\n", version, commit, date)
		return nil
	}

	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if err := cfg.SanityCheck(); err != nil {
		return err
	}

	dir, root, err := tracingRoots(cfg)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"tracefs": dir, "root": root}).Debug("Using tracing directory")

	reg, tasks, err := loadRegistry(cfg, dir)
	if err != nil {
		return err
	}

	converter, err := setupClock(root)
	if err != nil {
		return err
	}

	handlers, cleanup, err := setupHandlers(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	procOpts := []eventprocessor.Option{eventprocessor.WithMaxEvents(cfg.MaxEvents)}
	if cfg.Filter != "" {
		filter, err := attributes.NewFilter(cfg.Filter)
		if err != nil {
			return err
		}
		procOpts = append(procOpts, eventprocessor.WithFilter(filter))
	}
	processor := eventprocessor.NewProcessor(reg.ByteOrder(), tasks, converter, handlers, procOpts...)

	opts := &eventstream.Options{Instance: root, CPUs: cfg.CPUs}

	ctx, cancel := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		if err := drain(reg, opts, processor, handlers); err != nil {
			return err
		}
		if !cfg.Follow || (cfg.MaxEvents > 0 && processor.Accepted() >= cfg.MaxEvents) {
			break
		}
		select {
		case <-ctx.Done():
			log.Debug("Received signal, stopping")
			return nil
		case <-ticker.C:
		}
	}

	log.WithField("events", processor.Accepted()).Debug("Done")
	return nil
}

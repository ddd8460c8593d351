package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
	"golang.org/x/sys/unix"
)

const (
	OutputText = "text"
	OutputOTEL = "otel"
)

const (
	defaultArgTracingDir = ""
	defaultArgInstance   = ""
	defaultArgCPUs       = ""
	defaultArgSystems    = ""
	defaultArgFilter     = ""
	defaultArgMaxEvents  = 0
	defaultArgFollow     = false
	defaultArgInterval   = 100 * time.Millisecond
	defaultArgOutput     = OutputText
	defaultArgVerbose    = false
)

// Help strings for command line arguments
var (
	tracingDirHelp = "Path to the tracefs mount. Detected from /proc/mounts when empty."
	instanceHelp   = "Name of the ftrace instance to read. Empty reads the top-level buffers."
	cpusHelp       = "CPUs to read, as a list such as 0-3,8. Empty reads every CPU."
	systemsHelp    = "Comma-separated event systems whose formats are loaded. Empty loads all."
	filterHelp     = "Expression selecting the events to output, e.g. pid == 42."
	attributeHelp  = "Custom attribute as NAME=EXPR. Repeatable."
	maxEventsHelp  = "Stop after this many events have been output. 0 means no limit."
	followHelp     = "Keep reading the buffers until interrupted."
	intervalHelp   = "Delay between drains of the buffers in follow mode."
	outputHelp     = "Output format: text or otel."
	traceIDHelp    = "Expression or literal for the OpenTelemetry trace ID."
	parentIDHelp   = "Expression or literal for the parent span ID."
	verboseHelp    = "Enable debug logging."
	versionHelp    = "Print the version and exit."
	configHelp     = "Path to a config file with one flag per line."
)

// CustomAttribute is a named expression evaluated for every sample.
type CustomAttribute struct {
	Name       string
	Expression string
}

// Config holds the parsed command-line configuration
type Config struct {
	TracingDir       string
	Instance         string
	CPUs             *unix.CPUSet // nil selects every CPU
	Systems          []string     // nil loads every system
	Filter           string
	CustomAttributes []CustomAttribute
	MaxEvents        int
	Follow           bool
	Interval         time.Duration
	Output           string
	TraceID          string
	ParentID         string
	Verbose          bool
	Version          bool
}

// attributeList collects repeated -a NAME=EXPR flags.
type attributeList struct {
	attrs *[]CustomAttribute
}

func (l attributeList) String() string {
	if l.attrs == nil {
		return ""
	}
	parts := make([]string, 0, len(*l.attrs))
	for _, a := range *l.attrs {
		parts = append(parts, a.Name+"="+a.Expression)
	}
	return strings.Join(parts, ";")
}

func (l attributeList) Set(value string) error {
	attr, err := parseAttribute(value)
	if err != nil {
		return err
	}
	*l.attrs = append(*l.attrs, attr)
	return nil
}

// ParseArgs parses command-line arguments, then RAWTRACE_* environment
// variables, then the optional config file. args[0] is the program name.
func ParseArgs(args []string) (*Config, error) {
	if len(args) == 0 {
		return nil, errors.New("no arguments provided")
	}

	var (
		cfg     Config
		cpus    string
		systems string
	)

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.TracingDir, "tracing-dir", defaultArgTracingDir, tracingDirHelp)
	fs.StringVar(&cfg.Instance, "instance", defaultArgInstance, instanceHelp)
	fs.StringVar(&cpus, "cpus", defaultArgCPUs, cpusHelp)
	fs.StringVar(&systems, "systems", defaultArgSystems, systemsHelp)
	fs.StringVar(&cfg.Filter, "f", defaultArgFilter, filterHelp)
	fs.StringVar(&cfg.Filter, "filter", defaultArgFilter, filterHelp)
	attrs := attributeList{attrs: &cfg.CustomAttributes}
	fs.Var(attrs, "a", attributeHelp)
	fs.Var(attrs, "attribute", attributeHelp)
	fs.IntVar(&cfg.MaxEvents, "n", defaultArgMaxEvents, maxEventsHelp)
	fs.IntVar(&cfg.MaxEvents, "max-events", defaultArgMaxEvents, maxEventsHelp)
	fs.BoolVar(&cfg.Follow, "follow", defaultArgFollow, followHelp)
	fs.DurationVar(&cfg.Interval, "interval", defaultArgInterval, intervalHelp)
	fs.StringVar(&cfg.Output, "output", defaultArgOutput, outputHelp)
	fs.StringVar(&cfg.TraceID, "t", "", traceIDHelp)
	fs.StringVar(&cfg.TraceID, "trace-id", "", traceIDHelp)
	fs.StringVar(&cfg.ParentID, "p", "", parentIDHelp)
	fs.StringVar(&cfg.ParentID, "parent-id", "", parentIDHelp)
	fs.BoolVar(&cfg.Verbose, "v", defaultArgVerbose, verboseHelp)
	fs.BoolVar(&cfg.Verbose, "verbose", defaultArgVerbose, verboseHelp)
	fs.BoolVar(&cfg.Version, "version", false, versionHelp)
	fs.String("config", "", configHelp)

	if err := ff.Parse(fs, args[1:],
		ff.WithEnvVarPrefix("RAWTRACE"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithAllowMissingConfigFile(true),
	); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stderr)
			fs.PrintDefaults()
		}
		return nil, err
	}

	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if cpus != "" {
		set, err := ParseCPUList(cpus)
		if err != nil {
			return nil, err
		}
		cfg.CPUs = set
	}
	cfg.Systems = splitList(systems)

	return &cfg, nil
}

// SanityCheck validates option combinations that flag parsing cannot.
func (c *Config) SanityCheck() error {
	switch c.Output {
	case OutputText, OutputOTEL:
	default:
		return fmt.Errorf("unknown output %q: must be %s or %s", c.Output, OutputText, OutputOTEL)
	}
	if c.MaxEvents < 0 {
		return errors.New("max-events must not be negative")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.CPUs != nil && c.CPUs.Count() == 0 {
		return errors.New("cpu list selects no CPU")
	}
	return nil
}

// parseAttribute parses one NAME=EXPR pair. The expression may contain '='.
func parseAttribute(s string) (CustomAttribute, error) {
	name, expr, ok := strings.Cut(s, "=")
	if !ok {
		return CustomAttribute{}, fmt.Errorf("invalid attribute format %q: expected NAME=EXPR", s)
	}
	name = strings.TrimSpace(name)
	expr = strings.TrimSpace(expr)
	if name == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: name cannot be empty", s)
	}
	if expr == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: expression cannot be empty", s)
	}
	return CustomAttribute{Name: name, Expression: expr}, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

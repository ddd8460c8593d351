// Package tracefs locates the tracing filesystem and reads the metadata
// needed to decode raw trace pages: event formats, command names, clocks.
package tracefs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNoTracingDir is returned when no mounted tracefs could be found.
var ErrNoTracingDir = errors.New("tracefs is not mounted")

// Overridable for the test suite.
var (
	knownMounts = []string{
		"/sys/kernel/tracing",
		"/sys/kernel/debug/tracing",
	}
	mountsFile = "/proc/mounts"
)

// TracingDir returns the root of the mounted tracefs.
func TracingDir() (string, error) {
	for _, dir := range knownMounts {
		if isTracefs(dir) {
			return dir, nil
		}
	}

	f, err := os.Open(mountsFile)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoTracingDir, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// device mountpoint fstype options dump pass
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 3 && fields[2] == "tracefs" {
			return fields[1], nil
		}
	}
	return "", ErrNoTracingDir
}

// isTracefs reports whether dir looks like a tracefs root.
func isTracefs(dir string) bool {
	st, err := os.Stat(filepath.Join(dir, "per_cpu"))
	return err == nil && st.IsDir()
}

// InstanceDir returns the directory of a named tracing instance under root.
func InstanceDir(root, name string) string {
	return filepath.Join(root, "instances", name)
}

// EventSystems returns the event systems under dir, sorted. Only systems
// with an "enable" file are listed, which excludes "ftrace".
func EventSystems(dir string) ([]string, error) {
	eventsDir := filepath.Join(dir, "events")
	entries, err := os.ReadDir(eventsDir)
	if err != nil {
		return nil, err
	}

	var systems []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(eventsDir, e.Name(), "enable")); err != nil {
			continue
		}
		systems = append(systems, e.Name())
	}
	slices.Sort(systems)
	return systems, nil
}

// SystemEvents returns the event names of one system, sorted.
func SystemEvents(dir, system string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dir, "events", system))
	if err != nil {
		return nil, err
	}

	var events []string
	for _, e := range entries {
		if e.IsDir() {
			events = append(events, e.Name())
		}
	}
	slices.Sort(events)
	return events, nil
}

// Tracers returns the tracer plugins listed in available_tracers, without
// the "nop" and "none" placeholders.
func Tracers(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "available_tracers"))
	if err != nil {
		return nil, err
	}

	var tracers []string
	for _, t := range strings.Fields(string(data)) {
		if t == "nop" || t == "none" {
			continue
		}
		tracers = append(tracers, t)
	}
	return tracers, nil
}

// TraceClock returns the clock currently selected in trace_clock, the
// bracketed entry of the list.
func TraceClock(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "trace_clock"))
	if err != nil {
		return "", err
	}
	for _, c := range strings.Fields(string(data)) {
		if strings.HasPrefix(c, "[") && strings.HasSuffix(c, "]") {
			return strings.Trim(c, "[]"), nil
		}
	}
	return "", fmt.Errorf("no clock selected in %q", strings.TrimSpace(string(data)))
}

package timesync

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Overridable for the test suite.
var (
	procStat = "/proc/stat"
	now      = time.Now
)

// taiOffset is TAI - UTC since 2017-01-01.
const taiOffset = 37 * time.Second

// Converter handles conversion from trace clock timestamps to wall-clock time.
type Converter struct {
	clock    string
	bootTime time.Time // wall-clock time at which the trace clock read zero
	walls    bool      // false for counters that are not nanoseconds
}

// NewConverter creates a converter for the named trace clock, as selected in
// tracefs trace_clock. Clocks counting nanoseconds since boot are anchored
// by sampling the matching kernel clock; if that fails the boot time from
// /proc/stat is used.
func NewConverter(clock string) (*Converter, error) {
	c := &Converter{clock: clock, walls: true}

	switch clock {
	case "tai":
		return c, nil
	case "counter", "x86-tsc", "uptime":
		c.walls = false
		return c, nil
	case "boot":
		c.bootTime = anchor(unix.CLOCK_BOOTTIME)
	case "mono_raw":
		c.bootTime = anchor(unix.CLOCK_MONOTONIC_RAW)
	case "local", "global", "perf", "mono", "":
		c.bootTime = anchor(unix.CLOCK_MONOTONIC)
	default:
		return nil, fmt.Errorf("unsupported trace clock %q", clock)
	}

	if c.bootTime.IsZero() {
		bootTime, err := getSystemBootTime()
		if err != nil {
			return nil, err
		}
		c.bootTime = bootTime
	}
	return c, nil
}

// NewFixedConverter creates a converter for nanosecond clocks that read zero
// at bootTime.
func NewFixedConverter(bootTime time.Time) *Converter {
	return &Converter{clock: "local", bootTime: bootTime, walls: true}
}

// anchor returns the wall-clock time at which clock read zero, or the zero
// time if the clock cannot be read.
func anchor(clock int32) time.Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(clock, &ts); err != nil {
		log.Debugf("clock_gettime(%d): %v", clock, err)
		return time.Time{}
	}
	return now().Add(-time.Duration(ts.Nano()))
}

// WallClock converts a trace timestamp to wall-clock time. It returns the
// zero time for clocks that do not count nanoseconds.
func (c *Converter) WallClock(ts uint64) time.Time {
	if !c.walls {
		return time.Time{}
	}
	if c.clock == "tai" {
		//nolint:gosec // nanoseconds since the epoch fit an int64 until 2262
		return time.Unix(0, int64(ts)).Add(-taiOffset)
	}
	//nolint:gosec // uint64 to int64 conversion for time.Duration is safe for reasonable timestamps
	return c.bootTime.Add(time.Duration(ts))
}

// Clock returns the name of the trace clock.
func (c *Converter) Clock() string {
	return c.clock
}

// BootTime returns the wall-clock time at which the trace clock read zero.
func (c *Converter) BootTime() time.Time {
	return c.bootTime
}

// getSystemBootTime reads the system boot time from /proc/stat.
// Returns the boot time as a time.Time value, or an error if reading fails.
func getSystemBootTime() (time.Time, error) {
	file, err := os.Open(procStat)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to open %s: %w", procStat, err)
	}
	defer func() {
		_ = file.Close() //nolint:errcheck // Read-only file, defer cleanup
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "btime ") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				bootTimeSec, err := strconv.ParseInt(fields[1], 10, 64)
				if err != nil {
					return time.Time{}, fmt.Errorf("failed to parse btime: %w", err)
				}
				return time.Unix(bootTimeSec, 0), nil
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return time.Time{}, fmt.Errorf("error reading %s: %w", procStat, err)
	}

	return time.Time{}, fmt.Errorf("btime not found in %s", procStat)
}

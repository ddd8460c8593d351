// Package timesync converts ftrace timestamps to wall-clock time.
//
// The timestamps in raw trace pages come from the clock selected in the
// tracefs trace_clock file. The default clocks (local, global, perf, mono)
// count nanoseconds since boot; this package anchors them to the wall clock
// by sampling the matching kernel clock once at startup, falling back to the
// boot time from /proc/stat. Counter clocks (counter, x86-tsc) carry no time
// and convert to the zero time.
package timesync

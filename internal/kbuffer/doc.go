// Package kbuffer decodes the binary pages produced by the kernel ftrace ring buffer.
//
// A page ("sub-buffer") read from a per_cpu/cpuN/trace_pipe_raw file looks like:
//
//	┌──────────────┬──────────────────┬───────────────────────────────┐
//	│ u64 timestamp│ long commit      │ records ...                   │
//	└──────────────┴──────────────────┴───────────────────────────────┘
//
// The commit word holds the number of used data bytes (low 27 bits) plus
// missed-event flags. Every record starts with a 32-bit header packing a
// 5-bit type_len and a 27-bit time delta; the bit order of that packing
// follows the byte order of the traced machine.
//
// The layout depends on two run-wide parameters, the byte order and the
// size of a kernel long (4 or 8). A Buffer is created once per source with
// those parameters and then reused for every page read from that source.
package kbuffer

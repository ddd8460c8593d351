// Package eventstream merges the per-CPU raw ftrace ring buffers of a
// tracing instance into one stream of records ordered by timestamp.
//
// Each CPU exposes its buffer as per_cpu/cpuN/trace_pipe_raw. Reading that
// file returns whole pages in the kernel ring buffer format (see package
// kbuffer). IterateRawEvents opens every selected CPU file non-blocking,
// keeps one page buffer and one pending record per CPU, and repeatedly
// delivers the pending record with the smallest timestamp:
//
//	discover  per_cpu/cpu0 .. cpuN, one page buffer each
//	prime     read one page per CPU, decode up to the first known event
//	loop      pick min timestamp -> Handler -> refill that CPU only
//	done      no CPU has a pending record, or the Handler stopped
//
// Records whose event id is not in the Registry are skipped. A CPU that
// has no page to read right now, or whose page is corrupt, is exhausted
// for the rest of the call; calling IterateRawEvents again picks up new
// data. Memory use is one page per CPU whatever the amount of buffered
// trace data.
//
// Record.Data is a view into the page buffer of its CPU. It is overwritten
// when that CPU loads its next page, so a Handler that needs the payload
// after returning must copy it.
package eventstream

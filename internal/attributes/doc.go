// Package attributes provides expression evaluation for sample filters,
// custom span attributes, trace IDs, and parent span IDs.
//
// Filters and custom attributes are evaluated per sample using the expr
// language, with these variables:
//
//	cpu     int             CPU the record was read from
//	ts      uint64          trace clock timestamp
//	pid     int             common_pid, -1 if absent
//	comm    string          task name
//	system  string          event system, e.g. "sched"
//	event   string          event name, e.g. "sched_switch"
//	fields  map[string]any  decoded payload fields
//
// Trace and parent IDs are evaluated once per run against the tracer's own
// environment (env, args, hostname, instance). Invalid trace IDs are hashed
// with SHA-256 to produce valid IDs. Invalid parent IDs result in a null
// parent (zero span ID).
package attributes

// Package procmeta manages task metadata lifecycle.
//
// TaskMetadata holds the command name of a task and where it was learned:
// the kernel saved_cmdlines table or a trace event that carries a comm.
//
// Manager provides command-query separation:
//
// Queries (read-only):
//   - Get(pid) - Retrieve metadata
//   - Comm(pid) - Command name, "<...>" when unknown
//   - Len() - Number of known tasks
//
// Commands (mutations):
//   - Set(pid, metadata) - Store metadata
//   - SetComm(pid, comm, source) - Record a command name
//   - ParseSavedCmdlines(r) - Bulk load from saved_cmdlines
//   - Delete(pid) - Clean up on task exit
//
// Thread-safe with RWMutex for concurrent access.
package procmeta

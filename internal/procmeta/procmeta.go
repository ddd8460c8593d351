// Package procmeta tracks the command names of tasks seen in trace data.
package procmeta

// Source records where a task's command name came from.
type Source string

const (
	SourceSavedCmdlines Source = "saved_cmdlines"
	SourceEvent         Source = "event"
)

// UnknownComm is reported for pids with no known command name.
const UnknownComm = "<...>"

// TaskMetadata holds what is known about one task.
type TaskMetadata struct {
	Comm   string // Command name, at most 15 bytes as kept by the kernel
	Source Source // Where Comm was learned
}

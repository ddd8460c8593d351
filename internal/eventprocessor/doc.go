// Package eventprocessor turns raw trace records into decoded samples.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│   eventstream.IterateRawEvents          │
//	│   (timestamp-ordered deliveries)        │
//	└─────────────────┬───────────────────────┘
//	                  │ type, record, cpu
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   eventprocessor.Processor              │
//	│   - Decodes fields into a Sample        │
//	│   - Converts the timestamp (timesync)   │
//	└─────────┬───────────────────────────────┘
//	          │
//	          ├──→ sched/task events ─→ procmeta.Manager
//	          │                         - Learns pid → comm
//	          │
//	          ├──→ Filter ────────────→ drop or keep
//	          │
//	          └──→ SampleHandler(s) ──→ output formatters
//
// Samples copy everything they need out of the record, so handlers may keep
// them after Handle returns. Handle requests a stop once the configured
// maximum number of samples has been accepted.
package eventprocessor

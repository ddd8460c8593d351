// Package output provides formatters for decoded trace samples.
//
// Both formatters implement eventprocessor.SampleHandler and receive samples
// in global timestamp order:
//   - TextFormatter writes one line per sample, in the style of the tracefs
//     trace file.
//   - OTELFormatter records every sample as an event on an OpenTelemetry span.
//     One span covers one drain of the per-CPU buffers.
//
// Formatters do not decode payloads, evaluate filters, or resolve task names.
// That happens upstream in eventprocessor, attributes, and procmeta.
package output

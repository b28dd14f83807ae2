// SPDX-License-Identifier: MPL-2.0

// Package bounded runs fetches under a hard wall-clock deadline.
//
// In process mode every call re-executes the datafy binary as a worker
// (the hidden "internal fetch-worker" command), exchanges the request and
// the outcome as CBOR over stdin and stdout, and kills the worker when the
// deadline elapses. Killing a process is the only way to stop a decode that
// is stuck in CPU-bound library code, so process mode is the default.
//
// In-process mode runs the pipeline on a goroutine and stops waiting for it
// at the deadline. The goroutine observes context cancellation at its next
// network or archive step but cannot be preempted inside a decoder.
//
// Both modes return artifact.TimedOut on expiry and never attach partial
// results. The executor imposes no concurrency cap.
package bounded

// SPDX-License-Identifier: MPL-2.0

// Package benchmark holds benchmarks over datafy's hot paths for PGO
// profile generation:
//   - CUE config loading and schema validation
//   - type resolution with sniffing
//   - CSV and JSON materialization
//   - zip expansion through the full pipeline
//   - bounded in-process execution
//
// To generate a profile:
//
//	go test ./internal/benchmark -run '^$' -bench . -cpuprofile default.pgo
package benchmark

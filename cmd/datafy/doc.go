// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the datafy CLI: fetching resources into typed
// artifacts, inspecting configuration, and the hidden worker entry point
// used by the bounded executor.
package cmd

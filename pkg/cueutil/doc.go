// SPDX-License-Identifier: MPL-2.0

// Package cueutil holds the CUE helpers shared by configuration loading:
// error formatting with JSON-path prefixes and an input size guard.
package cueutil

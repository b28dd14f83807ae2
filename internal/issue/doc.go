// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalog of Markdown
// remediation guides, one per fetch failure kind, rendered for the terminal
// with glamour.
package issue

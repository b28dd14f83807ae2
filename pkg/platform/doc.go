// SPDX-License-Identifier: MPL-2.0

// Package platform holds the operating system quirks that affect where
// datafy may write extracted files.
package platform

// SPDX-License-Identifier: MPL-2.0

// Package testutil provides fixture builders shared by datafy's tests.
// Helpers fail the test immediately instead of returning errors.
package testutil

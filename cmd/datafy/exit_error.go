// SPDX-License-Identifier: MPL-2.0

package cmd

import "fmt"

const (
	// ExitFetchFailed is returned when at least one resource did not yield
	// artifacts.
	ExitFetchFailed = 1
	// ExitUsage is returned for invalid flags or configuration.
	ExitUsage = 2
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// SPDX-License-Identifier: MPL-2.0

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"syscall"
)

const (
	// KindNone is the zero kind, carried by successful and timed-out outcomes.
	KindNone ErrorKind = ""
	// KindUnknownType means every type-resolution stage was exhausted.
	KindUnknownType ErrorKind = "unknown_type"
	// KindCorruptArchive means a container could not be opened or nested too deeply.
	KindCorruptArchive ErrorKind = "corrupt_archive"
	// KindDecode means the payload did not match its resolved type.
	KindDecode ErrorKind = "decode"
	// KindTooLarge means the resource exceeded the request size limit.
	KindTooLarge ErrorKind = "too_large"
	// KindHTTPStatus means the server answered with a non-2xx status.
	KindHTTPStatus ErrorKind = "http_status"
	// KindNetwork covers transport failures: DNS, refused or reset connections.
	KindNetwork ErrorKind = "network"
	// KindIO covers local filesystem failures.
	KindIO ErrorKind = "io"
	// KindInternal covers everything else, including worker protocol failures.
	KindInternal ErrorKind = "internal"
)

var (
	// ErrUnknownType is the sentinel error wrapped by UnknownTypeError.
	ErrUnknownType = errors.New("unknown type")
	// ErrCorruptArchive is the sentinel error wrapped by CorruptArchiveError.
	ErrCorruptArchive = errors.New("corrupt archive")
	// ErrDecode is the sentinel error wrapped by DecodeError.
	ErrDecode = errors.New("decode error")
	// ErrTooLarge is the sentinel error wrapped by TooLargeError.
	ErrTooLarge = errors.New("resource too large")
	// ErrHTTPStatus is the sentinel error wrapped by HTTPStatusError.
	ErrHTTPStatus = errors.New("unexpected http status")
)

type (
	// ErrorKind is the closed failure taxonomy reported in a failed Outcome.
	ErrorKind string

	// UnknownTypeError is returned when no resolution stage produced a type.
	// MIME carries whatever content type was observed so a table entry can be added.
	UnknownTypeError struct {
		URI  string
		MIME string
	}

	// CorruptArchiveError is returned when a container cannot be opened, or
	// when nesting exceeds the supported depth.
	CorruptArchiveError struct {
		URI   string
		Depth int
		Cause error
	}

	// DecodeError is returned when a payload cannot be decoded as its resolved type.
	DecodeError struct {
		Extension string
		Cause     error
	}

	// TooLargeError is returned when a resource exceeds the request size limit.
	TooLargeError struct {
		URI   string
		Size  int64
		Limit int64
	}

	// HTTPStatusError is returned for non-2xx responses.
	HTTPStatusError struct {
		URI        string
		StatusCode int
		Status     string
	}
)

// Error implements the error interface.
func (e *UnknownTypeError) Error() string {
	if e.MIME == "" {
		return fmt.Sprintf("could not determine the type of %s", e.URI)
	}
	return fmt.Sprintf("could not determine the type of %s (observed content-type %q)", e.URI, e.MIME)
}

// Unwrap returns ErrUnknownType for errors.Is() compatibility.
func (e *UnknownTypeError) Unwrap() error { return ErrUnknownType }

// Error implements the error interface.
func (e *CorruptArchiveError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("corrupt archive %s at depth %d", e.URI, e.Depth)
	}
	return fmt.Sprintf("corrupt archive %s at depth %d: %v", e.URI, e.Depth, e.Cause)
}

// Unwrap returns both the sentinel and the cause.
func (e *CorruptArchiveError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrCorruptArchive}
	}
	return []error{ErrCorruptArchive, e.Cause}
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Extension, e.Cause)
}

// Unwrap returns both the sentinel and the cause.
func (e *DecodeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Cause}
}

// Error implements the error interface.
func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%s is %d bytes, over the %d byte limit", e.URI, e.Size, e.Limit)
}

// Unwrap returns ErrTooLarge for errors.Is() compatibility.
func (e *TooLargeError) Unwrap() error { return ErrTooLarge }

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URI, e.Status)
}

// Unwrap returns ErrHTTPStatus for errors.Is() compatibility.
func (e *HTTPStatusError) Unwrap() error { return ErrHTTPStatus }

// KindOf classifies err into the failure taxonomy.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	switch {
	case errors.Is(err, ErrUnknownType):
		return KindUnknownType
	case errors.Is(err, ErrCorruptArchive):
		return KindCorruptArchive
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrTooLarge):
		return KindTooLarge
	case errors.Is(err, ErrHTTPStatus):
		return KindHTTPStatus
	}

	// Transport errors are matched by concrete type: syscall.Errno also
	// satisfies net.Error, which would make every local failure look
	// retryable.
	var (
		urlErr *url.Error
		opErr  *net.OpError
		dnsErr *net.DNSError
	)
	if errors.As(err, &urlErr) || errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return KindNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}

	var (
		pathErr *fs.PathError
		linkErr *os.LinkError
		errno   syscall.Errno
	)
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.As(err, &errno) {
		return KindIO
	}
	return KindInternal
}

// SPDX-License-Identifier: MPL-2.0

// Package typehint resolves a (MIME, extension) pair for a fetched resource.
//
// Resolution is a fixed precedence cascade; each stage runs only when the
// previous one produced nothing:
//
//  1. An explicit hint supplied by the caller is returned verbatim.
//  2. The declared Content-Type header, stripped of parameters, is looked up
//     in a static table of portal MIME strings.
//  3. A prefix of the body is sniffed; the sniffed MIME goes through the same
//     static table first (to correct known sniffer mistakes), then through a
//     generic MIME to extension mapping.
//
// When every stage is exhausted Resolve fails with an *artifact.UnknownTypeError
// carrying the URI and the MIME string that was observed.
package typehint

// SPDX-License-Identifier: MPL-2.0

// Package fetch is the resource fetch pipeline: the single entry point that
// turns a URI into a flat list of artifacts.
//
// A fetch checks the size of remote resources with HEAD, downloads the body
// with GET (or reads it from disk for file URIs), resolves its type,
// expands zip containers through the archive package and materializes every
// other payload. The pipeline is synchronous per call; deadlines are
// enforced by internal/bounded, which wraps it.
package fetch

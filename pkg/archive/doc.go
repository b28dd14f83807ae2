// SPDX-License-Identifier: MPL-2.0

// Package archive flattens zip containers into artifacts.
//
// An Expander extracts the whole archive into a freshly allocated scratch
// directory, hands every member back to the fetch pipeline as a local entry
// request, and removes the scratch directory before returning on every exit
// path. Members that fail are reported individually instead of aborting
// their siblings.
package archive

// SPDX-License-Identifier: MPL-2.0

package platform

import "strings"

// reservedNames are device names Windows refuses as file or directory
// names, with or without an extension.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	"LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// IsReservedName reports whether a single path segment is a Windows
// device name. Only the part before the first dot counts, so "nul.csv"
// and "con.tar.gz" are both reserved.
func IsReservedName(segment string) bool {
	stem, _, _ := strings.Cut(segment, ".")
	return reservedNames[strings.ToUpper(strings.TrimRight(stem, " "))]
}

// HasReservedSegment reports whether any segment of the slash-separated
// path p is reserved.
func HasReservedSegment(p string) bool {
	for seg := range strings.SplitSeq(p, "/") {
		if IsReservedName(seg) {
			return true
		}
	}
	return false
}

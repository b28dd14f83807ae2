// SPDX-License-Identifier: MPL-2.0

package materialize

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// legacyText decodes undeclared text that is not valid UTF-8. Portals that
// omit a charset almost always serve Windows-1252 or Latin-1, and the former
// is a superset of the latter's printable range.
var legacyText encoding.Encoding = charmap.Windows1252

// text returns src as UTF-8 without a byte order mark. A declared charset
// is honoured; undeclared bytes that are not valid UTF-8 are decoded as
// legacyText.
func (m *Materializer) text(src Source) []byte {
	data := src.Data
	enc := m.charsetEncoding(src.Charset)
	if enc == nil {
		data = bytes.TrimPrefix(data, utf8BOM)
		if utf8.Valid(data) {
			return data
		}
		enc = legacyText
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		m.logger.Debug("charset decode failed, keeping bytes", "charset", src.Charset, "error", err)
		return data
	}
	return bytes.TrimPrefix(decoded, utf8BOM)
}

// charsetEncoding resolves a WHATWG charset label. UTF-8, empty and unknown
// labels return nil.
func (m *Materializer) charsetEncoding(label string) encoding.Encoding {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" || label == "utf-8" || label == "utf8" {
		return nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		m.logger.Debug("unknown charset, assuming UTF-8", "charset", label)
		return nil
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return nil
	}
	return enc
}

// utf8String repairs a single decoded value, such as a dBase attribute,
// that is not valid UTF-8.
func utf8String(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	decoded, err := legacyText.NewDecoder().String(s)
	if err != nil {
		return strings.ToValidUTF8(s, "�")
	}
	return decoded
}

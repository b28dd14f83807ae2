// SPDX-License-Identifier: MPL-2.0

package materialize

import (
	"bytes"
	"strings"

	"github.com/datafy/datafy/pkg/artifact"

	"github.com/PuerkitoBio/goquery"
)

// decodeHTML never produces a payload; a landing page is not data. The
// title is kept so catalogs can label the page.
func decodeHTML(m *Materializer, _ artifact.TypeHint, src Source) (Materialized, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(m.text(src)))
	if err != nil {
		return Materialized{}, nil
	}
	return Materialized{Title: strings.TrimSpace(doc.Find("title").First().Text())}, nil
}

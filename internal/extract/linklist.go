// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"net/url"
	"regexp"

	"github.com/pdiddy/pliegos/pkg/types"
)

// MinLinkText is the visible text length a listing anchor must exceed.
const MinLinkText = 3

var pliegoHref = regexp.MustCompile(`pliego\.php\?(?:[^#]*&)?id=(\d+)`)

// linkListing extracts one record per item anchor of a listing page.
// Item anchors point at pliego.php with a numeric id; the record URL is
// rebuilt with the id as the only query parameter.
func (x *run) linkListing() []types.Record {
	var out []types.Record
	for _, a := range x.doc.Find(`a[href*="pliego.php"]`) {
		x.guard("link-listing", func() {
			href := a.Attr("href")
			m := pliegoHref.FindStringSubmatch(href)
			if m == nil {
				return
			}
			text := a.Text()
			if textLen(text) <= MinLinkText {
				return
			}
			out = append(out, x.record(text, x.itemURL(href, m[1])))
		})
	}
	return out
}

func (x *run) itemURL(href, id string) string {
	abs := x.doc.Resolve(href)
	if abs == "" {
		return ""
	}
	u, err := url.Parse(abs)
	if err != nil {
		return ""
	}
	u.RawQuery = url.Values{"id": {id}}.Encode()
	u.Fragment = ""
	return u.String()
}

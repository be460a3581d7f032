package feed

import (
	"bytes"
	"regexp"

	"github.com/mmcdole/gofeed"
)

var (
	itemStartPattern  = regexp.MustCompile(`<item[\s>]`)
	entryStartPattern = regexp.MustCompile(`<entry[\s>]`)
)

// feedLayout is what salvage needs to know about a document's root: how
// entries start and end, and the tags that close the document after them.
type feedLayout struct {
	entryStart *regexp.Regexp
	entryEnd   []byte
	closing    []byte
}

// detectLayout picks the root that appears first in the document.
func detectLayout(data []byte) (feedLayout, bool) {
	candidates := []struct {
		marker string
		layout feedLayout
	}{
		{"<rss", feedLayout{itemStartPattern, []byte("</item>"), []byte("</channel></rss>")}},
		{"<rdf:RDF", feedLayout{itemStartPattern, []byte("</item>"), []byte("</rdf:RDF>")}},
		{"<feed", feedLayout{entryStartPattern, []byte("</entry>"), []byte("</feed>")}},
	}

	best, found := -1, false
	var layout feedLayout
	for _, c := range candidates {
		idx := bytes.Index(data, []byte(c.marker))
		if idx >= 0 && (!found || idx < best) {
			best, found, layout = idx, true, c.layout
		}
	}
	return layout, found
}

// salvage recovers the well-formed entries of a document gofeed rejected.
// It first cuts the document after the last complete entry and closes it,
// which handles truncated payloads and missing closing tags. Failing that,
// every entry is parsed on its own under the document header and the
// entries that fail are dropped. It returns the feed and the number of
// entries that were lost.
func (p *Parser) salvage(data []byte) (*gofeed.Feed, int, bool) {
	layout, ok := detectLayout(data)
	if !ok {
		return nil, 0, false
	}

	if cut := bytes.LastIndex(data, layout.entryEnd); cut >= 0 {
		cut += len(layout.entryEnd)
		closed := append(append(bytes.Clone(data[:cut]), '\n'), layout.closing...)
		if parsed, err := p.gofeedParser.Parse(bytes.NewReader(closed)); err == nil {
			return parsed, len(layout.entryStart.FindAllIndex(data[cut:], -1)), true
		}
	}

	starts := layout.entryStart.FindAllIndex(data, -1)
	header := data
	if len(starts) > 0 {
		header = data[:starts[0][0]]
	}

	parsed, err := p.gofeedParser.Parse(bytes.NewReader(wrapEntry(header, nil, layout.closing)))
	if err != nil {
		return nil, 0, false
	}
	parsed.Items = nil

	dropped := 0
	for _, start := range starts {
		end := bytes.Index(data[start[0]:], layout.entryEnd)
		if end < 0 {
			dropped++
			continue
		}
		entry := data[start[0] : start[0]+end+len(layout.entryEnd)]

		single, err := p.gofeedParser.Parse(bytes.NewReader(wrapEntry(header, entry, layout.closing)))
		if err != nil || len(single.Items) == 0 {
			dropped++
			continue
		}
		parsed.Items = append(parsed.Items, single.Items...)
	}

	return parsed, dropped, true
}

func wrapEntry(header, entry, closing []byte) []byte {
	doc := make([]byte, 0, len(header)+len(entry)+len(closing)+1)
	doc = append(doc, header...)
	doc = append(doc, entry...)
	doc = append(doc, '\n')
	return append(doc, closing...)
}

package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/lysyi3m/provenance-feed/app/database"
)

// Channel describes the republished feed itself.
type Channel struct {
	Title       string
	Link        string
	Description string
	SelfLink    string
	Version     string
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run renders stored items as an RSS 2.0 document, in the order given.
func (g *Generator) Run(channel Channel, items []database.Item) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	title := cmp.Or(channel.Title, "provenance-feed")
	g.writeElement(&buf, "title", title, 4)
	g.writeElement(&buf, "link", cmp.Or(channel.Link, channel.SelfLink), 4)
	g.writeElement(&buf, "description", cmp.Or(channel.Description, "Latest items from "+title), 4)

	if channel.SelfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(channel.SelfLink)))
	}

	lastBuildDate := time.Now().UTC()
	if len(items) > 0 {
		lastBuildDate = cmp.Or(items[0].PublishedAt, items[0].CreatedAt, lastBuildDate)
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)

	generator := "provenance-feed"
	if channel.Version != "" {
		generator += "/" + channel.Version
	}
	g.writeElement(&buf, "generator", generator, 4)

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, item database.Item) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(item.ContentID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", item.Title, 6)
	g.writeElement(buf, "link", item.SourceURL, 6)
	g.writeElement(buf, "pubDate", item.PublishedAt.Format(time.RFC1123Z), 6)
	g.writeElement(buf, "category", item.SourceName, 6)

	// RSS 2.0 requires url, length and type on enclosures; length is unknown.
	if g.isURL(item.ImageURL) {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"%s\" />\n",
			html.EscapeString(item.ImageURL),
			html.EscapeString(imageType(item.ImageURL))))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// imageType guesses the MIME type from the URL path, defaulting to JPEG.
func imageType(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "image/jpeg"
	}

	mediaType := mime.TypeByExtension(strings.ToLower(path.Ext(u.Path)))
	if mediaType, _, _ = strings.Cut(mediaType, ";"); strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	return "image/jpeg"
}

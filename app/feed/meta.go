package feed

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// ExtractMetaImage scans the <meta> tags of an HTML document for og:image,
// falling back to twitter:image, and resolves the result against baseURL.
// It returns "" unless the resolved URL is absolute http(s).
func ExtractMetaImage(body []byte, contentType, baseURL string) string {
	ogImage, twitterImage := scanMetaImages(body, contentType)

	candidate := ogImage
	if candidate == "" {
		candidate = twitterImage
	}
	if candidate == "" {
		return ""
	}

	resolved := resolveReference(baseURL, candidate)
	if !isHTTPURL(resolved) {
		return ""
	}
	return resolved
}

func scanMetaImages(body []byte, contentType string) (string, string) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		reader = bytes.NewReader(body)
	}

	var ogImage, twitterImage string
	tokenizer := html.NewTokenizer(reader)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ogImage, twitterImage
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "meta" {
				continue
			}

			key, content := metaKeyContent(token)
			if content == "" {
				continue
			}

			switch key {
			case "og:image":
				if ogImage == "" {
					ogImage = content
				}
			case "twitter:image":
				if twitterImage == "" {
					twitterImage = content
				}
			}

			if ogImage != "" && twitterImage != "" {
				return ogImage, twitterImage
			}
		}
	}
}

// metaKeyContent prefers the property attribute over name.
func metaKeyContent(token html.Token) (string, string) {
	var property, name, content string
	for _, attr := range token.Attr {
		switch strings.ToLower(attr.Key) {
		case "property":
			property = attr.Val
		case "name":
			name = attr.Val
		case "content":
			content = attr.Val
		}
	}

	key := property
	if key == "" {
		key = name
	}
	return strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(content)
}

func resolveReference(baseURL, ref string) string {
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return refURL.String()
	}
	return base.ResolveReference(refURL).String()
}

func isHTTPURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

package feed

import (
	"net/url"
	"strings"
)

var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"igshid": true,
	"ref":    true,
}

// CanonicalizeURL returns the stable form of a link used for identity. It never
// fails: parts that cannot be parsed degrade to empty strings.
func CanonicalizeURL(raw string) string {
	scheme, rest := splitScheme(strings.TrimSpace(raw))

	rest, _, _ = strings.Cut(rest, "#")
	rest, rawQuery, hasQuery := strings.Cut(rest, "?")

	host, path := rest, ""
	if i := strings.Index(rest, "/"); i >= 0 {
		host, path = rest[:i], rest[i:]
	}
	host = strings.ToLower(host)

	out := scheme + "://" + host + path
	if hasQuery {
		if query := filterQuery(rawQuery); query != "" {
			out += "?" + query
		}
	}

	return out
}

func splitScheme(raw string) (string, string) {
	i := strings.Index(raw, "://")
	if i <= 0 || !isScheme(raw[:i]) {
		return "https", strings.TrimPrefix(raw, "//")
	}
	return strings.ToLower(raw[:i]), raw[i+3:]
}

func isScheme(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// filterQuery drops tracking pairs and keeps the rest in their original order.
// Pairs are re-encoded so the result is stable under repeated canonicalization.
func filterQuery(rawQuery string) string {
	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}

		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			key = rawKey
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			value = rawValue
		}

		lower := strings.ToLower(key)
		if trackingParams[lower] || strings.HasPrefix(lower, "utm_") {
			continue
		}

		kept = append(kept, url.QueryEscape(key)+"="+url.QueryEscape(value))
	}

	return strings.Join(kept, "&")
}

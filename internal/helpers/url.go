package helpers

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

var trackingQueryParams = map[string]struct{}{
	"utm_source":      {},
	"utm_medium":      {},
	"utm_campaign":    {},
	"utm_term":        {},
	"utm_content":     {},
	"utm_id":          {},
	"utm_name":        {},
	"utm_reader":      {},
	"utm_place":       {},
	"utm_social":      {},
	"utm_social-type": {},
	"gclid":           {},
	"dclid":           {},
	"fbclid":          {},
	"msclkid":         {},
	"igshid":          {},
	"mc_cid":          {},
	"mc_eid":          {},
	"ref":             {},
}

// CanonicalURL normalises a URL string for comparison.
// It lowercases scheme/host, removes default ports, strips fragments,
// cleans path segments, removes tracking query parameters and sorts the
// remaining query parameters. A missing scheme defaults to https.
// Trailing slashes are dropped so "/a/" and "/a" compare equal.
func CanonicalURL(raw string) (string, error) {
	parsed, err := parseURLPreserveHost(raw)
	if err != nil {
		return "", err
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = stripDefaultPort(parsed.Scheme, strings.ToLower(parsed.Host))

	cleanPath := path.Clean("/" + parsed.Path)
	if cleanPath == "/" {
		cleanPath = ""
	}
	parsed.Path = cleanPath
	parsed.RawPath = ""
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.RawQuery = encodeSorted(withoutTracking(parsed.Query()))

	return parsed.String(), nil
}

// StripTracking removes tracking query parameters and the fragment but
// otherwise leaves the URL as written.
func StripTracking(raw string) (string, error) {
	parsed, err := parseURLPreserveHost(raw)
	if err != nil {
		return "", err
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.RawQuery = encodeSorted(withoutTracking(parsed.Query()))
	return parsed.String(), nil
}

// Origin returns scheme://host[:port]/ for raw.
func Origin(raw string) (string, error) {
	parsed, err := parseURLPreserveHost(raw)
	if err != nil {
		return "", err
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host) + "/", nil
}

// NormalizedDomain returns the lowercased host of raw without port and
// without a leading "www.". Bare domains ("example.org") are accepted.
// An empty string is returned when no host can be derived.
func NormalizedDomain(raw string) string {
	parsed, err := parseURLPreserveHost(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func withoutTracking(query url.Values) url.Values {
	for key := range query {
		if _, drop := trackingQueryParams[strings.ToLower(key)]; drop {
			query.Del(key)
		}
	}
	return query
}

func encodeSorted(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		values := append([]string(nil), query[key]...)
		sort.Strings(values)
		for _, value := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			if value != "" {
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(value))
			}
		}
	}
	return b.String()
}

func stripDefaultPort(scheme, host string) string {
	name, port, found := strings.Cut(host, ":")
	if !found {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		return name
	}
	return host
}

// parseURLPreserveHost parses raw into a url.URL, handling schemeless URLs.
func parseURLPreserveHost(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty url")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		if strings.HasPrefix(raw, "//") {
			parsed, err = url.Parse("https:" + raw)
		} else {
			parsed, err = url.Parse("https://" + raw)
		}
		if err != nil {
			return nil, err
		}
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		return nil, errors.New("url missing host")
	}
	return parsed, nil
}

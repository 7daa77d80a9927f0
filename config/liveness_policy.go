package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Normalize cleans the domain lists and applies defaults for unset values.
func (c LivenessConfig) Normalize() LivenessConfig {
	norm := c
	norm.TrustedDomains = sanitizeDomainList(norm.TrustedDomains)
	norm.BlockedDomains = sanitizeDomainList(norm.BlockedDomains)
	if norm.Timeout <= 0 {
		norm.Timeout = DefaultLivenessTimeout
	}
	if norm.TTL <= 0 {
		norm.TTL = DefaultLivenessTTL
	}
	if norm.Concurrency <= 0 {
		norm.Concurrency = DefaultLivenessConcurrency
	}
	return norm
}

// Validate rejects a domain that is both trusted and blocked.
func (c LivenessConfig) Validate() error {
	norm := c.Normalize()
	trusted := make(map[string]struct{}, len(norm.TrustedDomains))
	for _, host := range norm.TrustedDomains {
		trusted[host] = struct{}{}
	}
	for _, host := range norm.BlockedDomains {
		if _, ok := trusted[host]; ok {
			return fmt.Errorf("liveness policy conflict: host %q present in both trusted and blocked lists", host)
		}
	}
	return nil
}

func sanitizeDomainList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		host := normalizeHost(raw)
		if host == "" {
			continue
		}
		seen[host] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

func normalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if u, err := url.Parse(value); err == nil && u.Host != "" {
			return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		}
	}
	return strings.TrimPrefix(value, "www.")
}

package http

import (
	"log/slog"
	"net/http"
	"strings"
)

// RobotsHeader is the response header carrying opt-out directives.
const RobotsHeader = "X-Robots-Tag"

// NewDirectiveSet normalizes directives into a lookup set.
// It returns nil when no directive remains after trimming.
func NewDirectiveSet(directives []string) map[string]struct{} {
	var set map[string]struct{}
	for _, d := range directives {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{})
		}
		set[d] = struct{}{}
	}
	return set
}

// IsDisallowed reports whether any X-Robots-Tag value in h forbids use by
// the given user agent token.
//
// Each value has the form "[token:] directive[, directive...]". A value
// without a token applies to every agent. An empty token segment, as in
// ": noindex", names no agent and never matches. Values that carry no directive
// are logged and skipped.
func IsDisallowed(h http.Header, userAgentToken string, disallowed map[string]struct{}) bool {
	userAgentToken = strings.TrimSpace(userAgentToken)

	for _, value := range h.Values(RobotsHeader) {
		token, list, hasToken := strings.Cut(value, ":")
		if !hasToken {
			list = value
		}

		directives := parseDirectives(list)
		if len(directives) == 0 {
			slog.Debug("skipping malformed X-Robots-Tag value", "value", value)
			continue
		}

		if hasToken && !tokenMatches(strings.TrimSpace(token), userAgentToken) {
			continue
		}

		for _, d := range directives {
			if _, ok := disallowed[d]; ok {
				return true
			}
		}
	}
	return false
}

func tokenMatches(token, userAgentToken string) bool {
	return token != "" && userAgentToken != "" && strings.EqualFold(token, userAgentToken)
}

func parseDirectives(list string) []string {
	var out []string
	for _, d := range strings.Split(list, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

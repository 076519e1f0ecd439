package transport

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may open a websocket.
// Requests without an Origin header come from non-browser clients and are accepted.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	log      *slog.Logger
}

func newOriginPolicy(origins []string, log *slog.Logger) originPolicy {
	policy := originPolicy{allowed: make(map[string]struct{}), log: log}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			policy.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn("Ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		policy.allowed[normalized] = struct{}{}
	}
	return policy
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// check is used as websocket.Upgrader.CheckOrigin.
// With no configured origin, only same-host browser requests pass.
func (p originPolicy) check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if !ok {
		p.log.Debug("Blocked websocket connection with malformed origin", "origin", header)
		return false
	}
	if len(p.allowed) == 0 {
		parsed, _ := url.Parse(normalized)
		if strings.EqualFold(parsed.Host, r.Host) {
			return true
		}
	}
	if _, ok := p.allowed[normalized]; ok {
		return true
	}
	p.log.Info("Blocked websocket connection from disallowed origin", "origin", header)
	return false
}

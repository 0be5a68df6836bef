package job

import (
	"strings"
	"time"
)

// Reserved metadata keys understood by the engine. Everything else in the
// bag passes through untouched.
const (
	MetaScheduledFor = "scheduledFor"
	MetaFallback     = "fallback"

	// Legacy flat keys, still accepted for fallback targets.
	MetaFallbackEmailAudience = "fallbackEmailAudience"
	MetaFallbackSmsAudience   = "fallbackSmsAudience"
)

// FallbackTargets are the alternate-channel audiences used when a push
// delivery fails.
type FallbackTargets struct {
	EmailAudience string
	SMSAudience   string
}

func (f *FallbackTargets) Empty() bool {
	return f == nil || (f.EmailAudience == "" && f.SMSAudience == "")
}

// ScheduledFor extracts metadata.scheduledFor when it parses as an ISO
// timestamp strictly in the future. Invalid or past values are ignored and
// the job becomes due immediately.
func ScheduledFor(metadata map[string]any, now time.Time) (time.Time, bool) {
	if metadata == nil {
		return time.Time{}, false
	}
	raw, ok := metadata[MetaScheduledFor].(string)
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil || !ts.After(now) {
		return time.Time{}, false
	}
	return ts, true
}

// ParseFallback reads metadata.fallback.{emailAudience,smsAudience}, falling
// back to the legacy flat keys. Returns nil when no target is configured.
func ParseFallback(metadata map[string]any) *FallbackTargets {
	if metadata == nil {
		return nil
	}

	targets := FallbackTargets{}
	if nested, ok := metadata[MetaFallback].(map[string]any); ok {
		targets.EmailAudience = stringValue(nested, "emailAudience")
		targets.SMSAudience = stringValue(nested, "smsAudience")
	}
	if targets.EmailAudience == "" {
		targets.EmailAudience = stringValue(metadata, MetaFallbackEmailAudience)
	}
	if targets.SMSAudience == "" {
		targets.SMSAudience = stringValue(metadata, MetaFallbackSmsAudience)
	}

	if targets.Empty() {
		return nil
	}
	return &targets
}

// StripFallbackKeys copies metadata without any fallback configuration.
// Fallback jobs are built from the result, so a cascade can never recurse
// past one level.
func StripFallbackKeys(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if k == MetaFallback || strings.HasPrefix(k, "fallback") {
			continue
		}
		out[k] = v
	}
	return out
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

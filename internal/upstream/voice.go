package upstream

import "strings"

// supportedVoices is the allow-list of voice identifiers the upstream
// realtime API accepts.
var supportedVoices = map[string]bool{
	"alloy":   true,
	"ash":     true,
	"ballad":  true,
	"coral":   true,
	"echo":    true,
	"sage":    true,
	"shimmer": true,
	"verse":   true,
}

// NormalizeVoice validates a requested voice against the allow-list.
// Invalid or missing values fall back to the configured default; an invalid
// default falls back to "verse".
func NormalizeVoice(requested, fallback string) string {
	v := strings.ToLower(strings.TrimSpace(requested))
	if supportedVoices[v] {
		return v
	}
	f := strings.ToLower(strings.TrimSpace(fallback))
	if supportedVoices[f] {
		return f
	}
	return "verse"
}

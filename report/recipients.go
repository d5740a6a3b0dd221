package report

import "strings"

// SplitRecipients splits a comma-separated list and trims each entry.
// Order, duplicates and empty entries are kept.
func SplitRecipients(raw string) []string {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ResolveRecipients prefers the explicit list and falls back to the
// configured default.
func ResolveRecipients(explicit, configured string) ([]string, error) {
	if explicit != "" {
		return SplitRecipients(explicit), nil
	}
	if configured != "" {
		return SplitRecipients(configured), nil
	}
	return nil, &Error{
		Code:    CodeConfigurationMissing,
		Message: "No recipients specified. Use --recipients or set SMTP_RECIPIENTS env var.",
	}
}

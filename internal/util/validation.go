package util

import (
	"net/url"
	"regexp"
)

var sessionIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// IsValidSessionID accepts 1-64 characters of letters, digits, '-' and '_'.
func IsValidSessionID(s string) bool {
	return sessionIDRegex.MatchString(s)
}

// IsValidWebhookURL accepts absolute http(s) URLs with a host.
func IsValidWebhookURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return false
	}
	return parsed.Host != ""
}

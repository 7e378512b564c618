package logger

import (
	"regexp"
	"time"
)

var tokenRe = regexp.MustCompile(`[0-9]{5,}:[A-Za-z0-9_-]{20,}`)

// Took returns rounded duration since start for compact logging.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds duration to the nearest millisecond for consistent logging.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// Redact masks anything shaped like a Telegram bot token.
func Redact(s string) string {
	return tokenRe.ReplaceAllString(s, "<redacted>")
}

// Package callbacks encodes and decodes inline button payloads.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Sep separates the button key from its payload.
const Sep = "|"

// Parse splits telebot's "\f<unique>|<payload>" callback data.
func Parse(data string) (string, string) {
	data = strings.TrimPrefix(data, "\f")
	key, payload, _ := strings.Cut(data, Sep)
	return strings.TrimSpace(key), payload
}

// FromCallback returns key and payload of cb. When telebot already routed the
// callback by unique, Unique and Data hold them separately.
func FromCallback(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	return Parse(cb.Data)
}

// Package format escapes user supplied text for Telegram parse modes.
package format

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

var (
	mdV1Re = regexp.MustCompile("([_*`\\[])")
	mdV2Re = regexp.MustCompile(`([_*\[\]()~` + "`" + `>#+\-=|{}.!\\])`)
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	switch version {
	case MarkdownV1:
		return mdV1Re.ReplaceAllString(text, `\$1`), nil
	case MarkdownV2:
		return mdV2Re.ReplaceAllString(text, `\$1`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// HTML escapes text for ModeHTML messages.
func HTML(text string) string {
	return html.EscapeString(text)
}

// Bold wraps escaped text in <b>.
func Bold(text string) string {
	return "<b>" + HTML(text) + "</b>"
}

// UserLabel renders "First (@user, id)" in plain text.
func UserLabel(firstName, username string, id int64) string {
	var b strings.Builder
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "User"
	}
	b.WriteString(name)
	b.WriteString(" (")
	if username != "" {
		b.WriteString("@" + strings.TrimPrefix(username, "@") + ", ")
	}
	fmt.Fprintf(&b, "id %d)", id)
	return b.String()
}

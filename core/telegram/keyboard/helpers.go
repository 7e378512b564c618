// Package keyboard builds inline and reply keyboards.
//
// Telebot rewrites button data in place when a markup is sent, so build a
// fresh markup for every message.
package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn describes a convenience wrapper for inline button properties.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

const defaultCancelButtonText = "Cancel"

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// Inline builds an inline keyboard from rows of InlineBtn.
func Inline(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
		}
		inline = append(inline, r)
	}
	markup.InlineKeyboard = inline
	return markup
}

// Single returns a keyboard with one button.
func Single(btn InlineBtn) *tele.ReplyMarkup {
	return Inline([]InlineBtn{btn})
}

// NPerRow splits a flat list of buttons into rows with up to n buttons per row.
func NPerRow(buttons []InlineBtn, n int) *tele.ReplyMarkup {
	if n <= 0 {
		n = 1
	}
	var rows [][]InlineBtn
	for i := 0; i < len(buttons); i += n {
		end := min(i+n, len(buttons))
		rows = append(rows, buttons[i:end])
	}
	return Inline(rows...)
}

// Cancel returns a one-button keyboard bound to action with payload "cancel".
func Cancel(action string) *tele.ReplyMarkup {
	return Single(InlineBtn{Text: defaultCancelButtonText, Unique: action, Data: "cancel"})
}

// Package callbacks decodes inline keyboard callback data.
package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Parse splits Telebot's "\f<unique>|<payload>" encoding into key and payload.
// When the callback already carries Unique, Data is returned as the payload.
func Parse(cb *tele.Callback) (key, payload string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	raw = strings.TrimPrefix(raw, "\\f")
	key, payload, _ = strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}

// Key returns the callback key of the current update.
func Key(c tele.Context) string {
	key, _ := Parse(c.Callback())
	return key
}

// Payload returns the callback payload of the current update.
func Payload(c tele.Context) string {
	_, payload := Parse(c.Callback())
	return payload
}

// PayloadInt parses the callback payload as a decimal int.
func PayloadInt(c tele.Context) (int, error) {
	return strconv.Atoi(strings.TrimSpace(Payload(c)))
}

// Package format renders text fragments for Telegram parse modes.
package format

import "strings"

var mdEscaper = strings.NewReplacer(`_`, `\_`, `*`, `\*`, "`", "\\`", `[`, `\[`)

// EscapeMarkdown escapes user supplied text for the legacy Markdown mode.
func EscapeMarkdown(text string) string {
	return mdEscaper.Replace(text)
}

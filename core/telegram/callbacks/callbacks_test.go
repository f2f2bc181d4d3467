package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name         string
		cb           *tele.Callback
		key, payload string
	}{
		{name: "nil", cb: nil},
		{name: "unique set", cb: &tele.Callback{Unique: "fare", Data: "next"}, key: "fare", payload: "next"},
		{name: "encoded", cb: &tele.Callback{Data: "\ffare|3"}, key: "fare", payload: "3"},
		{name: "escaped prefix", cb: &tele.Callback{Data: `\ffare|previous`}, key: "fare", payload: "previous"},
		{name: "no payload", cb: &tele.Callback{Data: "\fping"}, key: "ping"},
		{name: "payload with separator", cb: &tele.Callback{Data: "fare|a|b"}, key: "fare", payload: "a|b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, payload := Parse(tt.cb)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.payload, payload)
		})
	}
}

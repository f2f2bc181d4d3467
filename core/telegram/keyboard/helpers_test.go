package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineRows(t *testing.T) {
	markup := InlineRows(
		[]InlineBtn{{Text: "<", Unique: "fare", Data: "previous"}, {Text: ">", Unique: "fare", Data: "next"}},
		nil,
		[]InlineBtn{{Text: "Track", Unique: "fare", Data: "2"}},
	)

	require.Len(t, markup.InlineKeyboard, 2)
	require.Len(t, markup.InlineKeyboard[0], 2)
	assert.Equal(t, "<", markup.InlineKeyboard[0][0].Text)
	assert.Equal(t, "fare", markup.InlineKeyboard[0][1].Unique)
	assert.Equal(t, "next", markup.InlineKeyboard[0][1].Data)
	assert.Equal(t, "2", markup.InlineKeyboard[1][0].Data)
}

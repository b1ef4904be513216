package adapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTelegramTextShort(t *testing.T) {
	assert.Equal(t, []string{"hello"}, splitTelegramText("hello", 10, ""))
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(text, 10, "")
	require.Len(t, got, 2)
	assert.Equal(t, strings.Repeat("a", 6), got[0])
	assert.Equal(t, strings.Repeat("b", 6), got[1])
}

func TestSplitTelegramTextKeepsHTMLTags(t *testing.T) {
	text := "abcdefg<b>bold</b>"
	got := splitTelegramText(text, 9, "HTML")
	require.NotEmpty(t, got)
	assert.Equal(t, "abcdefg", got[0])
	assert.Equal(t, text, strings.Join(got, ""))
}

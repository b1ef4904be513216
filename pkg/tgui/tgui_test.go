package tgui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestDataRoundTrip(t *testing.T) {
	d := Data("fsub", "unmute", "-1001_42")
	assert.Equal(t, "fsub:unmute:-1001_42", d)
	cb, ok := ParseData(d)
	require.True(t, ok)
	assert.Equal(t, Callback{NS: "fsub", Action: "unmute", Payload: "-1001_42"}, cb)

	cb, ok = ParseData("bcast:pin")
	require.True(t, ok)
	assert.Empty(t, cb.Payload)

	_, ok = ParseData("garbage")
	assert.False(t, ok)
}

func TestCheckData(t *testing.T) {
	assert.NoError(t, CheckData("fsub:unmute:-1001234567890_1234567890"))
	assert.ErrorIs(t, CheckData(strings.Repeat("x", 65)), ErrCallbackDataTooLong)
}

func TestBuilderEscapesHTML(t *testing.T) {
	m := New().Title("⚠️", "Hi <b>").Line("a & b").KV("k", "<v>").Build()
	assert.Equal(t, "⚠️ <b>Hi &lt;b&gt;</b>\na &amp; b\n• k: <code>&lt;v&gt;</code>", m.Text)
	assert.Equal(t, "HTML", m.Opt.ParseMode)
	assert.Nil(t, m.Opt.ReplyMarkupAdapter)

	m = New().Plain().Line("a & b").Inline(NewInline().Row(Btn("x", "ns:a"))).Build()
	assert.Equal(t, "a & b", m.Text)
	rm, ok := m.Opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	require.True(t, ok)
	require.Len(t, rm.InlineKeyboard, 1)
	assert.Equal(t, "ns:a", rm.InlineKeyboard[0][0].Data)
}

func TestMention(t *testing.T) {
	assert.Equal(t, `<a href="tg://user?id=7">A &amp; B</a>`, Mention("A & B", 7).String())
}

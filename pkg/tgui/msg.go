package tgui

import (
	"context"
	"strings"

	"fsubbot/internal/transport"
)

// Message is a rendered UI payload: text + send options.
type Message struct {
	Text string
	Opt  *transport.SendOptions
}

func (m Message) Send(ctx context.Context, ad transport.Adapter, to transport.ChatTarget) (transport.MessageRef, error) {
	return ad.SendText(ctx, to, m.Text, m.Opt)
}

func (m Message) Edit(ctx context.Context, ad transport.Adapter, ref transport.MessageRef) error {
	return ad.EditText(ctx, ref, m.Text, m.Opt)
}

// Builder assembles a message line by line.
// Default: ParseMode=HTML, DisablePreview=true.
type Builder struct {
	parseMode      string
	disablePreview bool
	kb             *Inline
	lines          []string
}

func New() *Builder {
	return &Builder{parseMode: "HTML", disablePreview: true}
}

// Plain switches to no parse mode; lines are sent verbatim.
func (b *Builder) Plain() *Builder {
	b.parseMode = ""
	return b
}

func (b *Builder) html() bool { return strings.EqualFold(b.parseMode, "HTML") }

func (b *Builder) Inline(kb *Inline) *Builder {
	b.kb = kb
	return b
}

// Title adds a bold title line. Emoji is optional.
func (b *Builder) Title(emoji, title string) *Builder {
	t := strings.TrimSpace(title)
	if b.html() {
		t = B(t).String()
	}
	if e := strings.TrimSpace(emoji); e != "" {
		t = e + " " + t
	}
	b.lines = append(b.lines, t)
	return b
}

// Line adds a single line, escaping when ParseMode is HTML.
func (b *Builder) Line(s string) *Builder {
	if b.html() {
		s = Esc(s).String()
	}
	b.lines = append(b.lines, s)
	return b
}

// RawLine appends already-safe HTML.
func (b *Builder) RawLine(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

func (b *Builder) Blank() *Builder {
	b.lines = append(b.lines, "")
	return b
}

// KV adds a "• key: value" row; the value renders as code in HTML mode.
func (b *Builder) KV(key, value string) *Builder {
	if b.html() {
		b.lines = append(b.lines, "• "+Esc(key).String()+": "+Code(value).String())
		return b
	}
	b.lines = append(b.lines, "• "+key+": "+value)
	return b
}

func (b *Builder) Build() Message {
	opt := &transport.SendOptions{ParseMode: b.parseMode, DisablePreview: b.disablePreview}
	if b.kb != nil && !b.kb.Empty() {
		opt.ReplyMarkupAdapter = b.kb.Markup()
	}
	return Message{Text: strings.Trim(strings.Join(b.lines, "\n"), "\n"), Opt: opt}
}

package logx

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsubbot/internal/transport"
)

func TestParseLevel(t *testing.T) {
	tbl := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" INFO ", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"Warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tbl {
		assert.Equal(t, tt.want, parseLevel(tt.in, zerolog.InfoLevel), tt.in)
	}
}

func TestZeroAndNop(t *testing.T) {
	var l Logger
	assert.True(t, l.IsZero())
	l.Info("discarded")

	n := Nop()
	assert.False(t, n.IsZero())
	assert.False(t, n.Enabled(LevelError))
}

func TestWithDoesNotMutateParent(t *testing.T) {
	base := Nop().With(String("a", "1"))
	child := base.With(String("b", "2"))
	assert.Len(t, base.fields, 1)
	assert.Len(t, child.fields, 2)
	assert.Equal(t, len(base.fields), len(base.With().fields))
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	svc, log := New(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})

	log.With(String("component", "test")).Info("hello", Int("n", 3))
	log.Trace("below level")
	require.NoError(t, svc.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, `"message":"hello"`)
	assert.Contains(t, out, `"component":"test"`)
	assert.Contains(t, out, `"n":3`)
	assert.Contains(t, out, `"caller":"logger_test.go:`)
	assert.NotContains(t, out, "below level")
}

func TestApplyChangesLevel(t *testing.T) {
	svc, log := New(Config{Level: "error", File: FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "a.log")}})
	defer svc.Close()
	assert.False(t, log.Enabled(LevelInfo))

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "b.log")}})
	assert.True(t, log.Enabled(LevelDebug))
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	to   []transport.ChatTarget
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.to = append(f.to, to)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestTelegramSink(t *testing.T) {
	sender := &fakeSender{}
	svc, log := New(Config{
		Level:    "debug",
		File:     FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "bot.log")},
		Telegram: TelegramConfig{Enabled: true, ChatID: -100500, MinLevel: "warn", RatePerSec: 5},
	})
	defer svc.Close()
	svc.AttachSender(sender)

	log.Info("not forwarded")
	log.Warn("restrict failed", String("chat", "-100200"))

	require.Eventually(t, func() bool { return len(sender.messages()) == 1 }, time.Second, 10*time.Millisecond)
	msg := sender.messages()[0]
	assert.True(t, strings.HasPrefix(msg, "[WARN] restrict failed"), msg)
	assert.Contains(t, msg, "- chat=-100200")

	sender.mu.Lock()
	assert.Equal(t, int64(-100500), sender.to[0].ChatID)
	sender.mu.Unlock()
}

func TestFormatTelegramLine(t *testing.T) {
	line := `{"level":"error","time":"x","message":"boom","b":"2","a":1}`
	assert.Equal(t, "[ERROR] boom\n- a=1\n- b=2", formatTelegramLine([]byte(line)))
	assert.Equal(t, "plain text", formatTelegramLine([]byte("  plain text \n")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "same", truncate("same", 0))
}

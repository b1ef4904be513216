package router

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var ridSeq atomic.Uint64

// newReqID returns a short id: base36 timestamp + sequence.
func newReqID() string {
	n := ridSeq.Add(1)
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(n, 36)
}

// parseCommand splits "/name@bot arg1 arg2". Commands addressed to another
// bot are not ours: isCmd is false for them.
func parseCommand(text, botUsername string) (name string, args []string, isCmd bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if at := strings.IndexByte(word, '@'); at >= 0 {
		target := word[at+1:]
		word = word[:at]
		if botUsername == "" || !strings.EqualFold(target, botUsername) {
			return "", nil, false
		}
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}

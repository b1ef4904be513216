package fsub

import (
	"sync"
	"time"
)

// WarningTracker keeps the outstanding warning message ids per
// (group, user). It is process-local.
type WarningTracker interface {
	// Take removes and returns the recorded ids.
	Take(groupID, userID int64) []int
	Add(groupID, userID int64, msgID int)
	Clear(groupID, userID int64)
}

// Notice throttle keys.
const (
	noticeChannelAdmin = "channel_admin"
	noticeMuteFailed   = "mute_failed"
)

type chatSession struct {
	mu       sync.Mutex
	warnings map[int64][]int
	notices  map[string]time.Time
	lastSeen time.Time
}

// Sessions holds chat-scoped ephemeral state: warning ids and notice
// throttles. Each chat has its own lock.
type Sessions struct {
	mu    sync.Mutex
	chats map[int64]*chatSession
	now   func() time.Time
}

func NewSessions() *Sessions {
	return &Sessions{chats: map[int64]*chatSession{}, now: time.Now}
}

// do runs fn with the chat's session locked. The session is looked up and
// locked under s.mu, so Prune never drops it while fn runs.
func (s *Sessions) do(id int64, fn func(cs *chatSession)) {
	s.mu.Lock()
	cs, ok := s.chats[id]
	if !ok {
		cs = &chatSession{warnings: map[int64][]int{}, notices: map[string]time.Time{}}
		s.chats[id] = cs
	}
	cs.mu.Lock()
	s.mu.Unlock()
	defer cs.mu.Unlock()
	fn(cs)
}

func (s *Sessions) Take(groupID, userID int64) []int {
	now := s.now()
	var ids []int
	s.do(groupID, func(cs *chatSession) {
		cs.lastSeen = now
		ids = cs.warnings[userID]
		delete(cs.warnings, userID)
	})
	return ids
}

func (s *Sessions) Add(groupID, userID int64, msgID int) {
	now := s.now()
	s.do(groupID, func(cs *chatSession) {
		cs.lastSeen = now
		cs.warnings[userID] = append(cs.warnings[userID], msgID)
	})
}

func (s *Sessions) Clear(groupID, userID int64) {
	now := s.now()
	s.do(groupID, func(cs *chatSession) {
		cs.lastSeen = now
		delete(cs.warnings, userID)
	})
}

// Allow reports whether a notice of kind may be posted in the chat now and,
// if so, records it. At most one notice per kind per window.
func (s *Sessions) Allow(chatID int64, kind string, window time.Duration) bool {
	now := s.now()
	allowed := false
	s.do(chatID, func(cs *chatSession) {
		cs.lastSeen = now
		if last, ok := cs.notices[kind]; ok && now.Sub(last) < window {
			return
		}
		cs.notices[kind] = now
		allowed = true
	})
	return allowed
}

// Prune drops sessions idle for longer than idle that hold no warnings.
func (s *Sessions) Prune(idle time.Duration) int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, cs := range s.chats {
		cs.mu.Lock()
		drop := len(cs.warnings) == 0 && now.Sub(cs.lastSeen) > idle
		cs.mu.Unlock()
		if drop {
			delete(s.chats, id)
			n++
		}
	}
	return n
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

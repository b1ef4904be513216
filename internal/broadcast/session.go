package broadcast

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"fsubbot/internal/transport"
)

var (
	ErrNoSession       = errors.New("broadcast: no active session")
	ErrWrongStage      = errors.New("broadcast: unexpected dialog step")
	ErrInvalidAudience = errors.New("broadcast: invalid audience")
	ErrBusy            = errors.New("broadcast: another broadcast is running")
)

// SessionTTL bounds how long an unfinished dialog is kept.
const SessionTTL = 15 * time.Minute

type Audience string

const (
	AudienceGroups Audience = "groups"
	AudienceUsers  Audience = "users"
	AudienceBoth   Audience = "both"
)

func ParseAudience(s string) (Audience, error) {
	switch a := Audience(s); a {
	case AudienceGroups, AudienceUsers, AudienceBoth:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAudience, s)
}

func (a Audience) Groups() bool { return a == AudienceGroups || a == AudienceBoth }
func (a Audience) Users() bool  { return a == AudienceUsers || a == AudienceBoth }

type Stage int

const (
	StageAwaitingTarget Stage = iota
	StageAwaitingPin
	StageDispatch
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingTarget:
		return "awaiting_target"
	case StageAwaitingPin:
		return "awaiting_pin"
	case StageDispatch:
		return "dispatch"
	}
	return "unknown"
}

// Session is one owner's broadcast dialog.
type Session struct {
	OwnerID   int64
	Source    transport.MessageRef
	Audience  Audience
	Pin       bool
	Stage     Stage
	UpdatedAt time.Time
}

// Sessions keeps one dialog per owner. Starting a new dialog replaces the
// previous one.
type Sessions struct {
	mu  sync.Mutex
	m   map[int64]*Session
	ttl time.Duration
	now func() time.Time
}

func NewSessions() *Sessions {
	return &Sessions{m: map[int64]*Session{}, ttl: SessionTTL, now: time.Now}
}

func (s *Sessions) Begin(ownerID int64, src transport.MessageRef) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss := &Session{OwnerID: ownerID, Source: src, Stage: StageAwaitingTarget, UpdatedAt: s.now()}
	s.m[ownerID] = ss
	return *ss
}

// lookupLocked returns the live session of owner in the wanted stage.
func (s *Sessions) lookupLocked(ownerID int64, want Stage) (*Session, error) {
	ss, ok := s.m[ownerID]
	if !ok {
		return nil, ErrNoSession
	}
	if s.now().Sub(ss.UpdatedAt) > s.ttl {
		delete(s.m, ownerID)
		return nil, ErrNoSession
	}
	if ss.Stage != want {
		return nil, fmt.Errorf("%w: at %s, want %s", ErrWrongStage, ss.Stage, want)
	}
	return ss, nil
}

// SetAudience moves awaiting_target to awaiting_pin.
func (s *Sessions) SetAudience(ownerID int64, a Audience) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, err := s.lookupLocked(ownerID, StageAwaitingTarget)
	if err != nil {
		return Session{}, err
	}
	ss.Audience = a
	ss.Stage = StageAwaitingPin
	ss.UpdatedAt = s.now()
	return *ss, nil
}

// SetPin moves awaiting_pin to dispatch. The session is consumed: the
// returned copy is the only remaining record of it.
func (s *Sessions) SetPin(ownerID int64, pin bool) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, err := s.lookupLocked(ownerID, StageAwaitingPin)
	if err != nil {
		return Session{}, err
	}
	delete(s.m, ownerID)
	ss.Pin = pin
	ss.Stage = StageDispatch
	ss.UpdatedAt = s.now()
	return *ss, nil
}

func (s *Sessions) Cancel(ownerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[ownerID]
	delete(s.m, ownerID)
	return ok
}

// Prune drops expired dialogs.
func (s *Sessions) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, ss := range s.m {
		if now.Sub(ss.UpdatedAt) > s.ttl {
			delete(s.m, id)
			n++
		}
	}
	return n
}

package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrClosed   = errors.New("storage: closed")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string        // file and sqlite
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Group is the persisted subscription config of one group.
type Group struct {
	GroupID     int64     `json:"group_id"`
	Channel     string    `json:"channel"`
	ChannelID   int64     `json:"channel_id"`
	UnmuteDelay int       `json:"unmute_delay"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// User is a profile snapshot of someone who started the bot in private.
type User struct {
	UserID          int64     `json:"user_id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name,omitempty"`
	Username        string    `json:"username,omitempty"`
	LastInteraction time.Time `json:"last_interaction"`
}

// PendingUnmute is a delayed unmute that has not completed yet.
type PendingUnmute struct {
	GroupID int64     `json:"group_id"`
	UserID  int64     `json:"user_id"`
	DueAt   time.Time `json:"due_at"`
}

type GroupStore interface {
	PutGroup(ctx context.Context, g Group) error
	// GetGroup returns ErrNotFound when the group has no config.
	GetGroup(ctx context.Context, groupID int64) (Group, error)
	DeleteGroup(ctx context.Context, groupID int64) (bool, error)
	// SetUnmuteDelay returns ErrNotFound when the group has no config.
	SetUnmuteDelay(ctx context.Context, groupID int64, seconds int) error
	GroupIDs(ctx context.Context) ([]int64, error)
	CountGroups(ctx context.Context) (int, error)
}

type UserStore interface {
	PutUser(ctx context.Context, u User) error
	UserIDs(ctx context.Context) ([]int64, error)
	CountUsers(ctx context.Context) (int, error)
}

type PendingStore interface {
	PutPendingUnmute(ctx context.Context, p PendingUnmute) error
	DeletePendingUnmute(ctx context.Context, groupID, userID int64) error
	PendingUnmutes(ctx context.Context) ([]PendingUnmute, error)
}

// Store is the persistence API used by the bot.
type Store interface {
	GroupStore
	UserStore
	PendingStore

	// Ping is the liveness probe reported by /status.
	Ping(ctx context.Context) error
	Close() error
}

package fsub

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fsubbot/internal/storage"
	"fsubbot/internal/transport"
)

var (
	ErrNotConfigured     = errors.New("fsub: group has no channel configured")
	ErrInvalidDelay      = errors.New("fsub: delay must be 0 or between 30 seconds and 366 days")
	ErrInvalidChannelRef = errors.New("fsub: invalid channel reference")
	ErrNotChannel        = errors.New("fsub: chat is not a channel")
)

const (
	// MinDelaySeconds is the smallest non-zero unmute delay.
	MinDelaySeconds = 30
	// MaxDelaySeconds is the longest delay Telegram still treats as a
	// temporary restriction.
	MaxDelaySeconds = 366 * 24 * 3600
)

// GroupConfig is the subscription requirement of one group.
type GroupConfig struct {
	GroupID int64
	// Channel is the public handle without "@", or the numeric id as text.
	Channel     string
	ChannelID   int64
	UnmuteDelay int // seconds
}

// Delay is the configured unmute delay, capped at MaxDelaySeconds for rows
// written before the cap existed.
func (c GroupConfig) Delay() time.Duration {
	return time.Duration(min(max(c.UnmuteDelay, 0), MaxDelaySeconds)) * time.Second
}

// PublicHandle returns the channel handle, empty for channels referenced by id.
func (c GroupConfig) PublicHandle() string {
	if c.Channel == "" || isNumericRef(c.Channel) {
		return ""
	}
	return c.Channel
}

// ChannelRef is the address used for membership queries. The resolved id
// wins over the stored handle.
func (c GroupConfig) ChannelRef() transport.ChatRef {
	if c.ChannelID != 0 {
		return transport.ChatRef{ID: c.ChannelID}
	}
	if isNumericRef(c.Channel) {
		id, _ := strconv.ParseInt(c.Channel, 10, 64)
		return transport.ChatRef{ID: id}
	}
	return transport.ChatRef{Username: c.Channel}
}

// Display is how the channel is named in warnings.
func (c GroupConfig) Display() string {
	switch {
	case c.PublicHandle() != "":
		return "@" + c.PublicHandle()
	case c.ChannelID != 0:
		return "the private channel"
	default:
		return "the required channel"
	}
}

// ValidateDelay accepts 0 (immediate) or MinDelaySeconds..MaxDelaySeconds.
func ValidateDelay(seconds int) error {
	if seconds == 0 || (seconds >= MinDelaySeconds && seconds <= MaxDelaySeconds) {
		return nil
	}
	return fmt.Errorf("%w: got %d", ErrInvalidDelay, seconds)
}

// ParseChannelArg parses a "/fsub" argument: "@handle" or a numeric id
// (optionally negative). The returned value is the stored channel form.
func ParseChannelArg(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if h, ok := strings.CutPrefix(arg, "@"); ok {
		if h == "" || strings.ContainsAny(h, " @/") {
			return "", fmt.Errorf("%w: %q", ErrInvalidChannelRef, arg)
		}
		return h, nil
	}
	if isNumericRef(arg) {
		return arg, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChannelRef, arg)
}

func isNumericRef(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Repository is the CRUD layer over per-group configs.
type Repository struct {
	store storage.GroupStore
	now   func() time.Time
}

func NewRepository(store storage.GroupStore) *Repository {
	return &Repository{store: store, now: time.Now}
}

func (r *Repository) Get(ctx context.Context, groupID int64) (GroupConfig, error) {
	g, err := r.store.GetGroup(ctx, groupID)
	if errors.Is(err, storage.ErrNotFound) {
		return GroupConfig{}, ErrNotConfigured
	}
	if err != nil {
		return GroupConfig{}, fmt.Errorf("get group %d: %w", groupID, err)
	}
	return GroupConfig{GroupID: g.GroupID, Channel: g.Channel, ChannelID: g.ChannelID, UnmuteDelay: g.UnmuteDelay}, nil
}

// Connect stores the channel requirement. The unmute delay resets to 0.
func (r *Repository) Connect(ctx context.Context, groupID int64, channel string, channelID int64) (GroupConfig, error) {
	cfg := GroupConfig{GroupID: groupID, Channel: channel, ChannelID: channelID}
	err := r.store.PutGroup(ctx, storage.Group{
		GroupID:   groupID,
		Channel:   channel,
		ChannelID: channelID,
		UpdatedAt: r.now(),
	})
	if err != nil {
		return GroupConfig{}, fmt.Errorf("put group %d: %w", groupID, err)
	}
	return cfg, nil
}

func (r *Repository) Disconnect(ctx context.Context, groupID int64) error {
	ok, err := r.store.DeleteGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("delete group %d: %w", groupID, err)
	}
	if !ok {
		return ErrNotConfigured
	}
	return nil
}

func (r *Repository) SetDelay(ctx context.Context, groupID int64, seconds int) error {
	if err := ValidateDelay(seconds); err != nil {
		return err
	}
	err := r.store.SetUnmuteDelay(ctx, groupID, seconds)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotConfigured
	}
	if err != nil {
		return fmt.Errorf("set delay %d: %w", groupID, err)
	}
	return nil
}

func (r *Repository) Delay(ctx context.Context, groupID int64) (int, error) {
	cfg, err := r.Get(ctx, groupID)
	if err != nil {
		return 0, err
	}
	return cfg.UnmuteDelay, nil
}

func (r *Repository) GroupIDs(ctx context.Context) ([]int64, error) {
	return r.store.GroupIDs(ctx)
}

package transport

import (
	"context"
	"strconv"
	"strings"
	"time"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// ChatKey is the chat an update belongs to; updates of one chat are
// processed in order.
func (u Update) ChatKey() int64 {
	switch {
	case u.Message != nil:
		return u.Message.ChatID
	case u.Callback != nil:
		return u.Callback.ChatID
	}
	return 0
}

type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSuperGroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

func (t ChatType) IsGroup() bool { return t == ChatGroup || t == ChatSuperGroup }

type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
}

func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.Username != "" {
		return "@" + u.Username
	}
	if name == "" {
		return strconv.FormatInt(u.ID, 10)
	}
	return name
}

type Message struct {
	ID       int
	ChatID   int64
	ChatType ChatType
	ThreadID int // forum topic thread id (0 if none)
	From     User
	Text     string

	// ForwardedFromChannel is set for automatic forwards of channel posts
	// and for messages forwarded from a channel.
	ForwardedFromChannel bool

	// ReplyTo is the replied-to message, if any.
	ReplyTo *Reply
}

func (m *Message) IsGroup() bool { return m.ChatType.IsGroup() }

// Reply describes the message a command replied to.
type Reply struct {
	Ref        MessageRef
	SenderChat *Chat
}

type Callback struct {
	ID        string
	From      User
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

func (c *Callback) Ref() MessageRef {
	return MessageRef{ChatID: c.ChatID, ThreadID: c.ThreadID, MessageID: c.MessageID}
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (r MessageRef) Target() ChatTarget { return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID} }

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// ChatRef addresses a chat either by numeric id or by public handle.
type ChatRef struct {
	ID       int64
	Username string // without the leading "@"
}

func (r ChatRef) IsZero() bool { return r.ID == 0 && r.Username == "" }

func (r ChatRef) String() string {
	if r.ID != 0 {
		return strconv.FormatInt(r.ID, 10)
	}
	if r.Username != "" {
		return "@" + r.Username
	}
	return ""
}

type Chat struct {
	ID          int64
	Type        ChatType
	Title       string
	Username    string
	InviteLink  string
	Permissions *Permissions // default member permissions, nil when unknown
}

type MemberStatus string

const (
	MemberCreator       MemberStatus = "creator"
	MemberAdministrator MemberStatus = "administrator"
	MemberMember        MemberStatus = "member"
	MemberRestricted    MemberStatus = "restricted"
	MemberLeft          MemberStatus = "left"
	MemberKicked        MemberStatus = "kicked"
)

func (s MemberStatus) IsAdmin() bool { return s == MemberCreator || s == MemberAdministrator }

// IsAbsent reports whether the user is not part of the chat.
func (s MemberStatus) IsAbsent() bool { return s == MemberLeft || s == MemberKicked }

// Permissions is the chat permission set applied by Restrict.
type Permissions struct {
	SendMessages   bool
	SendAudios     bool
	SendDocuments  bool
	SendPhotos     bool
	SendVideos     bool
	SendVideoNotes bool
	SendVoiceNotes bool
	SendPolls      bool
	SendOther      bool
	AddWebPreviews bool
	ChangeInfo     bool
	InviteUsers    bool
	PinMessages    bool
	ManageTopics   bool
}

// Muted is the full restriction set: every permission revoked.
func Muted() Permissions { return Permissions{} }

// Permissive is the standard member permission set used when a chat's
// defaults cannot be read.
func Permissive() Permissions {
	return Permissions{
		SendMessages:   true,
		SendAudios:     true,
		SendDocuments:  true,
		SendPhotos:     true,
		SendVideos:     true,
		SendVideoNotes: true,
		SendVoiceNotes: true,
		SendPolls:      true,
		SendOther:      true,
		AddWebPreviews: true,
		InviteUsers:    true,
	}
}

// Adapter is the platform gateway. Every call is a single remote attempt.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// Self is the bot's own identity.
	Self() User

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	CopyMessage(ctx context.Context, to ChatTarget, from MessageRef) (MessageRef, error)
	PinMessage(ctx context.Context, ref MessageRef) error

	ResolveChat(ctx context.Context, ref ChatRef) (Chat, error)
	MemberStatus(ctx context.Context, chat ChatRef, userID int64) (MemberStatus, error)
	Restrict(ctx context.Context, chatID, userID int64, perms Permissions, until time.Time) error
	CreateInviteLink(ctx context.Context, chat ChatRef, name string) (string, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

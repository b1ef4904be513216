package adapter

import (
	"strconv"

	tele "gopkg.in/telebot.v4"

	"fsubbot/internal/transport"
)

func toUser(u *tele.User) transport.User {
	if u == nil {
		return transport.User{}
	}
	return transport.User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsBot:     u.IsBot,
	}
}

func toMessage(m *tele.Message) *transport.Message {
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	out := &transport.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ChatType: transport.ChatType(m.Chat.Type),
		ThreadID: m.ThreadID,
		From:     toUser(m.Sender),
		Text:     text,
	}
	switch {
	case m.Origin != nil && m.Origin.Type == "channel":
		out.ForwardedFromChannel = true
	case m.SenderChat != nil && m.SenderChat.Type == tele.ChatChannel:
		// Linked-channel auto forwards arrive with the channel as sender chat.
		out.ForwardedFromChannel = true
	}
	if r := m.ReplyTo; r != nil && r.Chat != nil {
		out.ReplyTo = &transport.Reply{
			Ref: transport.MessageRef{ChatID: r.Chat.ID, ThreadID: r.ThreadID, MessageID: r.ID},
		}
		if r.SenderChat != nil {
			c := toChat(r.SenderChat)
			out.ReplyTo.SenderChat = &c
		}
	}
	return out
}

func toChat(c *tele.Chat) transport.Chat {
	out := transport.Chat{
		ID:         c.ID,
		Type:       transport.ChatType(c.Type),
		Title:      c.Title,
		Username:   c.Username,
		InviteLink: c.InviteLink,
	}
	if c.Type == tele.ChatChannelPrivate {
		out.Type = transport.ChatChannel
	}
	if c.Permissions != nil {
		p := fromRights(*c.Permissions)
		out.Permissions = &p
	}
	return out
}

func fromRights(r tele.Rights) transport.Permissions {
	return transport.Permissions{
		SendMessages:   r.CanSendMessages,
		SendAudios:     r.CanSendAudios,
		SendDocuments:  r.CanSendDocuments,
		SendPhotos:     r.CanSendPhotos,
		SendVideos:     r.CanSendVideos,
		SendVideoNotes: r.CanSendVideoNotes,
		SendVoiceNotes: r.CanSendVoiceNotes,
		SendPolls:      r.CanSendPolls,
		SendOther:      r.CanSendOther,
		AddWebPreviews: r.CanAddPreviews,
		ChangeInfo:     r.CanChangeInfo,
		InviteUsers:    r.CanInviteUsers,
		PinMessages:    r.CanPinMessages,
		ManageTopics:   r.CanManageTopics,
	}
}

func toRights(p transport.Permissions) tele.Rights {
	return tele.Rights{
		CanSendMessages:   p.SendMessages,
		CanSendAudios:     p.SendAudios,
		CanSendDocuments:  p.SendDocuments,
		CanSendPhotos:     p.SendPhotos,
		CanSendVideos:     p.SendVideos,
		CanSendVideoNotes: p.SendVideoNotes,
		CanSendVoiceNotes: p.SendVoiceNotes,
		CanSendPolls:      p.SendPolls,
		CanSendOther:      p.SendOther,
		CanAddPreviews:    p.AddWebPreviews,
		CanChangeInfo:     p.ChangeInfo,
		CanInviteUsers:    p.InviteUsers,
		CanPinMessages:    p.PinMessages,
		CanManageTopics:   p.ManageTopics,
		Independent:       true,
	}
}

// recipient addresses a chat by id or "@handle" without a lookup.
type recipient string

func (r recipient) Recipient() string { return string(r) }

func chatRecipient(ref transport.ChatRef) tele.Recipient { return recipient(ref.String()) }

func userRecipient(id int64) tele.Recipient { return recipient(strconv.FormatInt(id, 10)) }

func stored(ref transport.MessageRef) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
}

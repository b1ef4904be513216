package fsub

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"fsubbot/pkg/logx"
)

// InviteLinkName labels links created for private channels.
const InviteLinkName = "FSub Link"

// inviteCache remembers one join link per private channel. Concurrent
// lookups for the same channel share a single remote call.
type inviteCache struct {
	mu    sync.RWMutex
	links map[int64]string
	sf    singleflight.Group
}

func (c *inviteCache) get(id int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.links[id]
	return l, ok
}

func (c *inviteCache) put(id int64, link string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.links == nil {
		c.links = map[int64]string{}
	}
	c.links[id] = link
}

func (c *inviteCache) forget(id int64) {
	c.mu.Lock()
	delete(c.links, id)
	c.mu.Unlock()
}

// joinLink returns a URL members can use to join the channel, or "" when
// none can be obtained.
func (e *Engine) joinLink(ctx context.Context, cfg GroupConfig) string {
	if h := cfg.PublicHandle(); h != "" {
		return "https://t.me/" + h
	}
	ref := cfg.ChannelRef()
	if ref.ID == 0 {
		return ""
	}
	if l, ok := e.invites.get(ref.ID); ok {
		return l
	}
	v, err, _ := e.invites.sf.Do(strconv.FormatInt(ref.ID, 10), func() (any, error) {
		if l, ok := e.invites.get(ref.ID); ok {
			return l, nil
		}
		chat, err := e.gw.ResolveChat(ctx, ref)
		if err == nil && chat.InviteLink != "" {
			e.invites.put(ref.ID, chat.InviteLink)
			return chat.InviteLink, nil
		}
		link, err := e.gw.CreateInviteLink(ctx, ref, InviteLinkName)
		if err != nil {
			return "", err
		}
		e.invites.put(ref.ID, link)
		return link, nil
	})
	if err != nil {
		e.log.Warn("join link unavailable", logx.Int64("channel", ref.ID), logx.Err(err))
		return ""
	}
	return v.(string)
}

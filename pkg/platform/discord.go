package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/convosplit/pkg/bus"
	"github.com/tinyland-inc/convosplit/pkg/logger"
)

const historyPageSize = 100

// Discord implements Client on top of a discordgo session and feeds every
// observed message into the bus for the termination watchers.
type Discord struct {
	session *discordgo.Session
	bus     *bus.MessageBus
	user    User
}

func NewDiscord(token string, b *bus.MessageBus) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	d := &Discord{session: session, bus: b}
	session.AddHandler(d.onMessageCreate)
	return d, nil
}

// Session exposes the underlying discordgo session for command registration
// and interaction handling; the conversation core never touches it.
func (d *Discord) Session() *discordgo.Session {
	return d.session
}

func (d *Discord) Open(ctx context.Context) error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}
	me, err := d.session.User("@me")
	if err != nil {
		d.session.Close()
		return fmt.Errorf("resolving bot user: %w", mapError(err))
	}
	d.user = User{ID: me.ID, Name: me.Username, Bot: true}
	return nil
}

func (d *Discord) Close() error {
	return d.session.Close()
}

func (d *Discord) BotUser() User {
	return d.user
}

func (d *Discord) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	msg := bus.Inbound{
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		SenderID:  m.Author.ID,
		FromBot:   m.Author.Bot,
		Content:   m.Content,
	}
	if m.Interaction != nil {
		msg.Interaction = true
		if m.Interaction.User != nil {
			msg.InvokerID = m.Interaction.User.ID
		}
	}
	if err := d.bus.Publish(context.Background(), msg); err != nil && !errors.Is(err, bus.ErrBusClosed) {
		logger.WarnCF("discord", "dropping inbound message", map[string]any{
			"channel_id": m.ChannelID,
			"error":      err.Error(),
		})
	}
}

func (d *Discord) FindCategory(ctx context.Context, guildID, marker string) (ChannelRef, error) {
	channels, err := d.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return ChannelRef{}, mapError(err)
	}
	marker = strings.ToLower(marker)
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory &&
			strings.Contains(strings.ToLower(ch.Name), marker) {
			return ChannelRef{ID: ch.ID, Name: ch.Name}, nil
		}
	}
	return ChannelRef{}, ErrCategoryMissing
}

func (d *Discord) ChannelScope(ctx context.Context, channelID string) (Scope, error) {
	ch, err := d.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	return overwritesToScope(ch.GuildID, ch.PermissionOverwrites), nil
}

func (d *Discord) CreateChannel(ctx context.Context, guildID, parentID, name string) (ChannelRef, error) {
	ch, err := d.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: parentID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return ChannelRef{}, mapError(err)
	}
	return ChannelRef{ID: ch.ID, Name: ch.Name}, nil
}

func (d *Discord) ApplyScope(ctx context.Context, channelID string, scope Scope) error {
	_, err := d.session.ChannelEditComplex(channelID, &discordgo.ChannelEdit{
		PermissionOverwrites: scopeToOverwrites(scope),
	}, discordgo.WithContext(ctx))
	return mapError(err)
}

func (d *Discord) Send(ctx context.Context, channelID, content string) error {
	_, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return mapError(err)
}

func (d *Discord) SendFile(ctx context.Context, channelID, content, filename string, r io.Reader) error {
	_, err := d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Files:   []*discordgo.File{{Name: filename, Reader: r}},
	}, discordgo.WithContext(ctx))
	return mapError(err)
}

func (d *Discord) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := d.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	err = mapError(err)
	if errors.Is(err, ErrNotFound) {
		// Already gone; a retried delete is satisfied, not failed.
		return nil
	}
	return err
}

func (d *Discord) History(ctx context.Context, channelID string) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		after := "0"
		for {
			if err := ctx.Err(); err != nil {
				yield(Message{}, err)
				return
			}
			page, err := d.session.ChannelMessages(
				channelID, historyPageSize, "", after, "", discordgo.WithContext(ctx))
			if err != nil {
				yield(Message{}, mapError(err))
				return
			}
			if len(page) == 0 {
				return
			}
			sortBySnowflake(page)
			for _, m := range page {
				if !yield(toMessage(m), nil) {
					return
				}
			}
			after = page[len(page)-1].ID
			if len(page) < historyPageSize {
				return
			}
		}
	}
}

func (d *Discord) ReactionUsers(ctx context.Context, channelID, messageID, fetchKey string) iter.Seq2[User, error] {
	return func(yield func(User, error) bool) {
		after := ""
		for {
			if err := ctx.Err(); err != nil {
				yield(User{}, err)
				return
			}
			page, err := d.session.MessageReactions(
				channelID, messageID, fetchKey, historyPageSize, "", after, discordgo.WithContext(ctx))
			if err != nil {
				yield(User{}, mapError(err))
				return
			}
			if len(page) == 0 {
				return
			}
			for _, u := range page {
				if !yield(User{ID: u.ID, Name: u.Username, Bot: u.Bot}, nil) {
					return
				}
			}
			after = page[len(page)-1].ID
			if len(page) < historyPageSize {
				return
			}
		}
	}
}

func (d *Discord) CanDeliverFiles(ctx context.Context, channelID string) bool {
	perms, err := d.session.UserChannelPermissions(d.user.ID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		return false
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	const needed = discordgo.PermissionViewChannel |
		discordgo.PermissionSendMessages |
		discordgo.PermissionAttachFiles
	return perms&needed == needed
}

// sortBySnowflake orders a history page oldest-first. Discord IDs are
// snowflakes, so numeric order is creation order.
func sortBySnowflake(msgs []*discordgo.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		a, _ := strconv.ParseUint(msgs[i].ID, 10, 64)
		b, _ := strconv.ParseUint(msgs[j].ID, 10, 64)
		return a < b
	})
}

func toMessage(m *discordgo.Message) Message {
	msg := Message{
		ID:        m.ID,
		CreatedAt: m.Timestamp,
		EditedAt:  m.EditedTimestamp,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.Author = User{ID: m.Author.ID, Name: m.Author.Username, Bot: m.Author.Bot}
	}
	if m.MessageReference != nil && m.MessageReference.MessageID != "" {
		kind := RefReply
		if m.Type == discordgo.MessageTypeChannelPinnedMessage {
			kind = RefPin
		}
		msg.Reference = &Reference{Kind: kind, MessageID: m.MessageReference.MessageID}
	}
	for _, r := range m.Reactions {
		if r.Emoji == nil {
			continue
		}
		msg.Reactions = append(msg.Reactions, Reaction{
			Emoji:    r.Emoji.MessageFormat(),
			FetchKey: r.Emoji.APIName(),
		})
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{
			Name:        a.Filename,
			ContentType: a.ContentType,
			URL:         a.URL,
		})
	}
	for _, e := range m.Embeds {
		if data, err := json.Marshal(e); err == nil {
			msg.Embeds = append(msg.Embeds, data)
		}
	}
	if m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply {
		msg.System = true
		msg.Content = systemCaption(m)
	}
	return msg
}

func systemCaption(m *discordgo.Message) string {
	author := ""
	if m.Author != nil {
		author = m.Author.Username
	}
	switch m.Type {
	case discordgo.MessageTypeChannelPinnedMessage:
		return fmt.Sprintf("%s pinned a message to this channel.", author)
	case discordgo.MessageTypeGuildMemberJoin:
		return fmt.Sprintf("%s joined the server.", author)
	case discordgo.MessageTypeChannelNameChange:
		return fmt.Sprintf("%s changed the channel name: %s", author, m.Content)
	default:
		return fmt.Sprintf("[system message, type %d]", m.Type)
	}
}

func overwritesToScope(guildID string, overwrites []*discordgo.PermissionOverwrite) Scope {
	scope := make(Scope, len(overwrites))
	for _, ow := range overwrites {
		p := Principal{Kind: PrincipalRole, ID: ow.ID}
		if ow.Type == discordgo.PermissionOverwriteTypeMember {
			p.Kind = PrincipalUser
		} else if ow.ID == guildID {
			p.Kind = PrincipalEveryone
		}
		scope[p] = Overwrite{
			View:        triFromBits(ow.Allow, ow.Deny, discordgo.PermissionViewChannel),
			History:     triFromBits(ow.Allow, ow.Deny, discordgo.PermissionReadMessageHistory),
			Send:        triFromBits(ow.Allow, ow.Deny, discordgo.PermissionSendMessages),
			ManagePerms: triFromBits(ow.Allow, ow.Deny, discordgo.PermissionManageRoles),
			EmbedLinks:  triFromBits(ow.Allow, ow.Deny, discordgo.PermissionEmbedLinks),
		}
	}
	return scope
}

func scopeToOverwrites(scope Scope) []*discordgo.PermissionOverwrite {
	out := make([]*discordgo.PermissionOverwrite, 0, len(scope))
	for p, ow := range scope {
		dow := &discordgo.PermissionOverwrite{ID: p.ID, Type: discordgo.PermissionOverwriteTypeRole}
		if p.Kind == PrincipalUser {
			dow.Type = discordgo.PermissionOverwriteTypeMember
		}
		applyTri(dow, ow.View, discordgo.PermissionViewChannel)
		applyTri(dow, ow.History, discordgo.PermissionReadMessageHistory)
		applyTri(dow, ow.Send, discordgo.PermissionSendMessages)
		applyTri(dow, ow.ManagePerms, discordgo.PermissionManageRoles)
		applyTri(dow, ow.EmbedLinks, discordgo.PermissionEmbedLinks)
		out = append(out, dow)
	}
	return out
}

func triFromBits(allow, deny, bit int64) Tri {
	switch {
	case allow&bit != 0:
		return Allow
	case deny&bit != 0:
		return Deny
	default:
		return Inherit
	}
}

func applyTri(ow *discordgo.PermissionOverwrite, t Tri, bit int64) {
	switch t {
	case Allow:
		ow.Allow |= bit
	case Deny:
		ow.Deny |= bit
	}
}

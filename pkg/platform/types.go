// Package platform defines the chat-platform capability surface the
// conversation core depends on, plus its Discord binding. The core only sees
// the typed records in this file, never discordgo types.
package platform

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"time"
)

type PrincipalKind string

const (
	PrincipalUser     PrincipalKind = "user"
	PrincipalRole     PrincipalKind = "role"
	PrincipalEveryone PrincipalKind = "everyone"
)

// Principal is the subject of a permission overwrite.
type Principal struct {
	Kind PrincipalKind
	ID   string
}

// Everyone returns the guild-wide default principal. Discord models it as a
// role whose ID equals the guild ID.
func Everyone(guildID string) Principal {
	return Principal{Kind: PrincipalEveryone, ID: guildID}
}

// Tri is a tri-state permission value: unset entries inherit from the
// channel's parent, per Discord overwrite semantics.
type Tri int8

const (
	Inherit Tri = iota
	Allow
	Deny
)

// Overwrite is the five-permission tuple a conversation manipulates.
type Overwrite struct {
	View        Tri
	History     Tri
	Send        Tri
	ManagePerms Tri
	EmbedLinks  Tri
}

// Scope maps principals to their overwrites for one channel.
type Scope map[Principal]Overwrite

type User struct {
	ID   string
	Name string
	Bot  bool
}

type ChannelRef struct {
	ID   string
	Name string
}

type RefKind string

const (
	RefReply RefKind = "reply"
	RefPin   RefKind = "pin"
)

// Reference points at another message (a reply target or a pinned message).
type Reference struct {
	Kind      RefKind
	MessageID string
}

type Attachment struct {
	Name        string
	ContentType string
	URL         string
}

// Reaction identifies one emoji's reactions on a message. The reacting users
// are fetched lazily through Client.ReactionUsers; FetchKey is the
// platform-specific identifier that fetch requires.
type Reaction struct {
	Emoji    string
	FetchKey string
}

// Message is an immutable snapshot of one captured message.
type Message struct {
	ID          string
	Author      User
	CreatedAt   time.Time
	EditedAt    *time.Time
	Reference   *Reference
	Reactions   []Reaction
	Attachments []Attachment
	Embeds      []json.RawMessage
	System      bool
	Content     string // synthesized caption for system messages, raw content otherwise
}

// Client is the capability surface the conversation core consumes. Every
// method may fail with ErrPermissionDenied; implementations must map the
// platform's permission rejections onto it.
type Client interface {
	// BotUser returns the identity the client is authenticated as.
	BotUser() User

	// FindCategory scans the guild's channel groupings for a category whose
	// name contains marker, case-insensitively. Returns ErrCategoryMissing
	// when none matches.
	FindCategory(ctx context.Context, guildID, marker string) (ChannelRef, error)

	// ChannelScope returns the channel's current permission overwrites.
	ChannelScope(ctx context.Context, channelID string) (Scope, error)

	CreateChannel(ctx context.Context, guildID, parentID, name string) (ChannelRef, error)

	// ApplyScope replaces the channel's overwrites with scope. Hard replace,
	// not a merge.
	ApplyScope(ctx context.Context, channelID string, scope Scope) error

	Send(ctx context.Context, channelID, content string) error

	SendFile(ctx context.Context, channelID, content, filename string, r io.Reader) error

	// DeleteChannel removes the channel. Deleting an already-deleted channel
	// is not an error.
	DeleteChannel(ctx context.Context, channelID string) error

	// History iterates the channel's full message history oldest-first,
	// lazily walking the platform's pagination.
	History(ctx context.Context, channelID string) iter.Seq2[Message, error]

	// ReactionUsers lazily iterates the users who added one reaction.
	ReactionUsers(ctx context.Context, channelID, messageID, fetchKey string) iter.Seq2[User, error]

	// CanDeliverFiles reports whether the bot can view, send to, and attach
	// files in the channel.
	CanDeliverFiles(ctx context.Context, channelID string) bool
}

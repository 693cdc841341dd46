package convo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/convosplit/pkg/bus"
	"github.com/tinyland-inc/convosplit/pkg/logger"
	"github.com/tinyland-inc/convosplit/pkg/platform"
)

// MaxMembers caps the restricted-participant list of one conversation.
const MaxMembers = 5

const (
	errorPrefix = "❌ **Error**: "

	noCategoryMsg = "Missing channel category for temporary conversations.\n" +
		"Please ask someone with permission to do so to create " +
		"a channel category with the word \"ConvoSplit\" anywhere in the name."

	noPermsMsg = "Missing permissions to create new channels and edit their permissions.\n" +
		"Please ask someone with permission to do so to grant me the ability to\n" +
		"- create new channels\n" +
		"- edit their permissions\n" +
		"in the ConvoSplit channel category."

	permsWarning = "⚠ **Warning**: I cannot send messages with a file as a bot " +
		"in this channel or the `dest_channel` (if specified). If the conversation " +
		"(including ending inactivity, if any) lasts more than 10 minutes, its log " +
		"will be lost!"

	splitResponseFmt = "Those in %s's conversation please move to %s (convo %s)."
	convoDoneFmt     = "Conversation %s finished:"
	farewellMsg      = "Goodbye."
)

// Request is the immutable input that starts one conversation.
type Request struct {
	GuildID         string
	OriginChannelID string
	Initiator       platform.User
	Members         []platform.User // at most MaxMembers
	Timeout         time.Duration
	DestChannelID   string // optional preferred archive destination
}

// Responder abstracts the interaction reply surface the directive arrived on:
// the initial response and its webhook followups.
type Responder interface {
	Respond(ctx context.Context, content string) error
	Followup(ctx context.Context, content string) error
	FollowupFile(ctx context.Context, content, filename string, r io.Reader) error
}

// Conductor drives one conversation end to end: provision, notify, watch,
// lock, archive, deliver, delete. Instances share no mutable state; each Run
// owns exactly one channel.
type Conductor struct {
	client      platform.Client
	bus         *bus.MessageBus
	provisioner *Provisioner
	archiver    *Archiver
	freshness   time.Duration
}

// Options configures a Conductor.
type Options struct {
	CategoryMarker    string
	ArchiveDir        string
	DeliveryFreshness time.Duration // how long the interaction webhook stays a viable delivery surface
}

func NewConductor(client platform.Client, b *bus.MessageBus, opts Options) *Conductor {
	if opts.DeliveryFreshness <= 0 {
		opts.DeliveryFreshness = 10 * time.Minute
	}
	return &Conductor{
		client:      client,
		bus:         b,
		provisioner: NewProvisioner(client, opts.CategoryMarker),
		archiver:    NewArchiver(client, opts.ArchiveDir),
		freshness:   opts.DeliveryFreshness,
	}
}

// Run executes the full conversation lifecycle. Provisioning failures are
// reported to the requester and end the run with no channel in existence.
// Archival failures leave the channel undeleted for manual intervention.
func (c *Conductor) Run(ctx context.Context, req Request, resp Responder) error {
	if len(req.Members) > MaxMembers {
		req.Members = req.Members[:MaxMembers]
	}

	convoID := uuid.New().String()
	bot := c.client.BotUser()

	origin, err := c.client.ChannelScope(ctx, req.OriginChannelID)
	if err != nil {
		// The interaction was already deferred; leaving it unanswered strands
		// the requester on a spinner.
		if errors.Is(err, platform.ErrPermissionDenied) {
			c.tryRespond(ctx, resp, errorPrefix+noPermsMsg)
		} else {
			c.tryRespond(ctx, resp, errorPrefix+"Could not read this channel's permissions.")
		}
		return fmt.Errorf("reading origin scope: %w", err)
	}

	members := make([]platform.Principal, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, platform.Principal{Kind: platform.PrincipalUser, ID: m.ID})
	}
	scope := BuildScope(origin, req.GuildID,
		platform.Principal{Kind: platform.PrincipalUser, ID: bot.ID},
		platform.Principal{Kind: platform.PrincipalUser, ID: req.Initiator.ID},
		members)

	ch, err := c.provisioner.Provision(ctx, req.GuildID, scope)
	if err != nil {
		switch {
		case errors.Is(err, platform.ErrCategoryMissing):
			c.tryRespond(ctx, resp, errorPrefix+noCategoryMsg)
		case errors.Is(err, platform.ErrPermissionDenied):
			c.tryRespond(ctx, resp, errorPrefix+noPermsMsg)
		}
		return fmt.Errorf("provisioning conversation: %w", err)
	}
	key := Key(ch.Name)

	logger.InfoCF("convo", "conversation started", map[string]any{
		"convo_id":   convoID,
		"key":        key,
		"channel_id": ch.ID,
		"timeout":    req.Timeout.String(),
		"members":    len(req.Members),
	})

	c.notify(ctx, req, resp, ch, key)

	start := time.Now().UTC()
	msgs, unsubscribe := c.bus.Subscribe(ch.ID)
	reason, err := AwaitTermination(ctx, msgs, bot.ID, req.Initiator.ID, req.Timeout)
	unsubscribe()
	if err != nil {
		return fmt.Errorf("awaiting termination of convo %s: %w", key, err)
	}
	if reason == ReasonTimeout {
		if err := c.client.Send(ctx, ch.ID, farewellMsg); err != nil {
			logger.WarnCF("convo", "farewell send failed", map[string]any{
				"convo_id": convoID, "error": err.Error(),
			})
		}
	}

	locked := LockedScope(req.GuildID, platform.Principal{Kind: platform.PrincipalUser, ID: bot.ID})
	if err := c.client.ApplyScope(ctx, ch.ID, locked); err != nil {
		// Aborting here would lose the history the lock protects; archive anyway.
		logger.WarnCF("convo", "locking channel failed", map[string]any{
			"convo_id": convoID, "channel_id": ch.ID, "error": err.Error(),
		})
	}

	end := time.Now().UTC()
	artifact, err := c.archiver.Write(ctx, ch, start, end)
	if err != nil {
		// Channel is intentionally left undeleted so a human can intervene.
		return fmt.Errorf("archiving convo %s (channel %s left in place): %w", key, ch.ID, err)
	}

	c.deliver(ctx, req, resp, artifact, key, start)

	if err := c.client.DeleteChannel(ctx, ch.ID); err != nil {
		logger.ErrorCF("convo", "channel delete failed; channel orphaned", map[string]any{
			"convo_id": convoID, "channel_id": ch.ID, "error": err.Error(),
		})
	}

	logger.InfoCF("convo", "conversation concluded", map[string]any{
		"convo_id": convoID,
		"key":      key,
		"reason":   reason.String(),
		"elapsed":  time.Since(start).String(),
	})
	return nil
}

// notify completes the interaction response and posts the advance
// delivery-permission warning and member mentions.
func (c *Conductor) notify(ctx context.Context, req Request, resp Responder, ch platform.ChannelRef, key string) {
	c.tryRespond(ctx, resp, fmt.Sprintf(splitResponseFmt,
		userMention(req.Initiator.ID), channelMention(ch.ID), key))

	deliveryID := req.DestChannelID
	if deliveryID == "" {
		deliveryID = req.OriginChannelID
	}
	if !c.client.CanDeliverFiles(ctx, req.OriginChannelID) && !c.client.CanDeliverFiles(ctx, deliveryID) {
		if err := resp.Followup(ctx, permsWarning); err != nil {
			logger.WarnCF("convo", "delivery warning failed", map[string]any{"error": err.Error()})
		}
	}

	if len(req.Members) > 0 {
		mentions := make([]string, 0, len(req.Members))
		for _, m := range req.Members {
			mentions = append(mentions, userMention(m.ID))
		}
		if err := resp.Followup(ctx, strings.Join(mentions, " ")); err != nil {
			logger.WarnCF("convo", "member notification failed", map[string]any{"error": err.Error()})
		}
	}
}

// deliver routes the archive: preferred destination first, then the
// interaction webhook while it is still fresh, then the originating channel,
// then abandonment. The local artifact is removed unconditionally.
func (c *Conductor) deliver(ctx context.Context, req Request, resp Responder, artifact, key string, start time.Time) {
	defer os.Remove(artifact)

	content := fmt.Sprintf(convoDoneFmt, key)

	if req.DestChannelID != "" {
		err := c.sendArtifact(ctx, req.DestChannelID, content, artifact)
		if err == nil {
			return
		}
		logger.WarnCF("deliver", "preferred destination refused archive", map[string]any{
			"key": key, "channel_id": req.DestChannelID, "error": err.Error(),
		})
	}

	if time.Since(start) < c.freshness {
		f, err := os.Open(artifact)
		if err == nil {
			err = resp.FollowupFile(ctx, content, filepath.Base(artifact), f)
			f.Close()
		}
		if err == nil {
			return
		}
		logger.WarnCF("deliver", "webhook delivery failed", map[string]any{
			"key": key, "error": err.Error(),
		})
	} else if err := c.sendArtifact(ctx, req.OriginChannelID, content, artifact); err == nil {
		return
	} else {
		logger.WarnCF("deliver", "origin channel refused archive", map[string]any{
			"key": key, "channel_id": req.OriginChannelID, "error": err.Error(),
		})
	}

	logger.ErrorCF("deliver", "archive delivery abandoned; artifact dropped", map[string]any{
		"key": key, "artifact": filepath.Base(artifact),
	})
}

func (c *Conductor) sendArtifact(ctx context.Context, channelID, content, artifact string) error {
	f, err := os.Open(artifact)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.client.SendFile(ctx, channelID, content, filepath.Base(artifact), f)
}

func (c *Conductor) tryRespond(ctx context.Context, resp Responder, content string) {
	if err := resp.Respond(ctx, content); err != nil {
		logger.WarnCF("convo", "interaction response failed", map[string]any{"error": err.Error()})
	}
}

func userMention(id string) string    { return "<@" + id + ">" }
func channelMention(id string) string { return "<#" + id + ">" }

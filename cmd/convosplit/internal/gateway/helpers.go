package gateway

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/convosplit/cmd/convosplit/internal"
	"github.com/tinyland-inc/convosplit/pkg/bus"
	"github.com/tinyland-inc/convosplit/pkg/config"
	"github.com/tinyland-inc/convosplit/pkg/convo"
	"github.com/tinyland-inc/convosplit/pkg/logger"
	"github.com/tinyland-inc/convosplit/pkg/platform"
)

const maxTimeoutMinutes = 1440 // one day

func gatewayCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if cfg.Discord.Token == "" {
		return fmt.Errorf("no bot token configured (set CONVOSPLIT_DISCORD_TOKEN or run `convosplit onboard`)")
	}

	msgBus := bus.NewMessageBus()
	client, err := platform.NewDiscord(cfg.Discord.Token, msgBus)
	if err != nil {
		return fmt.Errorf("error creating discord client: %w", err)
	}

	conductor := convo.NewConductor(client, msgBus, convo.Options{
		CategoryMarker:    cfg.Convo.CategoryMarker,
		ArchiveDir:        cfg.Convo.ArchiveDir,
		DeliveryFreshness: cfg.DeliveryFreshness(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &interactionHandler{cfg: cfg, conductor: conductor, ctx: ctx}
	client.Session().AddHandler(handler.handle)

	if err := client.Open(ctx); err != nil {
		return fmt.Errorf("error connecting to discord: %w", err)
	}

	if err := registerCommands(client.Session(), cfg.Discord.GuildID); err != nil {
		client.Close()
		return fmt.Errorf("error registering commands: %w", err)
	}

	fmt.Printf("✓ Gateway started as %s\n", client.BotUser().Name)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	msgBus.Close()
	if err := client.Close(); err != nil {
		logger.WarnCF("gateway", "discord close failed", map[string]any{"error": err.Error()})
	}
	fmt.Println("✓ Gateway stopped")

	return nil
}

func registerCommands(session *discordgo.Session, guildID string) error {
	minTimeout := float64(1)
	maxTimeout := float64(maxTimeoutMinutes)

	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "split",
			Description: "Split the current conversation into a temporary channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "timeout",
					Description: "Minutes of inactivity before the conversation ends (default 5)",
					MinValue:    &minTimeout,
					MaxValue:    maxTimeout,
				},
				memberOption(1), memberOption(2), memberOption(3), memberOption(4), memberOption(5),
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "dest_channel",
					Description:  "Channel to deliver the conversation log to",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
		},
		{
			Name:        "exit",
			Description: "End the current split conversation",
		},
		{
			Name:        "invite",
			Description: "Get the bot's invite link",
		},
	}

	_, err := session.ApplicationCommandBulkOverwrite(session.State.User.ID, guildID, commands)
	return err
}

func memberOption(n int) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        fmt.Sprintf("member%d", n),
		Description: "Restrict the conversation to the listed members",
	}
}

type interactionHandler struct {
	cfg       *config.Config
	conductor *convo.Conductor
	ctx       context.Context
}

func (h *interactionHandler) handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case "split":
		h.handleSplit(s, i, data)
	case "exit":
		h.handleExit(s, i)
	case "invite":
		h.handleInvite(s, i)
	}
}

func (h *interactionHandler) handleSplit(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	invoker := interactionUser(i)
	if i.GuildID == "" || invoker == nil {
		respondEphemeral(s, i, "This command only works in a server channel.")
		return
	}

	req := convo.Request{
		GuildID:         i.GuildID,
		OriginChannelID: i.ChannelID,
		Initiator:       platform.User{ID: invoker.ID, Name: invoker.Username},
		Timeout:         h.cfg.DefaultTimeout(),
	}
	for _, opt := range data.Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionInteger:
			if opt.Name == "timeout" {
				req.Timeout = time.Duration(opt.IntValue()) * time.Minute
			}
		case discordgo.ApplicationCommandOptionUser:
			u := opt.UserValue(s)
			if u != nil && !u.Bot {
				req.Members = append(req.Members, platform.User{ID: u.ID, Name: u.Username})
			}
		case discordgo.ApplicationCommandOptionChannel:
			if opt.Name == "dest_channel" {
				if ch := opt.ChannelValue(nil); ch != nil {
					req.DestChannelID = ch.ID
				}
			}
		}
	}

	// Provisioning makes several REST calls; acknowledge now and fill the
	// response in once the channel exists.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		logger.WarnCF("gateway", "interaction ack failed", map[string]any{"error": err.Error()})
		return
	}

	resp := &interactionResponder{session: s, interaction: i.Interaction}
	go func() {
		if err := h.conductor.Run(h.ctx, req, resp); err != nil {
			logger.ErrorCF("gateway", "conversation run failed", map[string]any{
				"invoker": invoker.ID,
				"error":   err.Error(),
			})
		}
	}()
}

// handleExit responds in-channel; the resulting bot message is the
// termination signal the conversation watcher reacts to.
func (h *interactionHandler) handleExit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: "Goodbye."},
	})
	if err != nil {
		logger.WarnCF("gateway", "exit response failed", map[string]any{"error": err.Error()})
	}
}

func (h *interactionHandler) handleInvite(s *discordgo.Session, i *discordgo.InteractionCreate) {
	url := h.cfg.Discord.InviteURL
	if url == "" {
		url = "No invite URL configured."
	}
	respondEphemeral(s, i, url)
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logger.WarnCF("gateway", "interaction response failed", map[string]any{"error": err.Error()})
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

// interactionResponder fills the deferred interaction response and posts
// followups on its webhook.
type interactionResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

func (r *interactionResponder) Respond(ctx context.Context, content string) error {
	_, err := r.session.InteractionResponseEdit(r.interaction, &discordgo.WebhookEdit{
		Content: &content,
	}, discordgo.WithContext(ctx))
	return err
}

func (r *interactionResponder) Followup(ctx context.Context, content string) error {
	_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content: content,
	}, discordgo.WithContext(ctx))
	return err
}

func (r *interactionResponder) FollowupFile(ctx context.Context, content, filename string, reader io.Reader) error {
	_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content: content,
		Files:   []*discordgo.File{{Name: filename, Reader: reader}},
	}, discordgo.WithContext(ctx))
	return err
}

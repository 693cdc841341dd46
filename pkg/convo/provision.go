package convo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tinyland-inc/convosplit/pkg/logger"
	"github.com/tinyland-inc/convosplit/pkg/platform"
)

// ChannelPrefix precedes the random key in every conversation channel name.
const ChannelPrefix = "convo-"

// NewKey returns a random 8-hex-character conversation key.
func NewKey() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("reading random key: %v", err))
	}
	return hex.EncodeToString(b)
}

// Key extracts the conversation key from a channel name.
func Key(channelName string) string {
	if i := strings.LastIndex(channelName, "-"); i >= 0 {
		return channelName[i+1:]
	}
	return channelName
}

// Provisioner creates a conversation channel under the marked category and
// applies its access scope.
type Provisioner struct {
	client platform.Client
	marker string
}

func NewProvisioner(client platform.Client, marker string) *Provisioner {
	return &Provisioner{client: client, marker: marker}
}

// Provision locates the parent category, creates a uniquely named channel
// under it, and applies scope. Channel creation and scope application are two
// network operations; if the second fails the channel is left with default
// permissions for manual cleanup, and the failure propagates.
func (p *Provisioner) Provision(ctx context.Context, guildID string, scope platform.Scope) (platform.ChannelRef, error) {
	category, err := p.client.FindCategory(ctx, guildID, p.marker)
	if err != nil {
		return platform.ChannelRef{}, fmt.Errorf("locating category: %w", err)
	}

	name := ChannelPrefix + NewKey()
	ch, err := p.client.CreateChannel(ctx, guildID, category.ID, name)
	if err != nil {
		return platform.ChannelRef{}, fmt.Errorf("creating channel %s: %w", name, err)
	}

	if err := p.client.ApplyScope(ctx, ch.ID, scope); err != nil {
		logger.WarnCF("provision", "channel created but scope apply failed; manual cleanup needed", map[string]any{
			"channel_id": ch.ID,
			"channel":    ch.Name,
			"error":      err.Error(),
		})
		return platform.ChannelRef{}, fmt.Errorf("applying scope to %s: %w", ch.Name, err)
	}

	return ch, nil
}

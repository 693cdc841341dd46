package convo

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tinyland-inc/convosplit/pkg/platform"
)

// Separator precedes every record in an archive; the final line is the same
// separator suffixed with "--".
const Separator = "--New Message Starts After Two Line Feeds After This Line"

// stampLayout is the filesystem-safe timestamp format used in archive names.
const stampLayout = "2006-01-02 15-04-05"

// Archiver serializes a concluded conversation's full history to a file.
type Archiver struct {
	client platform.Client
	dir    string
}

func NewArchiver(client platform.Client, dir string) *Archiver {
	return &Archiver{client: client, dir: dir}
}

// ArtifactPath returns the deterministic archive filename for a conversation
// window.
func (a *Archiver) ArtifactPath(channelName string, start, end time.Time) string {
	return filepath.Join(a.dir, fmt.Sprintf("%s---%s---%s.txt",
		channelName,
		start.UTC().Format(stampLayout),
		end.UTC().Format(stampLayout)))
}

// Write captures the channel's history oldest-first into the archive file and
// returns its path. The bot's own farewell messages are excluded. There is no
// partial-write recovery: any fetch or write failure removes the partial file
// and propagates.
func (a *Archiver) Write(ctx context.Context, ch platform.ChannelRef, start, end time.Time) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive dir: %w", err)
	}

	path := a.ArtifactPath(ch.Name, start, end)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}

	abort := func(err error) (string, error) {
		f.Close()
		os.Remove(path)
		return "", err
	}

	botID := a.client.BotUser().ID
	w := bufio.NewWriter(f)
	for msg, err := range a.client.History(ctx, ch.ID) {
		if err != nil {
			return abort(fmt.Errorf("fetching history of %s: %w", ch.Name, err))
		}
		if msg.Author.ID == botID && isFarewell(msg.Content) {
			continue
		}
		record, err := a.formatMessage(ctx, ch.ID, msg)
		if err != nil {
			return abort(err)
		}
		if _, err := w.WriteString(Separator + "\n" + record + "\n"); err != nil {
			return abort(fmt.Errorf("writing archive: %w", err))
		}
	}
	if _, err := w.WriteString(Separator + "--\n"); err != nil {
		return abort(fmt.Errorf("writing archive: %w", err))
	}
	if err := w.Flush(); err != nil {
		return abort(fmt.Errorf("flushing archive: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing archive: %w", err)
	}

	return path, nil
}

// formatMessage renders one record in the archive's multipart-like layout.
func (a *Archiver) formatMessage(ctx context.Context, channelID string, msg platform.Message) (string, error) {
	lines := []string{
		"Message-Id: " + msg.ID,
		fmt.Sprintf("Author: %s (%s)", msg.Author.Name, msg.Author.ID),
		"Sent: " + msg.CreatedAt.Format(time.RFC3339Nano),
	}
	if msg.EditedAt != nil {
		lines = append(lines, "Edited: "+msg.EditedAt.Format(time.RFC3339Nano))
	}
	if msg.Reference != nil {
		if msg.Reference.Kind == platform.RefPin {
			lines = append(lines, "Pins: "+msg.Reference.MessageID)
		} else {
			lines = append(lines, "Reply-To: "+msg.Reference.MessageID)
		}
	}
	for _, r := range msg.Reactions {
		var users []string
		for u, err := range a.client.ReactionUsers(ctx, channelID, msg.ID, r.FetchKey) {
			if err != nil {
				return "", fmt.Errorf("fetching reaction users for %s: %w", msg.ID, err)
			}
			users = append(users, fmt.Sprintf("%s (%s)", u.Name, u.ID))
		}
		lines = append(lines, fmt.Sprintf("Reaction: %s; %s", r.Emoji, strings.Join(users, ", ")))
	}
	for _, at := range msg.Attachments {
		ct := at.ContentType
		if ct == "" {
			ct = "Unspecified"
		}
		lines = append(lines, fmt.Sprintf("Attachment: name=%s, content_type=%s, url=%s", at.Name, ct, at.URL))
	}
	for _, e := range msg.Embeds {
		lines = append(lines, "Embed: "+string(e))
	}
	lines = append(lines, "", msg.Content)
	return strings.Join(lines, "\n"), nil
}

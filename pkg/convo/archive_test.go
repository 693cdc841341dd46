package convo

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinyland-inc/convosplit/pkg/platform"
)

var (
	archiveStart = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	archiveEnd   = time.Date(2026, 3, 14, 9, 41, 0, 0, time.UTC)
)

func TestArtifactPath(t *testing.T) {
	a := NewArchiver(newFakeClient(), "convos")
	got := a.ArtifactPath("convo-a1b2c3d4", archiveStart, archiveEnd)
	want := filepath.Join("convos", "convo-a1b2c3d4---2026-03-14 09-26-53---2026-03-14 09-41-00.txt")
	if got != want {
		t.Errorf("ArtifactPath = %q, want %q", got, want)
	}
}

func TestArchiveWrite(t *testing.T) {
	client := newFakeClient()
	edited := archiveStart.Add(2 * time.Minute)
	client.history = []platform.Message{
		{
			ID:        "100",
			Author:    platform.User{ID: "user-1", Name: "alice"},
			CreatedAt: archiveStart,
			Content:   "first message",
		},
		{
			ID:        "101",
			Author:    platform.User{ID: "user-2", Name: "bob"},
			CreatedAt: archiveStart.Add(time.Minute),
			EditedAt:  &edited,
			Reference: &platform.Reference{Kind: platform.RefReply, MessageID: "100"},
			Reactions: []platform.Reaction{{Emoji: "👍", FetchKey: "👍"}},
			Attachments: []platform.Attachment{
				{Name: "notes.txt", URL: "https://cdn.example/notes.txt"},
			},
			Embeds:  []json.RawMessage{json.RawMessage(`{"title":"hi"}`)},
			Content: "second message",
		},
		{
			ID:        "102",
			Author:    client.bot,
			CreatedAt: archiveStart.Add(3 * time.Minute),
			Content:   "Goodbye.",
		},
	}
	client.reactions = map[string][]platform.User{
		"101|👍": {{ID: "user-1", Name: "alice"}},
	}

	a := NewArchiver(client, t.TempDir())
	path, err := a.Write(context.Background(), platform.ChannelRef{ID: "chan-1", Name: "convo-ff00ff00"}, archiveStart, archiveEnd)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	text := string(data)

	if got := strings.Count(text, Separator+"\n"); got != 2 {
		t.Errorf("archive holds %d records, want 2 (farewell excluded)", got)
	}
	if !strings.HasSuffix(text, Separator+"--\n") {
		t.Errorf("archive missing terminator, ends with %q", text[max(0, len(text)-80):])
	}
	if strings.Contains(text, "Goodbye.") {
		t.Error("bot farewell leaked into archive")
	}

	for _, want := range []string{
		"Message-Id: 100",
		"Author: alice (user-1)",
		"Sent: 2026-03-14T09:26:53Z",
		"Edited: 2026-03-14T09:28:53Z",
		"Reply-To: 100",
		"Reaction: 👍; alice (user-1)",
		"Attachment: name=notes.txt, content_type=Unspecified, url=https://cdn.example/notes.txt",
		`Embed: {"title":"hi"}`,
		"first message",
		"second message",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("archive missing %q", want)
		}
	}
}

func TestArchiveWrite_PinRecord(t *testing.T) {
	client := newFakeClient()
	client.history = []platform.Message{
		{
			ID:        "200",
			Author:    platform.User{ID: "user-1", Name: "alice"},
			CreatedAt: archiveStart,
			Reference: &platform.Reference{Kind: platform.RefPin, MessageID: "100"},
			System:    true,
			Content:   "alice pinned a message to this channel.",
		},
	}

	a := NewArchiver(client, t.TempDir())
	path, err := a.Write(context.Background(), platform.ChannelRef{ID: "chan-1", Name: "convo-00000000"}, archiveStart, archiveEnd)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "Pins: 100") {
		t.Error("pin record missing Pins header")
	}
}

func TestArchiveWrite_FetchFailureRemovesPartial(t *testing.T) {
	client := newFakeClient()
	client.historyErr = os.ErrDeadlineExceeded

	dir := t.TempDir()
	a := NewArchiver(client, dir)
	_, err := a.Write(context.Background(), platform.ChannelRef{ID: "chan-1", Name: "convo-00000000"}, archiveStart, archiveEnd)
	if err == nil {
		t.Fatal("expected error from history fetch")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("partial archive left behind: %v", entries)
	}
}

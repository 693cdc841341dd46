package convo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/tinyland-inc/convosplit/pkg/platform"
)

type sentMessage struct {
	ChannelID string
	Content   string
}

type sentFile struct {
	ChannelID string
	Content   string
	Filename  string
	Data      string
}

// fakeClient is an in-memory platform.Client for lifecycle tests.
type fakeClient struct {
	mu sync.Mutex

	bot      platform.User
	category platform.ChannelRef

	categoryErr error
	scopeErr    error
	createErr   error
	applyErr    error
	sendErr     error
	sendFileErr map[string]error // per channel ID
	deleteErr   error
	historyErr  error

	originScope platform.Scope
	history     []platform.Message
	reactions   map[string][]platform.User // messageID|fetchKey
	canDeliver  map[string]bool

	created       []platform.ChannelRef
	appliedScopes map[string]platform.Scope
	sent          []sentMessage
	files         []sentFile
	deleted       []string
	nextChannel   int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		bot:           platform.User{ID: "bot-1", Name: "convosplit", Bot: true},
		category:      platform.ChannelRef{ID: "cat-1", Name: "ConvoSplit Rooms"},
		originScope:   platform.Scope{},
		appliedScopes: map[string]platform.Scope{},
		sendFileErr:   map[string]error{},
		canDeliver:    map[string]bool{},
	}
}

func (f *fakeClient) BotUser() platform.User { return f.bot }

func (f *fakeClient) FindCategory(_ context.Context, _, _ string) (platform.ChannelRef, error) {
	if f.categoryErr != nil {
		return platform.ChannelRef{}, f.categoryErr
	}
	return f.category, nil
}

func (f *fakeClient) ChannelScope(_ context.Context, _ string) (platform.Scope, error) {
	if f.scopeErr != nil {
		return nil, f.scopeErr
	}
	return f.originScope, nil
}

func (f *fakeClient) CreateChannel(_ context.Context, _, _, name string) (platform.ChannelRef, error) {
	if f.createErr != nil {
		return platform.ChannelRef{}, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextChannel++
	ch := platform.ChannelRef{ID: fmt.Sprintf("chan-%d", f.nextChannel), Name: name}
	f.created = append(f.created, ch)
	return ch, nil
}

func (f *fakeClient) ApplyScope(_ context.Context, channelID string, scope platform.Scope) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appliedScopes[channelID] = scope
	return nil
}

func (f *fakeClient) Send(_ context.Context, channelID, content string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{ChannelID: channelID, Content: content})
	return nil
}

func (f *fakeClient) SendFile(_ context.Context, channelID, content, filename string, r io.Reader) error {
	if err := f.sendFileErr[channelID]; err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, sentFile{
		ChannelID: channelID, Content: content, Filename: filename, Data: buf.String(),
	})
	return nil
}

func (f *fakeClient) DeleteChannel(_ context.Context, channelID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID)
	return nil
}

func (f *fakeClient) History(_ context.Context, _ string) iter.Seq2[platform.Message, error] {
	return func(yield func(platform.Message, error) bool) {
		if f.historyErr != nil {
			yield(platform.Message{}, f.historyErr)
			return
		}
		for _, m := range f.history {
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (f *fakeClient) ReactionUsers(_ context.Context, _, messageID, fetchKey string) iter.Seq2[platform.User, error] {
	return func(yield func(platform.User, error) bool) {
		for _, u := range f.reactions[messageID+"|"+fetchKey] {
			if !yield(u, nil) {
				return
			}
		}
	}
}

func (f *fakeClient) CanDeliverFiles(_ context.Context, channelID string) bool {
	return f.canDeliver[channelID]
}

func (f *fakeClient) lastCreated() platform.ChannelRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return platform.ChannelRef{}
	}
	return f.created[len(f.created)-1]
}

// fakeResponder records the interaction surface traffic of one run.
type fakeResponder struct {
	mu         sync.Mutex
	responses  []string
	followups  []string
	files      []sentFile
	respondErr error
}

func (r *fakeResponder) Respond(_ context.Context, content string) error {
	if r.respondErr != nil {
		return r.respondErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, content)
	return nil
}

func (r *fakeResponder) Followup(_ context.Context, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followups = append(r.followups, content)
	return nil
}

func (r *fakeResponder) FollowupFile(_ context.Context, content, filename string, reader io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, sentFile{Content: content, Filename: filename, Data: buf.String()})
	return nil
}

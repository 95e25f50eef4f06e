package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chattts/internal/discord/mock"
	"github.com/MrWong99/chattts/internal/playback"
)

type recordingHandler struct {
	mu     sync.Mutex
	got    []playback.Message
	result playback.Result
	err    error
}

func (h *recordingHandler) OnMessage(_ context.Context, m playback.Message) (playback.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, m)
	return h.result, h.err
}

func (h *recordingHandler) messages() []playback.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]playback.Message(nil), h.got...)
}

func chat(guildID, authorID, content string, bot bool) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID:   guildID,
		ChannelID: "text-1",
		Content:   content,
		Author:    &discordgo.User{ID: authorID, Bot: bot},
	}}
}

func TestMessageBridge_BuildsMessage(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{result: playback.ResultQueued}
	dir := &mock.Directory{Voice: map[string]string{"g1/u1": "voice-1"}}
	b := NewMessageBridge(h, dir, &mock.MessageSender{})

	b.Handle(context.Background(), chat("g1", "u1", "안녕", false))

	got := h.messages()
	if len(got) != 1 {
		t.Fatalf("messages = %d, want 1", len(got))
	}
	want := playback.Message{
		GuildID:              "g1",
		ChannelID:            "text-1",
		AuthorID:             "u1",
		Text:                 "안녕",
		AuthorVoiceChannelID: "voice-1",
	}
	if got[0] != want {
		t.Errorf("message = %+v, want %+v", got[0], want)
	}
}

func TestMessageBridge_Skips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  *discordgo.MessageCreate
	}{
		{name: "nil event", msg: nil},
		{name: "direct message", msg: chat("", "u1", "hi", false)},
		{name: "no author", msg: &discordgo.MessageCreate{Message: &discordgo.Message{GuildID: "g1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := &recordingHandler{}
			b := NewMessageBridge(h, &mock.Directory{}, &mock.MessageSender{})
			b.Handle(context.Background(), tt.msg)
			if n := len(h.messages()); n != 0 {
				t.Errorf("messages = %d, want 0", n)
			}
		})
	}
}

func TestMessageBridge_BotAuthorHasNoVoiceLookup(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{result: playback.ResultBot}
	dir := &mock.Directory{Voice: map[string]string{"g1/b1": "voice-1"}}
	b := NewMessageBridge(h, dir, &mock.MessageSender{})

	b.Handle(context.Background(), chat("g1", "b1", "beep", true))

	got := h.messages()
	if len(got) != 1 || !got[0].AuthorIsBot || got[0].AuthorVoiceChannelID != "" {
		t.Errorf("messages = %+v, want one bot message without voice channel", got)
	}
}

func TestMessageBridge_BusyNotice(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{
		result: playback.ResultBusy,
		err:    fmt.Errorf("dispatch: %w", &playback.BusyError{ChannelID: "voice-2"}),
	}
	dir := &mock.Directory{Names: map[string]string{"voice-2": "잡담방"}}
	sender := &mock.MessageSender{}
	b := NewMessageBridge(h, dir, sender)

	b.Handle(context.Background(), chat("g1", "u1", "hi", false))

	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sent))
	}
	want := "🚫 봇이 이미 다른 통화방(**잡담방**)에 있습니다."
	if sent[0].ChannelID != "text-1" || sent[0].Content != want {
		t.Errorf("sent = %+v, want %q in text-1", sent[0], want)
	}
}

func TestMessageBridge_OtherErrorsAreNotPosted(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{result: playback.ResultFailed, err: errors.New("connect: timeout")}
	sender := &mock.MessageSender{}
	b := NewMessageBridge(h, &mock.Directory{}, sender)

	b.Handle(context.Background(), chat("g1", "u1", "hi", false))

	if n := len(sender.Sent()); n != 0 {
		t.Errorf("sent = %d, want 0", n)
	}
}

func TestStateDirectory(t *testing.T) {
	t.Parallel()

	state := discordgo.NewState()
	err := state.GuildAdd(&discordgo.Guild{
		ID: "g1",
		Channels: []*discordgo.Channel{
			{ID: "voice-1", GuildID: "g1", Name: "일반", Type: discordgo.ChannelTypeGuildVoice},
		},
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: "g1", UserID: "u1", ChannelID: "voice-1"},
		},
	})
	if err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}
	dir := StateDirectory{State: state}

	if got := dir.VoiceChannel("g1", "u1"); got != "voice-1" {
		t.Errorf("VoiceChannel(u1) = %q, want voice-1", got)
	}
	if got := dir.VoiceChannel("g1", "u2"); got != "" {
		t.Errorf("VoiceChannel(u2) = %q, want empty", got)
	}
	if got := dir.VoiceChannel("g9", "u1"); got != "" {
		t.Errorf("VoiceChannel(unknown guild) = %q, want empty", got)
	}
	if got := dir.ChannelName("voice-1"); got != "일반" {
		t.Errorf("ChannelName(voice-1) = %q, want 일반", got)
	}
	if got := dir.ChannelName("voice-9"); got != "voice-9" {
		t.Errorf("ChannelName(voice-9) = %q, want the ID", got)
	}

	var empty StateDirectory
	if empty.VoiceChannel("g1", "u1") != "" || empty.ChannelName("c") != "c" {
		t.Error("zero StateDirectory should resolve nothing")
	}
}

// slowHandler takes longer for earlier messages, so any reordering inside the
// bridge shows up in the recorded order.
type slowHandler struct {
	recordingHandler
	delay func(m playback.Message) time.Duration
}

func (h *slowHandler) OnMessage(ctx context.Context, m playback.Message) (playback.Result, error) {
	time.Sleep(h.delay(m))
	return h.recordingHandler.OnMessage(ctx, m)
}

func TestMessageBridge_SubmitKeepsGuildOrder(t *testing.T) {
	t.Parallel()

	const n = 20
	h := &slowHandler{delay: func(m playback.Message) time.Duration {
		i, _ := strconv.Atoi(m.Text)
		return time.Duration(n-i) * time.Millisecond / 2
	}}
	b := NewMessageBridge(h, &mock.Directory{}, &mock.MessageSender{})

	for i := range n {
		b.Submit(chat("g1", "u1", strconv.Itoa(i), false))
	}
	b.Close()

	got := h.messages()
	if len(got) != n {
		t.Fatalf("messages = %d, want %d", len(got), n)
	}
	for i, m := range got {
		if m.Text != strconv.Itoa(i) {
			t.Fatalf("message %d = %q, want %q (order %v)", i, m.Text, strconv.Itoa(i), got)
		}
	}
}

// gatedHandler blocks messages of one guild until released.
type gatedHandler struct {
	recordingHandler
	gateGuild string
	gate      chan struct{}
}

func (h *gatedHandler) OnMessage(ctx context.Context, m playback.Message) (playback.Result, error) {
	if m.GuildID == h.gateGuild {
		<-h.gate
	}
	return h.recordingHandler.OnMessage(ctx, m)
}

func TestMessageBridge_GuildsDoNotBlockEachOther(t *testing.T) {
	t.Parallel()

	h := &gatedHandler{gateGuild: "g1", gate: make(chan struct{})}
	b := NewMessageBridge(h, &mock.Directory{}, &mock.MessageSender{})

	b.Submit(chat("g1", "u1", "stuck", false))
	b.Submit(chat("g2", "u2", "free", false))

	deadline := time.After(time.Second)
	for len(h.messages()) == 0 {
		select {
		case <-deadline:
			t.Fatal("g2 message not dispatched while g1 was blocked")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := h.messages(); got[0].GuildID != "g2" {
		t.Errorf("first dispatched = %+v, want g2", got[0])
	}

	close(h.gate)
	b.Close()
	if n := len(h.messages()); n != 2 {
		t.Errorf("messages = %d, want 2", n)
	}
}

func TestMessageBridge_SubmitAfterClose(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{}
	b := NewMessageBridge(h, &mock.Directory{}, &mock.MessageSender{})
	b.Close()

	b.Submit(chat("g1", "u1", "late", false))
	b.Submit(nil)
	b.Submit(chat("", "u1", "dm", false))
	b.Close()

	if n := len(h.messages()); n != 0 {
		t.Errorf("messages = %d, want 0", n)
	}
}

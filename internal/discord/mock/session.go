// Package mock provides test doubles for the Discord bot layer.
package mock

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// InteractionResponder records interaction responses for test assertions.
// It implements discord.Responder and is safe for concurrent use.
type InteractionResponder struct {
	mu sync.Mutex

	// Err, when non-nil, is returned by every call.
	Err error

	responses []*discordgo.InteractionResponse
	followUps []*discordgo.WebhookParams
}

// InteractionRespond records resp and returns Err.
func (m *InteractionResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return m.Err
}

// FollowupMessageCreate records params and returns a stub message.
func (m *InteractionResponder) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, params *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followUps = append(m.followUps, params)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-followup", Content: params.Content}, nil
}

// Responses returns every recorded response.
func (m *InteractionResponder) Responses() []*discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*discordgo.InteractionResponse(nil), m.responses...)
}

// LastResponse returns the most recent response, or nil.
func (m *InteractionResponder) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return nil
	}
	return m.responses[len(m.responses)-1]
}

// LastContent returns the text of the most recent response or follow-up,
// whichever came last, or "".
func (m *InteractionResponder) LastContent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.followUps); n > 0 {
		return m.followUps[n-1].Content
	}
	if n := len(m.responses); n > 0 && m.responses[n-1].Data != nil {
		return m.responses[n-1].Data.Content
	}
	return ""
}

// LastFollowUp returns the most recent follow-up, or nil.
func (m *InteractionResponder) LastFollowUp() *discordgo.WebhookParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.followUps) == 0 {
		return nil
	}
	return m.followUps[len(m.followUps)-1]
}

// MessageSender records plain channel messages. It implements
// discord.MessageSender.
type MessageSender struct {
	mu   sync.Mutex
	Err  error
	sent []SentMessage
}

// SentMessage is one recorded channel message.
type SentMessage struct {
	ChannelID string
	Content   string
}

// ChannelMessageSend records the message and returns Err.
func (m *MessageSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{ChannelID: channelID, Content: content})
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-message", ChannelID: channelID, Content: content}, nil
}

// Sent returns every recorded message.
func (m *MessageSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// Directory is a static discord.Directory.
type Directory struct {
	// Voice maps "guildID/userID" to a voice channel ID.
	Voice map[string]string
	// Names maps channel IDs to names.
	Names map[string]string
}

// VoiceChannel implements discord.Directory.
func (d *Directory) VoiceChannel(guildID, userID string) string {
	return d.Voice[guildID+"/"+userID]
}

// ChannelName implements discord.Directory. Unknown channels resolve to
// their ID.
func (d *Directory) ChannelName(channelID string) string {
	if n, ok := d.Names[channelID]; ok {
		return n
	}
	return channelID
}

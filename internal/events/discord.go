package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// MessageSender posts a message to the configured channel.
type MessageSender interface {
	SendChannelMessage(msg *discordgo.MessageSend) error
}

type discordBot struct {
	session   *discordgo.Session
	channelID string
}

func (b *discordBot) SendChannelMessage(msg *discordgo.MessageSend) error {
	_, err := b.session.ChannelMessageSendComplex(b.channelID, msg)
	return err
}

// DialDiscord opens a bot session for channelID.
func DialDiscord(token, channelID string) (MessageSender, func() error, error) {
	if token == "" || channelID == "" {
		return nil, nil, errors.New("discord token and channel are required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Open(); err != nil {
		return nil, nil, fmt.Errorf("discord open: %w", err)
	}
	return &discordBot{session: s, channelID: channelID}, s.Close, nil
}

// DiscordNotifier posts an embed for every danger verdict.
type DiscordNotifier struct {
	sender      MessageSender
	explorerURL string
}

var _ Sink = (*DiscordNotifier)(nil)

// NewDiscordNotifier creates a notifier. explorerURL is the block
// explorer's web root used for transaction links.
func NewDiscordNotifier(sender MessageSender, explorerURL string) *DiscordNotifier {
	if explorerURL == "" {
		explorerURL = "https://basescan.org"
	}
	return &DiscordNotifier{sender: sender, explorerURL: explorerURL}
}

func (n *DiscordNotifier) Name() string { return "discord" }

func (n *DiscordNotifier) Send(ctx context.Context, e *Event) error {
	if e.Type != TypeTransactionAnalyzed || e.RiskLevel != "danger" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.sender.SendChannelMessage(n.render(e))
}

func (n *DiscordNotifier) render(e *Event) *discordgo.MessageSend {
	reason := ""
	if r, ok := e.Data.(interface{ RiskReason() string }); ok {
		reason = r.RiskReason()
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Address", Value: e.Address},
		{Name: "Transaction", Value: e.TxHash},
	}
	if reason != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Reason", Value: reason})
	}
	return &discordgo.MessageSend{
		Embed: &discordgo.MessageEmbed{
			Title:     "Dangerous transaction detected",
			Type:      "rich",
			URL:       fmt.Sprintf("%s/tx/%s", n.explorerURL, e.TxHash),
			Color:     0xe74c3c,
			Fields:    fields,
			Timestamp: e.Timestamp.Format(time.RFC3339),
		},
	}
}

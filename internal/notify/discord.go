package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordMessageLimit is Discord's maximum message length.
const discordMessageLimit = 2000

// channelSender is the subset of *discordgo.Session used by [Discord].
type channelSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts notifications to a Discord text channel via a bot.
type Discord struct {
	sender    channelSender
	channelID string
}

// NewDiscord creates a Discord sink authenticating with a bot token. The
// session is REST-only; no gateway connection is opened.
func NewDiscord(token, channelID string) (*Discord, error) {
	if token == "" || channelID == "" {
		return nil, fmt.Errorf("notify: discord token and channel id are required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("notify: create discord session: %w", err)
	}
	return &Discord{sender: session, channelID: channelID}, nil
}

// Notify implements [Sink]. Messages longer than Discord's limit are split.
func (d *Discord) Notify(ctx context.Context, msg Message) error {
	for _, part := range chunk(Format(msg), discordMessageLimit) {
		if _, err := d.sender.ChannelMessageSend(d.channelID, part, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("notify: discord send: %w", err)
		}
	}
	return nil
}

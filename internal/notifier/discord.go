package notifier

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordSender delivers messages to Discord text channels.
type DiscordSender struct {
	session *discordgo.Session
}

// NewDiscordSender creates a sender on an opened session.
func NewDiscordSender(session *discordgo.Session) *DiscordSender {
	return &DiscordSender{session: session}
}

// Send posts msg to channelID.
func (d *DiscordSender) Send(ctx context.Context, channelID string, msg Message) error {
	if _, err := d.session.ChannelMessageSendComplex(channelID, ToMessageSend(msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send to %s: %w", channelID, err)
	}
	return nil
}

// ToEmbed converts the report part of msg. It returns nil for text-only messages.
func ToEmbed(msg Message) *discordgo.MessageEmbed {
	if !msg.HasEmbed() {
		return nil
	}
	color := msg.Color
	if color == 0 {
		color = DefaultColor
	}
	embed := &discordgo.MessageEmbed{
		Title: msg.Title,
		Color: color,
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if len(msg.Image) > 0 {
		embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + imageName(msg)}
	}
	return embed
}

func imageName(msg Message) string {
	if msg.ImageName != "" {
		return msg.ImageName
	}
	return ChartFileName
}

func toFiles(msg Message) []*discordgo.File {
	if len(msg.Image) == 0 {
		return nil
	}
	return []*discordgo.File{{
		Name:        imageName(msg),
		ContentType: "image/png",
		Reader:      bytes.NewReader(msg.Image),
	}}
}

// ToMessageSend converts msg to a channel message payload.
func ToMessageSend(msg Message) *discordgo.MessageSend {
	send := &discordgo.MessageSend{Content: msg.Content, Files: toFiles(msg)}
	if embed := ToEmbed(msg); embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{embed}
	}
	return send
}

// ToWebhookEdit converts msg to an edit of a deferred interaction response.
func ToWebhookEdit(msg Message) *discordgo.WebhookEdit {
	content := msg.Content
	embeds := []*discordgo.MessageEmbed{}
	if embed := ToEmbed(msg); embed != nil {
		embeds = append(embeds, embed)
	}
	return &discordgo.WebhookEdit{
		Content: &content,
		Embeds:  &embeds,
		Files:   toFiles(msg),
	}
}

package notifier

import (
	"context"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Request is a slash-command invocation.
type Request struct {
	Command   string
	ChannelID string
	GuildID   string
	UserID    string
	Options   map[string]string
}

// Option returns the named option value, or "" when absent.
func (r Request) Option(name string) string {
	return r.Options[name]
}

// Response is a handler's answer to a Request.
type Response struct {
	Message   Message
	Ephemeral bool
}

// Reply is a text-only Response.
func Reply(text string, ephemeral bool) Response {
	return Response{Message: Message{Content: text}, Ephemeral: ephemeral}
}

// CommandHandler answers one command.
type CommandHandler func(ctx context.Context, req Request) Response

// InteractionRouter feeds Discord slash-command interactions to a CommandHandler.
// Commands listed as deferred are acknowledged first and answered by editing
// the acknowledgement, for handlers that may exceed Discord's 3s reply window.
type InteractionRouter struct {
	handler  CommandHandler
	deferred map[string]bool
	timeout  time.Duration
	log      zerolog.Logger
}

// NewInteractionRouter creates a router.
func NewInteractionRouter(handler CommandHandler, deferred []string, timeout time.Duration, log zerolog.Logger) *InteractionRouter {
	d := make(map[string]bool, len(deferred))
	for _, name := range deferred {
		d[name] = true
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &InteractionRouter{
		handler:  handler,
		deferred: d,
		timeout:  timeout,
		log:      log.With().Str("component", "interactions").Logger(),
	}
}

// Handle is a discordgo InteractionCreate handler.
func (r *InteractionRouter) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	req := RequestFromInteraction(i)
	log := r.log.With().Str("command", req.Command).Str("channel_id", req.ChannelID).Str("user_id", req.UserID).Logger()
	log.Info().Interface("options", req.Options).Msg("command received")

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if r.deferred[req.Command] {
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		})
		if err != nil {
			log.Error().Err(err).Msg("defer interaction")
			return
		}
		resp := r.handler(ctx, req)
		if _, err := s.InteractionResponseEdit(i.Interaction, ToWebhookEdit(resp.Message)); err != nil {
			log.Error().Err(err).Msg("edit interaction response")
		}
		return
	}

	resp := r.handler(ctx, req)
	if err := s.InteractionRespond(i.Interaction, ToInteractionResponse(resp)); err != nil {
		log.Error().Err(err).Msg("respond to interaction")
	}
}

// RequestFromInteraction flattens an application command interaction.
func RequestFromInteraction(i *discordgo.InteractionCreate) Request {
	data := i.ApplicationCommandData()
	req := Request{
		Command:   data.Name,
		ChannelID: i.ChannelID,
		GuildID:   i.GuildID,
		Options:   make(map[string]string, len(data.Options)),
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		req.UserID = i.Member.User.ID
	case i.User != nil:
		req.UserID = i.User.ID
	}
	for _, opt := range data.Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionInteger:
			req.Options[opt.Name] = strconv.FormatInt(opt.IntValue(), 10)
		case discordgo.ApplicationCommandOptionString:
			req.Options[opt.Name] = opt.StringValue()
		}
	}
	return req
}

// ToInteractionResponse converts resp to an immediate interaction reply.
func ToInteractionResponse(resp Response) *discordgo.InteractionResponse {
	data := &discordgo.InteractionResponseData{
		Content: resp.Message.Content,
		Files:   toFiles(resp.Message),
	}
	if embed := ToEmbed(resp.Message); embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{embed}
	}
	if resp.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
}

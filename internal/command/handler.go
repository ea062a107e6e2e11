package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"kabunotify/internal/collector"
	"kabunotify/internal/model"
	"kabunotify/internal/notifier"
	"kabunotify/internal/schedule"
)

// Store is the configuration store used by commands.
type Store interface {
	UpsertStock(ctx context.Context, ticker, name string) (int64, error)
	AddChannelStock(ctx context.Context, channelID, guildID string, stockID int64, addedBy string) (bool, error)
	RemoveChannelStock(ctx context.Context, channelID, ticker string) (bool, error)
	AddSchedules(ctx context.Context, channelID, guildID string, exprs []string) ([]model.Schedule, error)
	DeleteSchedule(ctx context.Context, channelID string, id int64) (bool, error)
	GuildOverview(ctx context.Context, guildID string) ([]model.ChannelOverview, error)
}

// Validator checks that a ticker exists.
type Validator interface {
	ValidateTicker(ctx context.Context, ticker string) collector.Validation
}

// Notifications builds an on-demand price report.
type Notifications interface {
	BuildNotification(ctx context.Context, channelID, title string) (notifier.Message, bool, error)
}

// Registrar rebuilds live triggers after schedules change.
type Registrar interface {
	RegisterAll(ctx context.Context) (int, error)
}

const unexpectedError = "❌ an unexpected error occurred"

// Handler dispatches commands by name.
type Handler struct {
	prefix        string
	defs          []Definition
	store         Store
	validator     Validator
	notifications Notifications
	registrar     Registrar
	loc           *time.Location
	now           func() time.Time
	log           zerolog.Logger
}

// NewHandler creates a Handler for commands named with prefix.
func NewHandler(prefix string, store Store, validator Validator, notifications Notifications, registrar Registrar, loc *time.Location, log zerolog.Logger) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		prefix:        prefix,
		defs:          Definitions(prefix),
		store:         store,
		validator:     validator,
		notifications: notifications,
		registrar:     registrar,
		loc:           loc,
		now:           time.Now,
		log:           log.With().Str("component", "command").Logger(),
	}
}

// Handle is a notifier.CommandHandler.
func (h *Handler) Handle(ctx context.Context, req notifier.Request) notifier.Response {
	name, ok := strings.CutPrefix(req.Command, h.prefix)
	if !ok {
		return notifier.Reply("❓ unknown command", true)
	}

	switch name {
	case AddStock:
		return h.addStock(ctx, req)
	case RemoveStock:
		return h.removeStock(ctx, req)
	case SetSchedule:
		return h.setSchedule(ctx, req)
	case RemoveSchedule:
		return h.removeSchedule(ctx, req)
	case List:
		return h.list(ctx, req)
	case Quote:
		return h.quote(ctx, req)
	case Help:
		return h.help()
	default:
		return notifier.Reply("❓ unknown command", true)
	}
}

func (h *Handler) cmd(name string) string {
	return "/" + h.prefix + name
}

func guildOnly() notifier.Response {
	return notifier.Reply("this command can only be used in a server.", true)
}

func (h *Handler) fail(req notifier.Request, err error) notifier.Response {
	h.log.Error().Err(err).Str("command", req.Command).Str("channel_id", req.ChannelID).Msg("command failed")
	return notifier.Reply(unexpectedError, true)
}

func (h *Handler) addStock(ctx context.Context, req notifier.Request) notifier.Response {
	if req.GuildID == "" {
		return guildOnly()
	}
	code := strings.TrimSpace(req.Option("code"))
	if code == "" {
		return notifier.Reply("❌ please specify a stock code", true)
	}
	ticker := model.ToTokyoTicker(code)
	display := model.DisplayTicker(ticker)

	v := h.validator.ValidateTicker(ctx, ticker)
	if !v.Valid {
		switch v.Kind {
		case collector.ValidationNetwork:
			return notifier.Reply(fmt.Sprintf("⚠️ %s\nCould not fetch price data. Please try again later.", v.Message), false)
		case collector.ValidationNotFound:
			return notifier.Reply(fmt.Sprintf("❌ stock code `%s` was not found. Check the Tokyo Stock Exchange code.", display), false)
		default:
			msg := v.Message
			if msg == "" {
				msg = "an unexpected error occurred"
			}
			return notifier.Reply("❌ "+msg, false)
		}
	}

	stockID, err := h.store.UpsertStock(ctx, ticker, v.Name)
	if err != nil {
		return h.fail(req, err)
	}
	added, err := h.store.AddChannelStock(ctx, req.ChannelID, req.GuildID, stockID, req.UserID)
	if err != nil {
		return h.fail(req, err)
	}

	label := model.Stock{Ticker: ticker, Name: v.Name}.Label()
	if !added {
		return notifier.Reply(fmt.Sprintf("⚠️ `%s` (%s) is already registered.", label, display), false)
	}
	return notifier.Reply(fmt.Sprintf("✅ **%s** (%s) added.", label, display), false)
}

func (h *Handler) removeStock(ctx context.Context, req notifier.Request) notifier.Response {
	code := strings.TrimSpace(req.Option("code"))
	if code == "" {
		return notifier.Reply("❌ please specify a stock code", true)
	}
	ticker := model.ToTokyoTicker(code)

	removed, err := h.store.RemoveChannelStock(ctx, req.ChannelID, ticker)
	if err != nil {
		return h.fail(req, err)
	}
	if !removed {
		return notifier.Reply(fmt.Sprintf("❌ `%s` is not registered in this channel.", model.DisplayTicker(ticker)), true)
	}
	return notifier.Reply(fmt.Sprintf("✅ `%s` removed.", model.DisplayTicker(ticker)), false)
}

func (h *Handler) setSchedule(ctx context.Context, req notifier.Request) notifier.Response {
	if req.GuildID == "" {
		return guildOnly()
	}
	var times []string
	for _, key := range []string{"time1", "time2", "time3"} {
		if t := strings.TrimSpace(req.Option(key)); t != "" {
			times = append(times, t)
		}
	}
	if len(times) == 0 {
		return notifier.Reply("❌ please specify at least one time (HH:MM)", true)
	}

	parsed, err := schedule.ParseAll(req.Option("day"), times)
	if err != nil {
		var pe *schedule.ParseError
		if errors.As(err, &pe) {
			return notifier.Reply("❌ "+pe.Error(), true)
		}
		return h.fail(req, err)
	}

	exprs := make([]string, len(parsed))
	for i, p := range parsed {
		exprs[i] = p.Expression
	}
	added, err := h.store.AddSchedules(ctx, req.ChannelID, req.GuildID, exprs)
	if err != nil {
		return h.fail(req, err)
	}
	h.reregister(ctx)

	if len(added) == 0 {
		return notifier.Reply("⚠️ the specified schedules are already registered", true)
	}
	var b strings.Builder
	b.WriteString("✅ notification schedules added:")
	for _, sc := range added {
		fmt.Fprintf(&b, "\n  [ID:%d] %s", sc.ID, schedule.Describe(sc.Expression))
	}
	return notifier.Reply(b.String(), false)
}

func (h *Handler) removeSchedule(ctx context.Context, req notifier.Request) notifier.Response {
	id, err := strconv.ParseInt(strings.TrimSpace(req.Option("id")), 10, 64)
	if err != nil {
		return notifier.Reply("❌ schedule ID must be a number", true)
	}

	deleted, err := h.store.DeleteSchedule(ctx, req.ChannelID, id)
	if err != nil {
		return h.fail(req, err)
	}
	if !deleted {
		return notifier.Reply(fmt.Sprintf("❌ schedule ID %d was not found\nUse `%s` to check schedule IDs", id, h.cmd(List)), true)
	}
	h.reregister(ctx)
	return notifier.Reply(fmt.Sprintf("✅ schedule ID %d removed", id), false)
}

// reregister rebuilds triggers. The mutation is already stored, so a failure
// is logged and the previous triggers stay live until the next rebuild.
func (h *Handler) reregister(ctx context.Context) {
	if n, err := h.registrar.RegisterAll(ctx); err != nil {
		h.log.Error().Err(err).Msg("re-register triggers")
	} else {
		h.log.Debug().Int("triggers", n).Msg("triggers re-registered")
	}
}

func (h *Handler) list(ctx context.Context, req notifier.Request) notifier.Response {
	if req.GuildID == "" {
		return guildOnly()
	}
	overview, err := h.store.GuildOverview(ctx, req.GuildID)
	if err != nil {
		return h.fail(req, err)
	}
	if len(overview) == 0 {
		return notifier.Reply(fmt.Sprintf("📋 no notification settings in this server yet.\nUse `%s` to add a stock.", h.cmd(AddStock)), true)
	}

	msg := notifier.Message{Title: "📋 notification settings", Color: notifier.DefaultColor}
	var warnings []string
	for _, ch := range overview {
		stocks := "none"
		if len(ch.Stocks) > 0 {
			labels := make([]string, len(ch.Stocks))
			for i, st := range ch.Stocks {
				labels[i] = fmt.Sprintf("%s (%s)", st.Label(), model.DisplayTicker(st.Ticker))
			}
			stocks = strings.Join(labels, ", ")
		}
		schedules := "not set"
		if len(ch.Schedules) > 0 {
			descs := make([]string, len(ch.Schedules))
			for i, sc := range ch.Schedules {
				descs[i] = fmt.Sprintf("[ID:%d] %s", sc.ID, schedule.Describe(sc.Expression))
			}
			schedules = strings.Join(descs, ", ")
		}
		msg.Fields = append(msg.Fields, notifier.Field{
			Name:  fmt.Sprintf("<#%s>", ch.ChannelID),
			Value: fmt.Sprintf("stocks: %s\nschedules: %s", stocks, schedules),
		})

		switch {
		case len(ch.Stocks) > 0 && len(ch.Schedules) == 0:
			warnings = append(warnings, fmt.Sprintf("<#%s>: %d stocks registered, set times with `%s`",
				ch.ChannelID, len(ch.Stocks), h.cmd(SetSchedule)))
		case len(ch.Stocks) == 0 && len(ch.Schedules) > 0:
			warnings = append(warnings, fmt.Sprintf("<#%s>: schedules are set but no stocks are registered", ch.ChannelID))
		}
	}
	if len(warnings) > 0 {
		msg.Fields = append(msg.Fields, notifier.Field{Name: "⚠️ attention", Value: strings.Join(warnings, "\n")})
	}
	return notifier.Response{Message: msg}
}

func (h *Handler) quote(ctx context.Context, req notifier.Request) notifier.Response {
	title := "📊 current prices - " + h.now().In(h.loc).Format("2006/01/02 15:04")
	msg, ok, err := h.notifications.BuildNotification(ctx, req.ChannelID, title)
	if err != nil {
		return h.fail(req, err)
	}
	if !ok {
		return notifier.Reply(fmt.Sprintf("📋 no stocks are registered in this channel.\nUse `%s` to add one.", h.cmd(AddStock)), false)
	}
	return notifier.Response{Message: msg}
}

func (h *Handler) help() notifier.Response {
	msg := notifier.Message{Title: "📖 commands", Color: notifier.DefaultColor}
	for _, d := range h.defs {
		name := "/" + d.Name
		for _, o := range d.Options {
			if o.Required {
				name += " " + o.Name
			} else {
				name += " [" + o.Name + "]"
			}
		}
		msg.Fields = append(msg.Fields, notifier.Field{Name: name, Value: d.Description})
	}
	return notifier.Response{Message: msg, Ephemeral: true}
}
